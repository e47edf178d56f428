// Package logbook implements the operator-facing protocols of the production log:
// submitting an entry from a console, editing and deleting entries, and the error
// taxonomy every protocol reports in.
//
// # Submission
//
// A [Console] belongs to one operator session. It owns a selection of
// participants, location, action category and tags, a notes draft and a running
// timecode. [Console.Submit] checks that a location, an action category and
// non-blank notes are present before anything reaches the store, builds a
// [Candidate] by value from a single timecode reading and a selection snapshot,
// and hands it to a [Submitter]. On success only the notes are cleared; the
// selection stays so the next entry in the same scene needs only new text. On
// failure the notes are kept so the operator can retry.
//
// # Edit and delete
//
// [Editor] applies [CanMutate] to the entry as currently stored. Admins and loggers
// may change any entry; anyone may change their own. Only notes can be edited.
//
// # Errors
//
// Every operation returns one of [ValidationError], [PermissionError],
// [NotFoundError], [ConnectivityError] or [UnknownError], or [ErrSubmitInFlight]
// for a rejected double submit. Use errors.Is with the matching sentinel, or
// errors.As to get the details. [Classify] converts store and transport errors.
package logbook
