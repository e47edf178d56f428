// Package models defines the domain entities of the production log.
//
// # Entities
//
//   - [User]: an authenticated identity with a [Role] (admin, logger or viewer)
//   - [Participant], [Location], [ActionCategory], [Tag]: reference data that
//     administrators manage and operators pick from while logging
//   - [LogEntry]: one timestamped observation, stamped with the timecode that was
//     showing when it was submitted
//
// # Typed IDs
//
// Every entity has its own ID type ([UserID], [ParticipantID], [LocationID],
// [ActionCategoryID], [TagID], [LogEntryID]). They are instances of one generic
// [ID] parameterised by the table they belong to, so the compiler rejects a
// LocationID where a TagID is expected.
//
// The IDs serialize themselves for each backend: UUID strings for JSON and SQL,
// and SurrealDB RecordIDs (CBOR tag 8, [table, id]) over the SurrealDB protocol.
//
// IDs are always assigned by the store. Create paths call AssignID (GORM does so
// through BeforeCreate), which overwrites anything a caller put there.
//
// # Mutability
//
// A LogEntry is fixed once created except for Notes, UpdatedAt and UpdatedBy.
// Stores expose a notes-only update for entries; there is no general update.
package models
