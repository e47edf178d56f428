// Package timecode derives HH:MM:SS:FF production timecode from wall-clock time.
//
// A [Timecode] is four two-digit fields: hours (0-23), minutes (0-59), seconds (0-59)
// and frames (0 to frame rate - 1). [FromTime] computes one from an instant and
// [Parse] validates an operator-supplied string.
//
// The [Generator] owns a running timecode: it ticks at roughly the frame period,
// pushes each new reading to subscribers and can be pinned to a manual value until
// it is resynced against the clock.
package timecode

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DefaultFrameRate is the frame rate used when none is configured.
const DefaultFrameRate = 30

// ErrInvalidTimecode is wrapped by every [ParseError].
var ErrInvalidTimecode = errors.New("invalid timecode")

// Timecode is a time of day with frame precision.
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
	Frames  int
}

// FromTime computes the timecode of t in t's location.
// Frames are floor(fraction_of_second * fps), which for whole milliseconds
// is floor(ms * fps / 1000).
func FromTime(t time.Time, fps int) Timecode {
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	frames := int(int64(t.Nanosecond()) * int64(fps) / int64(time.Second))
	return Timecode{
		Hours:   t.Hour(),
		Minutes: t.Minute(),
		Seconds: t.Second(),
		Frames:  frames,
	}
}

// String renders the timecode as HH:MM:SS:FF.
func (tc Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", tc.Hours, tc.Minutes, tc.Seconds, tc.Frames)
}

// IsZero reports whether tc is 00:00:00:00.
func (tc Timecode) IsZero() bool {
	return tc == Timecode{}
}

// Validate checks the field bounds for the given frame rate.
func (tc Timecode) Validate(fps int) error {
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	switch {
	case tc.Hours < 0 || tc.Hours > 23:
		return &ParseError{Input: tc.String(), Field: "hours", Reason: "must be between 00 and 23"}
	case tc.Minutes < 0 || tc.Minutes > 59:
		return &ParseError{Input: tc.String(), Field: "minutes", Reason: "must be between 00 and 59"}
	case tc.Seconds < 0 || tc.Seconds > 59:
		return &ParseError{Input: tc.String(), Field: "seconds", Reason: "must be between 00 and 59"}
	case tc.Frames < 0 || tc.Frames >= fps:
		return &ParseError{
			Input:  tc.String(),
			Field:  "frames",
			Reason: fmt.Sprintf("must be between 00 and %02d", fps-1),
		}
	}
	return nil
}

// ParseError describes why a candidate timecode was rejected.
type ParseError struct {
	Input  string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid timecode %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("invalid timecode %q: %s %s", e.Input, e.Field, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrInvalidTimecode }

// Parse validates s against the strict HH:MM:SS:FF format: exactly four
// two-digit fields separated by colons, each within its range for fps.
func Parse(s string, fps int) (Timecode, error) {
	if len(s) != 11 || s[2] != ':' || s[5] != ':' || s[8] != ':' {
		return Timecode{}, &ParseError{Input: s, Reason: "expected HH:MM:SS:FF"}
	}

	var fields [4]int
	for i := range fields {
		part := s[i*3 : i*3+2]
		if part[0] < '0' || part[0] > '9' || part[1] < '0' || part[1] > '9' {
			return Timecode{}, &ParseError{Input: s, Reason: "fields must be two digits"}
		}
		n, _ := strconv.Atoi(part)
		fields[i] = n
	}

	tc := Timecode{Hours: fields[0], Minutes: fields[1], Seconds: fields[2], Frames: fields[3]}
	if err := tc.Validate(fps); err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Input = s
		}
		return Timecode{}, err
	}
	return tc, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Timecode {
	tc, err := Parse(s, DefaultFrameRate)
	if err != nil {
		panic(err)
	}
	return tc
}

func (tc Timecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(tc.String())
}

// UnmarshalJSON accepts any well-formed timecode. Frame bounds are checked
// against the largest supported rate; callers that know the rate should Validate.
func (tc *Timecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*tc = Timecode{}
		return nil
	}
	parsed, err := Parse(s, maxFrameRate)
	if err != nil {
		return err
	}
	*tc = parsed
	return nil
}

// maxFrameRate bounds frames when decoding without a known rate.
const maxFrameRate = 100

// Value stores the timecode as its string form.
func (tc Timecode) Value() (driver.Value, error) {
	return tc.String(), nil
}

func (tc *Timecode) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case nil:
		*tc = Timecode{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan type %T into Timecode", value)
	}
	parsed, err := Parse(s, maxFrameRate)
	if err != nil {
		return err
	}
	*tc = parsed
	return nil
}

func (Timecode) GormDataType() string { return "varchar(11)" }
