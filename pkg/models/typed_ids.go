package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
)

// kind binds a typed ID to its table name and human-readable label.
type kind interface {
	table() string
	label() string
}

type userKind struct{}

func (userKind) table() string { return "users" }
func (userKind) label() string { return "user" }

type participantKind struct{}

func (participantKind) table() string { return "participants" }
func (participantKind) label() string { return "participant" }

type locationKind struct{}

func (locationKind) table() string { return "locations" }
func (locationKind) label() string { return "location" }

type actionCategoryKind struct{}

func (actionCategoryKind) table() string { return "action_categories" }
func (actionCategoryKind) label() string { return "action category" }

type tagKind struct{}

func (tagKind) table() string { return "tags" }
func (tagKind) label() string { return "tag" }

type logEntryKind struct{}

func (logEntryKind) table() string { return "log_entries" }
func (logEntryKind) label() string { return "log entry" }

// ID is a UUID that knows which table it belongs to.
// The zero value means "unset".
type ID[K kind] struct {
	uuid uuid.UUID
}

type (
	UserID           = ID[userKind]
	ParticipantID    = ID[participantKind]
	LocationID       = ID[locationKind]
	ActionCategoryID = ID[actionCategoryKind]
	TagID            = ID[tagKind]
	LogEntryID       = ID[logEntryKind]
)

func newID[K kind]() ID[K] {
	return ID[K]{uuid: uuid.New()}
}

func parseID[K kind](s string) (ID[K], error) {
	id, err := uuid.Parse(s)
	if err != nil {
		var k K
		return ID[K]{}, fmt.Errorf("invalid %s ID: %w", k.label(), err)
	}
	return ID[K]{uuid: id}, nil
}

func NewUserID() UserID                     { return newID[userKind]() }
func NewParticipantID() ParticipantID       { return newID[participantKind]() }
func NewLocationID() LocationID             { return newID[locationKind]() }
func NewActionCategoryID() ActionCategoryID { return newID[actionCategoryKind]() }
func NewTagID() TagID                       { return newID[tagKind]() }
func NewLogEntryID() LogEntryID             { return newID[logEntryKind]() }

func ParseUserID(s string) (UserID, error)               { return parseID[userKind](s) }
func ParseParticipantID(s string) (ParticipantID, error) { return parseID[participantKind](s) }
func ParseLocationID(s string) (LocationID, error)       { return parseID[locationKind](s) }
func ParseTagID(s string) (TagID, error)                 { return parseID[tagKind](s) }
func ParseLogEntryID(s string) (LogEntryID, error)       { return parseID[logEntryKind](s) }

func ParseActionCategoryID(s string) (ActionCategoryID, error) {
	return parseID[actionCategoryKind](s)
}

func (i ID[K]) UUID() uuid.UUID { return i.uuid }
func (i ID[K]) String() string  { return i.uuid.String() }
func (i ID[K]) IsZero() bool    { return i.uuid == uuid.Nil }

// Table returns the table (or SurrealDB table) the ID belongs to.
func (ID[K]) Table() string {
	var k K
	return k.table()
}

func (i ID[K]) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: i.Table(),
		ID:    i.uuid.String(),
	}
}

func (i ID[K]) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(i.uuid.String())
}

// UnmarshalJSON accepts the canonical UUID string. An empty string decodes to the zero ID.
func (i *ID[K]) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		i.uuid = uuid.Nil
		return nil
	}
	parsed, err := parseID[K](s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

func (i ID[K]) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{i.Table(), i.uuid.String()},
	})
}

func (i *ID[K]) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, i.Table(), &i.uuid)
}

func (i ID[K]) Value() (driver.Value, error) {
	if i.IsZero() {
		return nil, nil
	}
	return i.uuid.String(), nil
}

func (i *ID[K]) Scan(value any) error {
	return scanUUID(value, &i.uuid)
}

func (ID[K]) GormDataType() string { return "uuid" }

// scanUUID is a helper for implementing sql.Scanner interface for PostgreSQL/GORM
func scanUUID(value any, target *uuid.UUID) error {
	if value == nil {
		*target = uuid.Nil
		return nil
	}

	switch v := value.(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*target = id
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		*target = id
	default:
		return fmt.Errorf("cannot scan type %T into UUID", value)
	}
	return nil
}

// unmarshalCBORID decodes a SurrealDB RecordID (CBOR tag 8, [table, id]).
func unmarshalCBORID(data []byte, expectedTable string, target *uuid.UUID) error {
	if len(data) == 0 {
		return fmt.Errorf("empty CBOR data")
	}

	// Check if this is a CBOR tag (major type 6)
	majorType := data[0] >> 5
	if majorType != 6 {
		return fmt.Errorf("expected CBOR tag for RecordID, got major type %d", majorType)
	}

	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("failed to unmarshal CBOR tag: %w", err)
	}

	if tag.Number != 8 {
		return fmt.Errorf("expected RecordID tag (8), got %d", tag.Number)
	}

	arr, ok := tag.Content.([]any)
	if !ok || len(arr) != 2 {
		return fmt.Errorf("invalid RecordID format: expected [table, id] array")
	}

	table, ok := arr[0].(string)
	if !ok {
		return fmt.Errorf("invalid RecordID format: table name must be string")
	}
	if table != expectedTable {
		return fmt.Errorf("expected table %s, got %s", expectedTable, table)
	}

	idStr, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid RecordID format: ID must be string")
	}

	parsed, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid UUID in RecordID: %w", err)
	}

	*target = parsed
	return nil
}

// Compare orders IDs by their string form, giving stable sort orders across backends.
func (i ID[K]) Compare(other ID[K]) int {
	return strings.Compare(i.uuid.String(), other.uuid.String())
}
