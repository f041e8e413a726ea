// Package models provides data model definitions for the content sync core.
package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
)

// ContentID identifies a content item. It is a 128-bit UUID and is immutable once assigned.
type ContentID uuid.UUID

// NilContentID is the zero ContentID. It never identifies real content.
var NilContentID ContentID

// NewContentID generates a new random (v4) ContentID.
func NewContentID() ContentID {
	return ContentID(uuid.New())
}

// ParseContentID parses the canonical textual form of a ContentID.
func ParseContentID(s string) (ContentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilContentID, apperrors.Wrap(apperrors.ErrValidation, fmt.Sprintf("invalid content ID %q", s), err)
	}
	if id == uuid.Nil {
		return NilContentID, apperrors.New(apperrors.ErrValidation, "content ID must not be the nil UUID")
	}
	return ContentID(id), nil
}

// MustParseContentID is like ParseContentID but panics on error. Intended for tests and constants.
func MustParseContentID(s string) ContentID {
	id, err := ParseContentID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical 36-character form.
func (id ContentID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the nil UUID.
func (id ContentID) IsZero() bool {
	return id == NilContentID
}

// Value implements driver.Valuer.
func (id ContentID) Value() (driver.Value, error) {
	return id.String(), nil
}

// Scan implements sql.Scanner.
func (id *ContentID) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		*id = NilContentID
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into ContentID", value)
	}

	parsed, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("cannot scan %q into ContentID: %w", s, err)
	}
	*id = ContentID(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ContentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ContentID) UnmarshalText(data []byte) error {
	parsed, err := ParseContentID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
