// Package ident provides the two identity spaces every synchronizable record
// lives in, plus the deterministic attendee code derived from an email.
//
// Two types cover the identity needs:
//   - LocalID: assigned on the edge when a row is created, never changes
//   - RemoteID: assigned by the cloud once it accepts the row; absent until then
//
// Reconciliation never rewrites a LocalID. A RemoteID is attached to the row
// next to it, so both spaces stay addressable for the lifetime of the record.
package ident

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// LocalID identifies a row inside the edge store. The zero value (LocalID{})
// represents an absent id.
type LocalID struct {
	value string
}

// NewLocalID returns a fresh random LocalID.
func NewLocalID() LocalID {
	return LocalID{value: uuid.New().String()}
}

// ParseLocalID wraps an existing local id. Surrounding whitespace is dropped
// and uuids are lowercased so ids round-trip through URLs and JSON unchanged.
func ParseLocalID(raw string) LocalID {
	return LocalID{value: strings.ToLower(strings.TrimSpace(raw))}
}

// String returns the local id text.
func (id LocalID) String() string {
	return id.value
}

// IsZero reports whether the id is absent.
func (id LocalID) IsZero() bool {
	return id.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (id LocalID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *LocalID) UnmarshalText(text []byte) error {
	*id = ParseLocalID(string(text))
	return nil
}

// Scan implements sql.Scanner. SQL NULL produces the zero id.
func (id *LocalID) Scan(src any) error {
	s, err := scanString("LocalID", src)
	if err != nil {
		return err
	}

	*id = ParseLocalID(s)

	return nil
}

// Value implements driver.Valuer. The zero id writes SQL NULL.
func (id LocalID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

// RemoteID identifies a record in the cloud. Cloud ids are opaque: they are
// stored exactly as received apart from trimming whitespace.
type RemoteID struct {
	value string
}

// NewRemoteID wraps a cloud-assigned id. Empty input returns the zero id.
func NewRemoteID(raw string) RemoteID {
	return RemoteID{value: strings.TrimSpace(raw)}
}

// String returns the remote id text.
func (id RemoteID) String() string {
	return id.value
}

// IsZero reports whether the cloud has not assigned an id yet.
func (id RemoteID) IsZero() bool {
	return id.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (id RemoteID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *RemoteID) UnmarshalText(text []byte) error {
	*id = NewRemoteID(string(text))
	return nil
}

// Scan implements sql.Scanner. SQL NULL produces the zero id.
func (id *RemoteID) Scan(src any) error {
	s, err := scanString("RemoteID", src)
	if err != nil {
		return err
	}

	*id = NewRemoteID(s)

	return nil
}

// Value implements driver.Valuer. The zero id writes SQL NULL.
func (id RemoteID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

func scanString(typeName string, src any) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("ident.%s.Scan: unsupported type %T", typeName, src)
	}
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = LocalID{}
	_ encoding.TextUnmarshaler = (*LocalID)(nil)
	_ fmt.Stringer             = LocalID{}
	_ driver.Valuer            = LocalID{}
	_ sql.Scanner              = (*LocalID)(nil)

	_ encoding.TextMarshaler   = RemoteID{}
	_ encoding.TextUnmarshaler = (*RemoteID)(nil)
	_ fmt.Stringer             = RemoteID{}
	_ driver.Valuer            = RemoteID{}
	_ sql.Scanner              = (*RemoteID)(nil)
)
