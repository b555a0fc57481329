package record

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

var (
	// ErrEmptyGUID indicates a record or envelope without an identifier
	ErrEmptyGUID = errors.New("record guid cannot be empty")
	// ErrUnexpectedType indicates a codec received a record of the wrong concrete type
	ErrUnexpectedType = errors.New("unexpected record type for collection")
	// ErrMalformedPayload indicates a payload that is not a JSON object of the expected shape
	ErrMalformedPayload = errors.New("malformed record payload")
)

// Record is implemented by every plaintext record type.
type Record interface {
	GUID() string
	Collection() string
	// LastModified returns the server timestamp in milliseconds since the epoch.
	LastModified() int64
	SetLastModified(ms int64)
	IsDeleted() bool
}

// Meta carries the identity and bookkeeping fields shared by all records.
// These travel outside the encrypted payload.
type Meta struct {
	ID             string
	CollectionName string
	Modified       int64
	Deleted        bool
}

// GUID returns the record identifier.
func (m *Meta) GUID() string { return m.ID }

// Collection returns the collection the record belongs to.
func (m *Meta) Collection() string { return m.CollectionName }

// LastModified returns the timestamp in milliseconds.
func (m *Meta) LastModified() int64 { return m.Modified }

// SetLastModified updates the timestamp in milliseconds.
func (m *Meta) SetLastModified(ms int64) { m.Modified = ms }

// IsDeleted reports whether the record is a tombstone.
func (m *Meta) IsDeleted() bool { return m.Deleted }

// guidLength is the number of random bytes behind a generated guid.
// 9 bytes encode to exactly 12 base64url characters.
const guidLength = 9

// NewGUID returns a fresh 12-character URL-safe identifier.
func NewGUID() (string, error) {
	buf := make([]byte, guidLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
