package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec converts records of one collection to and from payload bytes.
type Codec interface {
	Collection() string
	MarshalPayload(rec Record) ([]byte, error)
	UnmarshalPayload(meta Meta, payload []byte) (Record, error)
}

// tombstonePayload is the cleartext payload of every deleted record.
var tombstonePayload = []byte(`{"deleted":true}`)

// Registry maps collection names to codecs. A Registry is immutable once
// built; With returns an extended copy.
type Registry struct {
	codecs map[string]Codec
}

// Default knows the bookmarks collection. Every other collection falls back
// to GenericRecord.
var Default = NewRegistry(BookmarkCodec{})

// NewRegistry builds a registry from the given codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		r.codecs[c.Collection()] = c
	}
	return r
}

// With returns a copy of the registry extended with c.
func (r *Registry) With(c Codec) *Registry {
	out := &Registry{codecs: make(map[string]Codec, len(r.codecs)+1)}
	for k, v := range r.codecs {
		out.codecs[k] = v
	}
	out.codecs[c.Collection()] = c
	return out
}

// CodecFor returns the codec registered for collection, or a generic codec.
func (r *Registry) CodecFor(collection string) Codec {
	if c, ok := r.codecs[collection]; ok {
		return c
	}
	return genericCodec{collection: collection}
}

// MarshalPayload serializes the payload of rec. Tombstones serialize to
// {"deleted":true} regardless of collection.
func (r *Registry) MarshalPayload(rec Record) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot marshal nil record")
	}
	if rec.GUID() == "" {
		return nil, ErrEmptyGUID
	}
	if rec.IsDeleted() {
		return append([]byte(nil), tombstonePayload...), nil
	}
	return r.CodecFor(rec.Collection()).MarshalPayload(rec)
}

// UnmarshalPayload decodes payload into a record of meta's collection. A
// payload carrying "deleted": true yields a tombstone even when meta does not
// mark the record deleted.
func (r *Registry) UnmarshalPayload(meta Meta, payload []byte) (Record, error) {
	if meta.ID == "" {
		return nil, ErrEmptyGUID
	}
	deleted, err := payloadDeleted(payload)
	if err != nil {
		return nil, err
	}
	if deleted || meta.Deleted {
		meta.Deleted = true
		return r.tombstone(meta), nil
	}
	return r.CodecFor(meta.CollectionName).UnmarshalPayload(meta, payload)
}

func (r *Registry) tombstone(meta Meta) Record {
	if meta.CollectionName == BookmarksCollection {
		return &BookmarkRecord{Meta: meta}
	}
	return &GenericRecord{Meta: meta}
}

// Equal reports whether two records share identity, deletion state and an
// identical canonical payload. Timestamps are ignored.
func (r *Registry) Equal(a, b Record) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.GUID() != b.GUID() || a.Collection() != b.Collection() || a.IsDeleted() != b.IsDeleted() {
		return false
	}
	pa, err := r.MarshalPayload(a)
	if err != nil {
		return false
	}
	pb, err := r.MarshalPayload(b)
	if err != nil {
		return false
	}
	return bytes.Equal(pa, pb)
}

// Equal compares records using the Default registry.
func Equal(a, b Record) bool {
	return Default.Equal(a, b)
}

func payloadDeleted(payload []byte) (bool, error) {
	var probe struct {
		Deleted bool `json:"deleted"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return probe.Deleted, nil
}

func decodeObject(payload []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedPayload)
	}
	return fields, nil
}

// takeField decodes fields[key] into dst and removes it from fields.
func takeField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrMalformedPayload, key, err)
	}
	return nil
}
