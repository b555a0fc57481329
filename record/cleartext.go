package record

import (
	"encoding/json"
	"fmt"
)

// Cleartext files hold decrypted records as a JSON array. Each element is the
// record's payload object extended with "id", "collection" and "modified"
// (milliseconds). This is the format the syncctl tool reads and writes.

// MarshalCleartext encodes rec as a single cleartext object.
func (r *Registry) MarshalCleartext(rec Record) (json.RawMessage, error) {
	payload, err := r.MarshalPayload(rec)
	if err != nil {
		return nil, err
	}
	fields, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}
	id, _ := json.Marshal(rec.GUID())
	fields["id"] = id
	if rec.Collection() != "" {
		coll, _ := json.Marshal(rec.Collection())
		fields["collection"] = coll
	}
	if rec.LastModified() != 0 {
		mod, _ := json.Marshal(rec.LastModified())
		fields["modified"] = mod
	}
	return json.Marshal(fields)
}

// UnmarshalCleartext decodes a single cleartext object. collection is used
// when the object does not name one.
func (r *Registry) UnmarshalCleartext(data []byte, collection string) (Record, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	meta := Meta{CollectionName: collection}
	if err := takeField(fields, "id", &meta.ID); err != nil {
		return nil, err
	}
	if err := takeField(fields, "collection", &meta.CollectionName); err != nil {
		return nil, err
	}
	if err := takeField(fields, "modified", &meta.Modified); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return r.UnmarshalPayload(meta, payload)
}

// DecodeCleartextList decodes a JSON array of cleartext objects.
func (r *Registry) DecodeCleartextList(data []byte, collection string) ([]Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	out := make([]Record, 0, len(items))
	for i, item := range items {
		rec, err := r.UnmarshalCleartext(item, collection)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// EncodeCleartextList encodes records as an indented JSON array.
func (r *Registry) EncodeCleartextList(records []Record) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		item, err := r.MarshalCleartext(rec)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.GUID(), err)
		}
		items = append(items, item)
	}
	return json.MarshalIndent(items, "", "  ")
}

// Bookmarks returns the bookmark records in records, in order.
func Bookmarks(records []Record) []*BookmarkRecord {
	out := make([]*BookmarkRecord, 0, len(records))
	for _, rec := range records {
		if b, ok := rec.(*BookmarkRecord); ok {
			out = append(out, b)
		}
	}
	return out
}
