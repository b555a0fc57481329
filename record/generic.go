package record

import (
	"encoding/json"
	"fmt"
)

// GenericRecord holds the payload of a collection without a registered codec.
type GenericRecord struct {
	Meta
	Payload map[string]json.RawMessage
}

type genericCodec struct {
	collection string
}

func (g genericCodec) Collection() string { return g.collection }

func (g genericCodec) MarshalPayload(rec Record) ([]byte, error) {
	r, ok := rec.(*GenericRecord)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedType, rec)
	}
	if r.Payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Payload)
}

func (g genericCodec) UnmarshalPayload(meta Meta, payload []byte) (Record, error) {
	fields, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}
	delete(fields, "id")
	delete(fields, "deleted")
	if len(fields) == 0 {
		fields = nil
	}
	return &GenericRecord{Meta: meta, Payload: fields}, nil
}
