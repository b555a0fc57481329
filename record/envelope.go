package record

import (
	"encoding/json"
	"fmt"
	"math"
)

// Envelope is the outer record exchanged with the remote store. Its payload
// is an opaque JSON string, normally an encrypted crypto envelope.
type Envelope struct {
	ID         string  `json:"id"`
	Collection string  `json:"-"`
	Payload    string  `json:"payload"`
	Modified   float64 `json:"modified"`
	SortIndex  int     `json:"sortindex,omitempty"`
	TTL        int     `json:"ttl,omitempty"`
	Deleted    bool    `json:"deleted,omitempty"`
}

// ModifiedMillis converts the fractional-seconds server timestamp to
// milliseconds using floor(seconds * 1000).
func (e *Envelope) ModifiedMillis() int64 {
	return MillisFromSeconds(e.Modified)
}

// SetModifiedMillis stores a millisecond timestamp as fractional seconds.
func (e *Envelope) SetModifiedMillis(ms int64) {
	e.Modified = SecondsFromMillis(ms)
}

// MillisFromSeconds converts fractional seconds to integer milliseconds with
// floor(seconds * 1000). The floor applies to the decimal value the float
// stands for: when seconds is exactly the float nearest to (ms+1)/1000, the
// product's rounding error must not push the result down to ms.
func MillisFromSeconds(seconds float64) int64 {
	ms := int64(math.Floor(seconds * 1000))
	if SecondsFromMillis(ms+1) == seconds {
		ms++
	}
	return ms
}

// SecondsFromMillis converts integer milliseconds to fractional seconds.
func SecondsFromMillis(ms int64) float64 {
	return float64(ms) / 1000
}

// Validate checks the fields every envelope must carry.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return ErrEmptyGUID
	}
	if e.Payload == "" {
		return fmt.Errorf("envelope %s: empty payload", e.ID)
	}
	return nil
}

// ParseEnvelope decodes one outer record and assigns it to collection.
func ParseEnvelope(data []byte, collection string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	env.Collection = collection
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// ParseEnvelopes decodes a JSON array of outer records.
func ParseEnvelopes(data []byte, collection string) ([]*Envelope, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse envelope list: %w", err)
	}
	out := make([]*Envelope, 0, len(raw))
	for i, item := range raw {
		env, err := ParseEnvelope(item, collection)
		if err != nil {
			return nil, fmt.Errorf("envelope %d: %w", i, err)
		}
		out = append(out, env)
	}
	return out, nil
}
