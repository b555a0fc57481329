// Package record defines the plaintext record model that crosses the sync
// boundary and the outer envelope the remote store speaks.
//
// # Core Types
//
//   - [Record]: the interface every collection-specific record implements
//   - [BookmarkRecord]: hierarchical bookmark, folder, query and separator entries
//   - [GenericRecord]: opaque fallback for collections without a registered [Codec]
//   - [Envelope]: the outer wire record ({"id", "payload", "modified"})
//
// # Payload Serialization
//
// A record's payload is everything except its identity (guid, collection) and
// its server timestamp. Payloads are encoded as JSON objects with sorted keys,
// so that two equal records always serialize to identical bytes:
//
//	payload, err := record.Default.MarshalPayload(bookmark)
//	rec, err := record.Default.UnmarshalPayload(bookmark.Meta, payload)
//
// A deleted record (tombstone) always serializes to {"deleted":true} and
// decodes back into a record of the collection's concrete type carrying only
// its [Meta].
//
// Unknown payload fields are preserved in the record's Extra map and written
// back unchanged, so older clients never strip fields added by newer ones.
//
// # Timestamps
//
// Records carry millisecond timestamps. The server reports fractional seconds;
// [Envelope.ModifiedMillis] converts with floor(seconds * 1000).
package record
