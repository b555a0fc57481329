package crypto

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/opd-ai/cryptosync/limits"
	"github.com/opd-ai/cryptosync/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle(t *testing.T) *KeyBundle {
	t.Helper()
	kb, err := GenerateKeyBundle()
	require.NoError(t, err)
	return kb
}

func testBookmark() *record.BookmarkRecord {
	return &record.BookmarkRecord{
		Meta: record.Meta{
			ID:             "bmkAAAAAAAAA",
			CollectionName: record.BookmarksCollection,
			Modified:       1300000000250,
		},
		Type:        record.BookmarkTypeBookmark,
		ParentID:    "toolbar",
		ParentName:  "Bookmarks Toolbar",
		Title:       "Go",
		BookmarkURI: "https://go.dev/",
		Tags:        []string{"lang"},
	}
}

func TestEncryptDecryptRecordRoundTrip(t *testing.T) {
	bundle := testBundle(t)

	cases := []struct {
		name string
		rec  record.Record
	}{
		{"bookmark", testBookmark()},
		{"folder", &record.BookmarkRecord{
			Meta:     record.Meta{ID: "folderAAAAAA", CollectionName: record.BookmarksCollection},
			Type:     record.BookmarkTypeFolder,
			ParentID: "menu",
			Title:    "Folder",
			Children: []string{"a", "b", "c"},
		}},
		{"tombstone", record.NewBookmarkTombstone("goneAAAAAAAA", 1300000000000)},
		{"generic", &record.GenericRecord{
			Meta:    record.Meta{ID: "form00000001", CollectionName: "forms"},
			Payload: map[string]json.RawMessage{"name": json.RawMessage(`"email"`)},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cr, err := EncryptRecord(tc.rec, bundle)
			require.NoError(t, err)
			assert.Len(t, cr.IV, IVSize)
			assert.Len(t, cr.HMAC, 32)
			assert.Equal(t, tc.rec.GUID(), cr.ID)
			assert.Equal(t, tc.rec.IsDeleted(), cr.Deleted)

			env, err := cr.ToEnvelope()
			require.NoError(t, err)
			assert.NotContains(t, env.Payload, "go.dev")

			parsed, err := FromEnvelope(env)
			require.NoError(t, err)

			got, err := parsed.DecryptRecord(bundle)
			require.NoError(t, err)
			assert.True(t, record.Equal(tc.rec, got))
			assert.Equal(t, tc.rec.LastModified(), got.LastModified())
		})
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	bundle := testBundle(t)
	a, err := EncryptRecord(testBookmark(), bundle)
	require.NoError(t, err)
	b, err := EncryptRecord(testBookmark(), bundle)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestTamperedCiphertextFailsWithHmacMismatch(t *testing.T) {
	bundle := testBundle(t)
	cr, err := EncryptRecord(testBookmark(), bundle)
	require.NoError(t, err)

	for i := 0; i < len(cr.Ciphertext)*8; i++ {
		tampered := *cr
		tampered.Ciphertext = append([]byte(nil), cr.Ciphertext...)
		tampered.Ciphertext[i/8] ^= 1 << (i % 8)

		out, err := tampered.Decrypt(bundle)
		require.ErrorIs(t, err, ErrHmacMismatch, "bit %d", i)
		require.Nil(t, out)
		require.Nil(t, tampered.Cleartext)
	}
}

func TestTamperedHmacFailsWithHmacMismatch(t *testing.T) {
	bundle := testBundle(t)
	cr, err := EncryptRecord(testBookmark(), bundle)
	require.NoError(t, err)

	for i := 0; i < len(cr.HMAC)*8; i++ {
		tampered := *cr
		tampered.HMAC = append([]byte(nil), cr.HMAC...)
		tampered.HMAC[i/8] ^= 1 << (i % 8)

		_, err := tampered.Decrypt(bundle)
		require.ErrorIs(t, err, ErrHmacMismatch, "bit %d", i)
	}

	truncated := *cr
	truncated.HMAC = cr.HMAC[:16]
	_, err = truncated.Decrypt(bundle)
	assert.ErrorIs(t, err, ErrHmacMismatch)
}

func TestDecryptWithWrongBundle(t *testing.T) {
	cr, err := EncryptRecord(testBookmark(), testBundle(t))
	require.NoError(t, err)

	_, err = cr.Decrypt(testBundle(t))
	assert.ErrorIs(t, err, ErrHmacMismatch)

	_, err = cr.Decrypt(nil)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestDecryptMalformedPlaintext(t *testing.T) {
	bundle := testBundle(t)

	// Authenticated but not a JSON object.
	cr, err := EncryptPayload("bmkAAAAAAAAA", record.BookmarksCollection, []byte("not json"), bundle)
	require.NoError(t, err)
	_, err = cr.DecryptRecord(bundle)
	assert.ErrorIs(t, err, ErrMalformedPlaintext)

	// Authenticated ciphertext with a bad IV length.
	cr, err = EncryptPayload("bmkAAAAAAAAA", record.BookmarksCollection, []byte(`{}`), bundle)
	require.NoError(t, err)
	cr.IV = cr.IV[:8]
	_, err = cr.Decrypt(bundle)
	assert.ErrorIs(t, err, ErrMalformedPlaintext)

	// Authenticated ciphertext whose padding is wrong: re-MAC a truncated body.
	cr, err = EncryptPayload("bmkAAAAAAAAA", record.BookmarksCollection, []byte(`{"type":"bookmark"}`), bundle)
	require.NoError(t, err)
	cr.Ciphertext = cr.Ciphertext[:len(cr.Ciphertext)-1]
	cr.HMAC = computeHMAC(bundle, cr.Ciphertext)
	_, err = cr.Decrypt(bundle)
	assert.ErrorIs(t, err, ErrMalformedPlaintext)
}

func TestWirePayloadShape(t *testing.T) {
	cr, err := EncryptRecord(testBookmark(), testBundle(t))
	require.NoError(t, err)

	payload, err := cr.MarshalPayload()
	require.NoError(t, err)

	var wire map[string]string
	require.NoError(t, json.Unmarshal(payload, &wire))
	assert.Len(t, wire, 3)
	assert.Contains(t, wire, "IV")
	assert.Contains(t, wire, "ciphertext")
	assert.Regexp(t, `^[0-9a-f]{64}$`, wire["hmac"])
}

func TestFromEnvelopeErrors(t *testing.T) {
	cases := []struct {
		name    string
		env     *record.Envelope
		wantErr error
	}{
		{"nil", nil, ErrMalformedPlaintext},
		{"missing id", &record.Envelope{Payload: `{}`}, record.ErrEmptyGUID},
		{"not json", &record.Envelope{ID: "a", Payload: `nope`}, ErrMalformedPlaintext},
		{"bad iv", &record.Envelope{ID: "a", Payload: `{"IV":"%%","ciphertext":"","hmac":""}`}, ErrHmacMismatch},
		{"bad ciphertext", &record.Envelope{ID: "a", Payload: `{"IV":"","ciphertext":"%%","hmac":""}`}, ErrHmacMismatch},
		{"ciphertext padding bits", &record.Envelope{ID: "a", Payload: `{"IV":"","ciphertext":"AB==","hmac":""}`}, ErrHmacMismatch},
		{"ciphertext line break", &record.Envelope{ID: "a", Payload: `{"IV":"","ciphertext":"AAAA\nAAAA","hmac":""}`}, ErrHmacMismatch},
		{"bad hmac", &record.Envelope{ID: "a", Payload: `{"IV":"","ciphertext":"","hmac":"zz"}`}, ErrHmacMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromEnvelope(tc.env)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestTamperedWireCiphertextFailsWithHmacMismatch(t *testing.T) {
	bundle := testBundle(t)
	cr, err := EncryptRecord(testBookmark(), bundle)
	require.NoError(t, err)
	env, err := cr.ToEnvelope()
	require.NoError(t, err)

	var wire wirePayload
	require.NoError(t, json.Unmarshal([]byte(env.Payload), &wire))

	text := []byte(wire.Ciphertext)
	for i := 0; i < len(text)*8; i++ {
		flipped := append([]byte(nil), text...)
		flipped[i/8] ^= 1 << (i % 8)

		tamperedWire := wire
		tamperedWire.Ciphertext = string(flipped)
		payload, err := json.Marshal(tamperedWire)
		require.NoError(t, err)
		tampered := *env
		tampered.Payload = string(payload)

		parsed, err := FromEnvelope(&tampered)
		if err == nil {
			_, err = parsed.Decrypt(bundle)
		}
		require.ErrorIs(t, err, ErrHmacMismatch, "bit %d", i)
	}
}

func FuzzDecryptEnvelope(f *testing.F) {
	kb, err := NewKeyBundle(make([]byte, KeySize), make([]byte, KeySize))
	if err != nil {
		f.Fatal(err)
	}
	good, err := EncryptRecord(testBookmark(), kb)
	if err != nil {
		f.Fatal(err)
	}
	goodPayload, _ := good.MarshalPayload()

	f.Add(string(goodPayload))
	f.Add(`{"IV":"AAAAAAAAAAAAAAAAAAAAAA==","ciphertext":"AAAA","hmac":"00"}`)
	f.Add(`{}`)

	f.Fuzz(func(t *testing.T, payload string) {
		cr, err := FromEnvelope(&record.Envelope{ID: "fuzz", Collection: record.BookmarksCollection, Payload: payload})
		if err != nil {
			return
		}
		out, err := cr.Decrypt(kb)
		if err != nil && out != nil {
			t.Fatalf("decrypt returned plaintext alongside error %v", err)
		}
		if err == nil && cr.Verify(kb) != nil {
			t.Fatal("decrypt succeeded on unauthenticated record")
		}
	})
}

func TestEncryptRejectsOversizedPayload(t *testing.T) {
	bundle := testBundle(t)

	rec := testBookmark()
	rec.Description = strings.Repeat("x", limits.MaxCleartextPayload)
	_, err := EncryptRecord(rec, bundle)
	assert.ErrorIs(t, err, limits.ErrPayloadTooLarge)

	// The largest accepted cleartext still produces an envelope that fits.
	cleartext := []byte(`{"d":"` + strings.Repeat("x", limits.MaxCleartextPayload-8) + `"}`)
	require.Len(t, cleartext, limits.MaxCleartextPayload)
	cr, err := EncryptPayload("bmkAAAAAAAAA", record.BookmarksCollection, cleartext, bundle)
	require.NoError(t, err)
	env, err := cr.ToEnvelope()
	require.NoError(t, err)
	assert.NoError(t, limits.ValidateEnvelopePayload(env.Payload))
	assert.Equal(t, limits.EncryptedPayloadSize(len(cleartext)), len(env.Payload))
}
