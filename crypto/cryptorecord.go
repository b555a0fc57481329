package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/opd-ai/cryptosync/limits"
	"github.com/opd-ai/cryptosync/record"
	"github.com/sirupsen/logrus"
)

// IVSize is the AES-CBC initialization vector size.
const IVSize = aes.BlockSize

// CryptoRecord is the encrypted form of one record. Identity and timestamp
// travel in the clear; the payload is AES-256-CBC encrypted and authenticated
// by HMAC-SHA256 over the Base64 text of the ciphertext.
type CryptoRecord struct {
	ID         string
	Collection string
	Modified   int64 // milliseconds
	Deleted    bool
	SortIndex  int
	TTL        int

	IV         []byte
	Ciphertext []byte
	HMAC       []byte

	// Cleartext is populated by Decrypt.
	Cleartext []byte
}

// wirePayload is the JSON carried in an envelope's payload string.
type wirePayload struct {
	IV         string `json:"IV"`
	Ciphertext string `json:"ciphertext"`
	HMAC       string `json:"hmac"`
}

// EncryptRecord serializes rec's payload with the default codec registry and
// encrypts it.
func EncryptRecord(rec record.Record, bundle *KeyBundle) (*CryptoRecord, error) {
	return EncryptRecordWith(record.Default, rec, bundle)
}

// EncryptRecordWith serializes rec's payload with reg and encrypts it.
func EncryptRecordWith(reg *record.Registry, rec record.Record, bundle *KeyBundle) (*CryptoRecord, error) {
	cleartext, err := reg.MarshalPayload(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record payload: %w", err)
	}
	defer ZeroBytes(cleartext)

	cr, err := EncryptPayload(rec.GUID(), rec.Collection(), cleartext, bundle)
	if err != nil {
		return nil, err
	}
	cr.Modified = rec.LastModified()
	cr.Deleted = rec.IsDeleted()
	return cr, nil
}

// EncryptPayload encrypts raw cleartext under a fresh random IV.
func EncryptPayload(id, collection string, cleartext []byte, bundle *KeyBundle) (*CryptoRecord, error) {
	if bundle == nil {
		return nil, newCryptoError(KindInvalidKeyMaterial, "encrypt", fmt.Errorf("nil key bundle"))
	}
	if id == "" {
		return nil, record.ErrEmptyGUID
	}
	if err := limits.ValidateCleartext(cleartext); err != nil {
		return nil, fmt.Errorf("encrypt %s: %w", id, err)
	}

	block, err := aes.NewCipher(bundle.encryptionKey[:])
	if err != nil {
		return nil, newCryptoError(KindInvalidKeyMaterial, "encrypt", err)
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := PKCS7Pad(cleartext, aes.BlockSize)
	defer ZeroBytes(padded)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	cr := &CryptoRecord{
		ID:         id,
		Collection: collection,
		IV:         iv,
		Ciphertext: ciphertext,
		HMAC:       computeHMAC(bundle, ciphertext),
	}

	NewLogger("EncryptPayload").WithFields(logrus.Fields{
		"guid":       id,
		"collection": collection,
	}).WithFields(SecureFieldHash(iv, "iv")).Debug("Encrypted record payload")

	return cr, nil
}

// computeHMAC authenticates the Base64 text of ciphertext, matching what
// peers see on the wire.
func computeHMAC(bundle *KeyBundle, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, bundle.hmacKey[:])
	mac.Write([]byte(base64.StdEncoding.EncodeToString(ciphertext)))
	return mac.Sum(nil)
}

// Verify checks the HMAC without decrypting.
func (c *CryptoRecord) Verify(bundle *KeyBundle) error {
	if bundle == nil {
		return newCryptoError(KindInvalidKeyMaterial, "verify", fmt.Errorf("nil key bundle"))
	}
	expected := computeHMAC(bundle, c.Ciphertext)
	// hmac.Equal is constant time and false on length mismatch.
	if !hmac.Equal(expected, c.HMAC) {
		NewLogger("Verify").WithFields(logrus.Fields{
			"guid":       c.ID,
			"collection": c.Collection,
		}).Warn("Record HMAC mismatch")
		return newCryptoError(KindHmacMismatch, "verify", fmt.Errorf("record %s", c.ID))
	}
	return nil
}

// Decrypt authenticates and decrypts the payload. Nothing is decrypted unless
// the HMAC verifies.
func (c *CryptoRecord) Decrypt(bundle *KeyBundle) ([]byte, error) {
	if err := c.Verify(bundle); err != nil {
		return nil, err
	}

	if len(c.IV) != IVSize {
		return nil, newCryptoError(KindMalformedPlaintext, "decrypt",
			fmt.Errorf("IV must be %d bytes, got %d", IVSize, len(c.IV)))
	}
	if len(c.Ciphertext) == 0 || len(c.Ciphertext)%aes.BlockSize != 0 {
		return nil, newCryptoError(KindMalformedPlaintext, "decrypt",
			fmt.Errorf("ciphertext length %d is not a positive multiple of %d", len(c.Ciphertext), aes.BlockSize))
	}

	block, err := aes.NewCipher(bundle.encryptionKey[:])
	if err != nil {
		return nil, newCryptoError(KindInvalidKeyMaterial, "decrypt", err)
	}

	padded := make([]byte, len(c.Ciphertext))
	cipher.NewCBCDecrypter(block, c.IV).CryptBlocks(padded, c.Ciphertext)

	cleartext, err := PKCS7Unpad(padded, aes.BlockSize)
	if err != nil {
		ZeroBytes(padded)
		return nil, newCryptoError(KindMalformedPlaintext, "decrypt", err)
	}

	c.Cleartext = append([]byte(nil), cleartext...)
	ZeroBytes(padded)
	return c.Cleartext, nil
}

// DecryptRecord decrypts and decodes the payload with the default registry.
func (c *CryptoRecord) DecryptRecord(bundle *KeyBundle) (record.Record, error) {
	return c.DecryptRecordWith(record.Default, bundle)
}

// DecryptRecordWith decrypts and decodes the payload with reg.
func (c *CryptoRecord) DecryptRecordWith(reg *record.Registry, bundle *KeyBundle) (record.Record, error) {
	cleartext, err := c.Decrypt(bundle)
	if err != nil {
		return nil, err
	}

	meta := record.Meta{
		ID:             c.ID,
		CollectionName: c.Collection,
		Modified:       c.Modified,
		Deleted:        c.Deleted,
	}
	rec, err := reg.UnmarshalPayload(meta, cleartext)
	if err != nil {
		return nil, newCryptoError(KindMalformedPlaintext, "decode payload", err)
	}
	return rec, nil
}

// MarshalPayload encodes the {"IV","ciphertext","hmac"} wire object.
func (c *CryptoRecord) MarshalPayload() ([]byte, error) {
	return json.Marshal(wirePayload{
		IV:         base64.StdEncoding.EncodeToString(c.IV),
		Ciphertext: base64.StdEncoding.EncodeToString(c.Ciphertext),
		HMAC:       hex.EncodeToString(c.HMAC),
	})
}

// ToEnvelope wraps the record in an outer envelope ready for a repository.
func (c *CryptoRecord) ToEnvelope() (*record.Envelope, error) {
	payload, err := c.MarshalPayload()
	if err != nil {
		return nil, err
	}
	env := &record.Envelope{
		ID:         c.ID,
		Collection: c.Collection,
		Payload:    string(payload),
		SortIndex:  c.SortIndex,
		TTL:        c.TTL,
		Deleted:    c.Deleted,
	}
	env.SetModifiedMillis(c.Modified)
	return env, nil
}

// FromEnvelope parses the crypto wire object inside env. Only the encoding is
// checked here; authenticity is checked by Decrypt.
func FromEnvelope(env *record.Envelope) (*CryptoRecord, error) {
	if env == nil {
		return nil, newCryptoError(KindMalformedPlaintext, "parse envelope", fmt.Errorf("nil envelope"))
	}
	if env.ID == "" {
		return nil, record.ErrEmptyGUID
	}

	var wire wirePayload
	if err := json.Unmarshal([]byte(env.Payload), &wire); err != nil {
		return nil, newCryptoError(KindMalformedPlaintext, "parse envelope", err)
	}

	// The HMAC covers the canonical Base64 text. Anything that does not
	// round-trip to the received text cannot be authenticated.
	iv, err := decodeCanonical(wire.IV)
	if err != nil {
		return nil, newCryptoError(KindHmacMismatch, "parse envelope", fmt.Errorf("IV: %w", err))
	}
	ciphertext, err := decodeCanonical(wire.Ciphertext)
	if err != nil {
		return nil, newCryptoError(KindHmacMismatch, "parse envelope", fmt.Errorf("ciphertext: %w", err))
	}
	mac, err := hex.DecodeString(wire.HMAC)
	if err != nil {
		// An unreadable HMAC can never authenticate the record.
		return nil, newCryptoError(KindHmacMismatch, "parse envelope", fmt.Errorf("hmac: %w", err))
	}

	return &CryptoRecord{
		ID:         env.ID,
		Collection: env.Collection,
		Modified:   env.ModifiedMillis(),
		Deleted:    env.Deleted,
		SortIndex:  env.SortIndex,
		TTL:        env.TTL,
		IV:         iv,
		Ciphertext: ciphertext,
		HMAC:       mac,
	}, nil
}

// decodeCanonical decodes strict standard Base64 and rejects any text that
// re-encodes differently, such as embedded line breaks.
func decodeCanonical(text string) ([]byte, error) {
	data, err := base64.StdEncoding.Strict().DecodeString(text)
	if err != nil {
		return nil, err
	}
	if base64.StdEncoding.EncodeToString(data) != text {
		return nil, fmt.Errorf("non-canonical base64")
	}
	return data, nil
}
