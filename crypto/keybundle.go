package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

const (
	// KeySize is the size of each half of a KeyBundle.
	KeySize = 32
	// SyncKeySize is the size of a decoded sync key.
	SyncKeySize = 16
	// SyncInfoPrefix is the versioned HKDF info prefix; the account
	// identifier is appended to it.
	SyncInfoPrefix = "Sync-AES_256_CBC-HMAC256"
	// PasswordInfoSuffix distinguishes bundles derived from an account password.
	PasswordInfoSuffix = "-password"
	// PBKDF2Iterations is the default work factor for password derivation.
	PBKDF2Iterations = 100000
)

// KeyBundle pairs the AES-256 encryption key and the HMAC-SHA256 key for
// one account's collection. A KeyBundle never changes after construction
// and may be shared across goroutines.
type KeyBundle struct {
	encryptionKey [KeySize]byte
	hmacKey       [KeySize]byte
}

// NewKeyBundle copies the given keys into a new bundle. Both keys must be
// exactly KeySize bytes.
func NewKeyBundle(encryptionKey, hmacKey []byte) (*KeyBundle, error) {
	if len(encryptionKey) != KeySize {
		return nil, newCryptoError(KindInvalidKeyMaterial, "new key bundle",
			fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(encryptionKey)))
	}
	if len(hmacKey) != KeySize {
		return nil, newCryptoError(KindInvalidKeyMaterial, "new key bundle",
			fmt.Errorf("hmac key must be %d bytes, got %d", KeySize, len(hmacKey)))
	}

	kb := &KeyBundle{}
	copy(kb.encryptionKey[:], encryptionKey)
	copy(kb.hmacKey[:], hmacKey)
	return kb, nil
}

// GenerateKeyBundle creates a bundle from fresh random keys.
func GenerateKeyBundle() (*KeyBundle, error) {
	kb := &KeyBundle{}
	if _, err := rand.Read(kb.encryptionKey[:]); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	if _, err := rand.Read(kb.hmacKey[:]); err != nil {
		return nil, fmt.Errorf("failed to generate hmac key: %w", err)
	}
	return kb, nil
}

// DeriveKeyBundle derives the bundle for username from a friendly Base32
// sync key. The decoded key is used directly as the HKDF pseudorandom key.
func DeriveKeyBundle(username, friendlySyncKey string) (*KeyBundle, error) {
	logger := NewLogger("DeriveKeyBundle")

	syncKey, err := DecodeFriendlyBase32(friendlySyncKey)
	if err != nil {
		logger.WithError(err, "decode", "derive key bundle").Debug("Sync key rejected")
		return nil, err
	}
	defer ZeroBytes(syncKey)

	if len(syncKey) != SyncKeySize {
		return nil, newCryptoError(KindInvalidKeyMaterial, "derive key bundle",
			fmt.Errorf("sync key must decode to %d bytes, got %d", SyncKeySize, len(syncKey)))
	}

	bundle, err := expandBundle(syncKey, []byte(SyncInfoPrefix+username))
	if err != nil {
		return nil, err
	}
	logger.WithField("username_length", len(username)).Debug("Derived key bundle from sync key")
	return bundle, nil
}

// DeriveKeyBundleFromPassword stretches an account password with PBKDF2 and
// expands the result into a bundle.
func DeriveKeyBundleFromPassword(username string, password, salt []byte, iterations uint32) (*KeyBundle, error) {
	if len(password) == 0 {
		return nil, newCryptoError(KindInvalidKeyMaterial, "derive key bundle", fmt.Errorf("empty password"))
	}

	stretched, err := PBKDF2(password, salt, iterations, KeySize)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(stretched)

	return expandBundle(stretched, []byte(SyncInfoPrefix+PasswordInfoSuffix+username))
}

func expandBundle(prk, info []byte) (*KeyBundle, error) {
	okm, err := HKDFExpand(prk, info, 2*KeySize)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(okm)
	return NewKeyBundle(okm[:KeySize], okm[KeySize:])
}

// EncryptionKey returns a copy of the AES key.
func (kb *KeyBundle) EncryptionKey() []byte {
	return append([]byte(nil), kb.encryptionKey[:]...)
}

// HMACKey returns a copy of the HMAC key.
func (kb *KeyBundle) HMACKey() []byte {
	return append([]byte(nil), kb.hmacKey[:]...)
}

// Equal compares two bundles in constant time.
func (kb *KeyBundle) Equal(other *KeyBundle) bool {
	if kb == nil || other == nil {
		return kb == other
	}
	enc := subtle.ConstantTimeCompare(kb.encryptionKey[:], other.encryptionKey[:])
	mac := subtle.ConstantTimeCompare(kb.hmacKey[:], other.hmacKey[:])
	return enc&mac == 1
}

// String never reveals key material.
func (kb *KeyBundle) String() string {
	return "KeyBundle{redacted}"
}
