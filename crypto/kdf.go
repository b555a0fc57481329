package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// MaxHKDFOutput is the largest output HKDF-SHA256 can produce (255 blocks).
const MaxHKDFOutput = 255 * sha256.Size

// PBKDF2 derives outputLen bytes from password and salt with HMAC-SHA256 as
// the PRF.
func PBKDF2(password, salt []byte, iterations, outputLen uint32) ([]byte, error) {
	if iterations == 0 {
		return nil, newCryptoError(KindInvalidParameters, "pbkdf2", fmt.Errorf("iterations must be positive"))
	}
	if outputLen == 0 {
		return nil, newCryptoError(KindInvalidParameters, "pbkdf2", fmt.Errorf("output length must be positive"))
	}
	return pbkdf2.Key(password, salt, int(iterations), int(outputLen), sha256.New), nil
}

// HKDFExtract returns the 32-byte pseudorandom key for ikm and salt.
func HKDFExtract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// HKDFExpand stretches prk into length bytes bound to info.
func HKDFExpand(prk, info []byte, length uint32) ([]byte, error) {
	if length > MaxHKDFOutput {
		return nil, newCryptoError(KindOutputTooLarge, "hkdf expand",
			fmt.Errorf("requested %d bytes, max %d", length, MaxHKDFOutput))
	}
	if length == 0 {
		return nil, newCryptoError(KindInvalidParameters, "hkdf expand", fmt.Errorf("output length must be positive"))
	}
	if len(prk) == 0 {
		return nil, newCryptoError(KindInvalidKeyMaterial, "hkdf expand", fmt.Errorf("empty pseudorandom key"))
	}

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, newCryptoError(KindOutputTooLarge, "hkdf expand", err)
	}
	return out, nil
}
