// Package limits provides centralized payload size limits for sync records.
// This ensures the crypto layer, the repositories and the CLI agree on what
// fits in a single record.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxRecordPayload is the largest outer envelope payload a repository
	// accepts (256 KiB, the usual sync server record limit).
	MaxRecordPayload = 256 * 1024

	// BlockSize is the AES block size used for PKCS#7 padding.
	BlockSize = 16

	// CryptoEnvelopeOverhead is what the {"IV","ciphertext","hmac"} wrapper
	// adds around the Base64 ciphertext: the JSON punctuation and keys (35),
	// the Base64 IV (24) and the hex HMAC (64).
	CryptoEnvelopeOverhead = 35 + 24 + 64

	// MaxCleartextPayload is the largest cleartext whose crypto envelope
	// still fits in MaxRecordPayload.
	MaxCleartextPayload = 196511

	// MaxInputFile bounds record files read by command-line tools (64 MiB).
	MaxInputFile = 64 * 1024 * 1024
)

var (
	// ErrPayloadEmpty indicates an empty payload was provided
	ErrPayloadEmpty = errors.New("empty payload")

	// ErrPayloadTooLarge indicates a payload exceeds the maximum size
	ErrPayloadTooLarge = errors.New("payload too large")
)

// EncryptedPayloadSize returns the length of the crypto envelope JSON for a
// cleartext of n bytes.
func EncryptedPayloadSize(n int) int {
	padded := (n/BlockSize + 1) * BlockSize
	base64Len := (padded + 2) / 3 * 4
	return base64Len + CryptoEnvelopeOverhead
}

// ValidatePayloadSize validates data against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidatePayloadSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrPayloadEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateCleartext validates a record's serialized cleartext against
// MaxCleartextPayload.
func ValidateCleartext(cleartext []byte) error {
	if len(cleartext) == 0 {
		return ErrPayloadEmpty
	}
	if len(cleartext) > MaxCleartextPayload {
		return fmt.Errorf("%w: cleartext size %d exceeds limit %d", ErrPayloadTooLarge, len(cleartext), MaxCleartextPayload)
	}
	return nil
}

// ValidateEnvelopePayload validates an outer envelope payload against
// MaxRecordPayload.
func ValidateEnvelopePayload(payload string) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(payload) > MaxRecordPayload {
		return fmt.Errorf("%w: envelope payload size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), MaxRecordPayload)
	}
	return nil
}

// ValidateInputFile validates file contents against MaxInputFile.
func ValidateInputFile(data []byte) error {
	if len(data) == 0 {
		return ErrPayloadEmpty
	}
	if len(data) > MaxInputFile {
		return fmt.Errorf("%w: file size %d exceeds limit %d", ErrPayloadTooLarge, len(data), MaxInputFile)
	}
	return nil
}
