package limits

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestEncryptedPayloadSizeMatchesEnvelope builds real crypto envelopes and
// checks their JSON length against EncryptedPayloadSize.
func TestEncryptedPayloadSizeMatchesEnvelope(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, BlockSize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("Failed to generate IV: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("Failed to create cipher: %v", err)
	}

	for _, n := range []int{0, 1, 15, 16, 17, 100, 1000, 4096} {
		pad := BlockSize - n%BlockSize
		padded := append(bytes.Repeat([]byte{'x'}, n), bytes.Repeat([]byte{byte(pad)}, pad)...)
		ciphertext := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

		wire, err := json.Marshal(struct {
			IV         string `json:"IV"`
			Ciphertext string `json:"ciphertext"`
			HMAC       string `json:"hmac"`
		}{
			IV:         base64.StdEncoding.EncodeToString(iv),
			Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
			HMAC:       hex.EncodeToString(make([]byte, 32)),
		})
		if err != nil {
			t.Fatalf("Failed to marshal envelope: %v", err)
		}
		if got := EncryptedPayloadSize(n); got != len(wire) {
			t.Errorf("EncryptedPayloadSize(%d) = %d, want %d", n, got, len(wire))
		}
	}
}

// TestMaxCleartextPayloadIsTight verifies MaxCleartextPayload is the largest
// cleartext whose envelope fits MaxRecordPayload.
func TestMaxCleartextPayloadIsTight(t *testing.T) {
	if size := EncryptedPayloadSize(MaxCleartextPayload); size > MaxRecordPayload {
		t.Errorf("envelope for MaxCleartextPayload is %d bytes, exceeds %d", size, MaxRecordPayload)
	}
	if size := EncryptedPayloadSize(MaxCleartextPayload + 1); size <= MaxRecordPayload {
		t.Errorf("envelope for MaxCleartextPayload+1 is %d bytes, still fits %d", size, MaxRecordPayload)
	}
}

func TestValidatePayloadSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		max     int
		wantErr error
	}{
		{"empty", 0, 10, ErrPayloadEmpty},
		{"at limit", 10, 10, nil},
		{"over limit", 11, 10, ErrPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayloadSize(make([]byte, tt.size), tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePayloadSize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCleartext(t *testing.T) {
	if err := ValidateCleartext(nil); !errors.Is(err, ErrPayloadEmpty) {
		t.Errorf("nil cleartext: got %v", err)
	}
	if err := ValidateCleartext(make([]byte, MaxCleartextPayload)); err != nil {
		t.Errorf("cleartext at limit: got %v", err)
	}
	err := ValidateCleartext(make([]byte, MaxCleartextPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("oversized cleartext: got %v", err)
	}
	if !strings.Contains(err.Error(), "196512") {
		t.Errorf("error should include the actual size: %v", err)
	}
}

func TestValidateEnvelopePayload(t *testing.T) {
	if err := ValidateEnvelopePayload(""); !errors.Is(err, ErrPayloadEmpty) {
		t.Errorf("empty payload: got %v", err)
	}
	if err := ValidateEnvelopePayload(strings.Repeat("a", MaxRecordPayload)); err != nil {
		t.Errorf("payload at limit: got %v", err)
	}
	if err := ValidateEnvelopePayload(strings.Repeat("a", MaxRecordPayload+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized payload: got %v", err)
	}
}

func TestValidateInputFile(t *testing.T) {
	if err := ValidateInputFile(nil); !errors.Is(err, ErrPayloadEmpty) {
		t.Errorf("empty file: got %v", err)
	}
	if err := ValidateInputFile([]byte("[]")); err != nil {
		t.Errorf("small file: got %v", err)
	}
}
