package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe overwrites a byte slice holding sensitive data with zeros.
// It returns an error if the slice is nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	// Route the zeros through subtle so the store is not elided.
	zeros := make([]byte, len(data))
	subtle.ConstantTimeCopy(1, data, zeros)

	runtime.KeepAlive(data)
	runtime.KeepAlive(zeros)

	return nil
}

// ZeroBytes erases a byte slice, ignoring the nil case.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipeKeyBundle erases both keys of a bundle. The bundle must not be used
// afterwards; callers own the bundle's lifetime.
func WipeKeyBundle(kb *KeyBundle) error {
	if kb == nil {
		return errors.New("cannot wipe nil KeyBundle")
	}
	ZeroBytes(kb.encryptionKey[:])
	ZeroBytes(kb.hmacKey[:])
	return nil
}
