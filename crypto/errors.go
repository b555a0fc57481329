package crypto

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a CryptoError.
type ErrorKind int

const (
	// KindHmacMismatch means the stored HMAC does not authenticate the ciphertext.
	KindHmacMismatch ErrorKind = iota + 1
	// KindMalformedPlaintext means authenticated data failed to decrypt, unpad or parse.
	KindMalformedPlaintext
	// KindInvalidKeyMaterial means a key or sync key could not be used.
	KindInvalidKeyMaterial
	// KindInvalidParameters means a derivation was requested with unusable parameters.
	KindInvalidParameters
	// KindOutputTooLarge means HKDF was asked for more than 255 hash blocks.
	KindOutputTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case KindHmacMismatch:
		return "hmac mismatch"
	case KindMalformedPlaintext:
		return "malformed plaintext"
	case KindInvalidKeyMaterial:
		return "invalid key material"
	case KindInvalidParameters:
		return "invalid parameters"
	case KindOutputTooLarge:
		return "output too large"
	default:
		return fmt.Sprintf("crypto error kind %d", int(k))
	}
}

// CryptoError reports a failure in key derivation or record encryption.
type CryptoError struct {
	Kind ErrorKind
	Op   string // operation that failed
	Err  error  // underlying cause, may be nil
}

// Sentinels for errors.Is matching by kind.
var (
	ErrHmacMismatch       = &CryptoError{Kind: KindHmacMismatch}
	ErrMalformedPlaintext = &CryptoError{Kind: KindMalformedPlaintext}
	ErrInvalidKeyMaterial = &CryptoError{Kind: KindInvalidKeyMaterial}
	ErrInvalidParameters  = &CryptoError{Kind: KindInvalidParameters}
	ErrOutputTooLarge     = &CryptoError{Kind: KindOutputTooLarge}
)

func (e *CryptoError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("crypto %s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("crypto %s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("crypto: %s: %v", e.Kind, e.Err)
	default:
		return "crypto: " + e.Kind.String()
	}
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Is matches any CryptoError of the same kind, so errors.Is(err, ErrHmacMismatch)
// holds for every HMAC failure regardless of operation.
func (e *CryptoError) Is(target error) bool {
	t, ok := target.(*CryptoError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first CryptoError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var ce *CryptoError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

func newCryptoError(kind ErrorKind, op string, err error) *CryptoError {
	return &CryptoError{Kind: kind, Op: op, Err: err}
}
