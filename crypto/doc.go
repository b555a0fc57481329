// Package crypto derives sync keys and wraps records in the authenticated
// encrypted envelope used on the sync wire.
//
// # Core Types
//
//   - [KeyBundle]: immutable pair of 32-byte keys (AES-256 and HMAC-SHA256)
//   - [CryptoRecord]: one record's encrypted payload plus its cleartext identity
//   - [CryptoError]: typed failure carrying an [ErrorKind]
//   - [BundleStore]: passphrase-protected on-disk storage for bundles
//
// # Key Derivation
//
// A bundle is derived from the account name and the user's sync key, which
// is displayed in a friendly Base32 alphabet:
//
//	bundle, err := crypto.DeriveKeyBundle("johndoe", "a-bbbbb-ccccc-ddddd-eeeee-fffff")
//
// The decoded key is expanded with HKDF-SHA256 using the info string
// "Sync-AES_256_CBC-HMAC256" followed by the account name; the 64 output
// bytes split into the encryption key and the HMAC key. [PBKDF2],
// [HKDFExtract] and [HKDFExpand] are exported for callers that hold other
// account secrets.
//
// # Record Envelopes
//
//	cr, err := crypto.EncryptRecord(rec, bundle)
//	env, err := cr.ToEnvelope()
//
//	cr, err = crypto.FromEnvelope(env)
//	rec, err = cr.DecryptRecord(bundle)
//
// Encryption pads the canonical payload with PKCS#7 and encrypts it with
// AES-256-CBC under a fresh random IV. The HMAC covers the Base64 text of
// the ciphertext. Decryption verifies the HMAC in constant time before any
// decryption takes place, so unauthenticated ciphertext is never decrypted.
//
// # Errors
//
// Every failure is a *[CryptoError]. Match kinds with errors.Is:
//
//	if errors.Is(err, crypto.ErrHmacMismatch) {
//	    // tampered or corrupted record
//	}
//
// # Thread Safety
//
// KeyBundle values are read-only after construction and may be shared by any
// number of goroutines. CryptoRecord values are not synchronized; each
// belongs to the goroutine handling that record. BundleStore operations are
// atomic file replacements but the type itself is not synchronized.
//
// # Secure Memory Handling
//
// Intermediate key material is wiped with [SecureWipe] as soon as it is no
// longer needed. [WipeKeyBundle] erases a bundle at the end of its life.
package crypto
