// Package limits provides centralized payload size constants and validation
// functions for sync records.
//
// # Size Hierarchy
//
//   - MaxRecordPayload (256 KiB): the largest outer envelope payload a
//     repository stores.
//
//   - MaxCleartextPayload (196511 bytes): the largest record cleartext whose
//     crypto envelope (PKCS#7 padding, Base64 ciphertext, IV and HMAC) still
//     fits in MaxRecordPayload. EncryptedPayloadSize computes the exact
//     envelope length for a given cleartext length.
//
//   - MaxInputFile (64 MiB): the largest record file command-line tools read.
//
// # Validation Functions
//
// Each validation function checks for empty input and size limit violations:
//
//	if err := limits.ValidateCleartext(cleartext); err != nil {
//	    // ErrPayloadEmpty or ErrPayloadTooLarge
//	}
//
// For custom size limits, use the generic ValidatePayloadSize function.
package limits
