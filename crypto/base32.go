package crypto

import (
	"encoding/base32"
	"fmt"
	"strings"
	"unicode"
)

var rawBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// DecodeFriendlyBase32 decodes a user-facing sync key. Dashes and whitespace
// are ignored and case does not matter. The friendly alphabet writes 'l' as
// '8' and 'o' as '9'; the confusables '1' and '0' are accepted for them too.
func DecodeFriendlyBase32(s string) ([]byte, error) {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		switch r = unicode.ToUpper(r); r {
		case '8', '1':
			r = 'L'
		case '9', '0':
			r = 'O'
		}
		b.WriteRune(r)
	}

	if b.Len() == 0 {
		return nil, newCryptoError(KindInvalidKeyMaterial, "decode sync key", fmt.Errorf("empty key"))
	}

	out, err := rawBase32.DecodeString(b.String())
	if err != nil {
		return nil, newCryptoError(KindInvalidKeyMaterial, "decode sync key", err)
	}
	return out, nil
}

// EncodeFriendlyBase32 renders key in the friendly alphabet, lower case and
// grouped as a-bbbbb-ccccc-... for display.
func EncodeFriendlyBase32(key []byte) string {
	enc := strings.ToLower(rawBase32.EncodeToString(key))
	enc = strings.NewReplacer("l", "8", "o", "9").Replace(enc)

	if len(enc) <= 1 {
		return enc
	}
	groups := []string{enc[:1]}
	for rest := enc[1:]; len(rest) > 0; {
		n := 5
		if len(rest) < n {
			n = len(rest)
		}
		groups = append(groups, rest[:n])
		rest = rest[n:]
	}
	return strings.Join(groups, "-")
}
