package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPKCS7(t *testing.T) {
	for n := 0; n <= 33; n++ {
		data := bytes.Repeat([]byte{0xaa}, n)
		padded := PKCS7Pad(data, 16)
		require.Zero(t, len(padded)%16)
		require.Greater(t, len(padded), n)

		out, err := PKCS7Unpad(padded, 16)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	}
}

func TestPKCS7UnpadRejects(t *testing.T) {
	cases := map[string][]byte{
		"empty":         {},
		"not aligned":   bytes.Repeat([]byte{1}, 15),
		"zero pad byte": append(bytes.Repeat([]byte{1}, 15), 0),
		"pad too large": append(bytes.Repeat([]byte{1}, 15), 17),
		"inconsistent":  append(bytes.Repeat([]byte{1}, 14), 3, 2),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PKCS7Unpad(data, 16)
			assert.Error(t, err)
		})
	}
}
