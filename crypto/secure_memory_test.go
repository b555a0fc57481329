package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureWipe(t *testing.T) {
	data := []byte("super secret key material")
	require.NoError(t, SecureWipe(data))
	assert.Equal(t, make([]byte, len(data)), data)

	assert.Error(t, SecureWipe(nil))
	assert.NoError(t, SecureWipe([]byte{}))
	assert.NotPanics(t, func() { ZeroBytes(nil) })
}
