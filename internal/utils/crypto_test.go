package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	ciphertext, err := Encrypt(`{"version":1}`, "password")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "version")

	plaintext, err := Decrypt(ciphertext, "password")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, plaintext)

	_, err = Decrypt(ciphertext, "other")
	assert.Error(t, err)
	_, err = Decrypt("not base64!", "password")
	assert.Error(t, err)
	_, err = Decrypt("", "password")
	assert.Error(t, err)
}
