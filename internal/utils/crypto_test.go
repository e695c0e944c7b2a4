package utils

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestKey(t *testing.T) {
	t.Helper()
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	t.Setenv(EncKeyEnv, key)
}

func TestEncryptDecryptSecret_RoundTrip(t *testing.T) {
	setTestKey(t)

	sealed, err := EncryptSecret("hunter2-password")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "hunter2")

	plain, err := DecryptSecret(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2-password", plain)
}

func TestEncryptSecret_NonceMakesOutputUnique(t *testing.T) {
	setTestKey(t)

	first, err := EncryptSecret("same input")
	require.NoError(t, err)
	second, err := EncryptSecret("same input")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEncryptSecret_RequiresKey(t *testing.T) {
	t.Setenv(EncKeyEnv, "")

	_, err := EncryptSecret("anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EncKeyEnv)
}

func TestEncryptSecret_RejectsShortKey(t *testing.T) {
	t.Setenv(EncKeyEnv, base64.StdEncoding.EncodeToString([]byte("short")))

	_, err := EncryptSecret("anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestDecryptSecret_RejectsTruncatedCiphertext(t *testing.T) {
	setTestKey(t)

	_, err := DecryptSecret([]byte{0x01, 0x02})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ciphertext too short")
}

func TestDecryptSecret_RejectsTampering(t *testing.T) {
	setTestKey(t)

	sealed, err := EncryptSecret("important secret")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = DecryptSecret(sealed)
	require.Error(t, err)
}
