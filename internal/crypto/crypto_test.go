package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()

	key := []byte("0123456789abcdef0123456789abcdef")
	iv := []byte("fedcba9876543210")
	c, err := NewCipher(key, iv)
	require.NoError(t, err)
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := testCipher(t)

	plaintexts := []string{
		"a",
		"EAAGm0PX4ZCpsBO7qvZAZCzK",
		strings.Repeat("token-", 50),
		`{"key_id":"rzp_test_123","key_secret":"s3cret"}`,
	}

	for _, pt := range plaintexts {
		ct, err := c.Encrypt(pt)
		require.NoError(t, err)
		assert.NotEqual(t, pt, ct)

		// Ciphertext is hex and never leaks the plaintext
		_, err = hex.DecodeString(ct)
		require.NoError(t, err)

		got, err := c.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestEncryptRejectsEmptyInput(t *testing.T) {
	c := testCipher(t)

	_, err := c.Encrypt("")
	assert.Error(t, err)

	_, err = c.Decrypt("")
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	c := testCipher(t)

	_, err := c.Decrypt("not-hex-at-all")
	assert.Error(t, err)

	// Valid hex but not a block multiple
	_, err = c.Decrypt("abcdef")
	assert.Error(t, err)
}

func TestNewCipherRejectsBadKeyMaterial(t *testing.T) {
	_, err := NewCipher([]byte("short"), []byte("fedcba9876543210"))
	assert.Error(t, err)

	_, err = NewCipher([]byte("0123456789abcdef0123456789abcdef"), []byte("short"))
	assert.Error(t, err)
}

func TestNewCipherFromHex(t *testing.T) {
	keyHex := hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	ivHex := hex.EncodeToString([]byte("fedcba9876543210"))

	c, err := NewCipherFromHex(keyHex, ivHex)
	require.NoError(t, err)
	assert.NoError(t, c.SelfTest())

	_, err = NewCipherFromHex("", ivHex)
	assert.Error(t, err)

	_, err = NewCipherFromHex("zzzz", ivHex)
	assert.Error(t, err)
}

func TestSelfTest(t *testing.T) {
	c := testCipher(t)
	assert.NoError(t, c.SelfTest())
}
