package cryptoutil

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncryptor(t *testing.T) *AESGCMEncryptor {
	t.Helper()
	enc, err := NewAESGCMEncryptor(bytes.Repeat([]byte{3}, KeySize))
	require.NoError(t, err)
	return enc
}

func TestAESGCMEncryptor_RoundTrip(t *testing.T) {
	enc := testEncryptor(t)
	aad := []byte("m1:s1|sender@example.com")
	token := []byte(`{"token":"ya29.a0","refresh_token":"1//r"}`)

	sealed, err := enc.Encrypt(token, aad)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefixV1))
	assert.NotContains(t, sealed, "ya29")

	again, err := enc.Encrypt(token, aad)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	opened, err := enc.Decrypt(sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, token, opened)
}

func TestAESGCMEncryptor_BindsAssociatedData(t *testing.T) {
	enc := testEncryptor(t)
	sealed, err := enc.Encrypt([]byte(`{"token":"x"}`), []byte("m1:s1|a@example.com"))
	require.NoError(t, err)

	_, err = enc.Decrypt(sealed, []byte("m1:s1|b@example.com"))
	require.Error(t, err)
}

func TestAESGCMEncryptor_WrongKey(t *testing.T) {
	sealed, err := testEncryptor(t).Encrypt([]byte("v"), nil)
	require.NoError(t, err)

	other, err := NewAESGCMEncryptor(bytes.Repeat([]byte{4}, KeySize))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed, nil)
	require.Error(t, err)
}

func TestNewAESGCMEncryptor_InvalidKey(t *testing.T) {
	for _, n := range []int{0, 5, 16, 64} {
		_, err := NewAESGCMEncryptor(make([]byte, n))
		require.ErrorContains(t, err, "must be 32 bytes", n)
	}
}

func TestAESGCMEncryptor_MalformedInput(t *testing.T) {
	enc := testEncryptor(t)

	tests := map[string]string{
		"unknown prefix": "v1:abcd",
		"bad base64":     sealedPrefixV1 + "!!!",
		"too short":      sealedPrefixV1 + base64.StdEncoding.EncodeToString([]byte("x")),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := enc.Decrypt(in, nil)
			require.Error(t, err)
		})
	}

	_, err := enc.Decrypt("v1:abcd", nil)
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestKeyFromString(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, KeySize)
	key, err := KeyFromString(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	hashed, err := KeyFromString("correct horse battery staple")
	require.NoError(t, err)
	assert.Len(t, hashed, KeySize)

	again, err := KeyFromString("  correct horse battery staple ")
	require.NoError(t, err)
	assert.Equal(t, hashed, again)

	_, err = KeyFromString("   ")
	require.Error(t, err)
}
