package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akuznecov/whisperkit/internal/shared"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	secret := "chat-secret-1"

	ciphertext, err := Encrypt("hello there", secret)
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)
	require.NotContains(t, ciphertext, "hello")

	plaintext, err := Decrypt(ciphertext, secret)
	require.NoError(t, err)
	assert.Equal(t, "hello there", plaintext)
}

func TestEncrypt_SameInputDifferentCiphertext(t *testing.T) {
	c1, err := Encrypt("same", "s")
	require.NoError(t, err)
	c2, err := Encrypt("same", "s")
	require.NoError(t, err)
	// fresh nonce per message
	assert.NotEqual(t, c1, c2)
}

func TestDecrypt_WrongSecret(t *testing.T) {
	ciphertext, err := Encrypt("payload", "right")
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, "wrong")
	require.ErrorIs(t, err, shared.ErrDecryption)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	ciphertext, err := Encrypt("payload", "s")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = Decrypt(tampered, "s")
	require.ErrorIs(t, err, shared.ErrDecryption)
}

func TestDecrypt_GarbageInput(t *testing.T) {
	for _, input := range []string{"", "not-base64!!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		_, err := Decrypt(input, "s")
		require.ErrorIs(t, err, shared.ErrDecryption)
	}
}

func TestEncryptFile_RoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, 0xFF, 0x10, 0x20}

	ciphertext, fileKey, err := EncryptFile(data)
	require.NoError(t, err)
	require.NotEmpty(t, fileKey)
	require.NotEqual(t, data, ciphertext)

	decrypted, err := DecryptFile(ciphertext, fileKey)
	require.NoError(t, err)
	assert.Equal(t, data, decrypted)
}

func TestEncryptFile_FreshKeyPerCall(t *testing.T) {
	_, k1, err := EncryptFile([]byte("x"))
	require.NoError(t, err)
	_, k2, err := EncryptFile([]byte("x"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestDecryptFile_WrongKey(t *testing.T) {
	ciphertext, _, err := EncryptFile([]byte("attachment"))
	require.NoError(t, err)

	otherKey, err := NewFileKey()
	require.NoError(t, err)

	_, err = DecryptFile(ciphertext, otherKey)
	require.ErrorIs(t, err, shared.ErrDecryption)
}

func TestSealOpenJSON_RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	type payload struct {
		A string
		B int
	}
	in := payload{A: "x", B: 42}

	ciphertext, nonce, err := SealJSON(in, key)
	require.NoError(t, err)

	var out payload
	require.NoError(t, OpenJSON(ciphertext, nonce, key, &out))
	assert.Equal(t, in, out)
}

func TestOpenJSON_WrongKey(t *testing.T) {
	key := make([]byte, 32)
	ciphertext, nonce, err := SealJSON("v", key)
	require.NoError(t, err)

	other := make([]byte, 32)
	other[0] = 1

	var out string
	require.Error(t, OpenJSON(ciphertext, nonce, other, &out))
}

func TestFingerprint_StableAndShort(t *testing.T) {
	f1 := Fingerprint("abcdef")
	f2 := Fingerprint("abcdef")
	assert.Equal(t, f1, f2)
	assert.NotEqual(t, f1, Fingerprint("abcdeg"))
	assert.Len(t, f1, 16)
}
