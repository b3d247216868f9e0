package keyring

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/shared"
)

func TestGenerateKeyPair_PublicIsDigestOfPrivate(t *testing.T) {
	s := NewStore(DefaultKDFIterations)

	pair, err := s.GenerateKeyPair()
	require.NoError(t, err)
	require.NotEmpty(t, pair.PrivateKey)
	require.NotEmpty(t, pair.PublicKey)

	sum := sha256.Sum256([]byte(pair.PrivateKey))
	assert.Equal(t, hex.EncodeToString(sum[:]), pair.PublicKey)
}

func TestGenerateKeyPair_Unique(t *testing.T) {
	s := NewStore(DefaultKDFIterations)

	p1, err := s.GenerateKeyPair()
	require.NoError(t, err)
	p2, err := s.GenerateKeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, p1.PrivateKey, p2.PrivateKey)
	assert.NotEqual(t, p1.PublicKey, p2.PublicKey)
}

func TestGenerateKeyPair_MakesPairActive(t *testing.T) {
	s := NewStore(DefaultKDFIterations)
	require.False(t, s.Initialized())

	pair, err := s.GenerateKeyPair()
	require.NoError(t, err)
	require.True(t, s.Initialized())

	pub, err := s.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, pair.PublicKey, pub)
}

func TestNewStore_RaisesLowIterationCount(t *testing.T) {
	s := NewStore(1)
	assert.Equal(t, DefaultKDFIterations, s.iterations)
}

func TestPublicKey_NotInitialized(t *testing.T) {
	s := NewStore(DefaultKDFIterations)

	_, err := s.PublicKey()
	require.ErrorIs(t, err, shared.ErrNotInitialized)
}

func TestSetKeyPair_RejectsEmpty(t *testing.T) {
	s := NewStore(DefaultKDFIterations)

	err := s.SetKeyPair(models.KeyPair{PublicKey: "pub"})
	require.ErrorIs(t, err, shared.ErrNotInitialized)

	err = s.SetKeyPair(models.KeyPair{PublicKey: "pub", PrivateKey: "priv"})
	require.NoError(t, err)
	assert.True(t, s.Initialized())
}

func TestClear_WipesPairAndSecrets(t *testing.T) {
	s := NewStore(DefaultKDFIterations)
	_, err := s.GenerateKeyPair()
	require.NoError(t, err)
	s.CacheSecret("chat1", 1, "secret")

	s.Clear()

	require.False(t, s.Initialized())
	_, ok := s.Secret("chat1", 1)
	assert.False(t, ok)
}

func TestCacheSecret_KeepsOlderVersions(t *testing.T) {
	s := NewStore(DefaultKDFIterations)
	s.CacheSecret("chat1", 1, "v1-secret")
	s.CacheSecret("chat1", 2, "v2-secret")

	old, ok := s.Secret("chat1", 1)
	require.True(t, ok)
	assert.Equal(t, "v1-secret", old)

	current, ok := s.Secret("chat1", 2)
	require.True(t, ok)
	assert.Equal(t, "v2-secret", current)

	_, ok = s.Secret("chat1", 3)
	assert.False(t, ok)
}

func TestForgetChat(t *testing.T) {
	s := NewStore(DefaultKDFIterations)
	s.CacheSecret("chat1", 1, "a")
	s.CacheSecret("chat2", 1, "b")

	s.ForgetChat("chat1")

	_, ok := s.Secret("chat1", 1)
	assert.False(t, ok)
	kept, ok := s.Secret("chat2", 1)
	require.True(t, ok)
	assert.Equal(t, "b", kept)
}
