package keyring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akuznecov/whisperkit/internal/localstore"
	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/shared"
)

func setupSealed(t *testing.T) *SealedStore {
	t.Helper()
	ctx := context.Background()

	db, repos, err := localstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	masterKey := DeriveMasterKey([]byte("correct horse"), []byte("salt-123"))
	return NewSealedStore(repos.Metadata, repos.ChatKeys, masterKey)
}

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	k1 := DeriveMasterKey([]byte("pass"), []byte("salt"))
	k2 := DeriveMasterKey([]byte("pass"), []byte("salt"))
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)

	other := DeriveMasterKey([]byte("pass"), []byte("other-salt"))
	assert.NotEqual(t, k1, other)
}

func TestSealedStore_KeyPairRoundTrip(t *testing.T) {
	sealed := setupSealed(t)
	ctx := context.Background()

	pair := models.KeyPair{PublicKey: "pub-hex", PrivateKey: "priv-hex"}
	require.NoError(t, sealed.SaveKeyPair(ctx, pair))

	loaded, err := sealed.LoadKeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, pair, loaded)
}

func TestSealedStore_KeyPairNonceStoredSeparately(t *testing.T) {
	ctx := context.Background()

	db, repos, err := localstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sealed := NewSealedStore(repos.Metadata, repos.ChatKeys,
		DeriveMasterKey([]byte("correct horse"), []byte("salt-123")))
	require.NoError(t, sealed.SaveKeyPair(ctx, models.KeyPair{PublicKey: "pub", PrivateKey: "priv"}))

	// the AES-GCM nonce travels next to the ciphertext under its own key
	nonce, err := repos.Metadata.Get(ctx, "keypair_nonce")
	require.NoError(t, err)
	assert.Len(t, nonce, 12)
}

func TestSealedStore_LoadKeyPair_Absent(t *testing.T) {
	sealed := setupSealed(t)

	_, err := sealed.LoadKeyPair(context.Background())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSealedStore_ChatKeyRoundTrip(t *testing.T) {
	sealed := setupSealed(t)
	ctx := context.Background()

	entry := &models.ChatKeyEntry{ChatID: "chat1", Secret: "s3cret", Version: 3}
	require.NoError(t, sealed.SaveChatKey(ctx, sealed.Keys(), entry))

	loaded, err := sealed.LoadChatKey(ctx, "chat1")
	require.NoError(t, err)
	assert.Equal(t, entry, loaded)
}

func TestSealedStore_ChatKeyUpsertReplacesVersion(t *testing.T) {
	sealed := setupSealed(t)
	ctx := context.Background()

	require.NoError(t, sealed.SaveChatKey(ctx, sealed.Keys(), &models.ChatKeyEntry{ChatID: "chat1", Secret: "old", Version: 1}))
	require.NoError(t, sealed.SaveChatKey(ctx, sealed.Keys(), &models.ChatKeyEntry{ChatID: "chat1", Secret: "new", Version: 2}))

	loaded, err := sealed.LoadChatKey(ctx, "chat1")
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.Secret)
	assert.Equal(t, 2, loaded.Version)
}

func TestSealedStore_DeleteChatKey(t *testing.T) {
	sealed := setupSealed(t)
	ctx := context.Background()

	require.NoError(t, sealed.SaveChatKey(ctx, sealed.Keys(), &models.ChatKeyEntry{ChatID: "chat1", Secret: "s", Version: 1}))
	require.NoError(t, sealed.DeleteChatKey(ctx, "chat1"))

	_, err := sealed.LoadChatKey(ctx, "chat1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSealedStore_SecretNotStoredInPlaintext(t *testing.T) {
	ctx := context.Background()
	db, repos, err := localstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	masterKey := DeriveMasterKey([]byte("pass"), []byte("salt"))
	sealed := NewSealedStore(repos.Metadata, repos.ChatKeys, masterKey)

	require.NoError(t, sealed.SaveChatKey(ctx, sealed.Keys(), &models.ChatKeyEntry{ChatID: "chat1", Secret: "plaintext-secret", Version: 1}))

	row, err := repos.ChatKeys.Get(ctx, "chat1")
	require.NoError(t, err)
	assert.NotContains(t, string(row.Secret), "plaintext-secret")
}

func TestSealedStore_WrongMasterKeyFailsOpen(t *testing.T) {
	ctx := context.Background()
	db, repos, err := localstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	good := NewSealedStore(repos.Metadata, repos.ChatKeys, DeriveMasterKey([]byte("pass"), []byte("salt")))
	require.NoError(t, good.SaveKeyPair(ctx, models.KeyPair{PublicKey: "pub", PrivateKey: "priv"}))

	bad := NewSealedStore(repos.Metadata, repos.ChatKeys, DeriveMasterKey([]byte("wrong"), []byte("salt")))
	_, err = bad.LoadKeyPair(ctx)
	require.Error(t, err)
}

func TestSealedStore_Wipe(t *testing.T) {
	sealed := setupSealed(t)
	ctx := context.Background()

	require.NoError(t, sealed.SaveKeyPair(ctx, models.KeyPair{PublicKey: "pub", PrivateKey: "priv"}))
	require.NoError(t, sealed.SaveChatKey(ctx, sealed.Keys(), &models.ChatKeyEntry{ChatID: "chat1", Secret: "s", Version: 1}))

	require.NoError(t, sealed.Wipe(ctx))

	_, err := sealed.LoadKeyPair(ctx)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = sealed.LoadChatKey(ctx, "chat1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
