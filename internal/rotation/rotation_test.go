package rotation

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akuznecov/whisperkit/internal/cryptox"
	"github.com/akuznecov/whisperkit/internal/keyring"
	"github.com/akuznecov/whisperkit/internal/localstore"
	"github.com/akuznecov/whisperkit/internal/logging"
	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/shared"
)

// fakeDirectory serves public keys and rosters from memory.
type fakeDirectory struct {
	keys    map[string]string
	rosters map[string][]string
}

func (f *fakeDirectory) PublicKeys(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range userIDs {
		if pk, ok := f.keys[id]; ok {
			out[id] = pk
		}
	}
	return out, nil
}

func (f *fakeDirectory) PublishKey(ctx context.Context, userID, publicKey string) error {
	f.keys[userID] = publicKey
	return nil
}

func (f *fakeDirectory) Participants(ctx context.Context, chatID string) ([]string, error) {
	return f.rosters[chatID], nil
}

func (f *fakeDirectory) SetParticipants(ctx context.Context, chatID string, userIDs []string) error {
	f.rosters[chatID] = userIDs
	return nil
}

// fakePublisher records published envelopes and optionally fails.
type fakePublisher struct {
	published []*models.Envelope
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, env *models.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, env)
	return nil
}

type fixture struct {
	db      *sql.DB
	repos   *localstore.Repositories
	keys    *keyring.Store
	sealed  *keyring.SealedStore
	dir     *fakeDirectory
	pub     *fakePublisher
	manager *Manager
	chat    *models.Chat
}

// setup builds a manager for the admin "alice" of a three-member group at
// key version 1. Each named member gets real key material so envelope
// decryption can be exercised end to end.
func setup(t *testing.T, members ...string) (*fixture, map[string]*keyring.Store) {
	t.Helper()
	ctx := context.Background()

	db, repos, err := localstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir := &fakeDirectory{keys: make(map[string]string), rosters: make(map[string][]string)}
	stores := make(map[string]*keyring.Store)
	for _, id := range members {
		s := keyring.NewStore(keyring.DefaultKDFIterations)
		pair, err := s.GenerateKeyPair()
		require.NoError(t, err)
		dir.keys[id] = pair.PublicKey
		stores[id] = s
	}

	sealed := keyring.NewSealedStore(repos.Metadata, repos.ChatKeys,
		keyring.DeriveMasterKey([]byte("pass"), []byte("salt")))
	pub := &fakePublisher{}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	chat := &models.Chat{
		ID:           "g1",
		Name:         "team",
		IsGroup:      true,
		Participants: members,
		KeyVersion:   1,
		CreatedBy:    "alice",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repos.Chats.Upsert(ctx, chat))
	dir.rosters[chat.ID] = members

	f := &fixture{
		db:      db,
		repos:   repos,
		keys:    stores["alice"],
		sealed:  sealed,
		dir:     dir,
		pub:     pub,
		manager: NewManager(db, stores["alice"], sealed, dir, dir, pub, log),
		chat:    chat,
	}
	return f, stores
}

func TestRotate_BumpsVersionAndPersistsAtomically(t *testing.T) {
	f, _ := setup(t, "alice", "bob", "carol")
	ctx := context.Background()

	updated, err := f.manager.Rotate(ctx, f.chat, []string{"alice", "bob", "carol", "dave"})
	require.ErrorIs(t, err, shared.ErrDerivation) // dave has no published key

	f.dir.keys["dave"] = "pk-dave"
	updated, err = f.manager.Rotate(ctx, f.chat, []string{"alice", "bob", "carol", "dave"})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.KeyVersion)

	stored, err := f.repos.Chats.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.KeyVersion)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, stored.Participants)

	entry, err := f.sealed.LoadChatKey(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Version)

	cached, ok := f.keys.Secret("g1", 2)
	require.True(t, ok)
	assert.Equal(t, entry.Secret, cached)
}

func TestRotate_Monotonic(t *testing.T) {
	f, _ := setup(t, "alice", "bob")
	ctx := context.Background()

	first, err := f.manager.Rotate(ctx, f.chat, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.KeyVersion)

	second, err := f.manager.Rotate(ctx, first, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, 3, second.KeyVersion)

	s2, ok := f.keys.Secret("g1", 2)
	require.True(t, ok)
	s3, ok := f.keys.Secret("g1", 3)
	require.True(t, ok)
	assert.NotEqual(t, s2, s3)
}

func TestRotate_KeyEnvelopePerRemainingMemberOnly(t *testing.T) {
	f, _ := setup(t, "alice", "bob", "eve")
	ctx := context.Background()

	// eve is removed; only bob should receive the new key
	_, err := f.manager.Rotate(ctx, f.chat, []string{"alice", "bob"})
	require.NoError(t, err)

	require.Len(t, f.pub.published, 1)
	env := f.pub.published[0]
	assert.Equal(t, models.EnvelopeKindKey, env.Kind)
	assert.Equal(t, "bob", env.RecipientID)
	assert.Equal(t, 2, env.KeyVersion)
	assert.NotEmpty(t, env.EncryptedSecret)
}

func TestRotate_RecipientRecoversSecretFromPairwise(t *testing.T) {
	f, stores := setup(t, "alice", "bob")
	ctx := context.Background()

	_, err := f.manager.Rotate(ctx, f.chat, []string{"alice", "bob"})
	require.NoError(t, err)
	require.Len(t, f.pub.published, 1)
	env := f.pub.published[0]

	pairwise, err := stores["bob"].DeriveDirectSecret(env.SenderPublicKey)
	require.NoError(t, err)
	secret, err := cryptox.Decrypt(env.EncryptedSecret, pairwise)
	require.NoError(t, err)

	expected, ok := f.keys.Secret("g1", 2)
	require.True(t, ok)
	assert.Equal(t, expected, secret)
}

func TestRotate_RemovedMemberCannotReadNewMessages(t *testing.T) {
	f, stores := setup(t, "alice", "bob", "eve")
	ctx := context.Background()

	// eve saw the v1 secret while she was a member
	evePub := []string{f.dir.keys["alice"], f.dir.keys["bob"], f.dir.keys["eve"]}
	v1Secret, err := keyring.DeriveGroupSecret(evePub, "g1", 1)
	require.NoError(t, err)
	stores["eve"].CacheSecret("g1", 1, v1Secret)

	_, err = f.manager.Rotate(ctx, f.chat, []string{"alice", "bob"})
	require.NoError(t, err)

	v2Secret, ok := f.keys.Secret("g1", 2)
	require.True(t, ok)

	ciphertext, err := cryptox.Encrypt("post-removal message", v2Secret)
	require.NoError(t, err)

	// the old secret no longer opens new traffic
	_, err = cryptox.Decrypt(ciphertext, v1Secret)
	require.ErrorIs(t, err, shared.ErrDecryption)
}

func TestRotate_PublishFailureLeavesStateUntouched(t *testing.T) {
	f, _ := setup(t, "alice", "bob", "carol")
	ctx := context.Background()

	f.pub.err = errors.New("relay down")
	_, err := f.manager.Rotate(ctx, f.chat, []string{"alice", "bob"})
	require.ErrorIs(t, err, shared.ErrDelivery)

	stored, err := f.repos.Chats.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.KeyVersion)

	_, err = f.sealed.LoadChatKey(ctx, "g1")
	require.ErrorIs(t, err, shared.ErrNotFound)

	// the directory roster still matches the members' key state
	roster, err := f.dir.Participants(ctx, "g1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, roster)
}

func TestDistributeInitialKey(t *testing.T) {
	f, stores := setup(t, "alice", "bob", "carol")
	ctx := context.Background()

	secret, err := f.manager.DistributeInitialKey(ctx, f.chat)
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	// one envelope per member except the sender
	require.Len(t, f.pub.published, 2)
	recipients := []string{f.pub.published[0].RecipientID, f.pub.published[1].RecipientID}
	assert.ElementsMatch(t, []string{"bob", "carol"}, recipients)
	for _, env := range f.pub.published {
		assert.Equal(t, 1, env.KeyVersion)
	}

	entry, err := f.sealed.LoadChatKey(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, secret, entry.Secret)
	assert.Equal(t, 1, entry.Version)

	// any member derives the same pairwise path back to the secret
	pairwise, err := stores["carol"].DeriveDirectSecret(f.pub.published[0].SenderPublicKey)
	require.NoError(t, err)
	for _, env := range f.pub.published {
		if env.RecipientID != "carol" {
			continue
		}
		got, err := cryptox.Decrypt(env.EncryptedSecret, pairwise)
		require.NoError(t, err)
		assert.Equal(t, secret, got)
	}
}
