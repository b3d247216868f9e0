package chatkeys

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/akuznecov/whisperkit/internal/shared"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE chat_keys (
  chat_id TEXT PRIMARY KEY,
  secret  BLOB NOT NULL,
  nonce   BLOB NOT NULL,
  version INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return NewSQLiteRepository(db)
}

func TestUpsertAndGet(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	key := &SealedKey{ChatID: "chat1", Secret: []byte{0x01}, Nonce: []byte{0x02}, Version: 1}
	require.NoError(t, r.Upsert(ctx, key))

	got, err := r.Get(ctx, "chat1")
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestGet_NotFound(t *testing.T) {
	r := setupRepo(t)

	_, err := r.Get(context.Background(), "absent")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpsert_ReplacesCurrentVersion(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &SealedKey{ChatID: "chat1", Secret: []byte("old"), Nonce: []byte("n1"), Version: 1}))
	require.NoError(t, r.Upsert(ctx, &SealedKey{ChatID: "chat1", Secret: []byte("new"), Nonce: []byte("n2"), Version: 2}))

	got, err := r.Get(ctx, "chat1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got.Secret)
	assert.Equal(t, 2, got.Version)
}

func TestDelete_Idempotent(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &SealedKey{ChatID: "chat1", Secret: []byte("s"), Nonce: []byte("n"), Version: 1}))
	require.NoError(t, r.Delete(ctx, "chat1"))
	require.NoError(t, r.Delete(ctx, "chat1"))

	_, err := r.Get(ctx, "chat1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestClear(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &SealedKey{ChatID: "chat1", Secret: []byte("a"), Nonce: []byte("n"), Version: 1}))
	require.NoError(t, r.Upsert(ctx, &SealedKey{ChatID: "chat2", Secret: []byte("b"), Nonce: []byte("n"), Version: 1}))

	require.NoError(t, r.Clear(ctx))

	_, err := r.Get(ctx, "chat1")
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = r.Get(ctx, "chat2")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
