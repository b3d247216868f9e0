package chatkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akuznecov/whisperkit/internal/dbx"
	"github.com/akuznecov/whisperkit/internal/shared"
)

// SQLiteRepository implements Repository over a DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, key *SealedKey) error {
	query := `INSERT INTO chat_keys (chat_id, secret, nonce, version)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(chat_id) DO UPDATE SET secret = excluded.secret,
				nonce = excluded.nonce,
				version = excluded.version
	`
	_, err := r.db.ExecContext(ctx, query, key.ChatID, key.Secret, key.Nonce, key.Version)
	if err != nil {
		return fmt.Errorf("failed to upsert chat key: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, chatID string) (*SealedKey, error) {
	var key SealedKey
	err := r.db.QueryRowContext(ctx,
		`SELECT chat_id, secret, nonce, version FROM chat_keys WHERE chat_id = ?`, chatID).
		Scan(&key.ChatID, &key.Secret, &key.Nonce, &key.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat key: %w", err)
	}
	return &key, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, chatID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_keys WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete chat key: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_keys`)
	if err != nil {
		return fmt.Errorf("failed to clear chat keys: %w", err)
	}
	return nil
}
