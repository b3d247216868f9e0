package chats

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akuznecov/whisperkit/internal/dbx"
	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/shared"
)

// SQLiteRepository implements Repository over a DBTX.
// Participant sets are stored as a JSON array; direct chats additionally
// carry a canonical pair key with a unique index for deduplication.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, c *models.Chat) error {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}

	var directKey sql.NullString
	if !c.IsGroup && len(c.Participants) == 2 {
		directKey = sql.NullString{String: models.DirectKey(c.Participants[0], c.Participants[1]), Valid: true}
	}

	query := `INSERT INTO chats (id, name, is_group, participants, key_version, created_by, created_at, direct_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name,
				participants = excluded.participants,
				key_version = excluded.key_version,
				direct_key = excluded.direct_key
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.Name, c.IsGroup, string(participants), c.KeyVersion, c.CreatedBy, c.CreatedAt, directKey)
	if err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Chat, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, is_group, participants, key_version, created_by, created_at FROM chats WHERE id = ?`, id)
	return scanChat(row)
}

func (r *SQLiteRepository) FindDirect(ctx context.Context, a, b string) (*models.Chat, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, is_group, participants, key_version, created_by, created_at FROM chats WHERE direct_key = ?`,
		models.DirectKey(a, b))
	return scanChat(row)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Chat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, is_group, participants, key_version, created_by, created_at FROM chats ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to select chats: %w", err)
	}
	defer rows.Close()

	var result []*models.Chat
	for rows.Next() {
		c, err := scanChatRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) UpdateMembership(ctx context.Context, id string, participants []string, keyVersion int) error {
	data, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE chats SET participants = ?, key_version = ? WHERE id = ?`, string(data), keyVersion, id)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected != 1 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row *sql.Row) (*models.Chat, error) {
	c, err := scanChatRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	return c, err
}

func scanChatRow(row rowScanner) (*models.Chat, error) {
	var c models.Chat
	var participants string
	if err := row.Scan(&c.ID, &c.Name, &c.IsGroup, &participants, &c.KeyVersion, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	return &c, nil
}
