package outbox

import (
	"context"
	"fmt"

	"github.com/akuznecov/whisperkit/internal/dbx"
	"github.com/akuznecov/whisperkit/internal/models"
)

// SQLiteRepository implements Repository over a DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, m *models.PendingMessage) error {
	query := `INSERT INTO pending_messages (id, chat_id, content, message_type, file_data, file_name, retry_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.ChatID, m.Content, string(m.Type), m.FileData, m.FileName, m.RetryCount, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pending message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.PendingMessage, error) {
	query := `SELECT id, chat_id, content, message_type, file_data, file_name, retry_count, created_at
			FROM pending_messages ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending messages: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingMessage
	for rows.Next() {
		var m models.PendingMessage
		var mtype string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Content, &mtype, &m.FileData, &m.FileName, &m.RetryCount, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = models.MessageType(mtype)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pending_messages SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByChat(ctx context.Context, chatID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete pending messages for chat: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending messages: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_messages`)
	if err != nil {
		return fmt.Errorf("failed to clear pending messages: %w", err)
	}
	return nil
}
