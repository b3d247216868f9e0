// Package outbox persists pending outbound messages so undelivered sends
// survive a process restart.
package outbox

import (
	"context"

	"github.com/akuznecov/whisperkit/internal/models"
)

type Repository interface {
	// Add inserts a pending message.
	Add(ctx context.Context, msg *models.PendingMessage) error

	// List returns all pending messages in enqueue order.
	List(ctx context.Context) ([]*models.PendingMessage, error)

	// IncrementRetry bumps the retry counter after a failed attempt.
	IncrementRetry(ctx context.Context, id string) error

	// Delete removes a pending message (delivered or dropped).
	Delete(ctx context.Context, id string) error

	// DeleteByChat removes every pending message for a chat. Used when a
	// membership or logout event cancels queued retries.
	DeleteByChat(ctx context.Context, chatID string) error

	// Count returns the number of pending messages.
	Count(ctx context.Context) (int, error)

	// Clear removes everything. Called on logout.
	Clear(ctx context.Context) error
}
