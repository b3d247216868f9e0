// Package outbox is the durable at-least-once delivery queue for encrypted
// sends. Failed sends are stored as plaintext requests and re-run through
// the full send pipeline on retry, so a message composed before a key
// rotation is re-encrypted under the current key.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/akuznecov/whisperkit/internal/logging"
	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/repositories/outbox"
	"github.com/akuznecov/whisperkit/internal/shared"
)

const (
	// DefaultInterval is how often the retry worker wakes.
	DefaultInterval = 30 * time.Second
	// DefaultMaxRetries is the retry ceiling after which a pending message
	// is dropped as undeliverable.
	DefaultMaxRetries = 5
)

// SendFunc re-runs the full send pipeline for a pending message: key lookup,
// encryption and publish.
type SendFunc func(ctx context.Context, msg *models.PendingMessage) error

// DropFunc observes messages removed at the retry ceiling, so permanent
// losses are surfaced rather than swallowed.
type DropFunc func(msg *models.PendingMessage)

// Queue drains pending messages on a fixed interval. All repository mutation
// happens on the worker goroutine or behind the repository's own statements;
// the queue itself keeps no message state in memory.
type Queue struct {
	repo       outbox.Repository
	send       SendFunc
	onDropped  DropFunc
	log        logging.Logger
	interval   time.Duration
	maxRetries int
	dropped    atomic.Int64
}

type Option func(*Queue)

func WithInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.interval = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// WithDropHandler registers a callback invoked for every message dropped at
// the retry ceiling.
func WithDropHandler(f DropFunc) Option {
	return func(q *Queue) { q.onDropped = f }
}

func NewQueue(repo outbox.Repository, send SendFunc, log logging.Logger, opts ...Option) *Queue {
	q := &Queue{
		repo:       repo,
		send:       send,
		log:        log,
		interval:   DefaultInterval,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stores the plaintext send request for later retry.
func (q *Queue) Enqueue(ctx context.Context, msg *models.PendingMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := q.repo.Add(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	q.log.Info(ctx, "message queued for retry", "message_id", msg.ID, "chat_id", msg.ChatID)
	return nil
}

// Run drives the retry loop until ctx is cancelled. Call in a goroutine.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush attempts every pending message once. Messages already at the retry
// ceiling are dropped and reported.
func (q *Queue) Flush(ctx context.Context) {
	pending, err := q.repo.List(ctx)
	if err != nil {
		q.log.Error(ctx, "failed to list pending messages", "error", err)
		return
	}

	for _, msg := range pending {
		if msg.RetryCount >= q.maxRetries {
			q.drop(ctx, msg)
			continue
		}

		if err := q.attempt(ctx, msg); err != nil {
			q.log.Warn(ctx, "retry failed", "message_id", msg.ID, "retry_count", msg.RetryCount+1, "error", err)
			if err := q.repo.IncrementRetry(ctx, msg.ID); err != nil {
				q.log.Error(ctx, "failed to increment retry count", "message_id", msg.ID, "error", err)
			}
			continue
		}

		if err := q.repo.Delete(ctx, msg.ID); err != nil {
			q.log.Error(ctx, "failed to remove delivered message", "message_id", msg.ID, "error", err)
		}
	}
}

// attempt runs the send pipeline with a short backoff around transient
// transport failures, so a blip does not burn a whole retry slot.
func (q *Queue) attempt(ctx context.Context, msg *models.PendingMessage) error {
	backoff := retry.WithMaxRetries(2, retry.NewConstant(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := q.send(ctx, msg)
		if errors.Is(err, shared.ErrDelivery) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (q *Queue) drop(ctx context.Context, msg *models.PendingMessage) {
	if err := q.repo.Delete(ctx, msg.ID); err != nil {
		q.log.Error(ctx, "failed to drop message", "message_id", msg.ID, "error", err)
		return
	}
	q.dropped.Add(1)
	q.log.Warn(ctx, "message dropped after retry ceiling", "message_id", msg.ID, "chat_id", msg.ChatID)
	if q.onDropped != nil {
		q.onDropped(msg)
	}
}

// Dropped returns how many messages were permanently dropped.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// PendingCount returns the current queue depth.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.repo.Count(ctx)
}

// CancelChat removes every queued retry for a chat.
func (q *Queue) CancelChat(ctx context.Context, chatID string) error {
	return q.repo.DeleteByChat(ctx, chatID)
}

// Clear empties the queue. Called on logout.
func (q *Queue) Clear(ctx context.Context) error {
	return q.repo.Clear(ctx)
}
