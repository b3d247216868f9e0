// Package transport moves encrypted envelopes between the device and the
// hosted relay. The core only ever hands ciphertext to this layer.
package transport

import (
	"context"

	"github.com/akuznecov/whisperkit/internal/models"
)

// Handler receives inbound envelopes for a subscribed chat.
type Handler func(env *models.Envelope)

// Publisher publishes an envelope to a chat's channel. Failures are
// retryable; callers convert them into queued resends rather than surfacing
// them directly.
type Publisher interface {
	Publish(ctx context.Context, env *models.Envelope) error
}

// Subscriber registers a handler for a chat's inbound envelopes. The
// returned function cancels the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, chatID string, h Handler) (func(), error)
}

// Transport is the full pub/sub surface the orchestrator depends on.
type Transport interface {
	Publisher
	Subscriber
	Close() error
}
