// Package chats persists chat membership metadata: participants, key
// version and creator. Message plaintext never touches this store.
package chats

import (
	"context"

	"github.com/akuznecov/whisperkit/internal/models"
)

type Repository interface {
	// Upsert inserts or replaces a chat record.
	Upsert(ctx context.Context, chat *models.Chat) error

	// Get returns the chat by id, or shared.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Chat, error)

	// FindDirect returns the existing direct chat for the unordered pair
	// (a, b), or shared.ErrNotFound. This is what makes direct chats unique
	// per pair.
	FindDirect(ctx context.Context, a, b string) (*models.Chat, error)

	// List returns all chats the local user participates in.
	List(ctx context.Context) ([]*models.Chat, error)

	// UpdateMembership replaces the participant set and key version in one
	// statement. Used by rotation so both change together.
	UpdateMembership(ctx context.Context, id string, participants []string, keyVersion int) error

	// Delete removes a chat record.
	Delete(ctx context.Context, id string) error
}
