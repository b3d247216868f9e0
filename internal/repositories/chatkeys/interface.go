// Package chatkeys persists the current shared secret per chat. Secrets are
// stored sealed under the master key; this package never sees plaintext key
// material, only ciphertext and nonce blobs.
package chatkeys

import "context"

// SealedKey is the encrypted-at-rest form of a chat's current secret.
type SealedKey struct {
	ChatID  string
	Secret  []byte
	Nonce   []byte
	Version int
}

type Repository interface {
	// Upsert replaces the stored secret for a chat. Only one current version
	// is kept per chat.
	Upsert(ctx context.Context, key *SealedKey) error

	// Get returns the sealed secret for a chat, or shared.ErrNotFound.
	Get(ctx context.Context, chatID string) (*SealedKey, error)

	// Delete removes the stored secret for a chat.
	Delete(ctx context.Context, chatID string) error

	// Clear removes every stored secret. Called on logout.
	Clear(ctx context.Context) error
}
