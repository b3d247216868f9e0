// Package directory gives the core read access to the hosted backend's user
// and membership data: long-term public keys per user and the active
// participant list per chat. Results are authoritative and are not cached
// beyond the current operation.
package directory

import "context"

// KeyDirectory resolves users' current long-term public keys.
type KeyDirectory interface {
	// PublicKeys returns the public key for each requested user id. A user
	// missing from the result has no published key.
	PublicKeys(ctx context.Context, userIDs []string) (map[string]string, error)

	// PublishKey uploads the local user's public key at registration.
	PublishKey(ctx context.Context, userID, publicKey string) error
}

// Membership reads and writes the active participant list of a chat on the
// backend. Mutations happen only through the orchestrator's add/remove
// operations.
type Membership interface {
	Participants(ctx context.Context, chatID string) ([]string, error)
	SetParticipants(ctx context.Context, chatID string, userIDs []string) error
}
