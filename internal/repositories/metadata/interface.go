// Package metadata is a small key-value store for device-local state such as
// the sealed key pair and session bookkeeping.
package metadata

import "context"

type Repository interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set inserts or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key; absent keys are not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes everything. Called on logout.
	Clear(ctx context.Context) error
}
