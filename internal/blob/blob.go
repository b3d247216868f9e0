// Package blob stores encrypted attachment payloads in an S3-compatible
// object store. Only ciphertext ever leaves the device; file keys travel in
// the message envelope, not here.
package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the object-storage surface the orchestrator depends on.
type Store interface {
	// Put uploads ciphertext under the given object key.
	Put(ctx context.Context, key string, data []byte) error
	// Get downloads the ciphertext stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// NewObjectKey returns a fresh, date-partitioned object key for an upload.
func NewObjectKey() string {
	d := time.Now()
	return fmt.Sprintf("attachments/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}
