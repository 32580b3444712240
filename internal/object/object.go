// Package object defines blob storage for payloads too large or too binary
// for the scalar rows: non-string answers and fetched image deps. The
// handle stored in their place round-trips through Get.
package object

import (
	"context"
	"fmt"

	"github.com/thebtf/semcache/internal/config"
)

// Store persists opaque blobs addressed by handle.
type Store interface {
	// Put stores data and returns its handle. Storing the same bytes
	// twice returns the same handle.
	Put(ctx context.Context, data []byte) (string, error)

	// Get returns the blob for handle.
	Get(ctx context.Context, handle string) ([]byte, error)

	// Delete removes the blob for handle. Deleting an unknown handle is
	// not an error.
	Delete(ctx context.Context, handle string) error

	Close() error
}

// Open constructs the configured object backend.
func Open(cfg config.ObjectConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocal(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown object backend %q", cfg.Backend)
	}
}
