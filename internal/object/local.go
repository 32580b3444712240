package object

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const localScheme = "local://"

// Local is a content-addressed file store: blobs live under root, named by
// the hex SHA-256 of their content. Writes are idempotent.
type Local struct {
	root string
}

var _ Store = (*Local)(nil)

// NewLocal creates the root directory if needed and returns the store.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("object store directory required")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) pathFor(digest string) string {
	// Shard by the first byte to keep directories small.
	return filepath.Join(l.root, digest[:2], digest)
}

// Put stores data under its content hash and returns the handle.
func (l *Local) Put(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	path := l.pathFor(digest)

	if _, err := os.Stat(path); err == nil {
		return localScheme + digest, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	// Write-then-rename so readers never observe a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("place blob: %w", err)
	}

	return localScheme + digest, nil
}

func (l *Local) digestOf(handle string) (string, error) {
	digest, ok := strings.CutPrefix(handle, localScheme)
	if !ok || len(digest) < 3 {
		return "", fmt.Errorf("malformed object handle %q", handle)
	}
	return digest, nil
}

// Get returns the blob for handle.
func (l *Local) Get(ctx context.Context, handle string) ([]byte, error) {
	digest, err := l.digestOf(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.pathFor(digest))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", handle, err)
	}
	return data, nil
}

// Delete removes the blob for handle.
func (l *Local) Delete(ctx context.Context, handle string) error {
	digest, err := l.digestOf(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(l.pathFor(digest)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s: %w", handle, err)
	}
	return nil
}

// Close is a no-op for the file-backed store.
func (l *Local) Close() error {
	return nil
}
