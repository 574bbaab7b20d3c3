package storage

import (
	"context"
	"errors"
)

// BlobStore is durable local storage the engine treats as a black box.
// Each key holds a full, self-consistent record; writes always replace
// the whole value, never patch it.
type BlobStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

var ErrNotFound = errors.New("blob not found")
