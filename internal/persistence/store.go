package persistence

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by KVStore.Get for missing keys.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInstanceNotFound is returned when a workflow instance is not found.
	ErrInstanceNotFound = errors.New("instance not found")
)

// KVStore is the minimal get/put interface the engine consumes for
// persistence. Implementations must be safe for concurrent use.
//
// The engine holds a reference to a KVStore; stores never reference the
// engine.
type KVStore interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix, in unspecified order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
