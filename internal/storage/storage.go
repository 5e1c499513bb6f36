// Package storage defines the key/value port through which every durable and
// ephemeral piece of crmkeeper state is read and written, together with the
// table of keys in use.
//
// Backends live in subpackages: memory (ephemeral, tests), sqlite (default
// durable store) and postgres.
package storage

import "context"

// Store is the storage port. Get reports ok=false for an absent key.
// Remove of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key Key) (value []byte, ok bool, err error)
	Set(ctx context.Context, key Key, value []byte) error
	Remove(ctx context.Context, key Key) error
}

// Swapper is implemented by stores that can write conditionally.
// CompareAndSwap stores next only if the current value equals old; a nil old
// means "key must be absent" and a nil next removes the key. It reports
// whether the write happened.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key Key, old, next []byte) (bool, error)
}
