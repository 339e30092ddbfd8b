// internal/kv/store.go
package kv

import (
    "context"
    "errors"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("kv: key not found")

// Store is the durable key-value contract backing the campaign store, the
// quota ledger and sender profiles.
type Store interface {
    Get(ctx context.Context, key string) (string, error)
    Set(ctx context.Context, key, value string) error
    Delete(ctx context.Context, key string) error
    // Scan returns every key/value pair whose key starts with prefix.
    Scan(ctx context.Context, prefix string) (map[string]string, error)
}
