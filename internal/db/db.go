// Package db defines the key-value storage contract shared by the document store and
// the embedding cache. Drivers live in subpackages.
package db

import (
	"context"
	"time"
)

// Store is the database facade a driver implements.
type Store interface {
	Pinger
	KVStore
	Close() error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ScanFunc receives one key/value pair. Returning an error stops the scan.
// val is only valid for the duration of the call.
type ScanFunc func(key string, val []byte) error

// KVStore provides key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Scan visits every key with the given prefix. Order is driver-defined.
	Scan(ctx context.Context, prefix string, fn ScanFunc) error
}

// TTLStore is implemented by drivers that can expire keys.
type TTLStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
