// Package bolt implements db.Store on a single bbolt file.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kailas-cloud/bookrec/internal/db"
)

var _ db.Store = (*Store)(nil)

var bucketKV = []byte("kv")

// Config holds the database file location and the file-lock timeout.
type Config struct {
	Path    string
	Timeout time.Duration
}

// Store keeps every key in one bucket.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the bbolt file.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	bdb, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Store{db: bdb}, nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if err := s.db.View(func(*bbolt.Tx) error { return nil }); err != nil {
		return wrap(db.OpPing, err)
	}
	return nil
}

// Close closes the file. Writes are already durable on commit.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return &db.Error{Op: db.OpClose, Err: err}
	}
	return nil
}

// Get retrieves a copy of the value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketKV).Get([]byte(key))
		if v == nil {
			return db.ErrKeyNotFound
		}
		out = bytes.Clone(v)
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, wrap(db.OpGet, err)
	}
	return out, nil
}

// Set stores value at key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), value)
	})
	if err != nil {
		return wrap(db.OpSet, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
	if err != nil {
		return wrap(db.OpDel, err)
	}
	return nil
}

// Scan visits keys with prefix in byte order inside one read transaction.
// fn must not write to the store.
func (s *Store) Scan(ctx context.Context, prefix string, fn db.ScanFunc) error {
	p := []byte(prefix)
	var cbErr error
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if cbErr = fn(string(k), v); cbErr != nil {
				return cbErr
			}
		}
		return nil
	})
	if err != nil && cbErr == nil {
		return wrap(db.OpScan, err)
	}
	return err
}

func wrap(op string, err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		err = db.ErrClosed
	}
	return &db.Error{Op: op, Err: err}
}
