package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures the embedded Badger medium.
type BadgerConfig struct {
	// Dir is the directory to store data in.
	Dir string

	// InMemory uses in-memory storage (useful for testing).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// KeyPrefix is added to all keys.
	KeyPrefix string
}

// BadgerMedium is a Medium backed by an embedded BadgerDB database.
// It is the default on-device store: entries survive process restarts
// and are lost only when the data directory is removed.
type BadgerMedium struct {
	db        *badger.DB
	keyPrefix string
}

// NewBadgerMedium opens a BadgerDB database with the given configuration.
func NewBadgerMedium(cfg BadgerConfig) (*BadgerMedium, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	return NewBadgerMediumFromDB(db, cfg.KeyPrefix), nil
}

// NewBadgerMediumFromDB creates a medium from an existing database.
func NewBadgerMediumFromDB(db *badger.DB, keyPrefix string) *BadgerMedium {
	return &BadgerMedium{
		db:        db,
		keyPrefix: keyPrefix,
	}
}

func (m *BadgerMedium) prefixKey(key string) []byte {
	return []byte(m.keyPrefix + key)
}

// Get retrieves a value from the database.
func (m *BadgerMedium) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(m.prefixKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value in the database.
func (m *BadgerMedium) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(m.prefixKey(key), value)
	})
}

// Delete removes a key from the database.
func (m *BadgerMedium) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(m.prefixKey(key))
	})
}

// ListKeys returns all keys with the given prefix.
func (m *BadgerMedium) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefixLen := len(m.keyPrefix)
	var keys []string

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = m.prefixKey(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[prefixLen:]))
		}
		return nil
	})
	return keys, err
}

// Close closes the database.
func (m *BadgerMedium) Close() error {
	return m.db.Close()
}

// Verify BadgerMedium implements Medium
var _ Medium = (*BadgerMedium)(nil)
