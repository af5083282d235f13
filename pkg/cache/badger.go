package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// badgerEnvelope wraps stored values so entry age survives a restart.
type badgerEnvelope struct {
	Value    json.RawMessage `json:"v"`
	StoredAt time.Time       `json:"at"`
}

// BadgerCache implements Store on an embedded on-disk key/value database.
// Entries persist across restarts; expiry is enforced by Badger's native
// TTL plus an explicit check on read.
type BadgerCache struct {
	db *badger.DB

	hits    uint64
	misses  uint64
	expired uint64
}

// NewBadgerCache opens (or creates) the cache database at path.
func NewBadgerCache(opts ...BadgerOption) (*BadgerCache, error) {
	cfg := &BadgerConfig{
		Path: "data/cache",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("badger cache: path is required")
	}

	options := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("badger set: marshal: %w", err)
	}
	env, err := json.Marshal(badgerEnvelope{Value: raw, StoredAt: time.Now()})
	if err != nil {
		return fmt.Errorf("badger set: envelope: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), env)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (c *BadgerCache) Get(_ context.Context, key string, dest interface{}) error {
	var env badgerEnvelope
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			atomic.AddUint64(&c.misses, 1)
			return ErrCacheMiss
		}
		return fmt.Errorf("badger get: %w", err)
	}

	atomic.AddUint64(&c.hits, 1)
	return json.Unmarshal(env.Value, dest)
}

func (c *BadgerCache) Delete(_ context.Context, keys ...string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

func (c *BadgerCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := []byte(strings.TrimSuffix(pattern, "*"))

	// Collect first, then delete: Badger iterators don't allow writes in
	// the same read transaction.
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger scan: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

func (c *BadgerCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			if _, err := txn.Get([]byte(key)); err == nil {
				found = true
				return nil
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	return found, err
}

// CleanupExpired triggers value-log garbage collection. Badger drops
// TTL-expired entries on its own; the sweep just reclaims disk space.
func (c *BadgerCache) CleanupExpired(_ context.Context) int {
	reclaimed := 0
	for {
		if err := c.db.RunValueLogGC(0.5); err != nil {
			break
		}
		reclaimed++
	}
	atomic.AddUint64(&c.expired, uint64(reclaimed))
	return reclaimed
}

func (c *BadgerCache) Metrics() Metrics {
	now := time.Now()
	var ageSum time.Duration
	entries := 0

	_ = c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var env badgerEnvelope
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			})
			if err != nil {
				continue
			}
			ageSum += now.Sub(env.StoredAt)
			entries++
		}
		return nil
	})

	m := Metrics{
		Hits:    atomic.LoadUint64(&c.hits),
		Misses:  atomic.LoadUint64(&c.misses),
		Expired: atomic.LoadUint64(&c.expired),
		Entries: entries,
	}
	if entries > 0 {
		m.MeanAge = ageSum / time.Duration(entries)
	}
	return m.withRatio()
}

// Close flushes and closes the database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
