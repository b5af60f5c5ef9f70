package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	dbFileMode = 0600
	dbDirMode  = 0755

	defaultDBFile = "cache.db"
)

var entriesBucket = []byte("entries")

type boltEntry struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Bolt is a bbolt-backed store so cached availability survives restarts.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (or creates) the cache database at dbPath. If dbPath is
// empty the default file in the current directory is used.
func NewBolt(dbPath string) (*Bolt, error) {
	if dbPath == "" {
		dbPath = filepath.Join(".", defaultDBFile)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dbDirMode); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, dbFileMode, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(key string, value interface{}) (bool, time.Duration) {
	var entry boltEntry
	found := false

	b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(entriesBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil
		}
		found = true
		return nil
	})

	if !found {
		return false, 0
	}
	if time.Now().After(entry.ExpiresAt) {
		b.Delete(key)
		return false, 0
	}
	if err := json.Unmarshal(entry.Value, value); err != nil {
		return false, 0
	}
	return true, time.Since(entry.CreatedAt)
}

func (b *Bolt) Set(key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	now := time.Now()
	data, err := json.Marshal(boltEntry{
		Value:     raw,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(key), data)
	})
}

func (b *Bolt) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Delete([]byte(key))
	})
}

// CleanExpired removes every entry past its expiry. Run periodically; reads
// also drop expired entries lazily.
func (b *Bolt) CleanExpired() {
	now := time.Now()

	b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(entriesBucket)
		cursor := bucket.Cursor()

		var expired [][]byte
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var entry boltEntry
			if err := json.Unmarshal(v, &entry); err != nil || now.After(entry.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}

		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
