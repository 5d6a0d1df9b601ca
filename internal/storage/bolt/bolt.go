package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goodtune/gamehall/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketStations      = "stations"
	bucketSessions      = "sessions"
	bucketSessionStarts = "sessions_by_start"
	bucketSettings      = "settings"
	bucketUnsynced      = "local_unsynced"

	settingsKey = "settings"
)

// Store implements storage.Store and storage.LocalStore using bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			[]byte(bucketStations),
			[]byte(bucketSessions),
			[]byte(bucketSessionStarts),
			[]byte(bucketSettings),
			[]byte(bucketUnsynced),
		}

		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stations returns the station store.
func (s *Store) Stations() storage.StationStore { return &stationStore{db: s.db} }

// Sessions returns the session store.
func (s *Store) Sessions() storage.SessionStore { return &sessionStore{db: s.db} }

// Settings returns the settings store.
func (s *Store) Settings() storage.SettingsStore { return &settingsStore{db: s.db} }

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

// startKey orders the start index chronologically; ties break on id.
func startKey(start time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d/%s", start.UnixNano(), id))
}

func startPrefix(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%020d/", ts.UnixNano()))
}

func listBucket[T any](ctx context.Context, db *bbolt.DB, bucket string) ([]T, error) {
	items := make([]T, 0)
	return items, db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var item T
			if err := unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
	})
}

func listTx[T any](tx *bbolt.Tx, bucket string) ([]T, error) {
	items := make([]T, 0)
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return items, nil
	}
	err := b.ForEach(func(_, v []byte) error {
		var item T
		if err := unmarshal(v, &item); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

func getBucketValue[T any](ctx context.Context, db *bbolt.DB, bucket string, key string) (*T, error) {
	var item *T
	err := db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := getTxValue[T](tx, bucket, key)
		if err != nil {
			return err
		}
		item = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func getTxValue[T any](tx *bbolt.Tx, bucket string, key string) (*T, error) {
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return nil, storage.ErrNotFound
	}
	value := b.Get([]byte(key))
	if value == nil {
		return nil, storage.ErrNotFound
	}
	var result T
	if err := unmarshal(value, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func putTxValue(tx *bbolt.Tx, bucket string, key string, value any) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("bucket missing: %s", bucket)
	}
	return b.Put([]byte(key), data)
}

// resetBucket drops every key in bucket.
func resetBucket(tx *bbolt.Tx, bucket string) error {
	if err := tx.DeleteBucket([]byte(bucket)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return fmt.Errorf("delete bucket %s: %w", bucket, err)
	}
	if _, err := tx.CreateBucket([]byte(bucket)); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}
