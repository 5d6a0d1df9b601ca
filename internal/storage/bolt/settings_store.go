package bolt

import (
	"context"
	"errors"

	"github.com/goodtune/gamehall/internal/storage"
	"go.etcd.io/bbolt"
)

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) Get(ctx context.Context) (*storage.Settings, error) {
	return getBucketValue[storage.Settings](ctx, s.db, bucketSettings, settingsKey)
}

func (s *settingsStore) Put(ctx context.Context, settings storage.Settings) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return putTxValue(tx, bucketSettings, settingsKey, settings)
	})
}

// updateSettings applies fn to the stored settings, starting from an empty
// record when none exists yet.
func updateSettings(ctx context.Context, db *bbolt.DB, fn func(*storage.Settings)) error {
	return db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		current, err := getTxValue[storage.Settings](tx, bucketSettings, settingsKey)
		if errors.Is(err, storage.ErrNotFound) {
			current = &storage.Settings{}
		} else if err != nil {
			return err
		}
		fn(current)
		return putTxValue(tx, bucketSettings, settingsKey, current)
	})
}
