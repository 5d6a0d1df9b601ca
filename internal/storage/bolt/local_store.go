package bolt

import (
	"context"
	"errors"

	"github.com/goodtune/gamehall/internal/storage"
	"go.etcd.io/bbolt"
)

// The console mirrors authoritative state into the same buckets the
// session store uses, so the local fallback service operates on it
// directly.

func (s *Store) SaveStations(ctx context.Context, stations []storage.Station) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := resetBucket(tx, bucketStations); err != nil {
			return err
		}
		for _, station := range stations {
			if err := putTxValue(tx, bucketStations, station.ID, station); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) LoadStations(ctx context.Context) ([]storage.Station, error) {
	return s.Stations().List(ctx)
}

// SaveSessions replaces the mirrored active sessions. Closed records stay,
// and a sealed record is never overwritten by an active copy of it.
func (s *Store) SaveSessions(ctx context.Context, sessions []storage.Session) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		records := tx.Bucket([]byte(bucketSessions))
		index := tx.Bucket([]byte(bucketSessionStarts))

		stored, err := listTx[storage.Session](tx, bucketSessions)
		if err != nil {
			return err
		}
		sealed := make(map[string]bool)
		for _, session := range stored {
			if !session.Active {
				sealed[session.ID] = true
				continue
			}
			if err := index.Delete(startKey(session.StartTime, session.ID)); err != nil {
				return err
			}
			if err := records.Delete([]byte(session.ID)); err != nil {
				return err
			}
		}

		for _, session := range sessions {
			if sealed[session.ID] {
				continue
			}
			if err := putSession(tx, session); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) LoadSessions(ctx context.Context) ([]storage.Session, error) {
	sessions, err := listBucket[storage.Session](ctx, s.db, bucketSessions)
	if err != nil {
		return nil, err
	}
	storage.SortSessions(sessions)
	return sessions, nil
}

func (s *Store) SaveRates(ctx context.Context, rates storage.Rates) error {
	return updateSettings(ctx, s.db, func(settings *storage.Settings) {
		settings.Rates = rates.Clone()
	})
}

// LoadRates returns an empty table when nothing has been saved.
func (s *Store) LoadRates(ctx context.Context) (storage.Rates, error) {
	settings, err := s.Settings().Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Rates{}, nil
	}
	if err != nil {
		return nil, err
	}
	if settings.Rates == nil {
		return storage.Rates{}, nil
	}
	return settings.Rates, nil
}

func (s *Store) SaveTheme(ctx context.Context, theme string) error {
	return updateSettings(ctx, s.db, func(settings *storage.Settings) {
		settings.Theme = theme
	})
}

func (s *Store) LoadTheme(ctx context.Context) (string, error) {
	settings, err := s.Settings().Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return settings.Theme, nil
}

// MarkUnsynced records that the session id changed locally and the API
// has not accepted it yet.
func (s *Store) MarkUnsynced(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return tx.Bucket([]byte(bucketUnsynced)).Put([]byte(id), []byte{1})
	})
}

func (s *Store) ClearUnsynced(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return tx.Bucket([]byte(bucketUnsynced)).Delete([]byte(id))
	})
}

// Unsynced lists the marked session ids in key order.
func (s *Store) Unsynced(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketUnsynced)).ForEach(func(k, _ []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
