package bolt

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/goodtune/gamehall/internal/storage"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	db *bbolt.DB
}

func (s *sessionStore) Open(ctx context.Context, session storage.Session) (*storage.Session, error) {
	var opened storage.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		station, err := getTxValue[storage.Station](tx, bucketStations, session.StationID)
		if err != nil {
			return err
		}
		if !station.Available() {
			return storage.ErrStationUnavailable
		}
		if tx.Bucket([]byte(bucketSessions)).Get([]byte(session.ID)) != nil {
			return storage.ErrDuplicate
		}

		station.Status = storage.StationOccupied
		if err := putTxValue(tx, bucketStations, station.ID, station); err != nil {
			return err
		}

		opened = session.Clone()
		opened.Active = true
		opened.EndTime = nil
		opened.FinalCost = nil
		opened.FinalRate = nil
		opened.Version = 1
		if opened.Kind == storage.KindUnlimited {
			opened.BudgetMinutes = nil
		}
		return putSession(tx, opened)
	})
	if err != nil {
		return nil, err
	}
	return &opened, nil
}

func (s *sessionStore) Get(ctx context.Context, id string) (*storage.Session, error) {
	return getBucketValue[storage.Session](ctx, s.db, bucketSessions, id)
}

func (s *sessionStore) ListActive(ctx context.Context) ([]storage.Session, error) {
	all, err := listBucket[storage.Session](ctx, s.db, bucketSessions)
	if err != nil {
		return nil, err
	}
	active := make([]storage.Session, 0, len(all))
	for _, session := range all {
		if session.Active {
			active = append(active, session)
		}
	}
	storage.SortSessions(active)
	return active, nil
}

func (s *sessionStore) ListStartedBetween(ctx context.Context, from, to time.Time) ([]storage.Session, error) {
	sessions := make([]storage.Session, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(bucketSessionStarts))
		records := tx.Bucket([]byte(bucketSessions))
		upper := startPrefix(to)

		c := index.Cursor()
		for k, v := c.Seek(startPrefix(from)); k != nil && bytes.Compare(k, upper) < 0; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			data := records.Get(v)
			if data == nil {
				continue
			}
			var session storage.Session
			if err := unmarshal(data, &session); err != nil {
				return err
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *sessionStore) Extend(ctx context.Context, id string, minutes int) (*storage.Session, error) {
	return s.mutate(ctx, id, func(session *storage.Session) error {
		if !session.Limited() {
			return storage.ErrSessionUnlimited
		}
		budget := *session.BudgetMinutes + minutes
		session.BudgetMinutes = &budget
		return nil
	})
}

func (s *sessionStore) Convert(ctx context.Context, id string) (*storage.Session, error) {
	return s.mutate(ctx, id, func(session *storage.Session) error {
		session.Kind = storage.KindUnlimited
		session.BudgetMinutes = nil
		return nil
	})
}

// mutate applies fn to an active session and bumps its version.
func (s *sessionStore) mutate(ctx context.Context, id string, fn func(*storage.Session) error) (*storage.Session, error) {
	var updated *storage.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		session, err := getTxValue[storage.Session](tx, bucketSessions, id)
		if err != nil {
			return err
		}
		if !session.Active {
			return storage.ErrSessionClosed
		}
		if err := fn(session); err != nil {
			return err
		}
		session.Version++
		updated = session
		return putSession(tx, *session)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *sessionStore) Close(ctx context.Context, req storage.CloseRequest) (*storage.Session, error) {
	var closed *storage.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		session, err := getTxValue[storage.Session](tx, bucketSessions, req.SessionID)
		if err != nil {
			return err
		}
		if !session.Active {
			return storage.ErrSessionClosed
		}

		end := req.EndTime
		session.Active = false
		session.EndTime = &end
		session.FinalCost = storage.Int64Ptr(req.Cost)
		session.FinalRate = storage.Int64Ptr(req.Rate)
		session.Version++
		if err := putSession(tx, *session); err != nil {
			return err
		}

		station, err := getTxValue[storage.Station](tx, bucketStations, session.StationID)
		if errors.Is(err, storage.ErrNotFound) {
			closed = session
			return nil
		}
		if err != nil {
			return err
		}
		station.Status = storage.StationAvailable
		station.TotalPlayMinutes += req.ElapsedMinutes
		station.TotalRevenue += req.Cost
		closed = session
		return putTxValue(tx, bucketStations, station.ID, station)
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *sessionStore) Record(ctx context.Context, session storage.Session, elapsedMinutes int64) (*storage.Session, error) {
	var recorded storage.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tx.Bucket([]byte(bucketSessions)).Get([]byte(session.ID)) != nil {
			return storage.ErrDuplicate
		}

		recorded = session.Clone()
		recorded.Active = false
		recorded.Version = 1
		if err := putSession(tx, recorded); err != nil {
			return err
		}

		station, err := getTxValue[storage.Station](tx, bucketStations, session.StationID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		station.TotalPlayMinutes += elapsedMinutes
		if recorded.FinalCost != nil {
			station.TotalRevenue += *recorded.FinalCost
		}
		return putTxValue(tx, bucketStations, station.ID, station)
	})
	if err != nil {
		return nil, err
	}
	return &recorded, nil
}

func (s *sessionStore) Clear(ctx context.Context) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket([]byte(bucketSessions))
		index := tx.Bucket([]byte(bucketSessionStarts))

		var closed []storage.Session
		if err := records.ForEach(func(_, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var session storage.Session
			if err := unmarshal(v, &session); err != nil {
				return err
			}
			if !session.Active {
				closed = append(closed, session)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, session := range closed {
			if err := index.Delete(startKey(session.StartTime, session.ID)); err != nil {
				return err
			}
			if err := records.Delete([]byte(session.ID)); err != nil {
				return err
			}
			deleted++
		}

		stations, err := listTx[storage.Station](tx, bucketStations)
		if err != nil {
			return err
		}
		for _, station := range stations {
			station.TotalPlayMinutes = 0
			station.TotalRevenue = 0
			if err := putTxValue(tx, bucketStations, station.ID, station); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func putSession(tx *bbolt.Tx, session storage.Session) error {
	if err := putTxValue(tx, bucketSessions, session.ID, session); err != nil {
		return err
	}
	return tx.Bucket([]byte(bucketSessionStarts)).Put(startKey(session.StartTime, session.ID), []byte(session.ID))
}
