package bolt

import (
	"context"

	"github.com/goodtune/gamehall/internal/storage"
	"go.etcd.io/bbolt"
)

type stationStore struct {
	db *bbolt.DB
}

func (s *stationStore) List(ctx context.Context) ([]storage.Station, error) {
	stations, err := listBucket[storage.Station](ctx, s.db, bucketStations)
	if err != nil {
		return nil, err
	}
	storage.SortStations(stations)
	return stations, nil
}

func (s *stationStore) Get(ctx context.Context, id string) (*storage.Station, error) {
	return getBucketValue[storage.Station](ctx, s.db, bucketStations, id)
}

func (s *stationStore) Create(ctx context.Context, station storage.Station) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tx.Bucket([]byte(bucketStations)).Get([]byte(station.ID)) != nil {
			return storage.ErrDuplicate
		}
		if station.Status == "" {
			station.Status = storage.StationAvailable
		}
		return putTxValue(tx, bucketStations, station.ID, station)
	})
}

func (s *stationStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		station, err := getTxValue[storage.Station](tx, bucketStations, id)
		if err != nil {
			return err
		}
		if !station.Available() {
			return storage.ErrStationOccupied
		}
		return tx.Bucket([]byte(bucketStations)).Delete([]byte(id))
	})
}
