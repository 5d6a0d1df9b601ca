package redis

import (
	"context"
	"time"

	"github.com/goodtune/gamehall/internal/storage"
	"github.com/redis/go-redis/v9"
)

type stationStore struct {
	client *redis.Client
}

// List returns all stations
func (s *stationStore) List(ctx context.Context) ([]storage.Station, error) {
	ids, err := s.client.SMembers(ctx, keyStations).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.Station{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, stationKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	stations := make([]storage.Station, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		station, err := parseStation(data)
		if err != nil {
			return nil, err
		}
		stations = append(stations, *station)
	}

	storage.SortStations(stations)
	return stations, nil
}

// Get retrieves a station by ID
func (s *stationStore) Get(ctx context.Context, id string) (*storage.Station, error) {
	data, err := s.client.HGetAll(ctx, stationKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseStation(data)
}

// Create adds a station
func (s *stationStore) Create(ctx context.Context, station storage.Station) error {
	script := redis.NewScript(createStationScript)

	status := station.Status
	if status == "" {
		status = storage.StationAvailable
	}

	keys := []string{stationKey(station.ID), keyStations}
	args := []interface{}{
		station.ID,
		station.Name,
		string(status),
		station.TotalPlayMinutes,
		station.TotalRevenue,
		station.CreatedAt.Format(time.RFC3339Nano),
	}

	reply, err := script.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return err
	}
	return scriptError(reply)
}

// Delete removes an available station
func (s *stationStore) Delete(ctx context.Context, id string) error {
	script := redis.NewScript(deleteStationScript)

	reply, err := script.Run(ctx, s.client, []string{stationKey(id), keyStations}, id).Text()
	if err != nil {
		return err
	}
	return scriptError(reply)
}
