// Package station keeps the console's in-memory view of rentable stations.
package station

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/google/uuid"
)

// Registry is a concurrency-safe set of stations.
type Registry struct {
	mu       sync.RWMutex
	stations map[string]storage.Station
}

// NewRegistry returns a registry holding stations.
func NewRegistry(stations []storage.Station) *Registry {
	r := &Registry{stations: make(map[string]storage.Station, len(stations))}
	for _, s := range stations {
		r.stations[s.ID] = s
	}
	return r
}

// Defaults builds count available stations named with format. Creation
// times are staggered so the display order follows the numbering.
func Defaults(count int, format string, now time.Time) []storage.Station {
	stations := make([]storage.Station, 0, count)
	for i := 1; i <= count; i++ {
		stations = append(stations, storage.Station{
			ID:        uuid.NewString(),
			Name:      fmt.Sprintf(format, i),
			Status:    storage.StationAvailable,
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	return stations
}

// ValidateName trims name and rejects empty results.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", apperr.Validation("name", "station name must not be empty")
	}
	return trimmed, nil
}

// List returns all stations in display order.
func (r *Registry) List() []storage.Station {
	r.mu.RLock()
	out := make([]storage.Station, 0, len(r.stations))
	for _, s := range r.stations {
		out = append(out, s)
	}
	r.mu.RUnlock()
	storage.SortStations(out)
	return out
}

// Get returns one station.
func (r *Registry) Get(id string) (storage.Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stations[id]
	if !ok {
		return storage.Station{}, apperr.NotFound("station", id)
	}
	return s, nil
}

// Put inserts or replaces a station.
func (r *Registry) Put(s storage.Station) {
	r.mu.Lock()
	r.stations[s.ID] = s
	r.mu.Unlock()
}

// CanRemove reports whether id exists and is available.
func (r *Registry) CanRemove(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	if !s.Available() {
		return apperr.Conflict(storage.ErrStationOccupied, "station %s is occupied", s.Name)
	}
	return nil
}

// Remove deletes an available station. Occupied stations are refused
// whatever the operator confirmed.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stations[id]
	if !ok {
		return apperr.NotFound("station", id)
	}
	if !s.Available() {
		return apperr.Conflict(storage.ErrStationOccupied, "station %s is occupied", s.Name)
	}
	delete(r.stations, id)
	return nil
}

// Occupy marks an available station occupied.
func (r *Registry) Occupy(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stations[id]
	if !ok {
		return apperr.NotFound("station", id)
	}
	if !s.Available() {
		return apperr.Conflict(storage.ErrStationUnavailable, "station %s is not available", s.Name)
	}
	s.Status = storage.StationOccupied
	r.stations[id] = s
	return nil
}

// Release marks a station available and accrues totals.
func (r *Registry) Release(id string, minutes, revenue int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stations[id]
	if !ok {
		return
	}
	s.Status = storage.StationAvailable
	s.TotalPlayMinutes += minutes
	s.TotalRevenue += revenue
	r.stations[id] = s
}

// Replace swaps the whole set, as after an authoritative reload.
func (r *Registry) Replace(stations []storage.Station) {
	next := make(map[string]storage.Station, len(stations))
	for _, s := range stations {
		next[s.ID] = s
	}
	r.mu.Lock()
	r.stations = next
	r.mu.Unlock()
}
