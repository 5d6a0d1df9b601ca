package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")
	// ErrStationUnavailable is returned when a session is opened on an occupied station.
	ErrStationUnavailable = errors.New("storage: station not available")
	// ErrStationOccupied is returned when removing a station that has an active session.
	ErrStationOccupied = errors.New("storage: station occupied")
	// ErrSessionClosed is returned when mutating a session that has ended.
	ErrSessionClosed = errors.New("storage: session closed")
	// ErrSessionUnlimited is returned when extending an unlimited session.
	ErrSessionUnlimited = errors.New("storage: session unlimited")
	// ErrDuplicate is returned when creating a record whose id already exists.
	ErrDuplicate = errors.New("storage: duplicate record")
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Stations() StationStore
	Sessions() SessionStore
	Settings() SettingsStore
}

// StationStore manages rentable stations.
type StationStore interface {
	List(ctx context.Context) ([]Station, error)
	Get(ctx context.Context, id string) (*Station, error)
	Create(ctx context.Context, station Station) error
	// Delete removes an available station. Occupied stations yield ErrStationOccupied.
	Delete(ctx context.Context, id string) error
}

// SessionStore manages rental sessions. Every mutating method is atomic
// with respect to the session and the station it references.
type SessionStore interface {
	// Open records a new active session and marks its station occupied.
	Open(ctx context.Context, session Session) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	ListActive(ctx context.Context) ([]Session, error)
	// ListStartedBetween returns sessions with from <= start_time < to.
	ListStartedBetween(ctx context.Context, from, to time.Time) ([]Session, error)
	Extend(ctx context.Context, id string, minutes int) (*Session, error)
	Convert(ctx context.Context, id string) (*Session, error)
	// Close seals the session, releases the station and accrues its totals.
	Close(ctx context.Context, req CloseRequest) (*Session, error)
	// Record stores a closed session that never ran on this store and
	// accrues its totals on the station, if the station still exists.
	// An existing id yields ErrDuplicate.
	Record(ctx context.Context, session Session, elapsedMinutes int64) (*Session, error)
	// Clear deletes closed sessions and resets station totals.
	Clear(ctx context.Context) (int, error)
}

// SettingsStore manages the rate table and operator preferences.
type SettingsStore interface {
	Get(ctx context.Context) (*Settings, error)
	Put(ctx context.Context, settings Settings) error
}

// LocalStore persists the console's fallback copy of the authoritative
// state. Each collection is saved and loaded independently.
type LocalStore interface {
	SaveStations(ctx context.Context, stations []Station) error
	LoadStations(ctx context.Context) ([]Station, error)
	SaveSessions(ctx context.Context, sessions []Session) error
	LoadSessions(ctx context.Context) ([]Session, error)
	SaveRates(ctx context.Context, rates Rates) error
	LoadRates(ctx context.Context) (Rates, error)
	SaveTheme(ctx context.Context, theme string) error
	LoadTheme(ctx context.Context) (string, error)

	// The unsynced journal lists sessions changed locally that the API
	// has not accepted yet. It survives restarts.
	MarkUnsynced(ctx context.Context, id string) error
	ClearUnsynced(ctx context.Context, id string) error
	Unsynced(ctx context.Context) ([]string, error)
}
