// Package session runs the operator console's view of the hall: active
// sessions and their timers, optimistic updates confirmed by the API,
// reconciliation with authoritative reloads and local fallback while the
// API is unreachable.
package session

import (
	"context"
	"time"

	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/wire"
)

// Backend executes hall operations. The remote client and the local hall
// service both satisfy it.
type Backend interface {
	Stations(ctx context.Context) ([]storage.Station, error)
	ActiveSessions(ctx context.Context) ([]storage.Session, error)
	Rates(ctx context.Context) (storage.Rates, error)

	StartSession(ctx context.Context, req wire.StartSessionRequest) (*storage.Session, error)
	ExtendSession(ctx context.Context, id string, minutes int) (*storage.Session, error)
	ConvertSession(ctx context.Context, id string) (*storage.Session, error)
	EndSession(ctx context.Context, id string) (*wire.EndSessionResponse, error)
	// SyncSession applies a record kept locally while the API was
	// unreachable.
	SyncSession(ctx context.Context, sess storage.Session) (*storage.Session, error)

	AddStation(ctx context.Context, name string) (*storage.Station, error)
	RemoveStation(ctx context.Context, id string) error
	UpdateRate(ctx context.Context, mode storage.Mode, rate int64) (storage.Rates, error)

	DailyReport(ctx context.Context, date time.Time) (*report.DailyReport, error)
	Stats(ctx context.Context) (*wire.StatsResponse, error)
	ClearReports(ctx context.Context) (int, error)
	Health(ctx context.Context) error
}

// secretHolder is implemented by backends that forward the admin secret.
type secretHolder interface {
	SetAdminSecret(secret string)
}
