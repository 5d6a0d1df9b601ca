// Package hall is the authoritative implementation of every station,
// session, rate and report operation. The API server exposes it over
// HTTP; the operator console runs it over its local store while the
// server is unreachable.
package hall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/billing"
	"github.com/goodtune/gamehall/internal/clock"
	"github.com/goodtune/gamehall/internal/metrics"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/station"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxExtension caps one extension at eight hours.
const DefaultMaxExtension = 480

// Options tunes a Service.
type Options struct {
	Location            *time.Location
	MaxExtensionMinutes int
	Cache               *report.Cache
	Logger              zerolog.Logger
}

// Service applies business rules on top of a storage.Store.
type Service struct {
	store        storage.Store
	rates        *billing.RateTable
	clock        clock.Clock
	loc          *time.Location
	maxExtension int
	cache        *report.Cache
	logger       zerolog.Logger

	// settingsMu serializes read-modify-write of the settings record.
	settingsMu sync.Mutex
}

// New creates a Service.
func New(store storage.Store, rates *billing.RateTable, clk clock.Clock, opts Options) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxExtensionMinutes <= 0 {
		opts.MaxExtensionMinutes = DefaultMaxExtension
	}
	return &Service{
		store:        store,
		rates:        rates,
		clock:        clk,
		loc:          opts.Location,
		maxExtension: opts.MaxExtensionMinutes,
		cache:        opts.Cache,
		logger:       opts.Logger.With().Str("component", "hall").Logger(),
	}
}

// Location returns the time zone that bounds a business day.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// MaxExtension returns the per-operation extension cap in minutes.
func (s *Service) MaxExtension() int { return s.maxExtension }

// RateTable returns the live rate table.
func (s *Service) RateTable() *billing.RateTable { return s.rates }

// Seed creates count default stations when the store holds none.
func (s *Service) Seed(ctx context.Context, count int, format string) (int, error) {
	existing, err := s.store.Stations().List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stations: %w", err)
	}
	if len(existing) > 0 || count <= 0 {
		return 0, nil
	}

	for _, st := range station.Defaults(count, format, s.clock.Now()) {
		if err := s.store.Stations().Create(ctx, st); err != nil {
			return 0, fmt.Errorf("create default station %s: %w", st.Name, err)
		}
	}
	s.logger.Info().Int("count", count).Msg("Seeded default stations")
	return count, nil
}

// LoadSettings adopts persisted rates, or persists the current ones if
// none are stored yet.
func (s *Service) LoadSettings(ctx context.Context) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	settings, err := s.store.Settings().Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return s.store.Settings().Put(ctx, storage.Settings{
			Rates:     s.rates.Rates(),
			UpdatedAt: s.clock.Now(),
		})
	}
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	s.rates.Replace(settings.Rates)
	return nil
}

// Stations lists all stations.
func (s *Service) Stations(ctx context.Context) ([]storage.Station, error) {
	return s.store.Stations().List(ctx)
}

// ActiveSessions lists running sessions.
func (s *Service) ActiveSessions(ctx context.Context) ([]storage.Session, error) {
	sessions, err := s.store.Sessions().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	metrics.ActiveSessions.Set(float64(len(sessions)))
	return sessions, nil
}

// StartSession opens a session after validating the request.
func (s *Service) StartSession(ctx context.Context, req wire.StartSessionRequest) (*storage.Session, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session := storage.Session{
		ID:            uuid.NewString(),
		StationID:     req.StationID,
		PlayerName:    req.PlayerName,
		Mode:          req.Mode,
		Kind:          req.Kind,
		BudgetMinutes: req.BudgetMinutes,
		StartTime:     s.clock.Now(),
	}
	opened, err := s.store.Sessions().Open(ctx, session)
	if err != nil {
		return nil, mapError(err, "station", req.StationID)
	}

	metrics.SessionsStarted.WithLabelValues(string(opened.Mode), string(opened.Kind)).Inc()
	metrics.ActiveSessions.Inc()
	s.logger.Info().
		Str("session_id", opened.ID).
		Str("station_id", opened.StationID).
		Str("mode", string(opened.Mode)).
		Str("kind", string(opened.Kind)).
		Msg("Session started")
	return opened, nil
}

// ExtendSession adds minutes to a limited session.
func (s *Service) ExtendSession(ctx context.Context, id string, minutes int) (*storage.Session, error) {
	if err := (wire.ExtendSessionRequest{Minutes: minutes}).Validate(s.maxExtension); err != nil {
		return nil, err
	}
	session, err := s.store.Sessions().Extend(ctx, id, minutes)
	if err != nil {
		return nil, mapError(err, "session", id)
	}
	metrics.SessionExtensions.Inc()
	s.logger.Info().Str("session_id", id).Int("minutes", minutes).Int("budget", derefInt(session.BudgetMinutes)).Msg("Session extended")
	return session, nil
}

// ConvertSession makes a session unlimited.
func (s *Service) ConvertSession(ctx context.Context, id string) (*storage.Session, error) {
	session, err := s.store.Sessions().Convert(ctx, id)
	if err != nil {
		return nil, mapError(err, "session", id)
	}
	metrics.SessionConversions.Inc()
	s.logger.Info().Str("session_id", id).Msg("Session converted to unlimited")
	return session, nil
}

// EndSession closes a session, charging whole elapsed minutes at the
// current rate for its mode.
func (s *Service) EndSession(ctx context.Context, id string) (*wire.EndSessionResponse, error) {
	session, err := s.store.Sessions().Get(ctx, id)
	if err != nil {
		return nil, mapError(err, "session", id)
	}
	if !session.Active {
		return nil, apperr.Conflict(storage.ErrSessionClosed, "session %s already ended", id)
	}

	now := s.clock.Now()
	elapsed := billing.ElapsedMinutes(int64(now.Sub(session.StartTime) / time.Second))
	rate := s.rates.Rate(session.Mode)
	cost := billing.Cost(float64(elapsed), rate)

	closed, err := s.store.Sessions().Close(ctx, storage.CloseRequest{
		SessionID:      id,
		EndTime:        now,
		ElapsedMinutes: elapsed,
		Cost:           cost,
		Rate:           rate,
	})
	if err != nil {
		return nil, mapError(err, "session", id)
	}

	mode := string(closed.Mode)
	metrics.SessionsEnded.WithLabelValues(mode).Inc()
	metrics.RevenueTotal.WithLabelValues(mode).Add(float64(cost))
	metrics.PlayMinutesTotal.WithLabelValues(mode).Add(float64(elapsed))
	metrics.ActiveSessions.Dec()
	s.logger.Info().
		Str("session_id", id).
		Int64("elapsed_minutes", elapsed).
		Int64("rate", rate).
		Int64("cost", cost).
		Msg("Session ended")

	return &wire.EndSessionResponse{Session: *closed, ElapsedMinutes: elapsed, TotalCost: cost}, nil
}

// AddStation creates an available station.
func (s *Service) AddStation(ctx context.Context, name string) (*storage.Station, error) {
	trimmed, err := station.ValidateName(name)
	if err != nil {
		return nil, err
	}
	st := storage.Station{
		ID:        uuid.NewString(),
		Name:      trimmed,
		Status:    storage.StationAvailable,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.Stations().Create(ctx, st); err != nil {
		return nil, mapError(err, "station", st.ID)
	}
	s.logger.Info().Str("station_id", st.ID).Str("name", st.Name).Msg("Station added")
	return &st, nil
}

// RemoveStation deletes an available station.
func (s *Service) RemoveStation(ctx context.Context, id string) error {
	if err := s.store.Stations().Delete(ctx, id); err != nil {
		return mapError(err, "station", id)
	}
	s.logger.Info().Str("station_id", id).Msg("Station removed")
	return nil
}

// Rates returns the current rate table.
func (s *Service) Rates(ctx context.Context) (storage.Rates, error) {
	return s.rates.Rates(), nil
}

// UpdateRate changes one hourly rate and persists the table. Closed
// sessions keep the rate recorded when they ended.
func (s *Service) UpdateRate(ctx context.Context, mode storage.Mode, rate int64) (storage.Rates, error) {
	if err := s.rates.Check(mode, rate); err != nil {
		return nil, err
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	settings, err := s.store.Settings().Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		settings = &storage.Settings{}
	} else if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	next := s.rates.Rates()
	next[mode] = rate
	settings.Rates = next
	settings.UpdatedAt = s.clock.Now()
	if err := s.store.Settings().Put(ctx, *settings); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	if err := s.rates.Set(mode, rate); err != nil {
		return nil, err
	}

	s.logger.Info().Str("mode", string(mode)).Int64("rate", rate).Msg("Rate updated")
	return s.rates.Rates(), nil
}

// DailyReport aggregates the sessions that started on date's local day.
func (s *Service) DailyReport(ctx context.Context, date time.Time) (*report.DailyReport, error) {
	start, end := report.DayBounds(date, s.loc)
	key := start.Format(report.DateLayout)
	if cached, ok := s.cache.Get(key); ok {
		return &cached, nil
	}

	sessions, err := s.store.Sessions().ListStartedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	stations, err := s.store.Stations().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	names := make(map[string]string, len(stations))
	for _, st := range stations {
		names[st.ID] = st.Name
	}

	now := s.clock.Now()
	rep := report.Aggregate(start, s.loc, sessions, names, s.rates.Rates(), now)
	s.cache.Add(rep, now, s.loc)
	return &rep, nil
}

// Stats summarises the current business day.
func (s *Service) Stats(ctx context.Context) (*wire.StatsResponse, error) {
	active, err := s.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	rep, err := s.DailyReport(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &wire.StatsResponse{
		ActiveSessions: len(active),
		TodayMinutes:   rep.TotalMinutes,
		TodayRevenue:   rep.TotalRevenue,
		Estimate:       rep.Estimate,
	}, nil
}

// ClearReports deletes closed sessions and resets station totals. Running
// sessions are kept.
func (s *Service) ClearReports(ctx context.Context) (int, error) {
	deleted, err := s.store.Sessions().Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	s.cache.Purge()
	s.logger.Warn().Int("deleted", deleted).Msg("Reports cleared")
	return deleted, nil
}

// Health checks that the store answers.
func (s *Service) Health(ctx context.Context) error {
	_, err := s.store.Stations().List(ctx)
	return err
}

// mapError translates storage sentinels into the error taxonomy.
func mapError(err error, resource, id string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound(resource, id)
	case errors.Is(err, storage.ErrStationUnavailable):
		return apperr.Conflict(err, "station %s is not available", id)
	case errors.Is(err, storage.ErrStationOccupied):
		return apperr.Conflict(err, "station %s is occupied", id)
	case errors.Is(err, storage.ErrSessionClosed):
		return apperr.Conflict(err, "session %s already ended", id)
	case errors.Is(err, storage.ErrSessionUnlimited):
		return apperr.Conflict(err, "session %s is unlimited", id)
	case errors.Is(err, storage.ErrDuplicate):
		return apperr.Conflict(err, "%s %s already exists", resource, id)
	default:
		return err
	}
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
