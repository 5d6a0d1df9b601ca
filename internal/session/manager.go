package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/billing"
	"github.com/goodtune/gamehall/internal/clock"
	"github.com/goodtune/gamehall/internal/hall"
	"github.com/goodtune/gamehall/internal/metrics"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/station"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/tracker"
	"github.com/goodtune/gamehall/internal/wire"
)

// Options configures a Manager.
type Options struct {
	// Remote is the authoritative API. Nil runs against Local only.
	Remote Backend
	// Local executes operations while Remote is unreachable.
	Local Backend
	// Mirror receives the last authoritative state for Local to work on.
	Mirror storage.LocalStore

	Rates        *billing.RateTable
	Clock        clock.Clock
	Notifier     Notifier
	Logger       zerolog.Logger
	AdminSecret  string
	MaxExtension int
	Warning      time.Duration
	Danger       time.Duration
	Themes       []string
	Theme        string
}

// Manager is the console's application context.
type Manager struct {
	remote       Backend
	local        Backend
	mirror       storage.LocalStore
	rates        *billing.RateTable
	clock        clock.Clock
	notifier     Notifier
	logger       zerolog.Logger
	adminSecret  string
	maxExtension int
	warning      time.Duration
	danger       time.Duration
	themes       []string

	online  atomic.Bool
	offline chan struct{}

	// busy guards the fields below. Operations Lock it around local
	// mutation and release it during remote calls; timers TryLock it and
	// skip their turn when it is held.
	busy     sync.Mutex
	registry *station.Registry
	sessions map[string]*storage.Session
	trackers map[string]*tracker.Tracker
	pending  map[string]int
	timeUp   map[string]bool
	ended    map[string]struct{}
	// unsynced holds sessions changed while offline. They are owned
	// locally until the API accepts their record.
	unsynced   map[string]struct{}
	syncFailed map[string]bool
	stats    *wire.StatsResponse
	admin    bool
	theme    string
	render   func(View)
}

// New creates a Manager. Call Init before use.
func New(opts Options) (*Manager, error) {
	if opts.Local == nil {
		return nil, errors.New("session manager needs a local backend")
	}
	if opts.Remote != nil && opts.Mirror == nil {
		return nil, errors.New("session manager needs a mirror to fall back from a remote backend")
	}
	if opts.Rates == nil {
		opts.Rates = billing.NewRateTable(nil, 0, 0)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Notifier == nil {
		opts.Notifier = NewLogNotifier(opts.Logger)
	}
	if opts.MaxExtension <= 0 {
		opts.MaxExtension = hall.DefaultMaxExtension
	}
	if opts.Warning <= 0 {
		opts.Warning = tracker.DefaultWarning
	}
	if opts.Danger <= 0 {
		opts.Danger = tracker.DefaultDanger
	}

	m := &Manager{
		remote:       opts.Remote,
		local:        opts.Local,
		mirror:       opts.Mirror,
		rates:        opts.Rates,
		clock:        opts.Clock,
		notifier:     opts.Notifier,
		logger:       opts.Logger.With().Str("component", "session").Logger(),
		adminSecret:  opts.AdminSecret,
		maxExtension: opts.MaxExtension,
		warning:      opts.Warning,
		danger:       opts.Danger,
		themes:       opts.Themes,
		offline:      make(chan struct{}, 1),
		registry:     station.NewRegistry(nil),
		sessions:     make(map[string]*storage.Session),
		trackers:     make(map[string]*tracker.Tracker),
		pending:      make(map[string]int),
		timeUp:       make(map[string]bool),
		ended:        make(map[string]struct{}),
		unsynced:     make(map[string]struct{}),
		syncFailed:   make(map[string]bool),
		theme:        opts.Theme,
	}
	m.online.Store(opts.Remote != nil)
	return m, nil
}

// Init loads the local copy, then reloads from the API when online. An
// unreachable API leaves the manager offline rather than failing.
func (m *Manager) Init(ctx context.Context) error {
	if m.mirror != nil {
		if theme, err := m.mirror.LoadTheme(ctx); err == nil && theme != "" {
			m.theme = theme
		}
	}

	if err := m.loadLocal(ctx); err != nil {
		return err
	}
	if m.remote == nil {
		return nil
	}

	m.busy.Lock()
	defer m.busy.Unlock()
	if err := m.reloadLocked(ctx); err != nil && !apperr.IsTransport(err) {
		return err
	}
	return nil
}

func (m *Manager) loadLocal(ctx context.Context) error {
	stations, err := m.local.Stations(ctx)
	if err != nil {
		return fmt.Errorf("load local stations: %w", err)
	}
	sessions, err := m.local.ActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("load local sessions: %w", err)
	}
	rates, err := m.local.Rates(ctx)
	if err != nil {
		return fmt.Errorf("load local rates: %w", err)
	}

	var unsynced []string
	if m.mirror != nil {
		if unsynced, err = m.mirror.Unsynced(ctx); err != nil {
			return fmt.Errorf("load unsynced sessions: %w", err)
		}
	}

	m.busy.Lock()
	defer m.busy.Unlock()
	m.registry.Replace(stations)
	m.rates.Replace(rates)
	for _, s := range sessions {
		m.applyLocked(s)
	}
	for _, id := range unsynced {
		m.unsynced[id] = struct{}{}
		if _, running := m.sessions[id]; !running {
			m.ended[id] = struct{}{}
		}
	}
	return nil
}

// Online reports whether operations go to the API.
func (m *Manager) Online() bool { return m.online.Load() }

// OfflineC signals each switch to local mode.
func (m *Manager) OfflineC() <-chan struct{} { return m.offline }

// HasRemote reports whether an API is configured at all.
func (m *Manager) HasRemote() bool { return m.remote != nil }

// SetRenderer installs the hook called after every tick.
func (m *Manager) SetRenderer(fn func(View)) {
	m.busy.Lock()
	m.render = fn
	m.busy.Unlock()
}

// SetOnline restores remote execution after a successful health check.
func (m *Manager) SetOnline() {
	if m.remote == nil {
		return
	}
	if m.online.CompareAndSwap(false, true) {
		m.logger.Info().Msg("API reachable again, switching to online mode")
		m.notify(Event{Kind: EventOnline, Message: "server reachable again"})
	}
}

func (m *Manager) goOffline(op string, err error) {
	if !m.online.CompareAndSwap(true, false) {
		return
	}
	m.logger.Warn().Err(err).Str("op", op).Msg("API unreachable, switching to local mode")
	m.notify(Event{Kind: EventOffline, Message: "server unreachable, working locally"})
	select {
	case m.offline <- struct{}{}:
	default:
	}
}

func (m *Manager) notify(e Event) {
	if e.At.IsZero() {
		e.At = m.clock.Now()
	}
	m.notifier.Notify(e)
}

// call runs fn on the API, or on the local backend when offline or when
// the API call fails in transport. remote reports which one answered.
func call[T any](m *Manager, op string, fn func(Backend) (T, error)) (result T, remote bool, err error) {
	return callOwned(m, op, false, fn)
}

// callOwned is call for one session; owned sessions are not known to the
// API yet and run locally.
func callOwned[T any](m *Manager, op string, owned bool, fn func(Backend) (T, error)) (result T, remote bool, err error) {
	if owned {
		result, err = fn(m.local)
		return result, false, err
	}
	if m.remote != nil && m.online.Load() {
		result, err = fn(m.remote)
		if !apperr.IsTransport(err) {
			return result, true, err
		}
		m.goOffline(op, err)
	}
	if m.remote != nil {
		metrics.FallbacksTotal.WithLabelValues(op).Inc()
		m.logger.Debug().Str("op", op).Msg("Executing locally")
	}
	result, err = fn(m.local)
	return result, false, err
}

// StartSession validates the request, then opens the session.
func (m *Manager) StartSession(ctx context.Context, req wire.StartSessionRequest) (*storage.Session, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m.busy.Lock()
	st, err := m.registry.Get(req.StationID)
	if err == nil && !st.Available() {
		err = apperr.Conflict(storage.ErrStationUnavailable, "station %s is not available", st.Name)
	}
	m.busy.Unlock()
	if err != nil {
		return nil, err
	}

	sess, remote, err := call(m, "start_session", func(b Backend) (*storage.Session, error) {
		return b.StartSession(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	m.busy.Lock()
	m.occupyLocked(*sess)
	m.applyLocked(*sess)
	if remote {
		m.persistLocked(ctx)
	} else {
		m.markUnsyncedLocked(ctx, sess.ID)
	}
	m.busy.Unlock()

	m.logger.Info().
		Str("session_id", sess.ID).
		Str("station", st.Name).
		Str("player", sess.PlayerName).
		Msg("Session started")
	m.refreshStats(ctx)
	out := sess.Clone()
	return &out, nil
}

// ExtendSession adds minutes to a limited session optimistically. A
// rejection restores the previous state and returns a RollbackError.
func (m *Manager) ExtendSession(ctx context.Context, id string, minutes int) (*storage.Session, error) {
	if err := (wire.ExtendSessionRequest{Minutes: minutes}).Validate(m.maxExtension); err != nil {
		return nil, err
	}

	m.busy.Lock()
	sess, tr, err := m.activeLocked(id)
	if err == nil && !sess.Limited() {
		err = apperr.Conflict(storage.ErrSessionUnlimited, "session %s is unlimited", id)
	}
	if err != nil {
		m.busy.Unlock()
		return nil, err
	}
	snap := m.snapshotLocked(id)
	budget, err := tr.Extend(minutes, m.clock.Now())
	if err != nil {
		m.busy.Unlock()
		return nil, apperr.Validation("minutes", "%v", err)
	}
	sess.BudgetMinutes = &budget
	sess.Version++
	delete(m.timeUp, id)
	m.pending[id]++
	owned := m.ownedLocked(id)
	m.busy.Unlock()

	return m.confirm(ctx, "extend_session", snap, owned, func(b Backend) (*storage.Session, error) {
		return b.ExtendSession(ctx, id, minutes)
	})
}

// ConvertSession turns a session unlimited optimistically.
func (m *Manager) ConvertSession(ctx context.Context, id string) (*storage.Session, error) {
	m.busy.Lock()
	sess, tr, err := m.activeLocked(id)
	if err != nil {
		m.busy.Unlock()
		return nil, err
	}
	snap := m.snapshotLocked(id)
	tr.Unlimit()
	sess.Kind = storage.KindUnlimited
	sess.BudgetMinutes = nil
	sess.Version++
	delete(m.timeUp, id)
	m.pending[id]++
	owned := m.ownedLocked(id)
	m.busy.Unlock()

	return m.confirm(ctx, "convert_session", snap, owned, func(b Backend) (*storage.Session, error) {
		return b.ConvertSession(ctx, id)
	})
}

// confirm completes an optimistic operation: it adopts the confirmed
// record or restores snap.
func (m *Manager) confirm(ctx context.Context, op string, snap snapshot, owned bool, fn func(Backend) (*storage.Session, error)) (*storage.Session, error) {
	result, remote, err := callOwned(m, op, owned, fn)

	m.busy.Lock()
	defer m.busy.Unlock()

	id := snap.session.ID
	if m.pending[id]--; m.pending[id] <= 0 {
		delete(m.pending, id)
	}
	if _, ended := m.ended[id]; ended {
		return nil, apperr.Conflict(storage.ErrSessionClosed, "session %s ended while %s was in flight", id, op)
	}

	if err != nil {
		m.restoreLocked(snap)
		metrics.RollbacksTotal.WithLabelValues(op).Inc()
		rollback := apperr.Rollback(op, id, err)
		evt := m.logger.Warn().Err(err).Str("op", op).Str("session_id", id)
		if tr, ok := m.trackers[id]; ok {
			if original, limited := tr.OriginalBudget(); limited {
				evt = evt.Int("original_budget", original)
			}
			evt = evt.Int("extensions", len(tr.Extensions()))
		}
		evt.Msg("Optimistic update rolled back")
		m.notify(Event{
			Kind:      EventRollback,
			SessionID: id,
			StationID: snap.session.StationID,
			Message:   rollback.Error(),
		})
		return nil, rollback
	}

	m.applyLocked(*result)
	if remote {
		m.persistLocked(ctx)
	} else {
		m.markUnsyncedLocked(ctx, id)
	}
	out := result.Clone()
	return &out, nil
}

// EndSession closes a session and releases its station.
func (m *Manager) EndSession(ctx context.Context, id string) (*wire.EndSessionResponse, error) {
	m.busy.Lock()
	_, _, err := m.activeLocked(id)
	owned := m.ownedLocked(id)
	m.busy.Unlock()
	if err != nil {
		return nil, err
	}

	resp, remote, err := callOwned(m, "end_session", owned, func(b Backend) (*wire.EndSessionResponse, error) {
		return b.EndSession(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	m.busy.Lock()
	m.registry.Release(resp.Session.StationID, resp.ElapsedMinutes, resp.TotalCost)
	m.dropLocked(id)
	m.ended[id] = struct{}{}
	if remote {
		m.persistLocked(ctx)
	} else {
		m.markUnsyncedLocked(ctx, id)
	}
	m.busy.Unlock()

	m.logger.Info().
		Str("session_id", id).
		Int64("elapsed_minutes", resp.ElapsedMinutes).
		Int64("cost", resp.TotalCost).
		Msg("Session ended")
	m.refreshStats(ctx)
	return resp, nil
}

// AddStation creates a station. Requires the admin unlock.
func (m *Manager) AddStation(ctx context.Context, name string) (*storage.Station, error) {
	if err := m.requireAdmin(); err != nil {
		return nil, err
	}
	trimmed, err := station.ValidateName(name)
	if err != nil {
		return nil, err
	}

	st, remote, err := call(m, "add_station", func(b Backend) (*storage.Station, error) {
		return b.AddStation(ctx, trimmed)
	})
	if err != nil {
		return nil, err
	}

	m.busy.Lock()
	m.registry.Put(*st)
	if remote {
		m.persistLocked(ctx)
	}
	m.busy.Unlock()
	return st, nil
}

// RemoveStation deletes an available station. Requires the admin unlock.
func (m *Manager) RemoveStation(ctx context.Context, id string) error {
	if err := m.requireAdmin(); err != nil {
		return err
	}
	m.busy.Lock()
	err := m.registry.CanRemove(id)
	m.busy.Unlock()
	if err != nil {
		return err
	}

	_, remote, err := call(m, "remove_station", func(b Backend) (struct{}, error) {
		return struct{}{}, b.RemoveStation(ctx, id)
	})
	if err != nil {
		return err
	}

	m.busy.Lock()
	_ = m.registry.Remove(id)
	if remote {
		m.persistLocked(ctx)
	}
	m.busy.Unlock()
	return nil
}

// UpdateRate changes one hourly rate. Running sessions are re-priced on
// the next view; closed sessions keep their recorded rate.
func (m *Manager) UpdateRate(ctx context.Context, mode storage.Mode, rate int64) (storage.Rates, error) {
	if err := m.requireAdmin(); err != nil {
		return nil, err
	}
	if err := m.rates.Check(mode, rate); err != nil {
		return nil, err
	}

	rates, remote, err := call(m, "update_settings", func(b Backend) (storage.Rates, error) {
		return b.UpdateRate(ctx, mode, rate)
	})
	if err != nil {
		return nil, err
	}

	m.rates.Replace(rates)
	if remote && m.mirror != nil {
		if err := m.mirror.SaveRates(ctx, m.rates.Rates()); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to mirror rates")
		}
	}
	m.logger.Info().Str("mode", string(mode)).Int64("rate", rate).Msg("Rate updated")
	return m.rates.Rates(), nil
}

// CurrentCost prices a running session at the current rate.
func (m *Manager) CurrentCost(id string) (int64, error) {
	m.busy.Lock()
	defer m.busy.Unlock()
	sess, tr, err := m.activeLocked(id)
	if err != nil {
		return 0, err
	}
	return m.rates.Cost(float64(tr.Elapsed(m.clock.Now()).Minutes), sess.Mode), nil
}

// ClearReports deletes closed sessions. Requires the admin unlock.
func (m *Manager) ClearReports(ctx context.Context) (int, error) {
	if err := m.requireAdmin(); err != nil {
		return 0, err
	}
	deleted, _, err := call(m, "clear_reports", func(b Backend) (int, error) {
		return b.ClearReports(ctx)
	})
	if err != nil {
		return 0, err
	}
	m.logger.Warn().Int("deleted", deleted).Msg("Reports cleared")
	m.refreshStats(ctx)
	return deleted, nil
}

// DailyReport fetches the report for date's business day.
func (m *Manager) DailyReport(ctx context.Context, date time.Time) (*report.DailyReport, error) {
	rep, _, err := call(m, "get_daily_report", func(b Backend) (*report.DailyReport, error) {
		return b.DailyReport(ctx, date)
	})
	return rep, err
}

// Stats fetches today's totals and keeps them for the board.
func (m *Manager) Stats(ctx context.Context) (*wire.StatsResponse, error) {
	stats, _, err := call(m, "get_stats", func(b Backend) (*wire.StatsResponse, error) {
		return b.Stats(ctx)
	})
	if err != nil {
		return nil, err
	}
	m.busy.Lock()
	m.stats = stats
	m.busy.Unlock()
	return stats, nil
}

func (m *Manager) refreshStats(ctx context.Context) {
	if _, err := m.Stats(ctx); err != nil {
		m.logger.Debug().Err(err).Msg("Stats refresh failed")
	}
}

// UnlockAdmin enables privileged operations when secret matches.
func (m *Manager) UnlockAdmin(secret string) error {
	if m.adminSecret == "" {
		return apperr.Validation("admin_secret", "no admin secret configured")
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(m.adminSecret)) != 1 {
		m.logger.Warn().Msg("Admin unlock rejected")
		return apperr.ErrForbidden
	}

	m.busy.Lock()
	m.admin = true
	m.busy.Unlock()
	if h, ok := m.remote.(secretHolder); ok {
		h.SetAdminSecret(secret)
	}
	m.logger.Info().Msg("Admin unlocked")
	return nil
}

// LockAdmin disables privileged operations again.
func (m *Manager) LockAdmin() {
	m.busy.Lock()
	m.admin = false
	m.busy.Unlock()
	if h, ok := m.remote.(secretHolder); ok {
		h.SetAdminSecret("")
	}
}

func (m *Manager) AdminUnlocked() bool {
	m.busy.Lock()
	defer m.busy.Unlock()
	return m.admin
}

func (m *Manager) requireAdmin() error {
	if !m.AdminUnlocked() {
		return apperr.ErrForbidden
	}
	return nil
}

// SetTheme changes and persists the board theme.
func (m *Manager) SetTheme(ctx context.Context, theme string) error {
	if len(m.themes) > 0 && !slices.Contains(m.themes, theme) {
		return apperr.Validation("theme", "unknown theme %q", theme)
	}
	m.busy.Lock()
	m.theme = theme
	m.busy.Unlock()
	if m.mirror != nil {
		if err := m.mirror.SaveTheme(ctx, theme); err != nil {
			return fmt.Errorf("save theme: %w", err)
		}
	}
	return nil
}

func (m *Manager) Theme() string {
	m.busy.Lock()
	defer m.busy.Unlock()
	return m.theme
}

// Refresh reloads stations, active sessions and rates from the API and
// reconciles them. It reports false when it skipped because an operation
// held the busy guard.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	if !m.busy.TryLock() {
		return false, nil
	}
	defer m.busy.Unlock()
	return true, m.reloadLocked(ctx)
}

// Reload waits for the busy guard, then reloads.
func (m *Manager) Reload(ctx context.Context) error {
	m.busy.Lock()
	defer m.busy.Unlock()
	return m.reloadLocked(ctx)
}

func (m *Manager) reloadLocked(ctx context.Context) error {
	if m.remote == nil || !m.online.Load() {
		return nil
	}
	if err := m.syncLocked(ctx); err != nil {
		return err
	}

	stations, err := m.remote.Stations(ctx)
	if err != nil {
		return m.reloadFailed("get_stations", err)
	}
	sessions, err := m.remote.ActiveSessions(ctx)
	if err != nil {
		return m.reloadFailed("get_active_sessions", err)
	}
	rates, err := m.remote.Rates(ctx)
	if err != nil {
		return m.reloadFailed("get_settings", err)
	}

	m.registry.Replace(stations)
	m.rates.Replace(rates)
	m.reconcileLocked(sessions)
	for id := range m.unsynced {
		if sess, ok := m.sessions[id]; ok {
			m.occupyLocked(*sess)
		}
	}
	m.persistLocked(ctx)
	return nil
}

func (m *Manager) reloadFailed(op string, err error) error {
	if apperr.IsTransport(err) {
		m.goOffline(op, err)
	} else {
		m.logger.Error().Err(err).Str("op", op).Msg("Reload failed")
	}
	return err
}

func (m *Manager) reconcileLocked(remote []storage.Session) {
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		seen[r.ID] = true
		if _, ended := m.ended[r.ID]; ended {
			// Sealed here; the API learns of it through sync.
			continue
		}
		if m.ownedLocked(r.ID) {
			continue
		}

		local, ok := m.sessions[r.ID]
		if ok {
			if d := Reconcile(*local, r, m.pending[r.ID] > 0); d == KeepLocal {
				m.logger.Debug().
					Str("session_id", r.ID).
					Int64("local_version", local.Version).
					Int64("remote_version", r.Version).
					Msg("Keeping local session state")
				continue
			}
		}
		m.applyLocked(r)
	}

	for id := range m.sessions {
		if !seen[id] && m.pending[id] == 0 && !m.ownedLocked(id) {
			m.dropLocked(id)
		}
	}
}

// syncLocked hands the API every session record changed while offline.
// A transport failure stops the pass and switches back to local mode; a
// rejected record stays owned locally and is retried on the next reload.
func (m *Manager) syncLocked(ctx context.Context) error {
	if len(m.unsynced) == 0 {
		return nil
	}
	records, err := m.mirror.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("load local sessions: %w", err)
	}
	byID := make(map[string]storage.Session, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	ids := make([]string, 0, len(m.unsynced))
	for id := range m.unsynced {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			m.logger.Warn().Str("session_id", id).Msg("Unsynced session missing from the local store")
			m.clearUnsyncedLocked(ctx, id)
			continue
		}

		synced, err := m.remote.SyncSession(ctx, rec)
		if apperr.IsTransport(err) {
			return m.reloadFailed("sync_session", err)
		}
		if err != nil {
			m.logger.Error().Err(err).Str("session_id", id).Bool("active", rec.Active).Msg("API rejected a locally kept session")
			if !m.syncFailed[id] {
				m.syncFailed[id] = true
				m.notify(Event{
					Kind:      EventError,
					SessionID: id,
					StationID: rec.StationID,
					Message:   fmt.Sprintf("session of %s kept locally, server refused it: %v", rec.PlayerName, err),
				})
			}
			continue
		}

		m.clearUnsyncedLocked(ctx, id)
		if _, ended := m.ended[id]; !ended && synced.Active {
			m.applyLocked(*synced)
		}
		m.logger.Info().
			Str("session_id", id).
			Bool("active", synced.Active).
			Msg("Locally kept session synced")
	}
	return nil
}

// ownedLocked reports whether id is known only to the local backend.
func (m *Manager) ownedLocked(id string) bool {
	_, ok := m.unsynced[id]
	return ok
}

func (m *Manager) markUnsyncedLocked(ctx context.Context, id string) {
	if m.remote == nil {
		return
	}
	m.unsynced[id] = struct{}{}
	if err := m.mirror.MarkUnsynced(ctx, id); err != nil {
		m.logger.Error().Err(err).Str("session_id", id).Msg("Failed to journal unsynced session")
	}
}

func (m *Manager) clearUnsyncedLocked(ctx context.Context, id string) {
	delete(m.unsynced, id)
	delete(m.syncFailed, id)
	if err := m.mirror.ClearUnsynced(ctx, id); err != nil {
		m.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to clear unsynced session")
	}
}

// occupyLocked marks the station of a running session occupied. A
// station that is already taken means the registry drifted.
func (m *Manager) occupyLocked(sess storage.Session) {
	st, err := m.registry.Get(sess.StationID)
	if err == nil && !st.Available() && m.onlyHolderLocked(sess.StationID, sess.ID) {
		return
	}
	if err := m.registry.Occupy(sess.StationID); err != nil {
		m.logger.Warn().
			Err(err).
			Str("session_id", sess.ID).
			Str("station_id", sess.StationID).
			Msg("Station registry out of step with sessions")
	}
}

// onlyHolderLocked reports whether id is the one running session on the
// station.
func (m *Manager) onlyHolderLocked(stationID, id string) bool {
	found := false
	for _, sess := range m.sessions {
		if sess.StationID != stationID {
			continue
		}
		if sess.ID != id {
			return false
		}
		found = true
	}
	return found
}

// persistLocked mirrors the current state into the local store.
func (m *Manager) persistLocked(ctx context.Context) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.SaveStations(ctx, m.registry.List()); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to mirror stations")
	}
	if err := m.mirror.SaveSessions(ctx, m.activeListLocked()); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to mirror sessions")
	}
	if err := m.mirror.SaveRates(ctx, m.rates.Rates()); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to mirror rates")
	}
}

// Tick fires time-up notifications and renders. It reports false when it
// skipped because the busy guard was held.
func (m *Manager) Tick() bool {
	if !m.busy.TryLock() {
		return false
	}
	now := m.clock.Now()
	for id, tr := range m.trackers {
		if !tr.IsTimeUp(now) || m.timeUp[id] {
			continue
		}
		m.timeUp[id] = true
		sess := m.sessions[id]
		name := sess.StationID
		if st, err := m.registry.Get(sess.StationID); err == nil {
			name = st.Name
		}
		m.notify(Event{
			Kind:      EventTimeUp,
			SessionID: id,
			StationID: sess.StationID,
			Message:   fmt.Sprintf("time is up for %s on %s", sess.PlayerName, name),
			At:        now,
		})
	}
	view := m.viewLocked(now)
	render := m.render
	m.busy.Unlock()

	if render != nil {
		render(view)
	}
	return true
}

// activeLocked returns the running session id and its tracker.
func (m *Manager) activeLocked(id string) (*storage.Session, *tracker.Tracker, error) {
	if _, ok := m.ended[id]; ok {
		return nil, nil, apperr.Conflict(storage.ErrSessionClosed, "session %s already ended", id)
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil, apperr.NotFound("session", id)
	}
	return sess, m.trackers[id], nil
}

// applyLocked adopts s as the state of a running session. A larger or
// dropped budget re-arms the time-up prompt.
func (m *Manager) applyLocked(s storage.Session) {
	clone := s.Clone()
	var budget *int
	if clone.Limited() {
		budget = clone.BudgetMinutes
	}

	tr, ok := m.trackers[s.ID]
	if !ok {
		m.trackers[s.ID] = tracker.FromSession(clone)
	} else {
		prev, wasLimited := tr.Budget()
		if budget == nil || !wasLimited || *budget > prev {
			delete(m.timeUp, s.ID)
		}
		tr.SetBudget(budget)
	}
	m.sessions[s.ID] = &clone
}

func (m *Manager) dropLocked(id string) {
	delete(m.sessions, id)
	delete(m.trackers, id)
	delete(m.timeUp, id)
	delete(m.pending, id)
}

type snapshot struct {
	session storage.Session
	tracker tracker.Snapshot
	timeUp  bool
}

func (m *Manager) snapshotLocked(id string) snapshot {
	return snapshot{
		session: m.sessions[id].Clone(),
		tracker: m.trackers[id].Snapshot(),
		timeUp:  m.timeUp[id],
	}
}

func (m *Manager) restoreLocked(s snapshot) {
	id := s.session.ID
	restored := s.session.Clone()
	m.sessions[id] = &restored
	if tr, ok := m.trackers[id]; ok {
		tr.Restore(s.tracker)
	} else {
		m.trackers[id] = tracker.FromSession(restored)
	}
	if s.timeUp {
		m.timeUp[id] = true
	} else {
		delete(m.timeUp, id)
	}
}

func (m *Manager) activeListLocked() []storage.Session {
	out := make([]storage.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	storage.SortSessions(out)
	return out
}
