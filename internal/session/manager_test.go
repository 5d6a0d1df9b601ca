package session

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/billing"
	"github.com/goodtune/gamehall/internal/clock"
	"github.com/goodtune/gamehall/internal/hall"
	"github.com/goodtune/gamehall/internal/remote"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/storage/bolt"
	"github.com/goodtune/gamehall/internal/tracker"
	"github.com/goodtune/gamehall/internal/wire"
)

var (
	_ Backend = (*hall.Service)(nil)
	_ Backend = (*remote.Client)(nil)
)

var opening = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

const adminSecret = "s3cret"

// flakyBackend fails selected operations before delegating.
type flakyBackend struct {
	Backend

	mu    sync.Mutex
	errs  map[string]error
	calls map[string]int
}

func (f *flakyBackend) failWith(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *flakyBackend) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
	return f.errs[op]
}

func (f *flakyBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *flakyBackend) Stations(ctx context.Context) ([]storage.Station, error) {
	if err := f.check("stations"); err != nil {
		return nil, err
	}
	return f.Backend.Stations(ctx)
}

func (f *flakyBackend) StartSession(ctx context.Context, req wire.StartSessionRequest) (*storage.Session, error) {
	if err := f.check("start"); err != nil {
		return nil, err
	}
	return f.Backend.StartSession(ctx, req)
}

func (f *flakyBackend) ExtendSession(ctx context.Context, id string, minutes int) (*storage.Session, error) {
	if err := f.check("extend"); err != nil {
		return nil, err
	}
	return f.Backend.ExtendSession(ctx, id, minutes)
}

func (f *flakyBackend) ConvertSession(ctx context.Context, id string) (*storage.Session, error) {
	if err := f.check("convert"); err != nil {
		return nil, err
	}
	return f.Backend.ConvertSession(ctx, id)
}

func (f *flakyBackend) EndSession(ctx context.Context, id string) (*wire.EndSessionResponse, error) {
	if err := f.check("end"); err != nil {
		return nil, err
	}
	return f.Backend.EndSession(ctx, id)
}

func (f *flakyBackend) SyncSession(ctx context.Context, sess storage.Session) (*storage.Session, error) {
	if err := f.check("sync"); err != nil {
		return nil, err
	}
	return f.Backend.SyncSession(ctx, sess)
}

func (f *flakyBackend) Health(ctx context.Context) error {
	if err := f.check("health"); err != nil {
		return err
	}
	return f.Backend.Health(ctx)
}

type testEnv struct {
	manager     *Manager
	server      *hall.Service
	serverStore *bolt.Store
	mirror      *bolt.Store
	remote      *flakyBackend
	clock       *clock.TestClock
	recorder    *Recorder
	logs        *logBuffer
}

// logBuffer collects log output from any goroutine.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func openStore(t *testing.T, name string) *bolt.Store {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEnv(t *testing.T, withRemote bool) *testEnv {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewTestClock(opening)

	serverStore := openStore(t, "server.bolt")
	server := hall.New(serverStore, billing.NewRateTable(nil, 1000, 50000), clk, hall.Options{
		Location: time.UTC,
		Logger:   zerolog.Nop(),
	})
	if _, err := server.Seed(ctx, 3, "PS4 #%d"); err != nil {
		t.Fatalf("seed server: %v", err)
	}

	localStore := openStore(t, "local.bolt")
	rates := billing.NewRateTable(nil, 1000, 50000)
	local := hall.New(localStore, rates, clk, hall.Options{Location: time.UTC, Logger: zerolog.Nop()})

	env := &testEnv{
		server:      server,
		serverStore: serverStore,
		mirror:      localStore,
		clock:       clk,
		recorder:    &Recorder{},
		logs:        &logBuffer{},
	}
	opts := Options{
		Local:       local,
		Mirror:      localStore,
		Rates:       rates,
		Clock:       clk,
		Notifier:    env.recorder,
		Logger:      zerolog.New(env.logs),
		AdminSecret: adminSecret,
		Themes:      []string{"light", "dark"},
		Theme:       "light",
	}
	if withRemote {
		env.remote = &flakyBackend{Backend: server}
		opts.Remote = env.remote
	} else if _, err := local.Seed(ctx, 3, "PS4 #%d"); err != nil {
		t.Fatalf("seed local: %v", err)
	}

	m, err := New(opts)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	env.manager = m
	return env
}

func (e *testEnv) station(t *testing.T, i int) storage.Station {
	t.Helper()
	view := e.manager.View()
	if len(view.Stations) <= i {
		t.Fatalf("only %d stations", len(view.Stations))
	}
	return view.Stations[i].Station
}

func (e *testEnv) start(t *testing.T, stationID string, kind storage.Kind, budget int) *storage.Session {
	t.Helper()
	req := wire.StartSessionRequest{
		StationID:  stationID,
		PlayerName: "Ana",
		Mode:       storage.ModeDuo,
		Kind:       kind,
	}
	if kind == storage.KindLimited {
		req.BudgetMinutes = storage.IntPtr(budget)
	}
	sess, err := e.manager.StartSession(context.Background(), req)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return sess
}

func (e *testEnv) sessionView(t *testing.T, id string) *SessionView {
	t.Helper()
	for _, st := range e.manager.View().Stations {
		if st.Session != nil && st.Session.Session.ID == id {
			return st.Session
		}
	}
	t.Fatalf("session %s not in view", id)
	return nil
}

func eventsOf(events []Event, kind EventKind) []Event {
	var out []Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestStartExtendEnd(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	st := env.station(t, 0)

	sess := env.start(t, st.ID, storage.KindLimited, 60)
	if env.station(t, 0).Available() {
		t.Fatalf("station should be occupied")
	}

	extended, err := env.manager.ExtendSession(ctx, sess.ID, 30)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if *extended.BudgetMinutes != 90 {
		t.Fatalf("budget = %d, want 90", *extended.BudgetMinutes)
	}
	onServer, err := env.server.ActiveSessions(ctx)
	if err != nil || len(onServer) != 1 || *onServer[0].BudgetMinutes != 90 {
		t.Fatalf("server sessions = %+v (%v)", onServer, err)
	}

	env.clock.Advance(61 * time.Minute)
	if cost, _ := env.manager.CurrentCost(sess.ID); cost != 6100 {
		t.Fatalf("current cost = %d, want 6100", cost)
	}

	ended, err := env.manager.EndSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.ElapsedMinutes != 61 || ended.TotalCost != 6100 {
		t.Fatalf("ended = %d min %d cost", ended.ElapsedMinutes, ended.TotalCost)
	}

	got := env.station(t, 0)
	if !got.Available() || got.TotalPlayMinutes != 61 || got.TotalRevenue != 6100 {
		t.Fatalf("station after end = %+v", got)
	}
	if _, err := env.manager.EndSession(ctx, sess.ID); !apperr.IsConflict(err) {
		t.Fatalf("second end: got %v, want conflict", err)
	}

	view := env.manager.View()
	if view.Stats == nil || view.Stats.TodayRevenue != 6100 {
		t.Fatalf("stats = %+v", view.Stats)
	}
}

func TestValidationBeforeMutation(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	st := env.station(t, 0)
	limited := env.start(t, st.ID, storage.KindLimited, 30)
	unlimited := env.start(t, env.station(t, 1).ID, storage.KindUnlimited, 0)

	tests := []struct {
		name  string
		run   func() error
		check func(error) bool
	}{
		{"occupied station", func() error {
			_, err := env.manager.StartSession(ctx, wire.StartSessionRequest{StationID: st.ID, PlayerName: "Bo", Mode: storage.ModeDuo, Kind: storage.KindUnlimited})
			return err
		}, apperr.IsConflict},
		{"blank player", func() error {
			_, err := env.manager.StartSession(ctx, wire.StartSessionRequest{StationID: env.station(t, 2).ID, PlayerName: "  ", Mode: storage.ModeDuo, Kind: storage.KindUnlimited})
			return err
		}, apperr.IsValidation},
		{"no station", func() error {
			_, err := env.manager.StartSession(ctx, wire.StartSessionRequest{PlayerName: "Bo", Mode: storage.ModeDuo, Kind: storage.KindUnlimited})
			return err
		}, apperr.IsValidation},
		{"limited without budget", func() error {
			_, err := env.manager.StartSession(ctx, wire.StartSessionRequest{StationID: env.station(t, 2).ID, PlayerName: "Bo", Mode: storage.ModeDuo, Kind: storage.KindLimited})
			return err
		}, apperr.IsValidation},
		{"extend zero", func() error {
			_, err := env.manager.ExtendSession(ctx, limited.ID, 0)
			return err
		}, apperr.IsValidation},
		{"extend past cap", func() error {
			_, err := env.manager.ExtendSession(ctx, limited.ID, 481)
			return err
		}, apperr.IsValidation},
		{"extend unlimited", func() error {
			_, err := env.manager.ExtendSession(ctx, unlimited.ID, 10)
			return err
		}, apperr.IsConflict},
		{"extend missing", func() error {
			_, err := env.manager.ExtendSession(ctx, "missing", 10)
			return err
		}, apperr.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}

	if got := *env.sessionView(t, limited.ID).Session.BudgetMinutes; got != 30 {
		t.Fatalf("budget = %d, want 30 after rejected operations", got)
	}
	if env.remote.count("extend") != 0 {
		t.Fatalf("rejected extensions reached the server")
	}
}

func TestExtendRollsBackOnRejection(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	sess := env.start(t, env.station(t, 0).ID, storage.KindLimited, 60)

	env.remote.failWith("extend", apperr.Conflict(nil, "rejected by server"))
	_, err := env.manager.ExtendSession(ctx, sess.ID, 30)
	if !apperr.IsRollback(err) {
		t.Fatalf("got %v, want rollback", err)
	}
	if !apperr.IsConflict(err) {
		t.Fatalf("rollback should wrap the conflict, got %v", err)
	}

	view := env.sessionView(t, sess.ID)
	if *view.Session.BudgetMinutes != 60 || view.Session.Version != sess.Version {
		t.Fatalf("after rollback: budget %d version %d", *view.Session.BudgetMinutes, view.Session.Version)
	}
	if view.Remaining.TotalSeconds != 60*60 || view.Pending {
		t.Fatalf("tracker not restored: %+v", view)
	}
	if !env.manager.Online() {
		t.Fatalf("a rejection must not switch to local mode")
	}
	if len(eventsOf(env.recorder.Drain(), EventRollback)) != 1 {
		t.Fatalf("expected one rollback notification")
	}
	if logs := env.logs.String(); !strings.Contains(logs, `"original_budget":60`) || !strings.Contains(logs, `"extensions":0`) {
		t.Fatalf("rollback log lacks the extension history:\n%s", logs)
	}
}

func TestConvertRollsBackOnRejection(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	sess := env.start(t, env.station(t, 0).ID, storage.KindLimited, 45)

	env.remote.failWith("convert", errors.New("internal error"))
	if _, err := env.manager.ConvertSession(ctx, sess.ID); !apperr.IsRollback(err) {
		t.Fatalf("got %v, want rollback", err)
	}
	view := env.sessionView(t, sess.ID)
	if !view.Session.Limited() || *view.Session.BudgetMinutes != 45 || !view.HasRemaining {
		t.Fatalf("convert not undone: %+v", view.Session)
	}

	env.remote.failWith("convert", nil)
	converted, err := env.manager.ConvertSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if converted.Limited() || env.sessionView(t, sess.ID).HasRemaining {
		t.Fatalf("session should be unlimited")
	}
}

func TestTransportErrorFallsBackToLocal(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	sess := env.start(t, env.station(t, 0).ID, storage.KindLimited, 60)

	down := apperr.Transport("extend_session", errors.New("connection refused"))
	env.remote.failWith("extend", down)

	extended, err := env.manager.ExtendSession(ctx, sess.ID, 15)
	if err != nil {
		t.Fatalf("extend should succeed locally: %v", err)
	}
	if *extended.BudgetMinutes != 75 {
		t.Fatalf("budget = %d, want 75", *extended.BudgetMinutes)
	}
	if env.manager.Online() {
		t.Fatalf("manager should be offline")
	}
	if got := eventsOf(env.recorder.Drain(), EventOffline); len(got) != 1 {
		t.Fatalf("offline events = %d, want 1", len(got))
	}
	select {
	case <-env.manager.OfflineC():
	default:
		t.Fatalf("offline signal not sent")
	}

	// Offline operations no longer reach the server.
	env.clock.Advance(10 * time.Minute)
	ended, err := env.manager.EndSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("end offline: %v", err)
	}
	if ended.TotalCost != 1000 {
		t.Fatalf("offline charge = %d, want 1000", ended.TotalCost)
	}
	if env.remote.count("end") != 0 {
		t.Fatalf("end reached the server while offline")
	}
	if active, _ := env.server.ActiveSessions(ctx); len(active) != 1 {
		t.Fatalf("server should still see the session, got %d", len(active))
	}

	// Back online, the reload hands the sealed record to the server first.
	env.manager.SetOnline()
	if err := env.manager.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if env.manager.View().ActiveCount() != 0 {
		t.Fatalf("closed session came back after reconnect")
	}
	if _, err := env.manager.ExtendSession(ctx, sess.ID, 5); !apperr.IsConflict(err) {
		t.Fatalf("extend after close: got %v, want conflict", err)
	}
	if !env.station(t, 0).Available() {
		t.Fatalf("station should be free after reconnect")
	}

	onServer, err := env.serverStore.Sessions().Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("server session: %v", err)
	}
	if onServer.Active || *onServer.FinalCost != 1000 || *onServer.BudgetMinutes != 75 {
		t.Fatalf("server record = %+v", onServer)
	}

	mirrored, err := env.mirror.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("load mirror: %v", err)
	}
	if len(mirrored) != 1 || mirrored[0].Active || mirrored[0].FinalCost == nil || *mirrored[0].FinalCost != 1000 {
		t.Fatalf("mirror record = %+v", mirrored)
	}
	if pending, _ := env.mirror.Unsynced(ctx); len(pending) != 0 {
		t.Fatalf("journal should be empty, got %v", pending)
	}
}

func TestOfflineStartIsSyncedOnReconnect(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	st := env.station(t, 1)

	env.remote.failWith("start", apperr.Transport("start_session", errors.New("connection refused")))
	sess := env.start(t, st.ID, storage.KindUnlimited, 0)
	if env.manager.Online() {
		t.Fatalf("manager should be offline")
	}
	if pending, _ := env.mirror.Unsynced(ctx); len(pending) != 1 || pending[0] != sess.ID {
		t.Fatalf("journal = %v, want [%s]", pending, sess.ID)
	}

	env.clock.Advance(30 * time.Minute)
	env.remote.failWith("start", nil)
	env.manager.SetOnline()
	if err := env.manager.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	view := env.sessionView(t, sess.ID)
	if view.Elapsed.Minutes != 30 {
		t.Fatalf("elapsed = %d, want 30", view.Elapsed.Minutes)
	}
	onServer, err := env.serverStore.Sessions().Get(ctx, sess.ID)
	if err != nil || !onServer.Active || !onServer.StartTime.Equal(sess.StartTime) {
		t.Fatalf("server record = %+v (%v)", onServer, err)
	}
	if station, _ := env.serverStore.Stations().Get(ctx, st.ID); station.Available() {
		t.Fatalf("server station should be occupied")
	}
	if pending, _ := env.mirror.Unsynced(ctx); len(pending) != 0 {
		t.Fatalf("journal should be empty, got %v", pending)
	}
	if errs := eventsOf(env.recorder.Drain(), EventError); len(errs) != 0 {
		t.Fatalf("unexpected error events: %+v", errs)
	}

	// The API owns it again.
	ended, err := env.manager.EndSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if env.remote.count("end") != 1 || ended.TotalCost != 3000 {
		t.Fatalf("end calls %d, cost %d", env.remote.count("end"), ended.TotalCost)
	}
}

func TestRejectedSyncKeepsSessionLocal(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	st := env.station(t, 0)

	env.remote.failWith("start", apperr.Transport("start_session", errors.New("connection refused")))
	sess := env.start(t, st.ID, storage.KindUnlimited, 0)
	env.remote.failWith("start", nil)

	// Someone else takes the station on the server meanwhile.
	if _, err := env.server.StartSession(ctx, wire.StartSessionRequest{
		StationID: st.ID, PlayerName: "Bo", Mode: storage.ModeQuad, Kind: storage.KindUnlimited,
	}); err != nil {
		t.Fatalf("server start: %v", err)
	}

	env.clock.Advance(20 * time.Minute)
	env.manager.SetOnline()
	for i := 0; i < 2; i++ {
		if err := env.manager.Reload(ctx); err != nil {
			t.Fatalf("reload %d: %v", i, err)
		}
	}

	if _, err := env.manager.CurrentCost(sess.ID); err != nil {
		t.Fatalf("rejected session dropped: %v", err)
	}
	if errs := eventsOf(env.recorder.Drain(), EventError); len(errs) != 1 || errs[0].SessionID != sess.ID {
		t.Fatalf("error events = %+v, want one for %s", errs, sess.ID)
	}
	if !strings.Contains(env.logs.String(), "Station registry out of step with sessions") {
		t.Fatalf("double occupancy was not logged")
	}

	// Ending it stays local, and the sealed record is then accepted.
	ended, err := env.manager.EndSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if env.remote.count("end") != 0 || ended.TotalCost != 2000 {
		t.Fatalf("end calls %d, cost %d", env.remote.count("end"), ended.TotalCost)
	}
	if err := env.manager.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	recorded, err := env.serverStore.Sessions().Get(ctx, sess.ID)
	if err != nil || recorded.Active || *recorded.FinalCost != 2000 {
		t.Fatalf("server record = %+v (%v)", recorded, err)
	}
	if pending, _ := env.mirror.Unsynced(ctx); len(pending) != 0 {
		t.Fatalf("journal should be empty, got %v", pending)
	}
}

func TestUnsyncedJournalSurvivesRestart(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.remote.failWith("start", apperr.Transport("start_session", errors.New("connection refused")))
	sess := env.start(t, env.station(t, 2).ID, storage.KindLimited, 90)
	env.remote.failWith("start", nil)

	// A new console over the same local store syncs at Init.
	restarted, err := New(Options{
		Remote:   env.remote,
		Local:    env.manager.local,
		Mirror:   env.mirror,
		Rates:    env.manager.rates,
		Clock:    env.clock,
		Notifier: env.recorder,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := restarted.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	onServer, err := env.serverStore.Sessions().Get(ctx, sess.ID)
	if err != nil || !onServer.Active || *onServer.BudgetMinutes != 90 {
		t.Fatalf("server record = %+v (%v)", onServer, err)
	}
	if _, err := restarted.CurrentCost(sess.ID); err != nil {
		t.Fatalf("restarted console lost the session: %v", err)
	}
}

func TestRefreshAdoptsServerChanges(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	sess := env.start(t, env.station(t, 0).ID, storage.KindLimited, 20)

	if _, err := env.server.ExtendSession(ctx, sess.ID, 40); err != nil {
		t.Fatalf("server extend: %v", err)
	}
	ran, err := env.manager.Refresh(ctx)
	if !ran || err != nil {
		t.Fatalf("refresh ran=%v err=%v", ran, err)
	}
	if got := *env.sessionView(t, sess.ID).Session.BudgetMinutes; got != 60 {
		t.Fatalf("budget = %d, want 60", got)
	}

	if _, err := env.server.EndSession(ctx, sess.ID); err != nil {
		t.Fatalf("server end: %v", err)
	}
	if _, err := env.manager.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if env.manager.View().ActiveCount() != 0 {
		t.Fatalf("session ended on the server should disappear")
	}
}

func TestRefreshTransportErrorGoesOffline(t *testing.T) {
	env := newTestEnv(t, true)
	env.remote.failWith("stations", apperr.Transport("get_stations", errors.New("timeout")))

	if _, err := env.manager.Refresh(context.Background()); !apperr.IsTransport(err) {
		t.Fatalf("got %v, want transport error", err)
	}
	if env.manager.Online() {
		t.Fatalf("manager should be offline")
	}
}

func TestBusyGuardSkipsTimers(t *testing.T) {
	env := newTestEnv(t, true)

	env.manager.busy.Lock()
	if env.manager.Tick() {
		t.Fatalf("tick should skip while busy")
	}
	if ran, _ := env.manager.Refresh(context.Background()); ran {
		t.Fatalf("refresh should skip while busy")
	}
	env.manager.busy.Unlock()

	if !env.manager.Tick() {
		t.Fatalf("tick should run when free")
	}
}

func TestTimeUpFiresOnce(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	var rendered int
	env.manager.SetRenderer(func(View) { rendered++ })

	sess := env.start(t, env.station(t, 0).ID, storage.KindLimited, 1)
	env.recorder.Drain()

	env.clock.Advance(59 * time.Second)
	env.manager.Tick()
	if n := len(eventsOf(env.recorder.Drain(), EventTimeUp)); n != 0 {
		t.Fatalf("time up fired early")
	}
	if lvl := env.sessionView(t, sess.ID).Level; lvl != tracker.LevelDanger {
		t.Fatalf("level = %v, want danger", lvl)
	}

	env.clock.Advance(time.Second)
	env.manager.Tick()
	env.manager.Tick()
	if n := len(eventsOf(env.recorder.Drain(), EventTimeUp)); n != 1 {
		t.Fatalf("time up fired %d times, want 1", n)
	}

	if _, err := env.manager.ExtendSession(ctx, sess.ID, 5); err != nil {
		t.Fatalf("extend: %v", err)
	}
	env.manager.Tick()
	if n := len(eventsOf(env.recorder.Drain(), EventTimeUp)); n != 0 {
		t.Fatalf("time up fired right after extension")
	}

	env.clock.Advance(5 * time.Minute)
	env.manager.Tick()
	if n := len(eventsOf(env.recorder.Drain(), EventTimeUp)); n != 1 {
		t.Fatalf("extension should re-arm the prompt, fired %d", n)
	}
	if rendered != 5 {
		t.Fatalf("rendered %d times, want 5", rendered)
	}
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	if _, err := env.manager.AddStation(ctx, "PS5 #1"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("add without unlock: %v", err)
	}
	if _, err := env.manager.ClearReports(ctx); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("clear without unlock: %v", err)
	}
	if err := env.manager.UnlockAdmin("wrong"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("wrong secret: %v", err)
	}
	if err := env.manager.UnlockAdmin(adminSecret); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	st, err := env.manager.AddStation(ctx, "  PS5 #1  ")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if st.Name != "PS5 #1" {
		t.Fatalf("name = %q", st.Name)
	}
	if _, err := env.manager.AddStation(ctx, "   "); !apperr.IsValidation(err) {
		t.Fatalf("blank name: %v", err)
	}

	env.start(t, st.ID, storage.KindUnlimited, 0)
	if err := env.manager.RemoveStation(ctx, st.ID); !apperr.IsConflict(err) {
		t.Fatalf("remove occupied: %v", err)
	}
	free := env.station(t, 0)
	if err := env.manager.RemoveStation(ctx, free.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n := len(env.manager.View().Stations); n != 3 {
		t.Fatalf("stations = %d, want 3", n)
	}

	env.manager.LockAdmin()
	if env.manager.AdminUnlocked() {
		t.Fatalf("admin should be locked")
	}
}

func TestUpdateRateRepricesRunningSessions(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	sess := env.start(t, env.station(t, 0).ID, storage.KindUnlimited, 0)
	env.clock.Advance(30 * time.Minute)

	if cost, _ := env.manager.CurrentCost(sess.ID); cost != 3000 {
		t.Fatalf("cost = %d, want 3000", cost)
	}

	if err := env.manager.UnlockAdmin(adminSecret); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := env.manager.UpdateRate(ctx, storage.ModeDuo, 999); !apperr.IsValidation(err) {
		t.Fatalf("rate below bounds: %v", err)
	}
	rates, err := env.manager.UpdateRate(ctx, storage.ModeDuo, 12000)
	if err != nil {
		t.Fatalf("update rate: %v", err)
	}
	if rates[storage.ModeDuo] != 12000 {
		t.Fatalf("rates = %v", rates)
	}
	if cost, _ := env.manager.CurrentCost(sess.ID); cost != 6000 {
		t.Fatalf("cost after rate change = %d, want 6000", cost)
	}
}

func TestLocalOnlyManager(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if env.manager.Online() || env.manager.HasRemote() {
		t.Fatalf("manager without remote should be offline")
	}
	sess := env.start(t, env.station(t, 0).ID, storage.KindLimited, 30)
	if _, err := env.manager.ExtendSession(ctx, sess.ID, 30); err != nil {
		t.Fatalf("extend: %v", err)
	}
	env.clock.Advance(45 * time.Minute)
	ended, err := env.manager.EndSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.TotalCost != 4500 {
		t.Fatalf("cost = %d, want 4500", ended.TotalCost)
	}

	rep, err := env.manager.DailyReport(ctx, env.clock.Now())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.TotalSessions != 1 || rep.TotalRevenue != 4500 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestSetTheme(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	if err := env.manager.SetTheme(ctx, "neon"); !apperr.IsValidation(err) {
		t.Fatalf("unknown theme: %v", err)
	}
	if err := env.manager.SetTheme(ctx, "dark"); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if env.manager.Theme() != "dark" {
		t.Fatalf("theme = %q", env.manager.Theme())
	}
}
