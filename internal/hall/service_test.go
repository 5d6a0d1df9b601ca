package hall

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/billing"
	"github.com/goodtune/gamehall/internal/clock"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/storage/bolt"
	"github.com/goodtune/gamehall/internal/wire"
	"github.com/rs/zerolog"
)

var opening = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *clock.TestClock, storage.Store) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "hall.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cache, err := report.NewCache(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	clk := clock.NewTestClock(opening)
	svc := New(store, billing.NewRateTable(nil, 1000, 50000), clk, Options{
		Location: time.UTC,
		Cache:    cache,
		Logger:   zerolog.Nop(),
	})
	if _, err := svc.Seed(context.Background(), 6, "PS4 #%d"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.LoadSettings(context.Background()); err != nil {
		t.Fatalf("load settings: %v", err)
	}
	return svc, clk, store
}

func firstStation(t *testing.T, svc *Service) storage.Station {
	t.Helper()
	stations, err := svc.Stations(context.Background())
	if err != nil {
		t.Fatalf("list stations: %v", err)
	}
	if len(stations) == 0 {
		t.Fatalf("no stations")
	}
	return stations[0]
}

func startLimited(t *testing.T, svc *Service, stationID string, minutes int) *storage.Session {
	t.Helper()
	session, err := svc.StartSession(context.Background(), wire.StartSessionRequest{
		StationID:     stationID,
		PlayerName:    "Ana",
		Mode:          storage.ModeDuo,
		Kind:          storage.KindLimited,
		BudgetMinutes: storage.IntPtr(minutes),
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return session
}

func TestSeedIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Seed(context.Background(), 6, "PS4 #%d")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no stations on second seed, got %d", created)
	}
	stations, _ := svc.Stations(context.Background())
	if len(stations) != 6 || stations[0].Name != "PS4 #1" || stations[5].Name != "PS4 #6" {
		t.Fatalf("unexpected default stations: %+v", stations)
	}
}

func TestEndSessionBilling(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int64
	}{
		{"thirty minutes", 30 * time.Minute, 3000},
		{"sixty one minutes", 61 * time.Minute, 6100},
		{"partial minute floors", 30*time.Minute + 59*time.Second, 3000},
		{"instant", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, clk, _ := newTestService(t)
			st := firstStation(t, svc)
			session := startLimited(t, svc, st.ID, 60)

			clk.Advance(tt.elapsed)
			resp, err := svc.EndSession(context.Background(), session.ID)
			if err != nil {
				t.Fatalf("end session: %v", err)
			}
			if resp.TotalCost != tt.want {
				t.Fatalf("expected cost %d, got %d", tt.want, resp.TotalCost)
			}
			if *resp.Session.FinalRate != 6000 {
				t.Fatalf("expected snapshotted rate 6000, got %d", *resp.Session.FinalRate)
			}

			after := firstStation(t, svc)
			if !after.Available() || after.TotalRevenue != tt.want || after.TotalPlayMinutes != resp.ElapsedMinutes {
				t.Fatalf("unexpected station after end: %+v", after)
			}
		})
	}
}

func TestRateChangeDoesNotTouchClosedSessions(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	st := firstStation(t, svc)
	session := startLimited(t, svc, st.ID, 60)

	clk.Advance(45 * time.Minute)
	resp, err := svc.EndSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	if resp.TotalCost != 4500 {
		t.Fatalf("expected 4500, got %d", resp.TotalCost)
	}

	if _, err := svc.UpdateRate(ctx, storage.ModeDuo, 9000); err != nil {
		t.Fatalf("update rate: %v", err)
	}

	rep, err := svc.DailyReport(ctx, opening)
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if rep.TotalRevenue != 4500 || rep.Sessions[0].Rate != 6000 {
		t.Fatalf("closed session changed after rate update: %+v", rep.Sessions[0])
	}
	if after := firstStation(t, svc); after.TotalRevenue != 4500 {
		t.Fatalf("station totals changed: %d", after.TotalRevenue)
	}
}

func TestUpdateRatePersistsAndValidates(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UpdateRate(ctx, storage.ModeQuad, 999); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.UpdateRate(ctx, storage.Mode("solo"), 5000); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for unknown mode, got %v", err)
	}

	rates, err := svc.UpdateRate(ctx, storage.ModeQuad, 10000)
	if err != nil {
		t.Fatalf("update rate: %v", err)
	}
	if rates[storage.ModeQuad] != 10000 || rates[storage.ModeDuo] != 6000 {
		t.Fatalf("unexpected rates: %v", rates)
	}

	settings, err := store.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.Rates[storage.ModeQuad] != 10000 {
		t.Fatalf("rate not persisted: %v", settings.Rates)
	}
}

func TestExtendAndConvert(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	st := firstStation(t, svc)
	session := startLimited(t, svc, st.ID, 10)

	tests := []struct {
		name    string
		minutes int
		check   func(error) bool
	}{
		{"zero", 0, apperr.IsValidation},
		{"negative", -5, apperr.IsValidation},
		{"over cap", DefaultMaxExtension + 1, apperr.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ExtendSession(ctx, session.ID, tt.minutes); !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	extended, err := svc.ExtendSession(ctx, session.ID, 15)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if *extended.BudgetMinutes != 25 {
		t.Fatalf("expected budget 25, got %d", *extended.BudgetMinutes)
	}

	if _, err := svc.ConvertSession(ctx, session.ID); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if _, err := svc.ExtendSession(ctx, session.ID, 5); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict extending unlimited session, got %v", err)
	}
	if _, err := svc.ExtendSession(ctx, "missing", 5); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStartSessionConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	st := firstStation(t, svc)
	startLimited(t, svc, st.ID, 30)

	_, err := svc.StartSession(ctx, wire.StartSessionRequest{
		StationID: st.ID, PlayerName: "Bo", Mode: storage.ModeQuad, Kind: storage.KindUnlimited,
	})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict on occupied station, got %v", err)
	}

	_, err = svc.StartSession(ctx, wire.StartSessionRequest{StationID: st.ID, Mode: storage.ModeDuo, Kind: storage.KindUnlimited})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for missing player, got %v", err)
	}
}

func TestRemoveOccupiedStation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	st := firstStation(t, svc)
	startLimited(t, svc, st.ID, 30)

	if err := svc.RemoveStation(ctx, st.ID); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	stations, _ := svc.Stations(ctx)
	if len(stations) != 6 {
		t.Fatalf("station list changed: %d", len(stations))
	}

	added, err := svc.AddStation(ctx, "  Xbox ")
	if err != nil {
		t.Fatalf("add station: %v", err)
	}
	if added.Name != "Xbox" {
		t.Fatalf("expected trimmed name, got %q", added.Name)
	}
	if _, err := svc.AddStation(ctx, " "); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.RemoveStation(ctx, added.ID); err != nil {
		t.Fatalf("remove station: %v", err)
	}
}

func TestStatsAndClear(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	stations, _ := svc.Stations(ctx)

	first := startLimited(t, svc, stations[0].ID, 60)
	startLimited(t, svc, stations[1].ID, 60)

	clk.Advance(30 * time.Minute)
	if _, err := svc.EndSession(ctx, first.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ActiveSessions != 1 || stats.TodayMinutes != 60 || stats.TodayRevenue != 6000 || !stats.Estimate {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	deleted, err := svc.ClearReports(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	active, _ := svc.ActiveSessions(ctx)
	if len(active) != 1 {
		t.Fatalf("running session lost on clear")
	}
}

func TestDailyReportCachesSettledDays(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	st := firstStation(t, svc)
	session := startLimited(t, svc, st.ID, 60)
	clk.Advance(30 * time.Minute)
	if _, err := svc.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}

	clk.Advance(24 * time.Hour)
	first, err := svc.DailyReport(ctx, opening)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if svc.cache.Len() != 1 {
		t.Fatalf("expected settled day to be cached")
	}
	second, err := svc.DailyReport(ctx, opening)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if first.TotalRevenue != second.TotalRevenue || !first.GeneratedAt.Equal(second.GeneratedAt) {
		t.Fatalf("cached report differs")
	}

	if _, err := svc.ClearReports(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if svc.cache.Len() != 0 {
		t.Fatalf("expected cache purge on clear")
	}
}
