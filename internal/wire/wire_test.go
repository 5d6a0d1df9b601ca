package wire

import (
	"testing"
	"time"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/storage"
)

func TestStartSessionRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     StartSessionRequest
		wantErr bool
	}{
		{"limited", StartSessionRequest{StationID: "st", PlayerName: "Ana", Mode: storage.ModeDuo, Kind: storage.KindLimited, BudgetMinutes: storage.IntPtr(60)}, false},
		{"unlimited", StartSessionRequest{StationID: "st", PlayerName: "Ana", Mode: storage.ModeQuad, Kind: storage.KindUnlimited}, false},
		{"no station", StartSessionRequest{PlayerName: "Ana", Mode: storage.ModeDuo, Kind: storage.KindUnlimited}, true},
		{"blank player", StartSessionRequest{StationID: "st", PlayerName: "  ", Mode: storage.ModeDuo, Kind: storage.KindUnlimited}, true},
		{"bad mode", StartSessionRequest{StationID: "st", PlayerName: "Ana", Mode: "solo", Kind: storage.KindUnlimited}, true},
		{"bad kind", StartSessionRequest{StationID: "st", PlayerName: "Ana", Mode: storage.ModeDuo, Kind: "forever"}, true},
		{"limited without budget", StartSessionRequest{StationID: "st", PlayerName: "Ana", Mode: storage.ModeDuo, Kind: storage.KindLimited}, true},
		{"limited zero budget", StartSessionRequest{StationID: "st", PlayerName: "Ana", Mode: storage.ModeDuo, Kind: storage.KindLimited, BudgetMinutes: storage.IntPtr(0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr && !apperr.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNormalizeDropsUnlimitedBudget(t *testing.T) {
	req := StartSessionRequest{StationID: " st ", PlayerName: " Ana ", Kind: storage.KindUnlimited, BudgetMinutes: storage.IntPtr(30)}
	req.Normalize()
	if req.BudgetMinutes != nil || req.PlayerName != "Ana" || req.StationID != "st" {
		t.Fatalf("unexpected normalized request: %+v", req)
	}
}

func TestExtendSessionRequestValidate(t *testing.T) {
	tests := map[int]bool{-1: true, 0: true, 1: false, 480: false, 481: true}
	for minutes, wantErr := range tests {
		err := ExtendSessionRequest{Minutes: minutes}.Validate(480)
		if wantErr != (err != nil) {
			t.Errorf("Validate(%d) err = %v, wantErr %v", minutes, err, wantErr)
		}
	}
}

func TestSyncSessionRequestValidate(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	early := start.Add(-time.Minute)
	active := storage.Session{ID: "s1", StationID: "st", PlayerName: "Ana", Mode: storage.ModeDuo,
		Kind: storage.KindLimited, BudgetMinutes: storage.IntPtr(60), StartTime: start, Active: true}
	closed := active
	closed.Active = false
	closed.EndTime = &end
	closed.FinalCost = storage.Int64Ptr(4500)
	closed.FinalRate = storage.Int64Ptr(6000)

	tests := []struct {
		name    string
		mutate  func(*storage.Session)
		base    storage.Session
		wantErr bool
	}{
		{"active", nil, active, false},
		{"closed", nil, closed, false},
		{"no id", func(s *storage.Session) { s.ID = "" }, active, true},
		{"no start", func(s *storage.Session) { s.StartTime = time.Time{} }, active, true},
		{"closed without cost", func(s *storage.Session) { s.FinalCost = nil }, closed, true},
		{"ends before start", func(s *storage.Session) { s.EndTime = &early }, closed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.base.Clone()
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			err := SyncSessionRequest{Session: s}.Validate()
			if tt.wantErr && !apperr.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestErrorResponseRoundTrip(t *testing.T) {
	resp := NewError(apperr.Conflict(storage.ErrStationOccupied, "station busy"))
	if resp.Error.Kind != apperr.KindConflict {
		t.Fatalf("expected conflict kind, got %q", resp.Error.Kind)
	}
	if !apperr.IsConflict(resp.Err()) {
		t.Fatalf("expected decoded conflict, got %v", resp.Err())
	}
}
