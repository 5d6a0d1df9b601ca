package billing

import (
	"math"
	"testing"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/storage"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name    string
		minutes float64
		rate    int64
		want    int64
	}{
		{"zero", 0, 6000, 0},
		{"half hour", 30, 6000, 3000},
		{"one hour one minute", 61, 6000, 6100},
		{"forty five minutes", 45, 6000, 4500},
		{"rounds up", 1, 7000, 117},
		{"fractional minute", 0.5, 6000, 50},
		{"quad hour", 60, 8000, 8000},
		{"negative", -5, 6000, 0},
		{"nan", math.NaN(), 6000, 0},
		{"inf", math.Inf(1), 6000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cost(tt.minutes, tt.rate); got != tt.want {
				t.Fatalf("Cost(%v, %d) = %d, want %d", tt.minutes, tt.rate, got, tt.want)
			}
		})
	}
}

func TestCostMatchesCeilingFormula(t *testing.T) {
	for _, rate := range []int64{1000, 6000, 7000, 8000, 12345} {
		for minutes := 0; minutes <= 600; minutes++ {
			want := int64(math.Ceil(float64(minutes) * float64(rate) / 60))
			if got := Cost(float64(minutes), rate); got != want {
				t.Fatalf("Cost(%d, %d) = %d, want %d", minutes, rate, got, want)
			}
		}
	}
}

func TestElapsedMinutesFloors(t *testing.T) {
	tests := map[int64]int64{-10: 0, 0: 0, 59: 0, 60: 1, 3659: 60, 3660: 61}
	for seconds, want := range tests {
		if got := ElapsedMinutes(seconds); got != want {
			t.Errorf("ElapsedMinutes(%d) = %d, want %d", seconds, got, want)
		}
	}
}

func TestRateTableFallsBackToDuo(t *testing.T) {
	table := NewRateTable(nil, 0, 0)
	if got := table.Rate(storage.Mode("octo")); got != DefaultDuoRate {
		t.Fatalf("expected duo fallback %d, got %d", DefaultDuoRate, got)
	}
	if got := table.Cost(30, ""); got != 3000 {
		t.Fatalf("expected 3000 for empty mode, got %d", got)
	}
}

func TestRateTableSet(t *testing.T) {
	table := NewRateTable(storage.Rates{storage.ModeQuad: 9000}, 1000, 50000)
	if got := table.Rate(storage.ModeQuad); got != 9000 {
		t.Fatalf("expected seeded quad 9000, got %d", got)
	}

	tests := []struct {
		name    string
		mode    storage.Mode
		rate    int64
		wantErr bool
	}{
		{"in range", storage.ModeDuo, 7500, false},
		{"lower bound", storage.ModeDuo, 1000, false},
		{"upper bound", storage.ModeQuad, 50000, false},
		{"too low", storage.ModeDuo, 999, true},
		{"too high", storage.ModeQuad, 50001, true},
		{"unknown mode", storage.Mode("solo"), 5000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := table.Rates()
			err := table.Set(tt.mode, tt.rate)
			if tt.wantErr {
				if !apperr.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				after := table.Rates()
				for mode, rate := range before {
					if after[mode] != rate {
						t.Fatalf("rejected update changed %s: %d -> %d", mode, rate, after[mode])
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("set: %v", err)
			}
			if got := table.Rate(tt.mode); got != tt.rate {
				t.Fatalf("expected %d, got %d", tt.rate, got)
			}
		})
	}
}
