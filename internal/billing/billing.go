// Package billing computes session charges from elapsed time and an
// hourly rate per mode.
package billing

import (
	"math"
	"sync"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/storage"
)

const (
	DefaultDuoRate  int64 = 6000
	DefaultQuadRate int64 = 8000
	DefaultMinRate  int64 = 1000
	DefaultMaxRate  int64 = 50000
)

// DefaultRates returns the stock rate table.
func DefaultRates() storage.Rates {
	return storage.Rates{
		storage.ModeDuo:  DefaultDuoRate,
		storage.ModeQuad: DefaultQuadRate,
	}
}

// Cost returns ceil(minutes/60 * hourlyRate). Negative, NaN and infinite
// inputs cost nothing.
func Cost(elapsedMinutes float64, hourlyRate int64) int64 {
	if math.IsNaN(elapsedMinutes) || math.IsInf(elapsedMinutes, 0) || elapsedMinutes <= 0 || hourlyRate <= 0 {
		return 0
	}
	// Multiply first so whole minutes stay exact.
	return int64(math.Ceil(elapsedMinutes * float64(hourlyRate) / 60))
}

// ElapsedMinutes converts seconds to whole minutes, rounding down.
func ElapsedMinutes(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return seconds / 60
}

// RateFor looks up mode in rates, falling back to the duo rate and then
// to the stock duo default.
func RateFor(rates storage.Rates, mode storage.Mode) int64 {
	if rate, ok := rates[mode]; ok && rate > 0 {
		return rate
	}
	if rate, ok := rates[storage.ModeDuo]; ok && rate > 0 {
		return rate
	}
	return DefaultDuoRate
}

// RateTable holds the hourly rate per mode.
type RateTable struct {
	mu    sync.RWMutex
	rates storage.Rates
	min   int64
	max   int64
}

// NewRateTable returns a table seeded with rates. Missing modes take the
// stock defaults.
func NewRateTable(rates storage.Rates, min, max int64) *RateTable {
	if min <= 0 {
		min = DefaultMinRate
	}
	if max < min {
		max = DefaultMaxRate
	}
	t := &RateTable{rates: DefaultRates(), min: min, max: max}
	for mode, rate := range rates {
		if mode.Valid() && rate > 0 {
			t.rates[mode] = rate
		}
	}
	return t
}

// Rate returns the hourly rate for mode, falling back to duo.
func (t *RateTable) Rate(mode storage.Mode) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return RateFor(t.rates, mode)
}

// Cost prices elapsed minutes at the current rate for mode.
func (t *RateTable) Cost(elapsedMinutes float64, mode storage.Mode) int64 {
	return Cost(elapsedMinutes, t.Rate(mode))
}

// Set changes one rate after checking the mode and the configured bounds.
func (t *RateTable) Set(mode storage.Mode, rate int64) error {
	if err := t.Check(mode, rate); err != nil {
		return err
	}
	t.mu.Lock()
	t.rates[mode] = rate
	t.mu.Unlock()
	return nil
}

// Check validates a proposed rate without applying it.
func (t *RateTable) Check(mode storage.Mode, rate int64) error {
	if !mode.Valid() {
		return apperr.Validation("mode", "unknown mode %q", mode)
	}
	if rate < t.min || rate > t.max {
		return apperr.Validation("rate", "%d outside [%d, %d]", rate, t.min, t.max)
	}
	return nil
}

// Replace swaps in a full table, as loaded from the authoritative store.
// Unknown modes and non-positive rates are ignored.
func (t *RateTable) Replace(rates storage.Rates) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for mode, rate := range rates {
		if mode.Valid() && rate > 0 {
			t.rates[mode] = rate
		}
	}
}

// Rates returns a snapshot of the table.
func (t *RateTable) Rates() storage.Rates {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rates.Clone()
}

// Bounds returns the inclusive rate limits.
func (t *RateTable) Bounds() (int64, int64) {
	return t.min, t.max
}
