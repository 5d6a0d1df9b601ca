// Package tracker measures elapsed and remaining time for one session
// and records budget extensions.
package tracker

import (
	"errors"
	"time"

	"github.com/goodtune/gamehall/internal/storage"
)

var (
	// ErrUnlimited is returned when extending a session without a budget.
	ErrUnlimited = errors.New("tracker: session is unlimited")
	// ErrInvalidExtension is returned for non-positive extensions.
	ErrInvalidExtension = errors.New("tracker: extension must be positive")
)

// Level classifies how close a limited session is to its budget.
type Level int

const (
	LevelNone Level = iota
	LevelWarning
	LevelDanger
	LevelExpired
)

// Default thresholds for Level.
const (
	DefaultWarning = 5 * time.Minute
	DefaultDanger  = time.Minute
)

// Span is a duration split into display units.
type Span struct {
	Minutes      int64
	Seconds      int64
	TotalSeconds int64
}

func spanOf(totalSeconds int64) Span {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return Span{
		Minutes:      totalSeconds / 60,
		Seconds:      totalSeconds % 60,
		TotalSeconds: totalSeconds,
	}
}

// Extension is one budget increase.
type Extension struct {
	SessionID         string    `json:"session_id"`
	At                time.Time `json:"timestamp"`
	AdditionalMinutes int       `json:"additional_minutes"`
	ResultingBudget   int       `json:"resulting_budget"`
}

// Tracker holds the timing state of one active session. It is not safe
// for concurrent use; the session manager serializes access.
type Tracker struct {
	sessionID      string
	start          time.Time
	mode           storage.Mode
	originalBudget *int
	budget         *int
	extensions     []Extension
}

// New creates a tracker. A nil budget means unlimited.
func New(sessionID string, start time.Time, mode storage.Mode, budgetMinutes *int) *Tracker {
	t := &Tracker{sessionID: sessionID, start: start, mode: mode}
	if budgetMinutes != nil {
		original := *budgetMinutes
		current := *budgetMinutes
		t.originalBudget = &original
		t.budget = &current
	}
	return t
}

// FromSession creates a tracker for a stored session.
func FromSession(s storage.Session) *Tracker {
	var budget *int
	if s.Limited() {
		budget = s.BudgetMinutes
	}
	return New(s.ID, s.StartTime, s.Mode, budget)
}

func (t *Tracker) SessionID() string { return t.sessionID }
func (t *Tracker) Start() time.Time { return t.start }
func (t *Tracker) Mode() storage.Mode { return t.mode }
func (t *Tracker) Unlimited() bool { return t.budget == nil }

// Budget returns the current budget in minutes; ok is false when unlimited.
func (t *Tracker) Budget() (int, bool) {
	if t.budget == nil {
		return 0, false
	}
	return *t.budget, true
}

// OriginalBudget returns the budget the session started with.
func (t *Tracker) OriginalBudget() (int, bool) {
	if t.originalBudget == nil {
		return 0, false
	}
	return *t.originalBudget, true
}

// Extensions returns a copy of the extension log.
func (t *Tracker) Extensions() []Extension {
	out := make([]Extension, len(t.extensions))
	copy(out, t.extensions)
	return out
}

func (t *Tracker) elapsedSeconds(now time.Time) int64 {
	d := now.Sub(t.start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Elapsed returns the time since start. A clock behind start yields zero.
func (t *Tracker) Elapsed(now time.Time) Span {
	return spanOf(t.elapsedSeconds(now))
}

// ElapsedMinutes returns fractional minutes since start, for live pricing.
func (t *Tracker) ElapsedMinutes(now time.Time) float64 {
	return float64(t.elapsedSeconds(now)) / 60
}

// Remaining returns the unused budget; ok is false for unlimited sessions.
func (t *Tracker) Remaining(now time.Time) (Span, bool) {
	if t.budget == nil {
		return Span{}, false
	}
	return spanOf(int64(*t.budget)*60 - t.elapsedSeconds(now)), true
}

// IsTimeUp reports whether a limited session has used its budget.
func (t *Tracker) IsTimeUp(now time.Time) bool {
	remaining, ok := t.Remaining(now)
	return ok && remaining.TotalSeconds <= 0
}

// Level classifies the remaining time against warning and danger thresholds.
func (t *Tracker) Level(now time.Time, warning, danger time.Duration) Level {
	remaining, ok := t.Remaining(now)
	if !ok {
		return LevelNone
	}
	left := time.Duration(remaining.TotalSeconds) * time.Second
	switch {
	case left <= 0:
		return LevelExpired
	case left <= danger:
		return LevelDanger
	case left <= warning:
		return LevelWarning
	default:
		return LevelNone
	}
}

// Extend adds minutes to the budget and logs the change.
func (t *Tracker) Extend(minutes int, at time.Time) (int, error) {
	if minutes <= 0 {
		return 0, ErrInvalidExtension
	}
	if t.budget == nil {
		return 0, ErrUnlimited
	}
	next := *t.budget + minutes
	t.budget = &next
	t.extensions = append(t.extensions, Extension{
		SessionID:         t.sessionID,
		At:                at,
		AdditionalMinutes: minutes,
		ResultingBudget:   next,
	})
	return next, nil
}

// Unlimit drops the budget. It cannot be undone except via Restore.
func (t *Tracker) Unlimit() {
	t.budget = nil
}

// SetBudget adopts an authoritative budget without logging an extension.
func (t *Tracker) SetBudget(budgetMinutes *int) {
	if budgetMinutes == nil {
		t.budget = nil
		return
	}
	v := *budgetMinutes
	t.budget = &v
}

// Snapshot captures the mutable state for Restore.
type Snapshot struct {
	budget     *int
	extensions int
}

// Snapshot returns the current mutable state.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{extensions: len(t.extensions)}
	if t.budget != nil {
		v := *t.budget
		s.budget = &v
	}
	return s
}

// Restore returns the tracker to a snapshot, dropping later extensions.
func (t *Tracker) Restore(s Snapshot) {
	if s.budget == nil {
		t.budget = nil
	} else {
		v := *s.budget
		t.budget = &v
	}
	if s.extensions <= len(t.extensions) {
		t.extensions = t.extensions[:s.extensions]
	}
}
