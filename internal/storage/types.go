package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mode is the player-count pricing tier of a session.
type Mode string

const (
	ModeDuo  Mode = "duo"
	ModeQuad Mode = "quad"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDuo || m == ModeQuad
}

// UnmarshalJSON implements json.Unmarshaler to normalize mode to lowercase.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	normalized := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch normalized {
	case ModeDuo, ModeQuad:
		*m = normalized
		return nil
	default:
		return fmt.Errorf("invalid mode: %s (must be duo or quad)", s)
	}
}

// Kind distinguishes sessions with a prepaid time budget from open-ended ones.
type Kind string

const (
	KindLimited   Kind = "limited"
	KindUnlimited Kind = "unlimited"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindLimited || k == KindUnlimited
}

// UnmarshalJSON implements json.Unmarshaler to normalize kind to lowercase.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	normalized := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch normalized {
	case KindLimited, KindUnlimited:
		*k = normalized
		return nil
	default:
		return fmt.Errorf("invalid kind: %s (must be limited or unlimited)", s)
	}
}

// StationStatus is the occupancy state of a station.
type StationStatus string

const (
	StationAvailable StationStatus = "available"
	StationOccupied  StationStatus = "occupied"
)

// Station is a rentable console.
type Station struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Status           StationStatus `json:"status"`
	TotalPlayMinutes int64         `json:"total_play_time"`
	TotalRevenue     int64         `json:"total_revenue"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Available reports whether a new session may start on the station.
func (s Station) Available() bool {
	return s.Status == StationAvailable
}

// Session is one rental of one station.
type Session struct {
	ID            string     `json:"id"`
	StationID     string     `json:"station_id"`
	PlayerName    string     `json:"player_name"`
	Mode          Mode       `json:"mode"`
	Kind          Kind       `json:"kind"`
	BudgetMinutes *int       `json:"time_budget_minutes,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Active        bool       `json:"is_active"`
	FinalCost     *int64     `json:"final_cost,omitempty"`
	FinalRate     *int64     `json:"final_rate,omitempty"`
	Version       int64      `json:"version"`
}

// Limited reports whether the session carries a time budget.
func (s Session) Limited() bool {
	return s.Kind == KindLimited && s.BudgetMinutes != nil
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	if s.BudgetMinutes != nil {
		v := *s.BudgetMinutes
		out.BudgetMinutes = &v
	}
	if s.EndTime != nil {
		v := *s.EndTime
		out.EndTime = &v
	}
	if s.FinalCost != nil {
		v := *s.FinalCost
		out.FinalCost = &v
	}
	if s.FinalRate != nil {
		v := *s.FinalRate
		out.FinalRate = &v
	}
	return out
}

// Rates maps each mode to its hourly rate in currency units.
type Rates map[Mode]int64

// Clone returns a copy of the rate table.
func (r Rates) Clone() Rates {
	out := make(Rates, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Settings is the persisted operator configuration.
type Settings struct {
	Rates     Rates     `json:"rates"`
	Theme     string    `json:"theme,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CloseRequest carries the values computed when a session ends.
type CloseRequest struct {
	SessionID      string
	EndTime        time.Time
	ElapsedMinutes int64
	Cost           int64
	Rate           int64
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }
