// Package wire defines the request and response bodies exchanged between
// the operator console and the authoritative API.
package wire

import (
	"strings"
	"time"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/storage"
)

// AdminSecretHeader carries the admin secret on privileged requests.
const AdminSecretHeader = "X-Admin-Secret"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return apperr.Validation("username", "required")
	}
	if r.Password == "" {
		return apperr.Validation("password", "required")
	}
	return nil
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StartSessionRequest opens a session on a station.
type StartSessionRequest struct {
	StationID     string       `json:"station_id"`
	PlayerName    string       `json:"player_name"`
	Mode          storage.Mode `json:"mode"`
	Kind          storage.Kind `json:"kind"`
	BudgetMinutes *int         `json:"time_budget_minutes,omitempty"`
}

// Normalize trims the player name and drops a budget on unlimited requests.
func (r *StartSessionRequest) Normalize() {
	r.StationID = strings.TrimSpace(r.StationID)
	r.PlayerName = strings.TrimSpace(r.PlayerName)
	if r.Kind == storage.KindUnlimited {
		r.BudgetMinutes = nil
	}
}

// Validate checks the request before anything is mutated.
func (r StartSessionRequest) Validate() error {
	if strings.TrimSpace(r.StationID) == "" {
		return apperr.Validation("station_id", "no station selected")
	}
	if strings.TrimSpace(r.PlayerName) == "" {
		return apperr.Validation("player_name", "must not be empty")
	}
	if !r.Mode.Valid() {
		return apperr.Validation("mode", "unknown mode %q", r.Mode)
	}
	if !r.Kind.Valid() {
		return apperr.Validation("kind", "unknown kind %q", r.Kind)
	}
	if r.Kind == storage.KindLimited && (r.BudgetMinutes == nil || *r.BudgetMinutes <= 0) {
		return apperr.Validation("time_budget_minutes", "limited sessions need a positive budget")
	}
	return nil
}

// ExtendSessionRequest adds minutes to a limited session.
type ExtendSessionRequest struct {
	Minutes int `json:"minutes"`
}

// Validate checks minutes against (0, max].
func (r ExtendSessionRequest) Validate(max int) error {
	if r.Minutes <= 0 {
		return apperr.Validation("minutes", "must be positive")
	}
	if max > 0 && r.Minutes > max {
		return apperr.Validation("minutes", "at most %d per extension", max)
	}
	return nil
}

type SessionResponse struct {
	Session storage.Session `json:"session"`
}

type SessionsResponse struct {
	Sessions []storage.Session `json:"sessions"`
}

// EndSessionResponse reports the charge for a closed session.
type EndSessionResponse struct {
	Session        storage.Session `json:"session"`
	ElapsedMinutes int64           `json:"elapsed_minutes"`
	TotalCost      int64           `json:"total_cost"`
}

// SyncSessionRequest hands the API a session the console kept while the
// API was unreachable. Active records carry their current budget; closed
// ones carry the sealed end time, cost and rate.
type SyncSessionRequest struct {
	Session storage.Session `json:"session"`
}

// Validate checks the record is complete and consistent.
func (r SyncSessionRequest) Validate() error {
	s := r.Session
	if strings.TrimSpace(s.ID) == "" {
		return apperr.Validation("session.id", "required")
	}
	if strings.TrimSpace(s.StationID) == "" {
		return apperr.Validation("session.station_id", "required")
	}
	if !s.Mode.Valid() {
		return apperr.Validation("session.mode", "unknown mode %q", s.Mode)
	}
	if !s.Kind.Valid() {
		return apperr.Validation("session.kind", "unknown kind %q", s.Kind)
	}
	if s.StartTime.IsZero() {
		return apperr.Validation("session.start_time", "required")
	}
	if s.Kind == storage.KindLimited && (s.BudgetMinutes == nil || *s.BudgetMinutes <= 0) {
		return apperr.Validation("session.time_budget_minutes", "limited sessions need a positive budget")
	}
	if s.Active {
		return nil
	}
	if s.EndTime == nil || s.FinalCost == nil || s.FinalRate == nil {
		return apperr.Validation("session", "closed sessions need end_time, final_cost and final_rate")
	}
	if s.EndTime.Before(s.StartTime) {
		return apperr.Validation("session.end_time", "before start_time")
	}
	if *s.FinalCost < 0 || *s.FinalRate < 0 {
		return apperr.Validation("session.final_cost", "must not be negative")
	}
	return nil
}

type AddStationRequest struct {
	Name string `json:"name"`
}

func (r AddStationRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return apperr.Validation("name", "station name must not be empty")
	}
	return nil
}

type StationResponse struct {
	Station storage.Station `json:"station"`
}

type StationsResponse struct {
	Stations []storage.Station `json:"stations"`
}

// UpdateRateRequest changes the hourly rate of one mode.
type UpdateRateRequest struct {
	Mode storage.Mode `json:"mode"`
	Rate int64        `json:"rate"`
}

func (r UpdateRateRequest) Validate() error {
	if !r.Mode.Valid() {
		return apperr.Validation("mode", "unknown mode %q", r.Mode)
	}
	if r.Rate <= 0 {
		return apperr.Validation("rate", "must be positive")
	}
	return nil
}

type SettingsResponse struct {
	Rates   storage.Rates `json:"rates"`
	MinRate int64         `json:"min_rate"`
	MaxRate int64         `json:"max_rate"`
}

// StatsResponse summarises the current business day.
type StatsResponse struct {
	ActiveSessions int   `json:"active_sessions"`
	TodayMinutes   int64 `json:"today_minutes"`
	TodayRevenue   int64 `json:"today_revenue"`
	Estimate       bool  `json:"estimate"`
}

type ClearReportsResponse struct {
	Deleted int `json:"deleted"`
}

type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewError builds an ErrorResponse from err.
func NewError(err error) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Kind: apperr.KindOf(err), Message: err.Error()}}
}

// Err converts a decoded ErrorResponse back into a typed error.
func (r ErrorResponse) Err() error {
	return apperr.FromKind(r.Error.Kind, r.Error.Message)
}
