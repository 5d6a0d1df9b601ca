// Package report aggregates the sessions of one business day into a
// revenue report and exports it as printable documents.
package report

import (
	"fmt"
	"time"

	"github.com/goodtune/gamehall/internal/billing"
	"github.com/goodtune/gamehall/internal/storage"
)

// DateLayout is the wire and cache format of a report date.
const DateLayout = "2006-01-02"

// LineItem is one session in a report.
type LineItem struct {
	SessionID   string       `json:"session_id"`
	StationID   string       `json:"station_id"`
	StationName string       `json:"station_name"`
	PlayerName  string       `json:"player_name"`
	Mode        storage.Mode `json:"mode"`
	Kind        storage.Kind `json:"kind"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     *time.Time   `json:"end_time,omitempty"`
	Minutes     int64        `json:"minutes"`
	Rate        int64        `json:"rate"`
	Cost        int64        `json:"cost"`
	IsEstimate  bool         `json:"is_estimate"`
}

// DailyReport is the aggregate for one local calendar day. Estimate is set
// while any line item is still running.
type DailyReport struct {
	Date          string     `json:"date"`
	GeneratedAt   time.Time  `json:"generated_at"`
	Sessions      []LineItem `json:"sessions"`
	TotalSessions int        `json:"total_sessions"`
	TotalMinutes  int64      `json:"total_minutes"`
	TotalRevenue  int64      `json:"total_revenue"`
	Estimate      bool       `json:"estimate"`
}

// DayBounds returns [start, end) of the calendar day containing date in loc.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := date.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse report date %q: %w", value, err)
	}
	return t, nil
}

// Aggregate builds the report for the day containing date. Closed sessions
// use their recorded cost and rate; active ones are priced live at now.
func Aggregate(date time.Time, loc *time.Location, sessions []storage.Session, stationNames map[string]string, rates storage.Rates, now time.Time) DailyReport {
	start, end := DayBounds(date, loc)

	rep := DailyReport{
		Date:        start.Format(DateLayout),
		GeneratedAt: now,
		Sessions:    make([]LineItem, 0, len(sessions)),
	}

	ordered := make([]storage.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.StartTime.Before(start) || !s.StartTime.Before(end) {
			continue
		}
		ordered = append(ordered, s)
	}
	storage.SortSessions(ordered)

	for _, s := range ordered {
		item := LineItem{
			SessionID:   s.ID,
			StationID:   s.StationID,
			StationName: stationNames[s.StationID],
			PlayerName:  s.PlayerName,
			Mode:        s.Mode,
			Kind:        s.Kind,
			StartTime:   s.StartTime,
		}
		if item.StationName == "" {
			item.StationName = s.StationID
		}

		if s.Active || s.EndTime == nil || s.FinalCost == nil {
			item.Minutes = billing.ElapsedMinutes(int64(now.Sub(s.StartTime) / time.Second))
			item.Rate = billing.RateFor(rates, s.Mode)
			item.Cost = billing.Cost(float64(item.Minutes), item.Rate)
			item.IsEstimate = true
			rep.Estimate = true
		} else {
			finished := *s.EndTime
			item.EndTime = &finished
			item.Minutes = billing.ElapsedMinutes(int64(finished.Sub(s.StartTime) / time.Second))
			item.Cost = *s.FinalCost
			if s.FinalRate != nil {
				item.Rate = *s.FinalRate
			}
		}

		rep.TotalMinutes += item.Minutes
		rep.TotalRevenue += item.Cost
		rep.Sessions = append(rep.Sessions, item)
	}
	rep.TotalSessions = len(rep.Sessions)

	return rep
}
