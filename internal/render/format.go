// Package render draws the operator console board from a session view.
package render

import (
	"fmt"

	"github.com/goodtune/gamehall/internal/tracker"
)

// SmoothRemaining keeps a countdown from showing a whole minute for a
// full second: m:00 with m > 0 displays as (m-1):59.
func SmoothRemaining(s tracker.Span) tracker.Span {
	if s.Seconds == 0 && s.Minutes > 0 {
		return tracker.Span{
			Minutes:      s.Minutes - 1,
			Seconds:      59,
			TotalSeconds: s.TotalSeconds - 1,
		}
	}
	return s
}

// FormatClock renders a span as H:MM:SS.
func FormatClock(s tracker.Span) string {
	minutes, seconds := s.Minutes, s.Seconds
	if minutes < 0 || seconds < 0 {
		minutes, seconds = 0, 0
	}
	return fmt.Sprintf("%d:%02d:%02d", minutes/60, minutes%60, seconds)
}

// FormatMinutes renders a minute count as "1h 05m" or "45m".
func FormatMinutes(minutes int64) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
