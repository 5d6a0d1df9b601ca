package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/gamehall/internal/storage"
)

// scriptError maps a script status reply onto the storage sentinels.
func scriptError(status string) error {
	switch status {
	case "OK":
		return nil
	case "NOT_FOUND":
		return storage.ErrNotFound
	case "UNAVAILABLE":
		return storage.ErrStationUnavailable
	case "OCCUPIED":
		return storage.ErrStationOccupied
	case "CLOSED":
		return storage.ErrSessionClosed
	case "UNLIMITED":
		return storage.ErrSessionUnlimited
	case "DUPLICATE":
		return storage.ErrDuplicate
	default:
		return fmt.Errorf("unexpected script reply %q", status)
	}
}

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatOptionalInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// parseStation converts a Redis hash to Station
func parseStation(data map[string]string) (*storage.Station, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	totalPlay, err := strconv.ParseInt(data["total_play_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_play_time: %w", err)
	}

	totalRevenue, err := strconv.ParseInt(data["total_revenue"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_revenue: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return &storage.Station{
		ID:               data["id"],
		Name:             data["name"],
		Status:           storage.StationStatus(data["status"]),
		TotalPlayMinutes: totalPlay,
		TotalRevenue:     totalRevenue,
		CreatedAt:        createdAt,
	}, nil
}

// parseSession converts a Redis hash to Session
func parseSession(data map[string]string) (*storage.Session, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startTime, err := time.Parse(time.RFC3339Nano, data["start_time"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse start_time: %w", err)
	}

	version, err := strconv.ParseInt(data["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version: %w", err)
	}

	session := &storage.Session{
		ID:         data["id"],
		StationID:  data["station_id"],
		PlayerName: data["player_name"],
		Mode:       storage.Mode(data["mode"]),
		Kind:       storage.Kind(data["kind"]),
		StartTime:  startTime,
		Active:     data["active"] == "1",
		Version:    version,
	}

	if raw := data["budget"]; raw != "" {
		budget, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse budget: %w", err)
		}
		session.BudgetMinutes = &budget
	}

	if raw := data["end_time"]; raw != "" {
		endTime, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end_time: %w", err)
		}
		session.EndTime = &endTime
	}

	if raw := data["final_cost"]; raw != "" {
		cost, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse final_cost: %w", err)
		}
		session.FinalCost = &cost
	}

	if raw := data["final_rate"]; raw != "" {
		rate, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse final_rate: %w", err)
		}
		session.FinalRate = &rate
	}

	return session, nil
}

// startScore is the by_start index score: unix milliseconds.
func startScore(t time.Time) int64 {
	return t.UnixMilli()
}
