package storage

import (
	"os"
	"sort"
)

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// SortStations orders stations by creation time, then name.
func SortStations(stations []Station) {
	sort.SliceStable(stations, func(i, j int) bool {
		if !stations[i].CreatedAt.Equal(stations[j].CreatedAt) {
			return stations[i].CreatedAt.Before(stations[j].CreatedAt)
		}
		return stations[i].Name < stations[j].Name
	})
}

// SortSessions orders sessions by start time, then id.
func SortSessions(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].StartTime.Before(sessions[j].StartTime)
		}
		return sessions[i].ID < sessions[j].ID
	})
}
