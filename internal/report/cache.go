package report

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache memoises settled reports: days before today with no estimates.
type Cache struct {
	reports *lru.Cache[string, DailyReport]
}

// NewCache creates a cache holding up to size reports.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 64
	}
	reports, err := lru.New[string, DailyReport](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create report cache: %w", err)
	}
	return &Cache{reports: reports}, nil
}

// Get returns a cached report for date (YYYY-MM-DD).
func (c *Cache) Get(date string) (DailyReport, bool) {
	if c == nil {
		return DailyReport{}, false
	}
	return c.reports.Get(date)
}

// Add stores rep if it can no longer change: its day ended before today
// and every line item is final.
func (c *Cache) Add(rep DailyReport, now time.Time, loc *time.Location) bool {
	if c == nil || rep.Estimate {
		return false
	}
	today, _ := DayBounds(now, loc)
	if rep.Date >= today.Format(DateLayout) {
		return false
	}
	c.reports.Add(rep.Date, rep)
	return true
}

// Forget drops the cached report for date, if any.
func (c *Cache) Forget(date string) {
	if c == nil {
		return
	}
	c.reports.Remove(date)
}

// Purge drops every cached report.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.reports.Purge()
}

// Len returns the number of cached reports.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.reports.Len()
}
