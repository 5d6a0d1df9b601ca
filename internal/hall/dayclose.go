package hall

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/gamehall/internal/metrics"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/rs/zerolog"
)

// DayCloser summarises each business day shortly after it ends. Closing
// a day builds its report, which the report cache keeps once settled.
type DayCloser struct {
	svc       *Service
	closeTime time.Time // Only hour and minute are used
	logger    zerolog.Logger
	stopChan  chan struct{}
	done      chan struct{}
}

// NewDayCloser parses closeTime as HH:MM in the service's time zone.
func NewDayCloser(svc *Service, closeTime string, logger zerolog.Logger) (*DayCloser, error) {
	parsed, err := time.Parse("15:04", closeTime)
	if err != nil {
		return nil, fmt.Errorf("invalid day close time %q: %w", closeTime, err)
	}
	return &DayCloser{
		svc:       svc,
		closeTime: parsed,
		logger:    logger.With().Str("component", "day-closer").Logger(),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start begins the scheduler
func (d *DayCloser) Start() {
	go d.run()
	d.logger.Info().
		Str("close_time", d.closeTime.Format("15:04")).
		Msg("Day close scheduler started")
}

// Stop stops the scheduler and waits for a running close to finish
func (d *DayCloser) Stop() {
	close(d.stopChan)
	<-d.done
	d.logger.Info().Msg("Day close scheduler stopped")
}

func (d *DayCloser) run() {
	defer close(d.done)
	for {
		next := d.nextClose(d.svc.Now())
		wait := next.Sub(d.svc.Now())

		d.logger.Debug().
			Time("next_close", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next day close")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			// The day that ended before the close time.
			if _, err := d.CloseDay(context.Background(), next.AddDate(0, 0, -1)); err != nil {
				d.logger.Error().Err(err).Msg("Failed to close business day")
			}
		case <-d.stopChan:
			timer.Stop()
			return
		}
	}
}

// nextClose returns the first close time strictly after now.
func (d *DayCloser) nextClose(now time.Time) time.Time {
	local := now.In(d.svc.Location())
	today := time.Date(
		local.Year(), local.Month(), local.Day(),
		d.closeTime.Hour(), d.closeTime.Minute(), 0, 0,
		local.Location(),
	)
	if !local.Before(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// CloseDay builds the report for day, logs its totals and publishes them
// as metrics.
func (d *DayCloser) CloseDay(ctx context.Context, day time.Time) (*report.DailyReport, error) {
	rep, err := d.svc.DailyReport(ctx, day)
	if err != nil {
		return nil, err
	}

	metrics.ClosedDayRevenue.Set(float64(rep.TotalRevenue))
	metrics.ClosedDaySessions.Set(float64(rep.TotalSessions))

	evt := d.logger.Info()
	if rep.Estimate {
		// Sessions from that day are still running; totals will move.
		evt = d.logger.Warn()
	}
	evt.Str("date", rep.Date).
		Int("sessions", rep.TotalSessions).
		Int64("minutes", rep.TotalMinutes).
		Int64("revenue", rep.TotalRevenue).
		Bool("estimate", rep.Estimate).
		Msg("Business day closed")
	return rep, nil
}
