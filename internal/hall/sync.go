package hall

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/gamehall/internal/billing"
	"github.com/goodtune/gamehall/internal/metrics"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/wire"
)

// SyncSession applies a session record a console kept while this service
// was unreachable, and returns the stored result.
//
// A record unknown here is opened with its own id and start time, or
// recorded as closed with its sealed charge. A known active session takes
// the larger budget or the unlimited kind, then closes with the record's
// charge when the record is closed. A session already closed here is
// returned unchanged.
func (s *Service) SyncSession(ctx context.Context, rec storage.Session) (*storage.Session, error) {
	if err := (wire.SyncSessionRequest{Session: rec}).Validate(); err != nil {
		return nil, err
	}

	current, err := s.store.Sessions().Get(ctx, rec.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s.adoptSession(ctx, rec)
	case err != nil:
		return nil, mapError(err, "session", rec.ID)
	}

	if !current.Active {
		if !rec.Active && !sameCharge(*current, rec) {
			s.logger.Warn().
				Str("session_id", rec.ID).
				Int64("stored_cost", derefInt64(current.FinalCost)).
				Int64("console_cost", derefInt64(rec.FinalCost)).
				Msg("Session closed on both sides with different charges; keeping the stored one")
		}
		metrics.SessionsSynced.WithLabelValues("unchanged").Inc()
		return current, nil
	}

	switch {
	case rec.Kind == storage.KindUnlimited && current.Limited():
		if current, err = s.store.Sessions().Convert(ctx, rec.ID); err != nil {
			return nil, mapError(err, "session", rec.ID)
		}
	case rec.Limited() && current.Limited() && *rec.BudgetMinutes > *current.BudgetMinutes:
		extra := *rec.BudgetMinutes - *current.BudgetMinutes
		if current, err = s.store.Sessions().Extend(ctx, rec.ID, extra); err != nil {
			return nil, mapError(err, "session", rec.ID)
		}
	}

	if rec.Active {
		metrics.SessionsSynced.WithLabelValues("updated").Inc()
		s.logSynced(*current, "updated")
		return current, nil
	}

	elapsed := billing.ElapsedMinutes(int64(rec.EndTime.Sub(rec.StartTime) / time.Second))
	closed, err := s.store.Sessions().Close(ctx, storage.CloseRequest{
		SessionID:      rec.ID,
		EndTime:        *rec.EndTime,
		ElapsedMinutes: elapsed,
		Cost:           *rec.FinalCost,
		Rate:           *rec.FinalRate,
	})
	if err != nil {
		return nil, mapError(err, "session", rec.ID)
	}
	metrics.ActiveSessions.Dec()
	s.accrue(*closed, elapsed)
	s.forgetDay(closed.StartTime)
	metrics.SessionsSynced.WithLabelValues("closed").Inc()
	s.logSynced(*closed, "closed")
	return closed, nil
}

func (s *Service) adoptSession(ctx context.Context, rec storage.Session) (*storage.Session, error) {
	if rec.Active {
		opened, err := s.store.Sessions().Open(ctx, rec)
		if err != nil {
			return nil, mapError(err, "station", rec.StationID)
		}
		metrics.SessionsStarted.WithLabelValues(string(opened.Mode), string(opened.Kind)).Inc()
		metrics.ActiveSessions.Inc()
		s.forgetDay(opened.StartTime)
		metrics.SessionsSynced.WithLabelValues("opened").Inc()
		s.logSynced(*opened, "opened")
		return opened, nil
	}

	elapsed := billing.ElapsedMinutes(int64(rec.EndTime.Sub(rec.StartTime) / time.Second))
	recorded, err := s.store.Sessions().Record(ctx, rec, elapsed)
	if err != nil {
		return nil, mapError(err, "session", rec.ID)
	}
	metrics.SessionsStarted.WithLabelValues(string(recorded.Mode), string(recorded.Kind)).Inc()
	s.accrue(*recorded, elapsed)
	s.forgetDay(recorded.StartTime)
	metrics.SessionsSynced.WithLabelValues("recorded").Inc()
	s.logSynced(*recorded, "recorded")
	return recorded, nil
}

func (s *Service) accrue(closed storage.Session, elapsed int64) {
	mode := string(closed.Mode)
	metrics.SessionsEnded.WithLabelValues(mode).Inc()
	metrics.RevenueTotal.WithLabelValues(mode).Add(float64(derefInt64(closed.FinalCost)))
	metrics.PlayMinutesTotal.WithLabelValues(mode).Add(float64(elapsed))
}

// forgetDay drops a settled report the synced session now belongs to.
func (s *Service) forgetDay(start time.Time) {
	day, _ := report.DayBounds(start, s.loc)
	s.cache.Forget(day.Format(report.DateLayout))
}

func (s *Service) logSynced(sess storage.Session, outcome string) {
	s.logger.Info().
		Str("session_id", sess.ID).
		Str("station_id", sess.StationID).
		Str("outcome", outcome).
		Bool("active", sess.Active).
		Msg("Console session synced")
}

func sameCharge(a, b storage.Session) bool {
	return derefInt64(a.FinalCost) == derefInt64(b.FinalCost) && derefInt64(a.FinalRate) == derefInt64(b.FinalRate)
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
