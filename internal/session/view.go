package session

import (
	"time"

	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/tracker"
	"github.com/goodtune/gamehall/internal/wire"
)

// SessionView is a running session as of one instant.
type SessionView struct {
	Session      storage.Session
	StationName  string
	Elapsed      tracker.Span
	Remaining    tracker.Span
	HasRemaining bool
	Level        tracker.Level
	Rate         int64
	CurrentCost  int64
	Pending      bool
}

// StationView pairs a station with its running session, if any.
type StationView struct {
	Station storage.Station
	Session *SessionView
}

// View is a consistent copy of the console state for rendering.
type View struct {
	At            time.Time
	Online        bool
	HasRemote     bool
	AdminUnlocked bool
	Theme         string
	Rates         storage.Rates
	Stations      []StationView
	Stats         *wire.StatsResponse
}

// ActiveCount returns the number of running sessions in the view.
func (v View) ActiveCount() int {
	n := 0
	for _, st := range v.Stations {
		if st.Session != nil {
			n++
		}
	}
	return n
}

// View builds a view at the current time.
func (m *Manager) View() View {
	m.busy.Lock()
	defer m.busy.Unlock()
	return m.viewLocked(m.clock.Now())
}

func (m *Manager) viewLocked(now time.Time) View {
	byStation := make(map[string]*SessionView, len(m.sessions))
	for id, sess := range m.sessions {
		tr := m.trackers[id]
		elapsed := tr.Elapsed(now)
		remaining, ok := tr.Remaining(now)
		rate := m.rates.Rate(sess.Mode)
		byStation[sess.StationID] = &SessionView{
			Session:      sess.Clone(),
			Elapsed:      elapsed,
			Remaining:    remaining,
			HasRemaining: ok,
			Level:        tr.Level(now, m.warning, m.danger),
			Rate:         rate,
			CurrentCost:  m.rates.Cost(float64(elapsed.Minutes), sess.Mode),
			Pending:      m.pending[id] > 0,
		}
	}

	stations := m.registry.List()
	out := View{
		At:            now,
		Online:        m.online.Load(),
		HasRemote:     m.remote != nil,
		AdminUnlocked: m.admin,
		Theme:         m.theme,
		Rates:         m.rates.Rates(),
		Stations:      make([]StationView, 0, len(stations)),
	}
	for _, st := range stations {
		sv := StationView{Station: st}
		if sess, ok := byStation[st.ID]; ok {
			sess.StationName = st.Name
			sv.Session = sess
		}
		out.Stations = append(out.Stations, sv)
	}
	if m.stats != nil {
		stats := *m.stats
		out.Stats = &stats
	}
	return out
}
