package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventKind classifies a console notification.
type EventKind string

const (
	EventInfo     EventKind = "info"
	EventError    EventKind = "error"
	EventTimeUp   EventKind = "time_up"
	EventRollback EventKind = "rollback"
	EventOffline  EventKind = "offline"
	EventOnline   EventKind = "online"
)

// Event is one message for the operator.
type Event struct {
	Kind      EventKind
	SessionID string
	StationID string
	Message   string
	At        time.Time
}

// Notifier delivers events to the operator.
type Notifier interface {
	Notify(Event)
}

// LogNotifier writes events to a zerolog logger.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(e Event) {
	evt := n.logger.Info()
	switch e.Kind {
	case EventError, EventRollback:
		evt = n.logger.Error()
	case EventTimeUp, EventOffline:
		evt = n.logger.Warn()
	}
	evt.Str("kind", string(e.Kind)).
		Str("session_id", e.SessionID).
		Str("station_id", e.StationID).
		Time("at", e.At).
		Msg(e.Message)
}

// Recorder keeps events in memory. The console drains it after each
// command; tests inspect it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Drain returns and clears the recorded events.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(e Event) {
	for _, n := range m {
		n.Notify(e)
	}
}
