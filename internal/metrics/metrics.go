package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehall_sessions_started_total",
			Help: "Total sessions started",
		},
		[]string{"mode", "kind"},
	)

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehall_sessions_ended_total",
			Help: "Total sessions ended",
		},
		[]string{"mode"},
	)

	SessionExtensions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gamehall_session_extensions_total",
			Help: "Total time extensions applied to limited sessions",
		},
	)

	SessionConversions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gamehall_session_conversions_total",
			Help: "Total limited sessions converted to unlimited",
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamehall_active_sessions",
			Help: "Number of sessions currently running",
		},
	)

	// Billing metrics
	RevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehall_revenue_total",
			Help: "Revenue charged at session close, in currency units",
		},
		[]string{"mode"},
	)

	PlayMinutesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehall_play_minutes_total",
			Help: "Billed play minutes at session close",
		},
		[]string{"mode"},
	)

	SessionsSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehall_sessions_synced_total",
			Help: "Console-kept session records applied by the server",
		},
		[]string{"outcome"},
	)

	// Console metrics
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehall_fallbacks_total",
			Help: "Operations executed locally after a transport failure",
		},
		[]string{"op"},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehall_rollbacks_total",
			Help: "Optimistic updates undone after the server rejected them",
		},
		[]string{"op"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamehall_remote_request_duration_seconds",
			Help:    "Duration of requests to the authoritative API",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehall_api_requests_total",
			Help: "Total API requests served",
		},
		[]string{"method", "route", "status"},
	)

	// Day close metrics
	ClosedDayRevenue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamehall_closed_day_revenue",
			Help: "Revenue of the most recently closed business day",
		},
	)

	ClosedDaySessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamehall_closed_day_sessions",
			Help: "Sessions started on the most recently closed business day",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStarted,
		SessionsEnded,
		SessionExtensions,
		SessionConversions,
		SessionsSynced,
		ActiveSessions,
		RevenueTotal,
		PlayMinutesTotal,
		FallbacksTotal,
		RollbacksTotal,
		RemoteRequestDuration,
		APIRequestsTotal,
		ClosedDayRevenue,
		ClosedDaySessions,
	)
}

// ObserveRemote records how long a remote call took.
func ObserveRemote(op string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RemoteRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(started).Seconds())
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
