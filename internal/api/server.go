// Package api serves the hall service over HTTP for the operator console.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/goodtune/gamehall/internal/hall"
	"github.com/goodtune/gamehall/internal/report"
)

// Config holds API server configuration.
type Config struct {
	ListenAddr      string
	RateLimit       int
	RateLimitWindow time.Duration
	AllowedOrigins  []string
	Export          report.ExportOptions
}

// Server is the authoritative HTTP API.
type Server struct {
	config   Config
	svc      *hall.Service
	auth     *AuthService
	limiter  *RateLimiter
	router   *gin.Engine
	server   *http.Server
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg Config, svc *hall.Service, auth *AuthService, logger zerolog.Logger) *Server {
	if logger.GetLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 600
	}
	if cfg.Export.Location == nil {
		cfg.Export.Location = svc.Location()
	}

	s := &Server{
		config:  cfg,
		svc:     svc,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow),
		router:  gin.New(),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware(s.logger))
	if len(cfg.AllowedOrigins) > 0 {
		s.router.Use(CORSMiddleware(cfg.AllowedOrigins))
	}
	s.routes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	public := s.router.Group("/")
	public.Use(RateLimitMiddleware(s.limiter))
	public.GET("/health", s.handleHealth)
	public.POST("/api/auth/login", s.handleLogin)

	operator := s.router.Group("/api")
	operator.Use(AuthMiddleware(s.auth), RateLimitMiddleware(s.limiter))
	operator.GET("/stations", s.handleListStations)
	operator.GET("/sessions/active", s.handleActiveSessions)
	operator.POST("/sessions", s.handleStartSession)
	operator.POST("/sessions/sync", s.handleSyncSession)
	operator.POST("/sessions/:id/end", s.handleEndSession)
	operator.POST("/sessions/:id/extend", s.handleExtendSession)
	operator.POST("/sessions/:id/convert", s.handleConvertSession)
	operator.GET("/settings", s.handleSettings)
	operator.GET("/stats", s.handleStats)
	operator.GET("/reports/daily", s.handleDailyReport)
	operator.GET("/reports/daily/export", s.handleExportReport)

	admin := operator.Group("")
	admin.Use(AdminMiddleware(s.auth, s.logger))
	admin.POST("/stations", s.handleAddStation)
	admin.DELETE("/stations/:id", s.handleRemoveStation)
	admin.PUT("/settings/rates", s.handleUpdateRate)
	admin.DELETE("/reports", s.handleClearReports)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start serves in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")
	s.limiter.Stop()
	return s.server.Shutdown(ctx)
}
