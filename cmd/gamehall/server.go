package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/gamehall/internal/api"
	"github.com/goodtune/gamehall/internal/billing"
	"github.com/goodtune/gamehall/internal/clock"
	"github.com/goodtune/gamehall/internal/config"
	"github.com/goodtune/gamehall/internal/hall"
	"github.com/goodtune/gamehall/internal/metrics"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/storage/bolt"
	"github.com/goodtune/gamehall/internal/storage/redis"
	"github.com/goodtune/gamehall/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Gamehall API server",
	Long:  `Start the authoritative API server and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger, closeLog, err := setupLogger(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Gamehall server")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	svc, err := newHallService(cmd.Context(), cfg, store, logger)
	if err != nil {
		return err
	}

	dayCloser, err := hall.NewDayCloser(svc, cfg.Report.CloseTime, logger)
	if err != nil {
		return err
	}
	dayCloser.Start()

	// Initialize API server
	auth, err := api.NewAuthService(api.AuthOptions{
		OperatorUsername: cfg.Auth.OperatorUsername,
		OperatorPassword: cfg.Auth.OperatorPassword,
		AdminSecret:      cfg.Auth.AdminSecret,
		JWTSecret:        cfg.Auth.JWTSecret,
		TokenExpiration:  config.ParseDuration(cfg.Auth.TokenExpiration, api.DefaultTokenExpiration),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("No JWT secret configured; tokens will not survive a restart")
	}

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(api.Config{
		ListenAddr:      apiAddr,
		RateLimit:       cfg.Server.RateLimit,
		RateLimitWindow: config.ParseDuration(cfg.Server.RateLimitWindow, time.Minute),
		AllowedOrigins:  cfg.Server.CORSOrigins,
		Export:          exportOptions(cfg),
	}, svc, auth, logger)
	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	logger.Info().Msg("Gamehall startup complete")
	logger.Info().Msgf("API: http://%s", apiAddr)
	if metricsServer != nil {
		logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}
	_ = systemd.NotifyStatus("Serving API on " + apiAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go systemd.RunWatchdog(ctx, logger)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	dayCloser.Stop()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("Gamehall stopped")

	return nil
}

// newHallService builds the hall service over store, seeds default
// stations into an empty store and applies the persisted rates.
func newHallService(ctx context.Context, cfg *config.Config, store storage.Store, logger zerolog.Logger) (*hall.Service, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cache, err := report.NewCache(cfg.Report.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create report cache: %w", err)
	}

	rates := billing.NewRateTable(configuredRates(cfg.Billing), cfg.Billing.MinRate, cfg.Billing.MaxRate)
	svc := hall.New(store, rates, clock.RealClock{}, hall.Options{
		Location:            cfg.Billing.Location(),
		MaxExtensionMinutes: cfg.Billing.MaxExtensionMinutes,
		Cache:               cache,
		Logger:              logger,
	})

	seeded, err := svc.Seed(ctx, cfg.Stations.DefaultCount, cfg.Stations.NameFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to seed stations: %w", err)
	}
	if seeded > 0 {
		logger.Info().Int("count", seeded).Msg("Seeded default stations")
	}

	if err := svc.LoadSettings(ctx); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return svc, nil
}

func configuredRates(cfg config.BillingConfig) storage.Rates {
	return storage.Rates{
		storage.ModeDuo:  cfg.DuoRate,
		storage.ModeQuad: cfg.QuadRate,
	}
}

func exportOptions(cfg *config.Config) report.ExportOptions {
	return report.ExportOptions{
		Currency:    cfg.Billing.Currency,
		RowsPerPage: cfg.Report.RowsPerPage,
		Location:    cfg.Billing.Location(),
	}
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", cfg.Type)
	}
}
