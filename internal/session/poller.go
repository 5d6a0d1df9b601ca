package session

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// PollerConfig sets the timer intervals.
type PollerConfig struct {
	RefreshInterval   time.Duration
	TickInterval      time.Duration
	HealthMinInterval time.Duration
	HealthMaxInterval time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.HealthMinInterval <= 0 {
		c.HealthMinInterval = 5 * time.Second
	}
	if c.HealthMaxInterval < c.HealthMinInterval {
		c.HealthMaxInterval = time.Minute
	}
	return c
}

// Poller drives the coarse refresh and fine tick timers and checks the
// API while the manager is offline.
type Poller struct {
	manager *Manager
	config  PollerConfig
	logger  zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(m *Manager, cfg PollerConfig, logger zerolog.Logger) *Poller {
	return &Poller{
		manager: m,
		config:  cfg.withDefaults(),
		logger:  logger.With().Str("component", "poller").Logger(),
	}
}

// Start runs the timers until Stop or ctx is done.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info().
		Dur("refresh_interval", p.config.RefreshInterval).
		Dur("tick_interval", p.config.TickInterval).
		Msg("Poller started")
}

// Stop ends the timers and waits for them.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	refresh := time.NewTicker(p.config.RefreshInterval)
	defer refresh.Stop()
	tick := time.NewTicker(p.config.TickInterval)
	defer tick.Stop()

	checking := false
	healthDone := make(chan struct{}, 1)

	if p.manager.HasRemote() && !p.manager.Online() {
		checking = p.startHealthCheck(ctx, healthDone)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !p.manager.Tick() {
				p.logger.Debug().Msg("Tick skipped, manager busy")
			}
		case <-refresh.C:
			if !p.manager.Online() {
				continue
			}
			ran, err := p.manager.Refresh(ctx)
			switch {
			case !ran:
				p.logger.Debug().Msg("Refresh skipped, manager busy")
			case err != nil:
				p.logger.Warn().Err(err).Msg("Refresh failed")
			}
		case <-p.manager.OfflineC():
			if !checking {
				checking = p.startHealthCheck(ctx, healthDone)
			}
		case <-healthDone:
			checking = false
		}
	}
}

// startHealthCheck checks the API health with exponential backoff until it
// answers, then switches the manager online and reloads.
func (p *Poller) startHealthCheck(ctx context.Context, done chan<- struct{}) bool {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { done <- struct{}{} }()

		strategy := backoff.WithContext(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(p.config.HealthMinInterval),
				backoff.WithMaxInterval(p.config.HealthMaxInterval),
				backoff.WithMaxElapsedTime(0),
			),
			ctx,
		)

		operation := func() error {
			return p.manager.remote.Health(ctx)
		}
		err := backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
			p.logger.Debug().Err(err).Dur("next_attempt", d).Msg("API still unreachable")
		})
		if err != nil {
			return
		}

		p.manager.SetOnline()
		if err := p.manager.Reload(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("Reload after reconnect failed")
		}
	}()
	return true
}
