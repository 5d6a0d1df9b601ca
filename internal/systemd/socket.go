package systemd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// Listeners holds the systemd-activated sockets
type Listeners struct {
	API       net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves socket-activated file descriptors.
// Returns nil listeners if not running under socket activation
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	fds := activation.Files(false) // false = don't unset env vars
	if len(fds) == 0 {
		return listeners, nil
	}
	listeners.Activated = true

	// Names come from FileDescriptorName= in gamehall.socket (systemd 227+)
	byName, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	if lns, ok := byName["api"]; ok && len(lns) > 0 {
		listeners.API = lns[0]
	}
	if lns, ok := byName["metrics"]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
	}

	// Unnamed sockets are taken in order: api first, then metrics
	if listeners.API == nil && listeners.Metrics == nil {
		lns, err := activation.Listeners()
		if err != nil {
			return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
		}
		if len(lns) > 0 {
			listeners.API = lns[0]
		}
		if len(lns) > 1 {
			listeners.Metrics = lns[1]
		}
	}

	return listeners, nil
}

// NotifyReady sends READY=1 to systemd
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1 to systemd
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// NotifyStatus publishes a one-line status shown by systemctl status
func NotifyStatus(status string) error {
	if _, err := daemon.SdNotify(false, "STATUS="+status); err != nil {
		return fmt.Errorf("failed to send sd_notify status: %w", err)
	}
	return nil
}

// RunWatchdog pings the systemd watchdog at half its interval until ctx
// is done. It returns immediately when the watchdog is not enabled.
func RunWatchdog(ctx context.Context, logger zerolog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn().Err(err).Msg("Failed to ping systemd watchdog")
			}
		}
	}
}
