package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/storage"
)

func limitedAt(version int64, budget int) storage.Session {
	return storage.Session{
		ID:            "s1",
		Kind:          storage.KindLimited,
		BudgetMinutes: storage.IntPtr(budget),
		Active:        true,
		Version:       version,
	}
}

func TestReconcile(t *testing.T) {
	unlimited := storage.Session{ID: "s1", Kind: storage.KindUnlimited, Active: true, Version: 3}

	tests := []struct {
		name    string
		local   storage.Session
		remote  storage.Session
		pending bool
		want    Decision
	}{
		{"pending keeps local", limitedAt(2, 90), limitedAt(5, 30), true, KeepLocal},
		{"stale remote", limitedAt(3, 90), limitedAt(2, 60), false, KeepLocal},
		{"newer remote", limitedAt(2, 90), limitedAt(3, 60), false, AdoptRemote},
		{"equal version larger local budget", limitedAt(1, 90), limitedAt(1, 60), false, KeepLocal},
		{"equal version larger remote budget", limitedAt(1, 60), limitedAt(1, 90), false, AdoptRemote},
		{"equal everything", limitedAt(1, 60), limitedAt(1, 60), false, AdoptRemote},
		{"converted locally, stale remote", unlimited, limitedAt(2, 60), false, KeepLocal},
		{"converted remotely", limitedAt(2, 60), unlimited, false, AdoptRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reconcile(tt.local, tt.remote, tt.pending); got != tt.want {
				t.Fatalf("Reconcile = %v, want %v", got, tt.want)
			}
		})
	}
}

// blockingBackend holds ExtendSession until released.
type blockingBackend struct {
	*flakyBackend
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) ExtendSession(ctx context.Context, id string, minutes int) (*storage.Session, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.flakyBackend.ExtendSession(ctx, id, minutes)
}

func TestReloadDuringPendingExtensionKeepsLocal(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	sess := env.start(t, env.station(t, 0).ID, storage.KindLimited, 60)

	blocking := &blockingBackend{
		flakyBackend: env.remote,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	env.manager.remote = blocking

	done := make(chan error, 1)
	go func() {
		_, err := env.manager.ExtendSession(ctx, sess.ID, 30)
		done <- err
	}()
	<-blocking.entered

	// The server still reports 60 minutes; the pending extension wins.
	if ran, err := env.manager.Refresh(ctx); !ran || err != nil {
		t.Fatalf("refresh ran=%v err=%v", ran, err)
	}
	view := env.sessionView(t, sess.ID)
	if *view.Session.BudgetMinutes != 90 || !view.Pending {
		t.Fatalf("pending extension lost: budget %d pending %v", *view.Session.BudgetMinutes, view.Pending)
	}

	close(blocking.release)
	if err := <-done; err != nil {
		t.Fatalf("extend: %v", err)
	}
	if ran, err := env.manager.Refresh(ctx); !ran || err != nil {
		t.Fatalf("refresh ran=%v err=%v", ran, err)
	}
	if got := *env.sessionView(t, sess.ID).Session.BudgetMinutes; got != 90 {
		t.Fatalf("budget = %d, want 90", got)
	}
}

func TestPollerChecksHealthUntilOnline(t *testing.T) {
	env := newTestEnv(t, true)
	env.remote.failWith("health", apperr.Transport("health", errors.New("down")))
	env.manager.goOffline("test", errors.New("down"))

	p := NewPoller(env.manager, PollerConfig{
		RefreshInterval:   time.Hour,
		TickInterval:      time.Hour,
		HealthMinInterval: 5 * time.Millisecond,
		HealthMaxInterval: 10 * time.Millisecond,
	}, zerolog.Nop())
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for env.remote.count("health") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("health was not retried")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if env.manager.Online() {
		t.Fatalf("manager went online while health fails")
	}

	env.remote.failWith("health", nil)
	for !env.manager.Online() {
		if time.Now().After(deadline) {
			t.Fatalf("manager did not come back online")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
