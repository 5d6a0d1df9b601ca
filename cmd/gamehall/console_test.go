package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/config"
	"github.com/goodtune/gamehall/internal/render"
	"github.com/goodtune/gamehall/internal/session"
	"github.com/goodtune/gamehall/internal/storage/bolt"
	"github.com/rs/zerolog"
)

func newTestREPL(t *testing.T) (*consoleREPL, *bytes.Buffer) {
	t.Helper()

	cfg := config.Defaults()
	cfg.Console.LocalPath = filepath.Join(t.TempDir(), "console.bolt")
	cfg.Stations.DefaultCount = 2

	store, err := bolt.Open(cfg.Console.LocalPath)
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	recorder := &session.Recorder{}
	manager, err := newConsoleManager(context.Background(), cfg, nil, store, recorder, zerolog.Nop())
	if err != nil {
		t.Fatalf("new console manager: %v", err)
	}

	out := &bytes.Buffer{}
	repl := newConsoleREPL(manager, render.NewBoard(render.Options{NoColor: true}), recorder, out, exportOptions(cfg))
	repl.red.DisableColor()
	return repl, out
}

func run(t *testing.T, repl *consoleREPL, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	if err := repl.Exec(context.Background(), line); err != nil {
		t.Fatalf("%s: %v", line, err)
	}
	return out.String()
}

func TestConsoleSessionCommands(t *testing.T) {
	repl, out := newTestREPL(t)

	board := run(t, repl, out, "start 1 duo 60 Ana Lima")
	if !strings.Contains(board, "Ana Lima") || !strings.Contains(board, "occupied") {
		t.Fatalf("start did not show the session:\n%s", board)
	}
	if !strings.Contains(board, "[local]") {
		t.Fatalf("local-only console should say so:\n%s", board)
	}

	if board := run(t, repl, out, "extend 1 30"); !strings.Contains(board, "1h 30m") {
		t.Fatalf("extend did not show the new budget:\n%s", board)
	}

	if got := run(t, repl, out, "cost 1"); !strings.HasPrefix(got, "PS4 #1: 0 so far") {
		t.Fatalf("cost = %q", got)
	}

	if board := run(t, repl, out, "convert 1"); !strings.Contains(board, "unlimited") {
		t.Fatalf("convert did not show unlimited:\n%s", board)
	}

	if got := run(t, repl, out, "end 1"); !strings.HasPrefix(got, "PS4 #1: 0m played, total 0") {
		t.Fatalf("end = %q", got)
	}

	if got := run(t, repl, out, "stats"); !strings.HasPrefix(got, "0 active") {
		t.Fatalf("stats = %q", got)
	}
}

func TestConsoleRejectsBadInput(t *testing.T) {
	repl, _ := newTestREPL(t)
	ctx := context.Background()

	tests := []struct {
		line string
		kind apperr.Kind
	}{
		{"start 1 duo", apperr.KindValidation},
		{"start 1 duo ten Ana", apperr.KindValidation},
		{"start 9 duo 60 Ana", apperr.KindNotFound},
		{"start 1 solo 60 Ana", apperr.KindValidation},
		{"extend 1 30", apperr.KindValidation},
		{"end nowhere", apperr.KindNotFound},
		{"export pdf out.pdf", apperr.KindValidation},
		{"theme neon", apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			err := repl.Exec(ctx, tt.line)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got := apperr.KindOf(err); got != tt.kind {
				t.Fatalf("kind = %s, want %s (err %v)", got, tt.kind, err)
			}
		})
	}

	if err := repl.Exec(ctx, "dance"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("unknown command err = %v", err)
	}
}

func TestConsoleAdminCommands(t *testing.T) {
	repl, out := newTestREPL(t)
	ctx := context.Background()

	if err := repl.Exec(ctx, "add-station Lounge"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("add-station while locked err = %v", err)
	}
	if err := repl.Exec(ctx, "admin wrong"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("wrong secret err = %v", err)
	}

	run(t, repl, out, "admin admin-changeme")
	if got := run(t, repl, out, "add-station Lounge"); got != "added Lounge\n" {
		t.Fatalf("add-station = %q", got)
	}
	if got := run(t, repl, out, "rate duo 7000"); !strings.HasPrefix(got, "rates: duo 7,000/h, quad 8,000/h") {
		t.Fatalf("rate = %q", got)
	}
	if got := run(t, repl, out, "remove-station lounge"); got != "removed Lounge\n" {
		t.Fatalf("remove-station = %q", got)
	}
	if got := run(t, repl, out, "clear-reports"); !strings.HasPrefix(got, "deleted 0") {
		t.Fatalf("clear-reports = %q", got)
	}

	run(t, repl, out, "lock")
	if err := repl.Exec(ctx, "clear-reports"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("clear-reports after lock err = %v", err)
	}
}

func TestConsoleReportsAndTheme(t *testing.T) {
	repl, out := newTestREPL(t)

	run(t, repl, out, "start 2 quad unlimited Bruno")
	run(t, repl, out, "end 2")

	if got := run(t, repl, out, "report"); !strings.Contains(got, "Bruno") {
		t.Fatalf("report missing session:\n%s", got)
	}

	path := filepath.Join(t.TempDir(), "today.html")
	if got := run(t, repl, out, "export html "+path); got != "wrote "+path+"\n" {
		t.Fatalf("export = %q", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "Bruno") {
		t.Fatalf("export missing session")
	}

	run(t, repl, out, "theme dark")
	if got := run(t, repl, out, "theme"); !strings.HasPrefix(got, "theme: dark") {
		t.Fatalf("theme = %q", got)
	}
}

func TestConsoleRunLoop(t *testing.T) {
	repl, out := newTestREPL(t)

	err := repl.Run(context.Background(), strings.NewReader("help\nbogus\nstart 1 duo 30 Ana\nquit\nstart 2 duo 30 Never\n"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Commands:") {
		t.Fatalf("help not printed:\n%s", got)
	}
	if !strings.Contains(got, `error: unknown command "bogus"`) {
		t.Fatalf("error not printed:\n%s", got)
	}
	if strings.Contains(got, "Never") {
		t.Fatalf("commands after quit were executed:\n%s", got)
	}
}
