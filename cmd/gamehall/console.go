package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/billing"
	"github.com/goodtune/gamehall/internal/clock"
	"github.com/goodtune/gamehall/internal/config"
	"github.com/goodtune/gamehall/internal/hall"
	"github.com/goodtune/gamehall/internal/remote"
	"github.com/goodtune/gamehall/internal/render"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/session"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/storage/bolt"
	"github.com/goodtune/gamehall/internal/tracker"
	"github.com/goodtune/gamehall/internal/wire"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	consoleOffline bool
	consoleWatch   bool
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the operator console",
	Long: `Run the interactive operator console. Operations go to the API server;
while it is unreachable they run against a local copy of the last known
state until the server answers again.`,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().BoolVar(&consoleOffline, "offline", false, "Run without an API server, on the local store only")
	consoleCmd.Flags().BoolVar(&consoleWatch, "watch", false, "Redraw the board every tick instead of reading commands")
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// The board owns stdout.
	logger, closeLog, err := setupLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := storage.EnsureDir(filepath.Dir(cfg.Console.LocalPath)); err != nil {
		return fmt.Errorf("failed to create console storage directory: %w", err)
	}
	localStore, err := bolt.Open(cfg.Console.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to open console storage: %w", err)
	}
	defer func() {
		if err := localStore.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close console storage")
		}
	}()

	var backend session.Backend
	if !consoleOffline && cfg.Console.ServerURL != "" {
		client, err := remote.New(remote.Options{
			BaseURL:  cfg.Console.ServerURL,
			Username: cfg.Auth.OperatorUsername,
			Password: cfg.Auth.OperatorPassword,
			Timeout:  config.ParseDuration(cfg.Console.RequestTimeout, remote.DefaultTimeout),
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create API client: %w", err)
		}
		backend = client
	}

	recorder := &session.Recorder{}
	manager, err := newConsoleManager(ctx, cfg, backend, localStore, recorder, logger)
	if err != nil {
		return err
	}

	board := render.NewBoard(render.Options{Currency: cfg.Billing.Currency})
	poller := session.NewPoller(manager, session.PollerConfig{
		RefreshInterval:   config.ParseDuration(cfg.Console.RefreshInterval, 30*time.Second),
		TickInterval:      config.ParseDuration(cfg.Console.TickInterval, time.Second),
		HealthMinInterval: config.ParseDuration(cfg.Console.HealthMinInterval, 2*time.Second),
		HealthMaxInterval: config.ParseDuration(cfg.Console.HealthMaxInterval, time.Minute),
	}, logger)

	repl := newConsoleREPL(manager, board, recorder, os.Stdout, exportOptions(cfg))

	if consoleWatch {
		manager.SetRenderer(func(v session.View) {
			fmt.Fprint(os.Stdout, "\033[H\033[2J")
			_ = board.Render(os.Stdout, v)
			repl.flushEvents(v.Theme)
		})
		poller.Start(ctx)
		<-ctx.Done()
		poller.Stop()
		return nil
	}

	// Alarms surface between commands.
	manager.SetRenderer(func(v session.View) {
		repl.flushEvents(v.Theme)
	})
	poller.Start(ctx)
	defer poller.Stop()

	repl.render()
	return repl.Run(ctx, os.Stdin)
}

// newConsoleManager wires the session manager to the API backend (nil
// for local-only) and to a hall service over the console's local store.
func newConsoleManager(ctx context.Context, cfg *config.Config, backend session.Backend, localStore *bolt.Store, notifier session.Notifier, logger zerolog.Logger) (*session.Manager, error) {
	rates := billing.NewRateTable(configuredRates(cfg.Billing), cfg.Billing.MinRate, cfg.Billing.MaxRate)
	local := hall.New(localStore, rates, clock.RealClock{}, hall.Options{
		Location:            cfg.Billing.Location(),
		MaxExtensionMinutes: cfg.Billing.MaxExtensionMinutes,
		Logger:              logger,
	})
	if backend == nil {
		if _, err := local.Seed(ctx, cfg.Stations.DefaultCount, cfg.Stations.NameFormat); err != nil {
			return nil, fmt.Errorf("failed to seed local stations: %w", err)
		}
	}
	if err := local.LoadSettings(ctx); err != nil {
		return nil, fmt.Errorf("failed to load local settings: %w", err)
	}

	manager, err := session.New(session.Options{
		Remote:       backend,
		Local:        local,
		Mirror:       localStore,
		Rates:        rates,
		Notifier:     session.Multi{notifier, session.NewLogNotifier(logger)},
		Logger:       logger,
		AdminSecret:  cfg.Auth.AdminSecret,
		MaxExtension: cfg.Billing.MaxExtensionMinutes,
		Warning:      time.Duration(cfg.Console.WarningMinutes) * time.Minute,
		Danger:       time.Duration(cfg.Console.DangerMinutes) * time.Minute,
		Themes:       render.ThemeNames(),
		Theme:        cfg.Console.Theme,
	})
	if err != nil {
		return nil, err
	}
	if err := manager.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize console: %w", err)
	}
	return manager, nil
}

// consoleREPL reads operator commands line by line.
type consoleREPL struct {
	manager  *session.Manager
	board    *render.Board
	recorder *session.Recorder
	out      io.Writer
	export   report.ExportOptions
	red      *color.Color
}

func newConsoleREPL(m *session.Manager, board *render.Board, recorder *session.Recorder, out io.Writer, export report.ExportOptions) *consoleREPL {
	return &consoleREPL{
		manager:  m,
		board:    board,
		recorder: recorder,
		out:      out,
		export:   export,
		red:      color.New(color.FgRed, color.Bold),
	}
}

var errQuit = errors.New("quit")

// Run executes commands from in until EOF, quit or ctx is done.
func (c *consoleREPL) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(c.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := c.Exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				c.red.Fprintf(c.out, "error: %v\n", err)
			}
			c.flushEvents(c.manager.Theme())
		}
	}
}

func (c *consoleREPL) flushEvents(theme string) {
	_ = c.board.RenderEvents(c.out, theme, c.recorder.Drain())
}

func (c *consoleREPL) render() {
	_ = c.board.Render(c.out, c.manager.View())
}

// Exec runs one command line.
func (c *consoleREPL) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "help", "?":
		fmt.Fprint(c.out, consoleHelp)
		return nil
	case "quit", "exit":
		return errQuit
	case "board", "ls", "stations":
		c.render()
		return nil
	case "refresh":
		if err := c.manager.Reload(ctx); err != nil {
			return err
		}
		c.render()
		return nil
	case "start":
		return c.start(ctx, args)
	case "extend":
		return c.extend(ctx, args)
	case "convert":
		return c.withStation(args, 1, func(st session.StationView) error {
			sess, err := c.activeOn(st)
			if err != nil {
				return err
			}
			if _, err := c.manager.ConvertSession(ctx, sess.ID); err != nil {
				return err
			}
			c.render()
			return nil
		})
	case "end":
		return c.withStation(args, 1, func(st session.StationView) error {
			sess, err := c.activeOn(st)
			if err != nil {
				return err
			}
			resp, err := c.manager.EndSession(ctx, sess.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s: %s played, total %s\n",
				st.Station.Name,
				render.FormatMinutes(resp.ElapsedMinutes),
				report.FormatMoney(resp.TotalCost, c.export.Currency))
			c.render()
			return nil
		})
	case "cost":
		return c.withStation(args, 1, func(st session.StationView) error {
			sess, err := c.activeOn(st)
			if err != nil {
				return err
			}
			cost, err := c.manager.CurrentCost(sess.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s: %s so far\n", st.Station.Name, report.FormatMoney(cost, c.export.Currency))
			return nil
		})
	case "add-station":
		if len(args) == 0 {
			return usage("add-station <name>")
		}
		st, err := c.manager.AddStation(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "added %s\n", st.Name)
		return nil
	case "remove-station":
		return c.withStation(args, 1, func(st session.StationView) error {
			if err := c.manager.RemoveStation(ctx, st.Station.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "removed %s\n", st.Station.Name)
			return nil
		})
	case "rate":
		return c.rate(ctx, args)
	case "admin":
		if len(args) != 1 {
			return usage("admin <secret>")
		}
		if err := c.manager.UnlockAdmin(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "admin unlocked")
		return nil
	case "lock":
		c.manager.LockAdmin()
		fmt.Fprintln(c.out, "admin locked")
		return nil
	case "stats":
		stats, err := c.manager.Stats(ctx)
		if err != nil {
			return err
		}
		estimate := ""
		if stats.Estimate {
			estimate = " (estimate)"
		}
		fmt.Fprintf(c.out, "%d active, %s played today, revenue %s%s\n",
			stats.ActiveSessions,
			render.FormatMinutes(stats.TodayMinutes),
			report.FormatMoney(stats.TodayRevenue, c.export.Currency),
			estimate)
		return nil
	case "report":
		rep, err := c.report(ctx, args, 0)
		if err != nil {
			return err
		}
		return report.WriteMarkdown(c.out, *rep, c.export)
	case "export":
		return c.exportReport(ctx, args)
	case "clear-reports":
		deleted, err := c.manager.ClearReports(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "deleted %d closed sessions\n", deleted)
		return nil
	case "theme":
		if len(args) == 0 {
			fmt.Fprintf(c.out, "theme: %s (available: %s)\n", c.manager.Theme(), strings.Join(render.ThemeNames(), ", "))
			return nil
		}
		if err := c.manager.SetTheme(ctx, args[0]); err != nil {
			return err
		}
		c.render()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
}

func (c *consoleREPL) start(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return usage("start <station> <duo|quad> <minutes|unlimited> <player>")
	}
	return c.withStation(args[:1], 1, func(st session.StationView) error {
		req := wire.StartSessionRequest{
			StationID:  st.Station.ID,
			PlayerName: strings.Join(args[3:], " "),
			Mode:       storage.Mode(strings.ToLower(args[1])),
			Kind:       storage.KindLimited,
		}
		if strings.EqualFold(args[2], "unlimited") {
			req.Kind = storage.KindUnlimited
		} else {
			minutes, err := strconv.Atoi(args[2])
			if err != nil {
				return apperr.Validation("time_budget_minutes", "not a number: %q", args[2])
			}
			req.BudgetMinutes = storage.IntPtr(minutes)
		}
		if _, err := c.manager.StartSession(ctx, req); err != nil {
			return err
		}
		c.render()
		return nil
	})
}

func (c *consoleREPL) extend(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("extend <station> <minutes>")
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		return apperr.Validation("additional_minutes", "not a number: %q", args[1])
	}
	return c.withStation(args[:1], 1, func(st session.StationView) error {
		sess, err := c.activeOn(st)
		if err != nil {
			return err
		}
		if _, err := c.manager.ExtendSession(ctx, sess.ID, minutes); err != nil {
			if errors.Is(err, tracker.ErrUnlimited) {
				return apperr.Validation("session", "%s is unlimited", st.Station.Name)
			}
			return err
		}
		c.render()
		return nil
	})
}

func (c *consoleREPL) rate(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("rate <duo|quad> <amount>")
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return apperr.Validation("rate", "not a number: %q", args[1])
	}
	rates, err := c.manager.UpdateRate(ctx, storage.Mode(strings.ToLower(args[0])), amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "rates: duo %s/h, quad %s/h\n",
		report.FormatMoney(rates[storage.ModeDuo], c.export.Currency),
		report.FormatMoney(rates[storage.ModeQuad], c.export.Currency))
	return nil
}

// report loads the report for the optional date at args[i].
func (c *consoleREPL) report(ctx context.Context, args []string, i int) (*report.DailyReport, error) {
	date := time.Now()
	if len(args) > i {
		d, err := report.ParseDate(args[i], c.export.Location)
		if err != nil {
			return nil, apperr.Validation("date", "%v", err)
		}
		date = d
	}
	return c.manager.DailyReport(ctx, date)
}

func (c *consoleREPL) exportReport(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("export <html|markdown> <file> [YYYY-MM-DD]")
	}
	var write func(io.Writer, report.DailyReport, report.ExportOptions) error
	switch strings.ToLower(args[0]) {
	case "html":
		write = report.WriteHTML
	case "markdown", "md":
		write = report.WriteMarkdown
	default:
		return apperr.Validation("format", "unknown export format %q", args[0])
	}

	rep, err := c.report(ctx, args, 2)
	if err != nil {
		return err
	}
	f, err := os.Create(args[1])
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := write(f, *rep, c.export); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	fmt.Fprintf(c.out, "wrote %s\n", args[1])
	return nil
}

// withStation resolves args[0] as a board position, station ID or name.
func (c *consoleREPL) withStation(args []string, want int, fn func(session.StationView) error) error {
	if len(args) != want {
		return usage("<station> is a board number, name or id")
	}
	view := c.manager.View()
	key := args[0]
	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(view.Stations) {
		return fn(view.Stations[n-1])
	}
	for _, st := range view.Stations {
		if st.Station.ID == key || strings.EqualFold(st.Station.Name, key) {
			return fn(st)
		}
	}
	return apperr.NotFound("station", key)
}

func (c *consoleREPL) activeOn(st session.StationView) (storage.Session, error) {
	if st.Session == nil {
		return storage.Session{}, apperr.Validation("station", "%s has no running session", st.Station.Name)
	}
	return st.Session.Session, nil
}

func usage(s string) error {
	return apperr.Validation("usage", "%s", s)
}

const consoleHelp = `Commands:
  board                                   redraw the board
  start <station> <duo|quad> <min|unlimited> <player>
  extend <station> <minutes>              add time to a limited session
  convert <station>                       make a session unlimited
  end <station>                           stop and bill a session
  cost <station>                          show the running cost
  stats                                   today's totals
  report [YYYY-MM-DD]                     print a daily report
  export <html|markdown> <file> [date]    write a daily report
  theme [name]                            show or change the theme
  refresh                                 reload from the server
  admin <secret> / lock                   unlock or lock admin commands
  add-station <name>                      (admin)
  remove-station <station>                (admin)
  rate <duo|quad> <amount>                (admin)
  clear-reports                           (admin)
  quit
<station> is a board number, a station name or an id.
`
