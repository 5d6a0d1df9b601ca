package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/session"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/tracker"
)

// Options configures a Board.
type Options struct {
	Title    string
	Currency string
	NoColor  bool
}

// Board draws console views. It holds no session state; every call
// renders from the view it is given.
type Board struct {
	opts Options
}

func NewBoard(opts Options) *Board {
	if opts.Title == "" {
		opts.Title = "Game Hall"
	}
	return &Board{opts: opts}
}

func (b *Board) theme(name string) Theme {
	t := LookupTheme(name)
	if b.opts.NoColor {
		return t.disable()
	}
	return t
}

var columns = []string{"STATION", "STATUS", "PLAYER", "MODE", "TIME", "ELAPSED", "REMAINING", "RATE", "COST"}

type cell struct {
	text  string
	paint *color.Color
}

// Render writes the full board for v.
func (b *Board) Render(w io.Writer, v session.View) error {
	t := b.theme(v.Theme)

	var out strings.Builder
	b.header(&out, t, v)

	rows := make([][]cell, 0, len(v.Stations))
	for _, st := range v.Stations {
		rows = append(rows, b.row(t, st))
	}

	widths := make([]int, len(columns))
	for i, h := range columns {
		widths[i] = len(h)
	}
	for _, r := range rows {
		for i, c := range r {
			if n := len([]rune(c.text)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	for i, h := range columns {
		out.WriteString(t.Header.Sprint(pad(h, widths[i])))
		out.WriteString(separator(i))
	}
	out.WriteByte('\n')
	for _, r := range rows {
		for i, c := range r {
			out.WriteString(c.paint.Sprint(pad(c.text, widths[i])))
			out.WriteString(separator(i))
		}
		out.WriteByte('\n')
	}
	if len(rows) == 0 {
		out.WriteString(t.Muted.Sprint("No stations configured."))
		out.WriteByte('\n')
	}

	_, err := io.WriteString(w, out.String())
	return err
}

func (b *Board) header(out *strings.Builder, t Theme, v session.View) {
	out.WriteString(t.Header.Sprint(b.opts.Title))
	out.WriteString("  ")
	switch {
	case !v.HasRemote:
		out.WriteString(t.Muted.Sprint("[local]"))
	case v.Online:
		out.WriteString(t.Available.Sprint("[online]"))
	default:
		out.WriteString(t.Danger.Sprint("[offline]"))
	}
	out.WriteString("  ")
	out.WriteString(t.Text.Sprint(v.At.Format("2006-01-02 15:04:05")))
	if v.AdminUnlocked {
		out.WriteString("  ")
		out.WriteString(t.Warning.Sprint("[admin]"))
	}
	out.WriteByte('\n')

	out.WriteString(t.Muted.Sprint(fmt.Sprintf("Rates: duo %s/h  quad %s/h",
		report.FormatMoney(v.Rates[storage.ModeDuo], b.opts.Currency),
		report.FormatMoney(v.Rates[storage.ModeQuad], b.opts.Currency))))
	out.WriteByte('\n')

	if v.Stats != nil {
		estimate := ""
		if v.Stats.Estimate {
			estimate = " (estimate)"
		}
		out.WriteString(t.Text.Sprint(fmt.Sprintf("Today: %d active, %s played, revenue %s%s",
			v.Stats.ActiveSessions,
			FormatMinutes(v.Stats.TodayMinutes),
			report.FormatMoney(v.Stats.TodayRevenue, b.opts.Currency),
			estimate)))
		out.WriteByte('\n')
	}
	out.WriteByte('\n')
}

func (b *Board) row(t Theme, st session.StationView) []cell {
	if st.Session == nil {
		return []cell{
			{st.Station.Name, t.Text},
			{string(storage.StationAvailable), t.Available},
			{"-", t.Muted},
			{"-", t.Muted},
			{"-", t.Muted},
			{"-", t.Muted},
			{"-", t.Muted},
			{"-", t.Muted},
			{"-", t.Muted},
		}
	}

	sv := st.Session
	sess := sv.Session

	timeCol := "unlimited"
	if sess.Limited() {
		timeCol = FormatMinutes(int64(*sess.BudgetMinutes))
	}

	remaining := cell{"--", t.Muted}
	if sv.HasRemaining {
		remaining = cell{FormatClock(SmoothRemaining(sv.Remaining)), levelColor(t, sv.Level)}
		if sv.Level == tracker.LevelExpired {
			remaining.text = "TIME UP"
		}
	}

	status := string(storage.StationOccupied)
	if sv.Pending {
		status += "*"
	}

	player := sess.PlayerName
	if player == "" {
		player = "-"
	}

	return []cell{
		{st.Station.Name, t.Text},
		{status, t.Occupied},
		{player, t.Text},
		{string(sess.Mode), t.Text},
		{timeCol, t.Text},
		{FormatClock(sv.Elapsed), t.Text},
		remaining,
		{report.FormatMoney(sv.Rate, b.opts.Currency) + "/h", t.Muted},
		{report.FormatMoney(sv.CurrentCost, b.opts.Currency), t.Text},
	}
}

func levelColor(t Theme, l tracker.Level) *color.Color {
	switch l {
	case tracker.LevelWarning:
		return t.Warning
	case tracker.LevelDanger:
		return t.Danger
	case tracker.LevelExpired:
		return t.Expired
	default:
		return t.Text
	}
}

// RenderEvents writes one line per notification.
func (b *Board) RenderEvents(w io.Writer, theme string, events []session.Event) error {
	if len(events) == 0 {
		return nil
	}
	t := b.theme(theme)
	var out strings.Builder
	for _, e := range events {
		paint, label := t.Text, "info"
		switch e.Kind {
		case session.EventError:
			paint, label = t.Danger, "error"
		case session.EventRollback:
			paint, label = t.Warning, "rolled back"
		case session.EventTimeUp:
			paint, label = t.Expired, "TIME UP"
		case session.EventOffline:
			paint, label = t.Danger, "offline"
		case session.EventOnline:
			paint, label = t.Available, "online"
		}
		fmt.Fprintf(&out, "%s %s %s\n",
			t.Muted.Sprint(e.At.Format("15:04:05")),
			paint.Sprint("["+label+"]"),
			e.Message)
	}
	_, err := io.WriteString(w, out.String())
	return err
}

func pad(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func separator(i int) string {
	if i == len(columns)-1 {
		return ""
	}
	return "  "
}
