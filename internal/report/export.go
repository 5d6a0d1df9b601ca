package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// ExportOptions controls document layout.
type ExportOptions struct {
	Title       string
	Currency    string
	RowsPerPage int
	Location    *time.Location
}

func (o ExportOptions) withDefaults() ExportOptions {
	if o.Title == "" {
		o.Title = "Daily Revenue Report"
	}
	if o.RowsPerPage <= 0 {
		o.RowsPerPage = 25
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

const pageBreak = "<!-- page-break -->"

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Table,
	),
	goldmark.WithRendererOptions(
		// Page break markers are emitted as raw HTML comments.
		htmlrenderer.WithUnsafe(),
	),
)

// WriteMarkdown writes the report as a paged Markdown document. Each page
// repeats the table header and ends with a page footer.
func WriteMarkdown(w io.Writer, rep DailyReport, opts ExportOptions) error {
	opts = opts.withDefaults()

	pages := paginate(rep.Sessions, opts.RowsPerPage)
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escapeCell(opts.Title))
	fmt.Fprintf(&b, "**Date:** %s  \n", rep.Date)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", rep.GeneratedAt.In(opts.Location).Format("2006-01-02 15:04"))
	if rep.Estimate {
		b.WriteString("> Figures marked * belong to sessions still running and are estimates.\n\n")
	}

	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n" + pageBreak + "\n\n")
		}
		b.WriteString("| # | Station | Player | Mode | Start | End | Minutes | Rate | Cost |\n")
		b.WriteString("|---:|---|---|---|---|---|---:|---:|---:|\n")
		for j, item := range page {
			row := i*opts.RowsPerPage + j + 1
			end := "running"
			if item.EndTime != nil {
				end = item.EndTime.In(opts.Location).Format("15:04")
			}
			marker := ""
			if item.IsEstimate {
				marker = "*"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %d | %s | %s%s |\n",
				row,
				escapeCell(item.StationName),
				escapeCell(item.PlayerName),
				item.Mode,
				item.StartTime.In(opts.Location).Format("15:04"),
				end,
				item.Minutes,
				FormatMoney(item.Rate, opts.Currency),
				FormatMoney(item.Cost, opts.Currency),
				marker,
			)
		}
		fmt.Fprintf(&b, "\n_Page %d of %d_\n", i+1, len(pages))
	}

	b.WriteString("\n## Totals\n\n")
	b.WriteString("| Sessions | Minutes | Revenue |\n")
	b.WriteString("|---:|---:|---:|\n")
	estimate := ""
	if rep.Estimate {
		estimate = "*"
	}
	fmt.Fprintf(&b, "| %d | %d | %s%s |\n", rep.TotalSessions, rep.TotalMinutes, FormatMoney(rep.TotalRevenue, opts.Currency), estimate)

	_, err := io.WriteString(w, b.String())
	return err
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.Date}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #111; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1em; }
th, td { border: 1px solid #999; padding: 4px 8px; font-size: 12px; }
th { background: #eee; }
.page-break { page-break-after: always; break-after: page; }
@media print { body { margin: 0; } }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// WriteHTML writes a self-contained printable HTML document built from
// the paged Markdown rendering.
func WriteHTML(w io.Writer, rep DailyReport, opts ExportOptions) error {
	opts = opts.withDefaults()

	var md bytes.Buffer
	if err := WriteMarkdown(&md, rep, opts); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := markdownEngine.Convert(md.Bytes(), &body); err != nil {
		return fmt.Errorf("render report markdown: %w", err)
	}
	rendered := strings.ReplaceAll(body.String(), pageBreak, `<div class="page-break"></div>`)

	return htmlTemplate.Execute(w, struct {
		Title string
		Date  string
		Body  template.HTML
	}{
		Title: opts.Title,
		Date:  rep.Date,
		Body:  template.HTML(rendered),
	})
}

func paginate(items []LineItem, size int) [][]LineItem {
	if len(items) == 0 {
		return [][]LineItem{nil}
	}
	pages := make([][]LineItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		pages = append(pages, items[start:end])
	}
	return pages
}

// escapeCell keeps user text from breaking the table or injecting markup.
func escapeCell(s string) string {
	r := strings.NewReplacer("|", `\|`, "\n", " ", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// FormatMoney formats an amount with thousands separators.
func FormatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if currency == "" {
		return sign + b.String()
	}
	return sign + b.String() + " " + currency
}
