package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goodtune/gamehall/internal/config"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	reportDate   string
	reportFormat string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a daily revenue report from the server storage",
	Long:  `Aggregate one business day straight from the server's storage and write it as Markdown or HTML.`,
	Example: `  gamehall report --date 2024-03-01
  gamehall report --format html --output march-1.html --date 2024-03-01`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Business day as YYYY-MM-DD (defaults to today)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown", "Output format: markdown or html")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var write func(io.Writer, report.DailyReport, report.ExportOptions) error
	switch strings.ToLower(reportFormat) {
	case "markdown", "md":
		write = report.WriteMarkdown
	case "html":
		write = report.WriteHTML
	default:
		return fmt.Errorf("unsupported format: %s (must be markdown or html)", reportFormat)
	}

	// Keep stdout clean for the report itself.
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	svc, err := newHallService(cmd.Context(), cfg, store, logger)
	if err != nil {
		return err
	}

	date := svc.Now()
	if reportDate != "" {
		date, err = report.ParseDate(reportDate, svc.Location())
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
	}

	rep, err := svc.DailyReport(cmd.Context(), date)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	out := io.Writer(os.Stdout)
	if reportOutput != "" {
		f, err := os.Create(reportOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := write(out, *rep, exportOptions(cfg)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if reportOutput != "" {
		fmt.Fprintf(os.Stderr, "Report for %s written to %s\n", rep.Date, reportOutput)
	}
	return nil
}
