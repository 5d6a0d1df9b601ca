package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/gamehall/internal/billing"
	"github.com/goodtune/gamehall/internal/config"
	"github.com/goodtune/gamehall/internal/remote"
	"github.com/goodtune/gamehall/internal/render"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkMode    string
	checkMinutes float64
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check billing and server connectivity",
	Long:  `Check what a session would cost, or whether the console can reach the API server.`,
}

var checkCostCmd = &cobra.Command{
	Use:   "cost",
	Short: "Show what a session would cost at the configured rates",
	Example: `  gamehall check cost --mode duo --minutes 95
  gamehall -c config.yaml check cost --mode quad --minutes 30`,
	RunE: runCheckCost,
}

var checkServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Log in to the API server and report its health",
	RunE:  runCheckServer,
}

func init() {
	checkCostCmd.Flags().StringVar(&checkMode, "mode", "duo", "Play mode (duo or quad)")
	checkCostCmd.Flags().Float64Var(&checkMinutes, "minutes", 60, "Elapsed minutes")

	checkCmd.AddCommand(checkCostCmd)
	checkCmd.AddCommand(checkServerCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckCost(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	mode := storage.Mode(strings.ToLower(checkMode))
	if !mode.Valid() {
		return fmt.Errorf("invalid mode: %s (must be duo or quad)", checkMode)
	}

	rates := billing.NewRateTable(configuredRates(cfg.Billing), cfg.Billing.MinRate, cfg.Billing.MaxRate)
	printCostResult(os.Stdout, mode, checkMinutes, rates.Rate(mode), rates.Cost(checkMinutes, mode), cfg.Billing.Currency)
	return nil
}

func printCostResult(w io.Writer, mode storage.Mode, minutes float64, rate, cost int64, currency string) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	fmt.Fprintln(w)
	cyan.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Fprintln(w, "SESSION COST CHECK")
	cyan.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Mode:       %s\n", mode)
	fmt.Fprintf(w, "Elapsed:    %s (%.2f minutes)\n", render.FormatMinutes(int64(minutes)), minutes)
	fmt.Fprintf(w, "Rate:       %s per hour\n", report.FormatMoney(rate, currency))
	fmt.Fprintln(w)

	cyan.Fprint(w, "Cost:       ")
	green.Fprintln(w, report.FormatMoney(cost, currency))
	fmt.Fprintln(w, "            → rounded up to the next whole unit")

	fmt.Fprintln(w)
	cyan.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(w)
}

func runCheckServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
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

	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Printf("Server:     %s\n", cfg.Console.ServerURL)
	fmt.Print("Health:     ")
	if err := client.Health(ctx); err != nil {
		red.Println("UNREACHABLE")
		return err
	}
	green.Println("OK")

	fmt.Print("Login:      ")
	if err := client.Login(ctx); err != nil {
		red.Println("FAILED")
		return err
	}
	green.Println("OK")

	stations, err := client.Stations(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Stations:   %d\n", len(stations))
	return nil
}
