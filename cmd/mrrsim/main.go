package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/signagelab/mrrsim/internal/billing"
	"github.com/signagelab/mrrsim/internal/config"
	"github.com/signagelab/mrrsim/internal/logging"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "mrrsim",
	Short:   "mrrsim - simulated SaaS billing history generator",
	Long:    `mrrsim drives a multi-month subscription billing history through Stripe test clocks and serves the resulting MRR analytics`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(etlCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mrrsim %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the configured logger.
func setup() (*config.Config, error) {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "mrrsim"})

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "mrrsim",
	})
	return cfg, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx, cancel
}

// newBillingClient builds the throttled Stripe client, refusing to start
// without a test-mode key.
func newBillingClient(cfg *config.Config) (*billing.Client, error) {
	if err := cfg.RequireStripeKey(); err != nil {
		return nil, err
	}
	policy := billing.Policy{
		RequestsPerSec: cfg.RequestsPerSec,
		Burst:          cfg.RequestBurst,
		MaxConcurrency: cfg.Workers,
		CallTimeout:    cfg.CallTimeout,
	}
	return billing.NewClient(cfg.StripeSecretKey, policy), nil
}
