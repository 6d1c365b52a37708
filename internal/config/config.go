// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the commands need. Values come from environment
// variables (a .env file is honored when present); cobra flags may override
// individual fields afterwards.
type Config struct {
	// StripeSecretKey authenticates against the billing backend. Must be a
	// test-mode key: the simulator creates and deletes test clocks.
	StripeSecretKey string

	// ConfigDir holds the run artifacts (price map, manifest, snapshots).
	ConfigDir string
	// DataDir holds the warehouse database.
	DataDir string

	// Generator shape.
	TargetCustomers int
	ClockCapacity   int
	Steps           int
	Upgrades        int
	Downgrades      int
	Cancellations   int
	PaymentFailures int
	Seed            int64

	// Backend throttling.
	Workers        int
	RequestsPerSec float64
	RequestBurst   int
	CallTimeout    time.Duration
	SettleTimeout  time.Duration

	// Query API.
	ListenAddr string

	LogLevel  string
	LogFormat string
}

// Load reads configuration, applying defaults for anything unset.
func Load() (*Config, error) {
	// Best effort; a missing .env file is fine.
	_ = godotenv.Load()

	cfg := &Config{
		StripeSecretKey: strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		ConfigDir:       envStr("MRRSIM_CONFIG_DIR", "config"),
		DataDir:         envStr("MRRSIM_DATA_DIR", "data"),
		TargetCustomers: envInt("MRRSIM_CUSTOMERS", 100),
		ClockCapacity:   envInt("MRRSIM_CLOCK_CAPACITY", 3),
		Steps:           envInt("MRRSIM_STEPS", 6),
		Upgrades:        envInt("MRRSIM_UPGRADES", 15),
		Downgrades:      envInt("MRRSIM_DOWNGRADES", 2),
		Cancellations:   envInt("MRRSIM_CANCELLATIONS", 8),
		PaymentFailures: envInt("MRRSIM_PAYMENT_FAILURES", 3),
		Seed:            int64(envInt("MRRSIM_SEED", 0)),
		Workers:         envInt("MRRSIM_WORKERS", 4),
		RequestsPerSec:  envFloat("MRRSIM_REQUESTS_PER_SEC", 8),
		RequestBurst:    envInt("MRRSIM_REQUEST_BURST", 4),
		CallTimeout:     envDuration("MRRSIM_CALL_TIMEOUT", 30*time.Second),
		SettleTimeout:   envDuration("MRRSIM_SETTLE_TIMEOUT", 5*time.Minute),
		ListenAddr:      envStr("MRRSIM_LISTEN", ":8888"),
		LogLevel:        envStr("MRRSIM_LOG_LEVEL", "info"),
		LogFormat:       envStr("MRRSIM_LOG_FORMAT", "auto"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects shapes the generator cannot run with. The Stripe key is
// checked separately by commands that actually touch the backend.
func (c *Config) Validate() error {
	if c.TargetCustomers <= 0 {
		return fmt.Errorf("customer count must be positive, got %d", c.TargetCustomers)
	}
	if c.ClockCapacity <= 0 {
		return fmt.Errorf("clock capacity must be positive, got %d", c.ClockCapacity)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("step count must be positive, got %d", c.Steps)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.Workers)
	}
	if c.RequestsPerSec <= 0 {
		return fmt.Errorf("request rate must be positive, got %g", c.RequestsPerSec)
	}
	total := c.Upgrades + c.Downgrades + c.Cancellations + c.PaymentFailures
	if total > c.TargetCustomers {
		return fmt.Errorf("event quota %d exceeds customer count %d", total, c.TargetCustomers)
	}
	return nil
}

// RequireStripeKey returns an error if no test-mode secret key is configured.
func (c *Config) RequireStripeKey() error {
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is not set")
	}
	if strings.HasPrefix(c.StripeSecretKey, "sk_live_") {
		return fmt.Errorf("refusing to run against a live-mode key")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
