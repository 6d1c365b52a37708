package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/catalog"
	"github.com/signagelab/mrrsim/internal/simulator"
	"github.com/signagelab/mrrsim/internal/validate"
	"github.com/spf13/cobra"
)

var validateJSON bool

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the full report as JSON")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Cross-check the latest snapshot month against live Stripe state",
	Long:  `Fetches every subscription from the latest snapshot month and compares plan, screen count, unit price, and status. Payment-failure entities the backend has auto-canceled count as expected divergences, not errors.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		client, err := newBillingClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create billing client")
		}
		prices, err := catalog.LoadPriceConfig(cfg.ConfigDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load price map")
		}
		rows, err := simulator.LoadSnapshots(cfg.ConfigDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load snapshot log")
		}

		ctx, cancel := signalContext()
		defer cancel()

		report, err := validate.New(client, prices, cfg.Workers).Run(ctx, rows)
		if err != nil {
			log.Fatal().Err(err).Msg("Validation failed")
		}

		if validateJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				log.Fatal().Err(err).Msg("Failed to encode report")
			}
		}

		if !report.OK() {
			for _, m := range report.Mismatches {
				log.Error().
					Str("subscription_id", m.SubscriptionID).
					Str("field", m.Field).
					Str("local", m.Local).
					Str("backend", m.Backend).
					Msg("Snapshot disagrees with backend")
			}
			fmt.Fprintf(os.Stderr, "validation failed: %d mismatches\n", len(report.Mismatches))
			os.Exit(1)
		}
	},
}
