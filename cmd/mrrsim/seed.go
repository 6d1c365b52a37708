package main

import (
	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/catalog"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the product catalog in Stripe and write the price map",
	Long:  `Ensures one product and one monthly per-screen price exist for every catalog tier, reusing whatever already exists, and writes the price map artifact. Safe to re-run.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		client, err := newBillingClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create billing client")
		}

		ctx, cancel := signalContext()
		defer cancel()

		prices, err := catalog.Seed(ctx, client, cfg.ConfigDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Seeding failed")
		}
		log.Info().
			Int("tiers", len(prices.PriceIDs)).
			Str("path", catalog.PriceConfigPath(cfg.ConfigDir)).
			Msg("Catalog seeded")
	},
}
