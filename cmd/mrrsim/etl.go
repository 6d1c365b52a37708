package main

import (
	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/etl"
	"github.com/signagelab/mrrsim/internal/warehouse"
	"github.com/spf13/cobra"
)

var etlSkipReference bool

func init() {
	etlCmd.Flags().BoolVar(&etlSkipReference, "skip-reference", false, "load snapshots only, without importing backend invoices and subscriptions")
}

var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Load run artifacts and backend reference data into the warehouse",
	Long:  `Loads the snapshot log into the warehouse and imports the run's invoices and subscriptions from Stripe as reference tables. Both loads are full-replace, so re-running is safe.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}

		wh, err := warehouse.Open(cfg.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open warehouse")
		}
		defer wh.Close()

		var source etl.Source
		if !etlSkipReference {
			client, err := newBillingClient(cfg)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create billing client")
			}
			source = client
		}

		ctx, cancel := signalContext()
		defer cancel()

		if err := etl.New(wh, source, cfg.ConfigDir).Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("ETL failed")
		}

		snapshots, invoices, subs, err := wh.Counts()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read warehouse counts")
		}
		log.Info().
			Int("snapshot_rows", snapshots).
			Int("invoices", invoices).
			Int("subscriptions", subs).
			Msg("ETL complete")
	},
}
