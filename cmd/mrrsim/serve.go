package main

import (
	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/api"
	"github.com/signagelab/mrrsim/internal/warehouse"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the warehouse aggregates over HTTP",
	Long:  `Starts the read-only query API over the warehouse views, plus Prometheus metrics. Stripe is never touched.`,
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

		ctx, cancel := signalContext()
		defer cancel()

		if err := api.NewServer(wh).Serve(ctx, cfg.ListenAddr); err != nil {
			log.Fatal().Err(err).Msg("Query API failed")
		}
	},
}
