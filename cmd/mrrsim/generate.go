package main

import (
	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/catalog"
	"github.com/signagelab/mrrsim/internal/simulator"
	"github.com/spf13/cobra"
)

var generateProgress bool

func init() {
	generateCmd.Flags().BoolVar(&generateProgress, "progress", true, "show progress bars on long phases")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the full billing history generation",
	Long:  `Deletes leftover test clocks, provisions the customer population, then advances every clock month by month, applying lifecycle events and recording a local MRR snapshot after each step. Writes the snapshot log and run manifest.`,
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

		ctx, cancel := signalContext()
		defer cancel()

		simCfg := simulator.Config{
			Customers:       cfg.TargetCustomers,
			ClockCapacity:   cfg.ClockCapacity,
			Steps:           cfg.Steps,
			Upgrades:        cfg.Upgrades,
			Downgrades:      cfg.Downgrades,
			Cancellations:   cfg.Cancellations,
			PaymentFailures: cfg.PaymentFailures,
			Workers:         cfg.Workers,
			Seed:            cfg.Seed,
			SettleTimeout:   cfg.SettleTimeout,
			Progress:        generateProgress,
		}
		sim := simulator.New(simCfg, client, prices, cfg.ConfigDir)
		res, err := sim.Run(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Generation failed")
		}

		log.Info().
			Str("run_id", res.Manifest.RunID).
			Str("snapshot_log", simulator.SnapshotPath(cfg.ConfigDir)).
			Msg("Generation complete")
	},
}
