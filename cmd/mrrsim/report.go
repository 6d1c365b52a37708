package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/report"
	"github.com/signagelab/mrrsim/internal/runlog"
	"github.com/signagelab/mrrsim/internal/warehouse"
	"github.com/spf13/cobra"
)

var reportOutput string

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "output path (default <data-dir>/mrr_report.pdf)")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a PDF summary of the warehouse aggregates",
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

		data := &report.Data{GeneratedAt: time.Now()}
		if manifest, err := runlog.Load(cfg.ConfigDir); err == nil {
			data.RunID = manifest.RunID
		}
		if data.MRR, err = wh.MRRMonthly(); err != nil {
			log.Fatal().Err(err).Msg("Failed to query monthly MRR")
		}
		if data.MRRByPlan, err = wh.MRRByPlan(); err != nil {
			log.Fatal().Err(err).Msg("Failed to query MRR by plan")
		}
		if data.ARPPU, err = wh.ARPPUMonthly(); err != nil {
			log.Fatal().Err(err).Msg("Failed to query ARPPU")
		}
		if data.PlanCustomers, err = wh.CustomersByPlan(); err != nil {
			log.Fatal().Err(err).Msg("Failed to query customers by plan")
		}

		out, err := report.NewGenerator().Generate(data)
		if err != nil {
			log.Fatal().Err(err).Msg("Report generation failed")
		}

		path := reportOutput
		if path == "" {
			path = filepath.Join(cfg.DataDir, "mrr_report.pdf")
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write report")
		}
		log.Info().Str("path", path).Int("bytes", len(out)).Msg("Report written")
	},
}
