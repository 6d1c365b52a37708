package simulator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/catalog"
	"github.com/signagelab/mrrsim/internal/runlog"
)

// Simulator runs the full generator pipeline: cleanup, provisioning, then
// Steps iterations of advance -> lifecycle events -> snapshot, finishing
// with the run manifest. The cross-step ordering is a hard invariant —
// snapshots taken before a step's events, or against an unsettled clock,
// corrupt the log.
type Simulator struct {
	cfg       Config
	backend   Backend
	prices    *catalog.PriceConfig
	configDir string
}

// Result is everything a completed run produced.
type Result struct {
	Manifest *runlog.Manifest
	Rows     []SnapshotRow
	Events   Totals
}

// New creates a Simulator writing its artifacts under configDir.
func New(cfg Config, backend Backend, prices *catalog.PriceConfig, configDir string) *Simulator {
	return &Simulator{cfg: cfg.withDefaults(), backend: backend, prices: prices, configDir: configDir}
}

// Run executes the whole pipeline. Per-batch provisioning failures and
// per-entity lifecycle failures come back aggregated; a clock settlement
// timeout aborts immediately with no attempt at partial recovery — the
// operator re-runs from cleanup.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	provisioner := NewProvisioner(s.cfg, s.backend, s.prices)

	if err := provisioner.Cleanup(ctx); err != nil {
		return nil, fmt.Errorf("pre-run cleanup: %w", err)
	}

	pop, err := provisioner.Provision(ctx)
	if err != nil {
		return nil, fmt.Errorf("provisioning: %w", err)
	}

	// Identifiers are known as soon as provisioning finishes; persist the
	// manifest before the long advance loop so a partial run still leaves
	// downstream filtering usable.
	customerIDs := make([]string, 0, len(pop.Customers))
	for _, c := range pop.Customers {
		customerIDs = append(customerIDs, c.ID)
	}
	clockIDs := make([]string, 0, len(pop.Clocks))
	for _, c := range pop.Clocks {
		clockIDs = append(clockIDs, c.ID)
	}
	manifest := runlog.NewManifest(customerIDs, clockIDs)
	if err := manifest.Save(s.configDir); err != nil {
		return nil, fmt.Errorf("write run manifest: %w", err)
	}

	advancer := NewAdvancer(s.cfg, s.backend)
	engine := NewEngine(s.cfg, s.backend, s.prices)
	recorder := NewRecorder(s.configDir)

	for step := 1; step <= s.cfg.Steps; step++ {
		if err := advancer.AdvanceAll(ctx, pop, step); err != nil {
			return nil, fmt.Errorf("advance: %w", err)
		}
		if _, err := engine.ApplyStep(ctx, pop, step); err != nil {
			return nil, fmt.Errorf("lifecycle: %w", err)
		}
		if _, err := recorder.RecordStep(pop, s.cfg.monthLabel(step)); err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
	}

	totals := engine.Totals()
	log.Info().
		Str("run_id", manifest.RunID).
		Int("customers", len(pop.Customers)).
		Int("clocks", len(pop.Clocks)).
		Int("snapshot_rows", len(recorder.Rows())).
		Int("upgrades", totals.Upgrades).
		Int("downgrades", totals.Downgrades).
		Int("cancellations", totals.Cancellations).
		Int("payment_failures", totals.PaymentFailures).
		Msg("Generator run complete")

	return &Result{Manifest: manifest, Rows: recorder.Rows(), Events: totals}, nil
}
