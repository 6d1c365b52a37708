// Package etl moves generator artifacts and backend reference data into
// the warehouse.
package etl

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/billing"
	"github.com/signagelab/mrrsim/internal/runlog"
	"github.com/signagelab/mrrsim/internal/simulator"
	"github.com/signagelab/mrrsim/internal/warehouse"
)

// Source is the slice of the billing backend the reference import reads.
type Source interface {
	SearchInvoices(ctx context.Context) ([]billing.InvoiceRecord, error)
	SearchSubscriptions(ctx context.Context) ([]billing.SubscriptionRecord, error)
}

// Pipeline drives the two ETL stages. The snapshot stage is authoritative
// for MRR; the reference stage merely mirrors backend objects for
// inspection and is skipped when no source is configured.
type Pipeline struct {
	wh        *warehouse.DB
	source    Source
	configDir string
}

// New creates a Pipeline. source may be nil for snapshot-only loads.
func New(wh *warehouse.DB, source Source, configDir string) *Pipeline {
	return &Pipeline{wh: wh, source: source, configDir: configDir}
}

// Run loads the snapshot log and, when a source is available, the backend
// reference tables. Both stages are full-replace and safe to re-run.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.loadSnapshots(); err != nil {
		return err
	}
	if p.source == nil {
		log.Info().Msg("No billing source configured; skipping reference import")
		return nil
	}
	return p.importReference(ctx)
}

func (p *Pipeline) loadSnapshots() error {
	rows, err := simulator.LoadSnapshots(p.configDir)
	if err != nil {
		return fmt.Errorf("load snapshot log: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("snapshot log is empty; run generate first")
	}
	if err := p.wh.LoadSnapshots(rows); err != nil {
		return fmt.Errorf("load snapshots into warehouse: %w", err)
	}
	return nil
}

// importReference pulls invoices and subscriptions from the backend and
// keeps only the ones belonging to the current run. The account may hold
// leftovers from aborted runs or unrelated test data; the run manifest is
// the membership filter.
func (p *Pipeline) importReference(ctx context.Context) error {
	manifest, err := runlog.Load(p.configDir)
	if err != nil {
		return fmt.Errorf("load run manifest: %w", err)
	}

	invoices, err := p.source.SearchInvoices(ctx)
	if err != nil {
		return fmt.Errorf("import invoices: %w", err)
	}
	kept := invoices[:0]
	for _, inv := range invoices {
		if manifest.ContainsCustomer(inv.CustomerID) {
			kept = append(kept, inv)
		}
	}
	if err := p.wh.LoadInvoices(kept); err != nil {
		return fmt.Errorf("load invoices into warehouse: %w", err)
	}
	log.Info().
		Int("fetched", len(invoices)).
		Int("kept", len(kept)).
		Msg("Reference invoices imported")

	subs, err := p.source.SearchSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("import subscriptions: %w", err)
	}
	keptSubs := subs[:0]
	for _, sub := range subs {
		if manifest.ContainsCustomer(sub.CustomerID) {
			keptSubs = append(keptSubs, sub)
		}
	}
	if err := p.wh.LoadSubscriptions(keptSubs); err != nil {
		return fmt.Errorf("load subscriptions into warehouse: %w", err)
	}
	log.Info().
		Int("fetched", len(subs)).
		Int("kept", len(keptSubs)).
		Msg("Reference subscriptions imported")
	return nil
}
