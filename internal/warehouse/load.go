package warehouse

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/billing"
	"github.com/signagelab/mrrsim/internal/simulator"
)

// LoadSnapshots replaces the snapshot_rows table with the given rows.
// Full-replace inside one transaction keeps repeated ETL runs idempotent
// and readers never see a half-loaded table.
func (w *DB) LoadSnapshots(rows []simulator.SnapshotRow) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM snapshot_rows`); err != nil {
		return fmt.Errorf("truncate snapshot_rows: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO snapshot_rows (
			month, customer_id, subscription_id, plan,
			price_amount, screens, mrr_cents, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(
			row.Month, row.CustomerID, row.SubscriptionID, row.Plan,
			row.PriceCents, row.Screens, row.MRRCents, row.Status,
		); err != nil {
			return fmt.Errorf("insert snapshot row %s/%s: %w", row.Month, row.SubscriptionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot load: %w", err)
	}
	log.Info().Int("rows", len(rows)).Msg("Snapshot rows loaded into warehouse")
	return nil
}

// LoadInvoices replaces the raw_invoices reference table.
func (w *DB) LoadInvoices(records []billing.InvoiceRecord) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin invoice load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM raw_invoices`); err != nil {
		return fmt.Errorf("truncate raw_invoices: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO raw_invoices (
			invoice_id, customer_id, subscription_id, status,
			amount_paid, currency, price_id, period_start, period_end, created
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare invoice insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(
			rec.InvoiceID, rec.CustomerID, rec.SubscriptionID, rec.Status,
			rec.AmountPaid, rec.Currency, rec.PriceID,
			rec.PeriodStart.Unix(), rec.PeriodEnd.Unix(), rec.Created.Unix(),
		); err != nil {
			return fmt.Errorf("insert invoice %s: %w", rec.InvoiceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invoice load: %w", err)
	}
	log.Info().Int("invoices", len(records)).Msg("Reference invoices loaded into warehouse")
	return nil
}

// LoadSubscriptions replaces the raw_subscriptions reference table.
func (w *DB) LoadSubscriptions(records []billing.SubscriptionRecord) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin subscription load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM raw_subscriptions`); err != nil {
		return fmt.Errorf("truncate raw_subscriptions: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO raw_subscriptions (
			subscription_id, customer_id, status, price_id, price_cents,
			billing_interval, quantity, current_period_start, current_period_end,
			created, canceled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare subscription insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var canceledAt any
		if rec.CanceledAt != nil {
			canceledAt = rec.CanceledAt.Unix()
		}
		if _, err := stmt.Exec(
			rec.SubscriptionID, rec.CustomerID, rec.Status, rec.PriceID, rec.PriceCents,
			rec.Interval, rec.Quantity, rec.CurrentPeriodStart.Unix(), rec.CurrentPeriodEnd.Unix(),
			rec.Created.Unix(), canceledAt,
		); err != nil {
			return fmt.Errorf("insert subscription %s: %w", rec.SubscriptionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subscription load: %w", err)
	}
	log.Info().Int("subscriptions", len(records)).Msg("Reference subscriptions loaded into warehouse")
	return nil
}
