// Package warehouse stores ETL output in a local SQLite database and
// serves the aggregate queries behind the read API and the PDF report.
package warehouse

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the analytics database. All loads are full-replace: re-running
// the ETL against the same run is idempotent.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the warehouse database in dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create warehouse dir: %w", err)
	}

	dbPath := filepath.Join(dir, "warehouse.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	w := &DB{db: db}
	if err := w.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshot_rows (
		month           TEXT NOT NULL,
		customer_id     TEXT NOT NULL,
		subscription_id TEXT NOT NULL,
		plan            TEXT NOT NULL,
		price_amount    INTEGER NOT NULL,
		screens         INTEGER NOT NULL,
		mrr_cents       INTEGER NOT NULL,
		status          TEXT NOT NULL,
		PRIMARY KEY (month, subscription_id)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshot_rows_month ON snapshot_rows(month);
	CREATE INDEX IF NOT EXISTS idx_snapshot_rows_plan ON snapshot_rows(plan);

	CREATE TABLE IF NOT EXISTS raw_invoices (
		invoice_id      TEXT PRIMARY KEY,
		customer_id     TEXT NOT NULL DEFAULT '',
		subscription_id TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT '',
		amount_paid     INTEGER NOT NULL DEFAULT 0,
		currency        TEXT NOT NULL DEFAULT '',
		price_id        TEXT NOT NULL DEFAULT '',
		period_start    INTEGER NOT NULL DEFAULT 0,
		period_end      INTEGER NOT NULL DEFAULT 0,
		created         INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS raw_subscriptions (
		subscription_id      TEXT PRIMARY KEY,
		customer_id          TEXT NOT NULL DEFAULT '',
		status               TEXT NOT NULL DEFAULT '',
		price_id             TEXT NOT NULL DEFAULT '',
		price_cents          INTEGER NOT NULL DEFAULT 0,
		billing_interval     TEXT NOT NULL DEFAULT '',
		quantity             INTEGER NOT NULL DEFAULT 0,
		current_period_start INTEGER NOT NULL DEFAULT 0,
		current_period_end   INTEGER NOT NULL DEFAULT 0,
		created              INTEGER NOT NULL DEFAULT 0,
		canceled_at          INTEGER
	);

	CREATE VIEW IF NOT EXISTS mrr_monthly AS
		SELECT month,
		       SUM(mrr_cents) AS mrr_cents,
		       COUNT(*) AS subscriptions
		FROM snapshot_rows
		GROUP BY month
		ORDER BY month;

	CREATE VIEW IF NOT EXISTS mrr_by_plan AS
		SELECT month,
		       plan,
		       SUM(mrr_cents) AS mrr_cents,
		       COUNT(*) AS subscriptions
		FROM snapshot_rows
		GROUP BY month, plan
		ORDER BY month, plan;

	CREATE VIEW IF NOT EXISTS arppu_monthly AS
		SELECT month,
		       COUNT(DISTINCT customer_id) AS paying_customers,
		       CAST(SUM(mrr_cents) / COUNT(DISTINCT customer_id) AS INTEGER) AS arppu_cents
		FROM snapshot_rows
		WHERE mrr_cents > 0
		GROUP BY month
		ORDER BY month;

	CREATE VIEW IF NOT EXISTS customers_by_plan AS
		SELECT month,
		       plan,
		       COUNT(DISTINCT customer_id) AS customers
		FROM snapshot_rows
		GROUP BY month, plan
		ORDER BY month, plan;
	`
	if _, err := w.db.Exec(schema); err != nil {
		return fmt.Errorf("init warehouse schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used by the API health endpoint).
func (w *DB) Ping() error {
	return w.db.Ping()
}

// Close closes the underlying database connection.
func (w *DB) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
