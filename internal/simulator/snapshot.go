package simulator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/catalog"
	"github.com/signagelab/mrrsim/internal/simmetrics"
)

// SnapshotRow is one immutable (month, subscription) record. The set of
// rows for a month is fixed the moment the recorder runs for that step and
// is never revised, even if the backend later reports a different status
// for the same period.
type SnapshotRow struct {
	Month          string `json:"month"`
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
	Plan           string `json:"plan"`
	PriceCents     int64  `json:"price_amount"`
	Screens        int    `json:"screens"`
	MRRCents       int64  `json:"mrr_cents"`
	Status         string `json:"status"`
}

const snapshotFile = "sub_snapshots.json"

// SnapshotPath returns the snapshot log location under configDir.
func SnapshotPath(configDir string) string {
	return filepath.Join(configDir, snapshotFile)
}

// Recorder appends one monthly snapshot per step to the run's snapshot log.
// Rows are produced from local state only — no backend queries — so
// recording is instant and immune to the backend's eventual consistency
// and inconsistent invoice emission ($0 invoices for the free tier,
// proration spikes).
type Recorder struct {
	configDir string
	rows      []SnapshotRow
	recorded  map[string]bool // month|subscription guard
}

// NewRecorder creates a Recorder writing under configDir.
func NewRecorder(configDir string) *Recorder {
	return &Recorder{configDir: configDir, recorded: make(map[string]bool)}
}

// RecordStep emits exactly one row for every subscription whose local
// status is active or past_due, labeled with the step's month, then
// persists the accumulated log. Canceled subscriptions stop appearing from
// their cancellation step onward; their historical rows are untouched.
func (r *Recorder) RecordStep(pop *Population, month string) ([]SnapshotRow, error) {
	var stepRows []SnapshotRow
	for _, cust := range pop.Customers {
		sub := cust.Subscription
		if sub == nil || sub.Status == StatusCanceled {
			continue
		}

		key := month + "|" + sub.ID
		if r.recorded[key] {
			return nil, fmt.Errorf("duplicate snapshot for subscription %s in month %s", sub.ID, month)
		}
		r.recorded[key] = true

		tier, err := catalog.ByKey(sub.PlanKey)
		if err != nil {
			return nil, fmt.Errorf("snapshot subscription %s: %w", sub.ID, err)
		}
		stepRows = append(stepRows, SnapshotRow{
			Month:          month,
			CustomerID:     cust.ID,
			SubscriptionID: sub.ID,
			Plan:           sub.PlanKey,
			PriceCents:     tier.PriceCents,
			Screens:        sub.Screens,
			MRRCents:       tier.PriceCents * int64(sub.Screens),
			Status:         string(sub.Status),
		})
	}

	r.rows = append(r.rows, stepRows...)
	if err := r.persist(); err != nil {
		return nil, err
	}
	simmetrics.SnapshotRows.Add(float64(len(stepRows)))

	var total int64
	for _, row := range stepRows {
		total += row.MRRCents
	}
	log.Info().
		Str("month", month).
		Int("rows", len(stepRows)).
		Int64("mrr_cents", total).
		Msg("Monthly snapshot recorded")
	return stepRows, nil
}

// Rows returns every row recorded so far, in step order.
func (r *Recorder) Rows() []SnapshotRow {
	return r.rows
}

// persist rewrites the snapshot log with all rows accumulated so far.
// Earlier months' rows are carried through byte-for-byte unchanged; the
// file only ever grows.
func (r *Recorder) persist() error {
	if err := os.MkdirAll(r.configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(r.rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot log: %w", err)
	}
	path := SnapshotPath(r.configDir)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot log %s: %w", path, err)
	}
	return nil
}

// LoadSnapshots reads the snapshot log written by a generator run.
func LoadSnapshots(configDir string) ([]SnapshotRow, error) {
	path := SnapshotPath(configDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot log %s: %w", path, err)
	}
	var rows []SnapshotRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse snapshot log %s: %w", path, err)
	}
	return rows, nil
}
