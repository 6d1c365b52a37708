// Package validate cross-checks the latest snapshot month against live
// backend state, tolerating the divergences the generator creates on
// purpose.
package validate

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/billing"
	"github.com/signagelab/mrrsim/internal/catalog"
	"github.com/signagelab/mrrsim/internal/simulator"
	"golang.org/x/sync/errgroup"
)

// Backend is the slice of the billing API the validator reads.
type Backend interface {
	GetSubscription(ctx context.Context, subscriptionID string) (billing.SubscriptionRecord, error)
}

// Mismatch is one field-level disagreement between a snapshot row and the
// backend.
type Mismatch struct {
	SubscriptionID string `json:"subscription_id"`
	Field          string `json:"field"`
	Local          string `json:"local"`
	Backend        string `json:"backend"`
}

// Report summarizes one validation pass over the latest snapshot month.
type Report struct {
	Month string `json:"month"`

	Checked             int `json:"checked"`
	Matched             int `json:"matched"`
	ExpectedDivergences int `json:"expected_divergences"`

	Mismatches []Mismatch `json:"mismatches"`

	LocalMRRCents   int64 `json:"local_mrr_cents"`
	BackendMRRCents int64 `json:"backend_mrr_cents"`
}

// OK reports whether validation passed. Expected divergences do not fail a
// run; genuine mismatches do.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

// Validator compares snapshots with backend truth.
type Validator struct {
	backend Backend
	prices  *catalog.PriceConfig
	workers int
}

// New creates a Validator fetching up to workers subscriptions at a time.
func New(backend Backend, prices *catalog.PriceConfig, workers int) *Validator {
	if workers <= 0 {
		workers = 4
	}
	return &Validator{backend: backend, prices: prices, workers: workers}
}

// Run validates every row of the latest snapshot month. It fetches backend
// state for each row's subscription and compares plan, screen count, unit
// price, and status. A locally past_due entity that the backend has
// already auto-canceled counts as an expected divergence: the backend's
// retry-then-cancel automation runs inside the compressed months and the
// snapshot log deliberately does not chase it.
func (v *Validator) Run(ctx context.Context, rows []simulator.SnapshotRow) (*Report, error) {
	month, latest := latestMonth(rows)
	if len(latest) == 0 {
		return nil, fmt.Errorf("no snapshot rows to validate")
	}
	report := &Report{Month: month, Checked: len(latest)}

	records := make([]billing.SubscriptionRecord, len(latest))
	errs := make([]error, len(latest))

	var g errgroup.Group
	g.SetLimit(v.workers)
	for i, row := range latest {
		g.Go(func() error {
			records[i], errs[i] = v.backend.GetSubscription(ctx, row.SubscriptionID)
			return nil
		})
	}
	_ = g.Wait()

	for i, row := range latest {
		if errs[i] != nil {
			return nil, fmt.Errorf("fetch subscription %s: %w", row.SubscriptionID, errs[i])
		}
		v.compareRow(row, records[i], report)
	}

	log.Info().
		Str("month", report.Month).
		Int("checked", report.Checked).
		Int("matched", report.Matched).
		Int("expected_divergences", report.ExpectedDivergences).
		Int("mismatches", len(report.Mismatches)).
		Int64("local_mrr_cents", report.LocalMRRCents).
		Int64("backend_mrr_cents", report.BackendMRRCents).
		Msg("Validation complete")
	return report, nil
}

func (v *Validator) compareRow(row simulator.SnapshotRow, rec billing.SubscriptionRecord, report *Report) {
	report.LocalMRRCents += row.MRRCents
	report.BackendMRRCents += rec.PriceCents * rec.Quantity

	clean := true
	fail := func(field, local, backend string) {
		clean = false
		report.Mismatches = append(report.Mismatches, Mismatch{
			SubscriptionID: row.SubscriptionID,
			Field:          field,
			Local:          local,
			Backend:        backend,
		})
	}

	if plan := v.prices.PlanForPrice(rec.PriceID); plan != row.Plan {
		fail("plan", row.Plan, plan)
	}
	if int(rec.Quantity) != row.Screens {
		fail("screens", fmt.Sprint(row.Screens), fmt.Sprint(rec.Quantity))
	}
	if rec.PriceCents != row.PriceCents {
		fail("price_cents", fmt.Sprint(row.PriceCents), fmt.Sprint(rec.PriceCents))
	}

	switch {
	case row.Status == rec.Status:
		// agreement
	case row.Status == "past_due" && (rec.Status == "canceled" || rec.Status == "unpaid"):
		// The backend escalated a payment failure further than the local
		// narrative. Known and bounded.
		if clean {
			report.ExpectedDivergences++
			return
		}
	default:
		fail("status", row.Status, rec.Status)
	}

	if clean {
		report.Matched++
	}
}

// latestMonth filters rows down to the lexically greatest month label.
func latestMonth(rows []simulator.SnapshotRow) (string, []simulator.SnapshotRow) {
	if len(rows) == 0 {
		return "", nil
	}
	months := make([]string, 0, len(rows))
	for _, row := range rows {
		months = append(months, row.Month)
	}
	sort.Strings(months)
	last := months[len(months)-1]

	var latest []simulator.SnapshotRow
	for _, row := range rows {
		if row.Month == last {
			latest = append(latest, row)
		}
	}
	return last, latest
}
