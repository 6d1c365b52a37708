package warehouse

import (
	"fmt"
)

// MonthlyMRR is one row of the mrr_monthly view.
type MonthlyMRR struct {
	Month         string `json:"month"`
	MRRCents      int64  `json:"mrr_cents"`
	Subscriptions int    `json:"subscriptions"`
}

// PlanMRR is one row of the mrr_by_plan view.
type PlanMRR struct {
	Month         string `json:"month"`
	Plan          string `json:"plan"`
	MRRCents      int64  `json:"mrr_cents"`
	Subscriptions int    `json:"subscriptions"`
}

// MonthlyARPPU is one row of the arppu_monthly view. Only rows with
// positive MRR count as paying, so the free tier never dilutes the average.
type MonthlyARPPU struct {
	Month           string `json:"month"`
	PayingCustomers int    `json:"paying_customers"`
	ARPPUCents      int64  `json:"arppu_cents"`
}

// PlanCustomers is one row of the customers_by_plan view.
type PlanCustomers struct {
	Month     string `json:"month"`
	Plan      string `json:"plan"`
	Customers int    `json:"customers"`
}

// MRRMonthly returns total MRR per month, ascending.
func (w *DB) MRRMonthly() ([]MonthlyMRR, error) {
	rows, err := w.db.Query(`SELECT month, mrr_cents, subscriptions FROM mrr_monthly`)
	if err != nil {
		return nil, fmt.Errorf("query mrr_monthly: %w", err)
	}
	defer rows.Close()

	var out []MonthlyMRR
	for rows.Next() {
		var r MonthlyMRR
		if err := rows.Scan(&r.Month, &r.MRRCents, &r.Subscriptions); err != nil {
			return nil, fmt.Errorf("scan mrr_monthly: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MRRByPlan returns MRR per month and plan, ascending.
func (w *DB) MRRByPlan() ([]PlanMRR, error) {
	rows, err := w.db.Query(`SELECT month, plan, mrr_cents, subscriptions FROM mrr_by_plan`)
	if err != nil {
		return nil, fmt.Errorf("query mrr_by_plan: %w", err)
	}
	defer rows.Close()

	var out []PlanMRR
	for rows.Next() {
		var r PlanMRR
		if err := rows.Scan(&r.Month, &r.Plan, &r.MRRCents, &r.Subscriptions); err != nil {
			return nil, fmt.Errorf("scan mrr_by_plan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ARPPUMonthly returns average revenue per paying customer per month.
func (w *DB) ARPPUMonthly() ([]MonthlyARPPU, error) {
	rows, err := w.db.Query(`SELECT month, paying_customers, arppu_cents FROM arppu_monthly`)
	if err != nil {
		return nil, fmt.Errorf("query arppu_monthly: %w", err)
	}
	defer rows.Close()

	var out []MonthlyARPPU
	for rows.Next() {
		var r MonthlyARPPU
		if err := rows.Scan(&r.Month, &r.PayingCustomers, &r.ARPPUCents); err != nil {
			return nil, fmt.Errorf("scan arppu_monthly: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CustomersByPlan returns distinct customer counts per month and plan.
func (w *DB) CustomersByPlan() ([]PlanCustomers, error) {
	rows, err := w.db.Query(`SELECT month, plan, customers FROM customers_by_plan`)
	if err != nil {
		return nil, fmt.Errorf("query customers_by_plan: %w", err)
	}
	defer rows.Close()

	var out []PlanCustomers
	for rows.Next() {
		var r PlanCustomers
		if err := rows.Scan(&r.Month, &r.Plan, &r.Customers); err != nil {
			return nil, fmt.Errorf("scan customers_by_plan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts reports the table cardinalities, for ETL logging and health checks.
func (w *DB) Counts() (snapshots, invoices, subscriptions int, err error) {
	if err = w.db.QueryRow(`SELECT COUNT(*) FROM snapshot_rows`).Scan(&snapshots); err != nil {
		return 0, 0, 0, fmt.Errorf("count snapshot_rows: %w", err)
	}
	if err = w.db.QueryRow(`SELECT COUNT(*) FROM raw_invoices`).Scan(&invoices); err != nil {
		return 0, 0, 0, fmt.Errorf("count raw_invoices: %w", err)
	}
	if err = w.db.QueryRow(`SELECT COUNT(*) FROM raw_subscriptions`).Scan(&subscriptions); err != nil {
		return 0, 0, 0, fmt.Errorf("count raw_subscriptions: %w", err)
	}
	return snapshots, invoices, subscriptions, nil
}
