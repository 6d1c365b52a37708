// Package simulator drives a multi-month SaaS billing history through the
// remote backend's simulated clocks and records locally-authoritative
// monthly snapshots of every subscription.
package simulator

import (
	"time"
)

// LocalStatus is the simulator's intended business status for a
// subscription. It is maintained locally by the lifecycle engine and is
// never re-derived from backend queries: the backend's own automation
// (retry-then-cancel under compressed time) is allowed to diverge from the
// simulated business narrative, and snapshots must reflect the narrative.
type LocalStatus string

const (
	StatusActive   LocalStatus = "active"
	StatusPastDue  LocalStatus = "past_due"
	StatusCanceled LocalStatus = "canceled"
)

// Subscription mirrors one backend subscription.
type Subscription struct {
	ID         string
	CustomerID string
	PlanKey    string
	Screens    int
	Status     LocalStatus

	// pastDueOnce latches the single permitted active->past_due
	// transition; a past_due subscription is never moved back to active.
	pastDueOnce bool
	// canceledStep records the 1-based step at which the subscription was
	// canceled, 0 if never.
	canceledStep int
}

// Customer mirrors one backend customer. Each customer owns exactly one
// subscription for the run's duration.
type Customer struct {
	ID           string
	BatchIndex   int
	ClockID      string
	Subscription *Subscription
}

// Clock mirrors one backend test clock. A clock owns up to ClockCapacity
// customers (backend constraint) and is advanced once per step.
type Clock struct {
	ID         string
	FrozenTime time.Time
	StepIndex  int
}

// Population is the full local mirror of everything provisioned this run.
type Population struct {
	Clocks    []*Clock
	Customers []*Customer
}

// ActiveSubscriptions returns subscriptions whose local status still
// contributes MRR (active or past_due).
func (p *Population) ActiveSubscriptions() []*Subscription {
	var subs []*Subscription
	for _, c := range p.Customers {
		if c.Subscription == nil {
			continue
		}
		if c.Subscription.Status == StatusCanceled {
			continue
		}
		subs = append(subs, c.Subscription)
	}
	return subs
}

// Config shapes one generator run.
type Config struct {
	Customers       int
	ClockCapacity   int
	Steps           int
	Upgrades        int
	Downgrades      int
	Cancellations   int
	PaymentFailures int

	Workers       int
	Seed          int64
	SettleTimeout time.Duration
	PollInterval  time.Duration

	// BaseTime is the clocks' initial frozen time. Zero means Steps whole
	// months before now, pinned to the first of the month so that every
	// advance lands in a distinct calendar month.
	BaseTime time.Time

	// Progress enables terminal progress bars on the long loops.
	Progress bool
}

// withDefaults fills in anything the caller left zero.
func (c Config) withDefaults() Config {
	if c.Customers <= 0 {
		c.Customers = 100
	}
	if c.ClockCapacity <= 0 {
		c.ClockCapacity = 3
	}
	if c.Steps <= 0 {
		c.Steps = 6
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.BaseTime.IsZero() {
		now := time.Now().UTC()
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 12, 0, 0, 0, time.UTC)
		c.BaseTime = firstOfMonth.AddDate(0, -c.Steps, 0)
	}
	return c
}

// monthLabel is the snapshot month for a given 1-based step.
func (c Config) monthLabel(step int) string {
	return c.BaseTime.AddDate(0, step, 0).Format("2006-01")
}

// batchCount is ceil(Customers / ClockCapacity).
func (c Config) batchCount() int {
	return (c.Customers + c.ClockCapacity - 1) / c.ClockCapacity
}
