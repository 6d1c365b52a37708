package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/catalog"
	"github.com/signagelab/mrrsim/internal/simmetrics"
	"golang.org/x/sync/errgroup"
)

// EventType identifies one kind of lifecycle mutation.
type EventType string

const (
	EventUpgrade        EventType = "upgrade"
	EventDowngrade      EventType = "downgrade"
	EventCancel         EventType = "cancel"
	EventPaymentFailure EventType = "payment_failure"
)

// StepEvents counts the events applied in one step.
type StepEvents struct {
	Upgrades        int
	Downgrades      int
	Cancellations   int
	PaymentFailures int
}

// Totals accumulates StepEvents across a run.
type Totals StepEvents

func (t *Totals) add(s StepEvents) {
	t.Upgrades += s.Upgrades
	t.Downgrades += s.Downgrades
	t.Cancellations += s.Cancellations
	t.PaymentFailures += s.PaymentFailures
}

// mutation is one planned change against one subscription. Planning is
// single-threaded; execution is parallel; local state is applied in the
// merge phase afterwards, so no worker ever writes shared state.
type mutation struct {
	sub        *Subscription
	event      EventType
	newPlan    string
	newScreens int
}

// Engine mutates a fixed quota of entities after each clock advance so the
// aggregate run exhibits the configured mix of upgrades, downgrades,
// cancellations, and induced payment failures.
type Engine struct {
	cfg     Config
	backend Backend
	prices  *catalog.PriceConfig
	rng     *rand.Rand

	quotas map[EventType][]int
	carry  map[EventType]int
	totals Totals
}

// NewEngine creates an Engine with per-step quotas spread evenly across the
// run (remainder landing on the earliest steps).
func NewEngine(cfg Config, backend Backend, prices *catalog.PriceConfig) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:     cfg,
		backend: backend,
		prices:  prices,
		// Offset keeps the event stream independent of the provisioning
		// assignment stream for the same seed.
		rng: rand.New(rand.NewSource(cfg.Seed + 1)),
		quotas: map[EventType][]int{
			EventUpgrade:        spreadQuota(cfg.Upgrades, cfg.Steps),
			EventDowngrade:      spreadQuota(cfg.Downgrades, cfg.Steps),
			EventCancel:         spreadQuota(cfg.Cancellations, cfg.Steps),
			EventPaymentFailure: spreadQuota(cfg.PaymentFailures, cfg.Steps),
		},
		carry: make(map[EventType]int),
	}
}

// spreadQuota splits total across steps as evenly as possible, earliest
// steps taking the remainder.
func spreadQuota(total, steps int) []int {
	out := make([]int, steps)
	if total <= 0 || steps <= 0 {
		return out
	}
	base := total / steps
	rem := total % steps
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}

// Totals returns the events applied so far.
func (e *Engine) Totals() Totals {
	return e.totals
}

// ApplyStep plans and executes this step's quota of lifecycle events.
// step is 1-based. Mutations against independent entities run in parallel;
// ordering between event types within a step is not guaranteed and nothing
// downstream may rely on it.
func (e *Engine) ApplyStep(ctx context.Context, pop *Population, step int) (StepEvents, error) {
	muts := e.planStep(pop, step)

	errs := make([]error, len(muts))
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, m := range muts {
		g.Go(func() error {
			errs[i] = e.execute(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	// Merge phase: local state changes only for mutations the backend
	// accepted. Failures are aggregated; an unmet quota is carried into
	// the next step.
	var applied StepEvents
	var failures []error
	for i, m := range muts {
		if errs[i] != nil {
			e.carry[m.event]++
			failures = append(failures, fmt.Errorf("%s %s: %w", m.event, m.sub.ID, errs[i]))
			continue
		}
		e.apply(m, step, &applied)
	}
	e.totals.add(applied)

	log.Info().
		Int("step", step).
		Int("upgrades", applied.Upgrades).
		Int("downgrades", applied.Downgrades).
		Int("cancellations", applied.Cancellations).
		Int("payment_failures", applied.PaymentFailures).
		Msg("Lifecycle events applied")

	if len(failures) > 0 {
		return applied, fmt.Errorf("step %d: %d lifecycle events failed: %w", step, len(failures), errors.Join(failures...))
	}
	return applied, nil
}

// planStep selects this step's mutation set. Single-threaded on purpose:
// selection reads and reserves subscriptions, and doing it before dispatch
// means workers share nothing.
func (e *Engine) planStep(pop *Population, step int) []mutation {
	idx := step - 1
	touched := make(map[*Subscription]bool)
	var muts []mutation

	for _, event := range []EventType{EventUpgrade, EventDowngrade, EventCancel, EventPaymentFailure} {
		want := e.carry[event]
		e.carry[event] = 0
		if idx >= 0 && idx < len(e.quotas[event]) {
			want += e.quotas[event][idx]
		}
		for i := 0; i < want; i++ {
			m, ok := e.pick(pop, event, touched)
			if !ok {
				// No eligible entity left this step; try again next step.
				e.carry[event]++
				continue
			}
			touched[m.sub] = true
			muts = append(muts, m)
		}
	}
	return muts
}

func (e *Engine) pick(pop *Population, event EventType, touched map[*Subscription]bool) (mutation, bool) {
	var candidates []*Subscription
	for _, sub := range pop.ActiveSubscriptions() {
		if touched[sub] {
			continue
		}
		switch event {
		case EventUpgrade:
			if e.canUpgrade(sub) {
				candidates = append(candidates, sub)
			}
		case EventDowngrade:
			if catalog.Index(sub.PlanKey) > 0 {
				candidates = append(candidates, sub)
			}
		case EventCancel:
			candidates = append(candidates, sub)
		case EventPaymentFailure:
			// Only a subscription that still has its payment method and
			// has never been past_due can fail: the active->past_due
			// transition is permitted at most once per entity.
			if sub.Status == StatusActive && !sub.pastDueOnce {
				candidates = append(candidates, sub)
			}
		}
	}
	if len(candidates) == 0 {
		return mutation{}, false
	}

	var sub *Subscription
	if event == EventCancel {
		sub = weightedPick(e.rng, candidates, cancelWeight)
	} else {
		sub = candidates[e.rng.Intn(len(candidates))]
	}

	m := mutation{sub: sub, event: event}
	switch event {
	case EventUpgrade:
		m.newPlan, m.newScreens = e.upgradeMove(sub)
	case EventDowngrade:
		prev := catalog.Tiers[catalog.Index(sub.PlanKey)-1]
		m.newPlan = prev.Key
		m.newScreens = prev.ClampScreens(sub.Screens)
	}
	return m, true
}

func (e *Engine) canUpgrade(sub *Subscription) bool {
	idx := catalog.Index(sub.PlanKey)
	if idx < 0 {
		return false
	}
	if idx < len(catalog.Tiers)-1 {
		return true
	}
	return sub.Screens < catalog.Tiers[idx].MaxScreens
}

// upgradeMove picks either a tier bump or a screen-count bump, whichever is
// possible, with a coin flip when both are.
func (e *Engine) upgradeMove(sub *Subscription) (string, int) {
	idx := catalog.Index(sub.PlanKey)
	tier := catalog.Tiers[idx]
	canTierUp := idx < len(catalog.Tiers)-1
	canScreenUp := sub.Screens < tier.MaxScreens

	if canTierUp && (!canScreenUp || e.rng.Float64() < 0.5) {
		next := catalog.Tiers[idx+1]
		return next.Key, next.ClampScreens(sub.Screens)
	}
	headroom := tier.MaxScreens - sub.Screens
	bump := 1
	if headroom > 1 {
		bump += e.rng.Intn(min(3, headroom))
	}
	return tier.Key, sub.Screens + bump
}

// cancelWeight skews churn toward the cheaper tiers.
func cancelWeight(sub *Subscription) int {
	switch sub.PlanKey {
	case "free", "standard":
		return 4
	default:
		return 1
	}
}

func weightedPick(rng *rand.Rand, candidates []*Subscription, weight func(*Subscription) int) *Subscription {
	total := 0
	for _, c := range candidates {
		total += weight(c)
	}
	r := rng.Intn(total)
	for _, c := range candidates {
		r -= weight(c)
		if r < 0 {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

func (e *Engine) execute(ctx context.Context, m mutation) error {
	switch m.event {
	case EventUpgrade, EventDowngrade:
		priceID, ok := e.prices.PriceIDs[m.newPlan]
		if !ok {
			return fmt.Errorf("no price for tier %s", m.newPlan)
		}
		return e.backend.ChangeSubscription(ctx, m.sub.ID, priceID, m.newScreens)
	case EventCancel:
		return e.backend.CancelSubscription(ctx, m.sub.ID)
	case EventPaymentFailure:
		return e.backend.DetachDefaultPaymentMethod(ctx, m.sub.CustomerID)
	default:
		return fmt.Errorf("unknown event type %q", m.event)
	}
}

// apply commits one accepted mutation to the local mirror. The local status
// is ground truth for snapshots: in particular a past_due entity stays
// past_due locally even if the backend's own retry-then-cancel automation
// later moves it to canceled within a compressed month. That divergence is
// intentional and bounded, and downstream validation treats it as an
// expected mismatch rather than an error.
func (e *Engine) apply(m mutation, step int, applied *StepEvents) {
	switch m.event {
	case EventUpgrade:
		m.sub.PlanKey = m.newPlan
		m.sub.Screens = m.newScreens
		applied.Upgrades++
	case EventDowngrade:
		m.sub.PlanKey = m.newPlan
		m.sub.Screens = m.newScreens
		applied.Downgrades++
	case EventCancel:
		m.sub.Status = StatusCanceled
		m.sub.canceledStep = step
		applied.Cancellations++
	case EventPaymentFailure:
		m.sub.Status = StatusPastDue
		m.sub.pastDueOnce = true
		applied.PaymentFailures++
	}
	simmetrics.LifecycleEvents.WithLabelValues(string(m.event)).Inc()
}
