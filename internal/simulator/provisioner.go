package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/signagelab/mrrsim/internal/billing"
	"github.com/signagelab/mrrsim/internal/catalog"
	"github.com/signagelab/mrrsim/internal/simmetrics"
	"golang.org/x/sync/errgroup"
)

// planAssignment is one customer's pre-computed tier and screen count.
type planAssignment struct {
	Tier    catalog.PlanTier
	Screens int
}

// batchPlan is everything a provisioning worker needs; computed before
// dispatch so workers never touch shared mutable state.
type batchPlan struct {
	BatchIndex  int
	FirstGlobal int // global index of the batch's first customer
	Assignments []planAssignment
}

// batchResult is one worker's output, merged after all workers finish.
type batchResult struct {
	BatchIndex int
	Clock      *Clock
	Customers  []*Customer
	Err        error
}

// Provisioner creates the run's clocks, customers, and subscriptions.
type Provisioner struct {
	cfg     Config
	backend Backend
	prices  *catalog.PriceConfig
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(cfg Config, backend Backend, prices *catalog.PriceConfig) *Provisioner {
	return &Provisioner{cfg: cfg.withDefaults(), backend: backend, prices: prices}
}

// Cleanup deletes every test clock left over from previous runs, in
// parallel, making provisioning safe to re-run. Deleting a clock deletes
// the customers it owns.
func (p *Provisioner) Cleanup(ctx context.Context) error {
	ids, err := p.backend.ListTestClockIDs(ctx)
	if err != nil {
		return fmt.Errorf("list leftover test clocks: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	log.Info().Int("clocks", len(ids)).Msg("Deleting leftover test clocks from previous runs")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := p.backend.DeleteTestClock(gctx, id); err != nil {
				return fmt.Errorf("delete clock %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

// planBatches pre-computes every batch's customer assignments from the
// seeded RNG. Deterministic for a given seed and config.
func (p *Provisioner) planBatches() []batchPlan {
	rng := rand.New(rand.NewSource(p.cfg.Seed))
	batches := make([]batchPlan, 0, p.cfg.batchCount())

	global := 0
	for batch := 0; batch < p.cfg.batchCount(); batch++ {
		size := p.cfg.ClockCapacity
		if remaining := p.cfg.Customers - global; remaining < size {
			size = remaining
		}
		plan := batchPlan{BatchIndex: batch, FirstGlobal: global}
		for i := 0; i < size; i++ {
			tier := catalog.Tiers[rng.Intn(len(catalog.Tiers))]
			plan.Assignments = append(plan.Assignments, planAssignment{
				Tier:    tier,
				Screens: tier.RandomScreens(rng),
			})
		}
		batches = append(batches, plan)
		global += size
	}
	return batches
}

// Provision partitions the target population into clock-sized batches and
// provisions them in parallel up to the worker limit. Work within a batch
// is sequential: the clock must exist before its customers, and each
// customer before its subscription. A failed batch never aborts siblings;
// all batch errors are collected, annotated with their batch index, and
// surfaced together after every batch has finished.
func (p *Provisioner) Provision(ctx context.Context) (*Population, error) {
	batches := p.planBatches()
	results := make([]batchResult, len(batches))

	var bar *progressbar.ProgressBar
	if p.cfg.Progress {
		bar = progressbar.Default(int64(len(batches)), "provisioning")
	}

	// Plain errgroup without WithContext: a batch failure must not cancel
	// sibling batches.
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, plan := range batches {
		g.Go(func() error {
			results[i] = p.provisionBatch(ctx, plan)
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	// Deterministic output ordering regardless of completion order.
	sort.Slice(results, func(a, b int) bool { return results[a].BatchIndex < results[b].BatchIndex })

	pop := &Population{}
	var failures []error
	for _, res := range results {
		if res.Err != nil {
			simmetrics.ProvisioningBatches.WithLabelValues("error").Inc()
			failures = append(failures, fmt.Errorf("batch %d: %w", res.BatchIndex, res.Err))
			continue
		}
		simmetrics.ProvisioningBatches.WithLabelValues("success").Inc()
		pop.Clocks = append(pop.Clocks, res.Clock)
		pop.Customers = append(pop.Customers, res.Customers...)
	}

	if len(failures) > 0 {
		return nil, fmt.Errorf("%d of %d batches failed: %w", len(failures), len(batches), errors.Join(failures...))
	}

	log.Info().
		Int("customers", len(pop.Customers)).
		Int("clocks", len(pop.Clocks)).
		Time("frozen_time", p.cfg.BaseTime).
		Msg("Provisioning complete")
	return pop, nil
}

func (p *Provisioner) provisionBatch(ctx context.Context, plan batchPlan) batchResult {
	res := batchResult{BatchIndex: plan.BatchIndex}

	clockID, err := p.backend.CreateTestClock(ctx, p.cfg.BaseTime, fmt.Sprintf("mrrsim-batch-%02d", plan.BatchIndex))
	if err != nil {
		res.Err = fmt.Errorf("create clock: %w", err)
		return res
	}
	res.Clock = &Clock{ID: clockID, FrozenTime: p.cfg.BaseTime}

	for i, assignment := range plan.Assignments {
		global := plan.FirstGlobal + i
		spec := billing.CustomerSpec{
			Name:        fmt.Sprintf("Simulated Customer %03d", global),
			Email:       fmt.Sprintf("customer%03d@mrrsim.example.com", global),
			TestClockID: clockID,
		}
		customerID, err := p.backend.CreateCustomer(ctx, spec)
		if err != nil {
			res.Err = fmt.Errorf("create customer %d: %w", global, err)
			return res
		}
		if err := p.backend.AttachDefaultPaymentMethod(ctx, customerID); err != nil {
			res.Err = fmt.Errorf("attach payment method for customer %d: %w", global, err)
			return res
		}

		priceID, ok := p.prices.PriceIDs[assignment.Tier.Key]
		if !ok {
			res.Err = fmt.Errorf("no price for tier %s; run seed first", assignment.Tier.Key)
			return res
		}
		subID, err := p.backend.CreateSubscription(ctx, customerID, priceID, assignment.Screens)
		if err != nil {
			res.Err = fmt.Errorf("create subscription for customer %d: %w", global, err)
			return res
		}

		res.Customers = append(res.Customers, &Customer{
			ID:         customerID,
			BatchIndex: plan.BatchIndex,
			ClockID:    clockID,
			Subscription: &Subscription{
				ID:         subID,
				CustomerID: customerID,
				PlanKey:    assignment.Tier.Key,
				Screens:    assignment.Screens,
				Status:     StatusActive,
			},
		})
	}
	return res
}
