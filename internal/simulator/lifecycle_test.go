package simulator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpreadQuota(t *testing.T) {
	assert.Equal(t, []int{3, 3, 3, 2, 2, 2}, spreadQuota(15, 6))
	assert.Equal(t, []int{1, 1, 0, 0, 0, 0}, spreadQuota(2, 6))
	assert.Equal(t, []int{2, 1, 1, 1, 1, 1}, spreadQuota(7, 6))
	assert.Equal(t, []int{0, 0, 0}, spreadQuota(0, 3))
	assert.Equal(t, []int{5}, spreadQuota(5, 1))
}

func runAllSteps(t *testing.T, cfg Config, backend *fakeBackend, pop *Population) Totals {
	t.Helper()
	engine := NewEngine(cfg, backend, testPrices())
	for step := 1; step <= cfg.Steps; step++ {
		_, err := engine.ApplyStep(context.Background(), pop, step)
		require.NoError(t, err)
	}
	return engine.Totals()
}

func TestEngineHitsRunTotals(t *testing.T) {
	cfg := testConfig()
	cfg.Customers = 100
	cfg.Upgrades = 15
	cfg.Downgrades = 2
	cfg.Cancellations = 8
	cfg.PaymentFailures = 3

	backend := newFakeBackend()
	pop := provisionedPopulation(t, backend, cfg)
	totals := runAllSteps(t, cfg, backend, pop)

	assert.Equal(t, 15, totals.Upgrades)
	assert.Equal(t, 2, totals.Downgrades)
	assert.Equal(t, 8, totals.Cancellations)
	assert.Equal(t, 3, totals.PaymentFailures)

	// Every cancellation reached the backend and the local mirror agrees.
	canceled := 0
	for _, cust := range pop.Customers {
		if cust.Subscription.Status == StatusCanceled {
			canceled++
			require.True(t, backend.subs[cust.Subscription.ID].canceled)
			require.Positive(t, cust.Subscription.canceledStep)
		}
	}
	assert.Equal(t, 8, canceled)
	assert.Equal(t, 8, backend.calls["CancelSubscription"])
	assert.Equal(t, 3, backend.calls["DetachDefaultPaymentMethod"])
}

func TestEngineNeverTouchesCanceledSubscriptions(t *testing.T) {
	cfg := testConfig()
	cfg.Customers = 12
	cfg.Steps = 4
	cfg.Cancellations = 6
	cfg.Upgrades = 10
	cfg.Downgrades = 3
	cfg.PaymentFailures = 2

	backend := newFakeBackend()
	pop := provisionedPopulation(t, backend, cfg)

	engine := NewEngine(cfg, backend, testPrices())
	for step := 1; step <= cfg.Steps; step++ {
		_, err := engine.ApplyStep(context.Background(), pop, step)
		require.NoError(t, err)

		for _, cust := range pop.Customers {
			sub := cust.Subscription
			if sub.Status == StatusCanceled {
				// A canceled entity must never receive a later mutation; the
				// fake rejects changes to canceled subscriptions, so any
				// reselection would have surfaced as an ApplyStep error.
				require.LessOrEqual(t, sub.canceledStep, step)
			}
		}
	}
}

func TestEnginePastDueAtMostOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Customers = 3
	cfg.ClockCapacity = 3
	cfg.Steps = 6
	cfg.Upgrades = 0
	cfg.Downgrades = 0
	cfg.Cancellations = 0
	// More failure quota than entities: once every entity has latched
	// past_due there are no candidates left and the surplus is dropped at
	// run end rather than double-failing anyone.
	cfg.PaymentFailures = 10

	backend := newFakeBackend()
	pop := provisionedPopulation(t, backend, cfg)
	totals := runAllSteps(t, cfg, backend, pop)

	assert.Equal(t, 3, totals.PaymentFailures)
	for _, cust := range pop.Customers {
		assert.Equal(t, StatusPastDue, cust.Subscription.Status)
	}
	// One detach per entity, never a second.
	assert.Equal(t, 3, backend.calls["DetachDefaultPaymentMethod"])
}

func TestEngineCarriesUnmetQuotaForward(t *testing.T) {
	cfg := testConfig()
	cfg.Customers = 2
	cfg.ClockCapacity = 2
	cfg.Steps = 3
	cfg.Upgrades = 0
	cfg.Downgrades = 3
	cfg.Cancellations = 0
	cfg.PaymentFailures = 0

	backend := newFakeBackend()
	pop := provisionedPopulation(t, backend, cfg)

	// Pin both entities to the lowest tier: no downgrade is possible until
	// step 2 promotes one of them.
	for _, cust := range pop.Customers {
		cust.Subscription.PlanKey = "free"
		cust.Subscription.Screens = 1
	}

	engine := NewEngine(cfg, backend, testPrices())
	applied, err := engine.ApplyStep(context.Background(), pop, 1)
	require.NoError(t, err)
	assert.Zero(t, applied.Downgrades, "no downgrade candidates on the lowest tier")

	// Promote one entity by hand; the carried quota should drain against it.
	pop.Customers[0].Subscription.PlanKey = "standard"
	applied, err = engine.ApplyStep(context.Background(), pop, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, applied.Downgrades)
	assert.Equal(t, "free", pop.Customers[0].Subscription.PlanKey)
}

func TestEngineBackendRejectionDoesNotMutateLocalState(t *testing.T) {
	cfg := testConfig()
	cfg.Customers = 4
	cfg.ClockCapacity = 4
	cfg.Steps = 1
	cfg.Upgrades = 0
	cfg.Downgrades = 0
	cfg.Cancellations = 2
	cfg.PaymentFailures = 0

	backend := newFakeBackend()
	pop := provisionedPopulation(t, backend, cfg)
	backend.errOn["CancelSubscription"] = errors.New("api unavailable")

	engine := NewEngine(cfg, backend, testPrices())
	applied, err := engine.ApplyStep(context.Background(), pop, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api unavailable")
	assert.Zero(t, applied.Cancellations)

	for _, cust := range pop.Customers {
		assert.Equal(t, StatusActive, cust.Subscription.Status)
	}
}

func TestUpgradeMoveRespectsTierBounds(t *testing.T) {
	cfg := testConfig()
	engine := NewEngine(cfg, newFakeBackend(), testPrices())

	// Top tier at max screens has nowhere to go and is not upgradable.
	maxed := &Subscription{PlanKey: "enterprise", Screens: 60, Status: StatusActive}
	assert.False(t, engine.canUpgrade(maxed))

	// Top tier below max screens can only bump screens.
	roomy := &Subscription{PlanKey: "enterprise", Screens: 10, Status: StatusActive}
	for i := 0; i < 50; i++ {
		plan, screens := engine.upgradeMove(roomy)
		assert.Equal(t, "enterprise", plan)
		assert.Greater(t, screens, roomy.Screens)
		assert.LessOrEqual(t, screens, 60)
	}

	// A mid-tier upgrade always lands in the next tier's screen range when
	// it changes tier, and above the current count when it does not.
	mid := &Subscription{PlanKey: "standard", Screens: 5, Status: StatusActive}
	for i := 0; i < 50; i++ {
		plan, screens := engine.upgradeMove(mid)
		switch plan {
		case "pro_plus":
			assert.GreaterOrEqual(t, screens, 3)
			assert.LessOrEqual(t, screens, 10)
		case "standard":
			t.Fatalf("standard at max screens cannot screen-bump")
		default:
			t.Fatalf("unexpected plan %q", plan)
		}
	}
}

func TestWeightedPickCoversAllCandidates(t *testing.T) {
	cfg := testConfig()
	engine := NewEngine(cfg, newFakeBackend(), testPrices())

	cheap := &Subscription{PlanKey: "free"}
	pricey := &Subscription{PlanKey: "enterprise"}
	counts := map[*Subscription]int{}
	for i := 0; i < 1000; i++ {
		counts[weightedPick(engine.rng, []*Subscription{cheap, pricey}, cancelWeight)]++
	}
	// 4:1 weighting: the cheap tier should dominate but not monopolize.
	assert.Greater(t, counts[cheap], counts[pricey])
	assert.Positive(t, counts[pricey])
}
