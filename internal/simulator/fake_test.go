package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signagelab/mrrsim/internal/billing"
	"github.com/signagelab/mrrsim/internal/catalog"
)

// fakeBackend is an in-memory Backend. It is safe for the concurrent use
// the provisioner and lifecycle engine make of it.
type fakeBackend struct {
	mu sync.Mutex

	clocks    map[string]*fakeClock
	customers map[string]*fakeCustomer
	subs      map[string]*fakeSub

	nextClock    int
	nextCustomer int
	nextSub      int

	// settleAfterPolls makes ClockStatus report "advancing" this many
	// times after each advance before flipping to "ready".
	settleAfterPolls int
	// failClockID makes the named clock settle to internal_failure.
	failClockID string

	// errOn injects one error per method name; the method fails every
	// call until the entry is cleared.
	errOn map[string]error
	// failOnce injects an error consumed by the method's first call only.
	failOnce map[string]error

	calls map[string]int
}

type fakeClock struct {
	frozen   time.Time
	name     string
	pending  int // polls left before "ready"
	failNext bool
}

type fakeCustomer struct {
	spec      billing.CustomerSpec
	defaultPM bool
}

type fakeSub struct {
	customerID string
	priceID    string
	quantity   int
	canceled   bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		clocks:    make(map[string]*fakeClock),
		customers: make(map[string]*fakeCustomer),
		subs:      make(map[string]*fakeSub),
		errOn:     make(map[string]error),
		failOnce:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeBackend) step(method string) error {
	f.calls[method]++
	if err, ok := f.errOn[method]; ok {
		return err
	}
	if err, ok := f.failOnce[method]; ok {
		delete(f.failOnce, method)
		return err
	}
	return nil
}

func (f *fakeBackend) CreateTestClock(ctx context.Context, frozen time.Time, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("CreateTestClock"); err != nil {
		return "", err
	}
	f.nextClock++
	id := fmt.Sprintf("clock_%03d", f.nextClock)
	f.clocks[id] = &fakeClock{frozen: frozen, name: name}
	return id, nil
}

func (f *fakeBackend) AdvanceTestClock(ctx context.Context, clockID string, to time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("AdvanceTestClock"); err != nil {
		return err
	}
	c, ok := f.clocks[clockID]
	if !ok {
		return fmt.Errorf("no such clock %s", clockID)
	}
	c.frozen = to
	c.pending = f.settleAfterPolls
	c.failNext = clockID == f.failClockID
	return nil
}

func (f *fakeBackend) ClockStatus(ctx context.Context, clockID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("ClockStatus"); err != nil {
		return "", err
	}
	c, ok := f.clocks[clockID]
	if !ok {
		return "", fmt.Errorf("no such clock %s", clockID)
	}
	if c.pending > 0 {
		c.pending--
		return ClockStatusAdvancing, nil
	}
	if c.failNext {
		return ClockStatusInternalFailure, nil
	}
	return ClockStatusReady, nil
}

func (f *fakeBackend) ListTestClockIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("ListTestClockIDs"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(f.clocks))
	for id := range f.clocks {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeBackend) DeleteTestClock(ctx context.Context, clockID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("DeleteTestClock"); err != nil {
		return err
	}
	delete(f.clocks, clockID)
	return nil
}

func (f *fakeBackend) CreateCustomer(ctx context.Context, spec billing.CustomerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("CreateCustomer"); err != nil {
		return "", err
	}
	if _, ok := f.clocks[spec.TestClockID]; !ok {
		return "", fmt.Errorf("customer references unknown clock %s", spec.TestClockID)
	}
	f.nextCustomer++
	id := fmt.Sprintf("cus_%03d", f.nextCustomer)
	f.customers[id] = &fakeCustomer{spec: spec}
	return id, nil
}

func (f *fakeBackend) AttachDefaultPaymentMethod(ctx context.Context, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("AttachDefaultPaymentMethod"); err != nil {
		return err
	}
	c, ok := f.customers[customerID]
	if !ok {
		return fmt.Errorf("no such customer %s", customerID)
	}
	c.defaultPM = true
	return nil
}

func (f *fakeBackend) DetachDefaultPaymentMethod(ctx context.Context, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("DetachDefaultPaymentMethod"); err != nil {
		return err
	}
	c, ok := f.customers[customerID]
	if !ok {
		return fmt.Errorf("no such customer %s", customerID)
	}
	if !c.defaultPM {
		return fmt.Errorf("customer %s has no default payment method", customerID)
	}
	c.defaultPM = false
	return nil
}

func (f *fakeBackend) CreateSubscription(ctx context.Context, customerID, priceID string, quantity int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("CreateSubscription"); err != nil {
		return "", err
	}
	if _, ok := f.customers[customerID]; !ok {
		return "", fmt.Errorf("no such customer %s", customerID)
	}
	f.nextSub++
	id := fmt.Sprintf("sub_%03d", f.nextSub)
	f.subs[id] = &fakeSub{customerID: customerID, priceID: priceID, quantity: quantity}
	return id, nil
}

func (f *fakeBackend) ChangeSubscription(ctx context.Context, subscriptionID, priceID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("ChangeSubscription"); err != nil {
		return err
	}
	s, ok := f.subs[subscriptionID]
	if !ok {
		return fmt.Errorf("no such subscription %s", subscriptionID)
	}
	if s.canceled {
		return fmt.Errorf("subscription %s is canceled", subscriptionID)
	}
	s.priceID = priceID
	s.quantity = quantity
	return nil
}

func (f *fakeBackend) CancelSubscription(ctx context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("CancelSubscription"); err != nil {
		return err
	}
	s, ok := f.subs[subscriptionID]
	if !ok {
		return fmt.Errorf("no such subscription %s", subscriptionID)
	}
	s.canceled = true
	return nil
}

var _ Backend = (*fakeBackend)(nil)

// testPrices is a seeded price map matching the fixed tier catalog.
func testPrices() *catalog.PriceConfig {
	cfg := &catalog.PriceConfig{
		PriceIDs:    make(map[string]string),
		PriceToPlan: make(map[string]string),
	}
	for i, tier := range catalog.Tiers {
		priceID := fmt.Sprintf("price_test_%02d", i)
		cfg.PriceIDs[tier.Key] = priceID
		cfg.PriceToPlan[priceID] = tier.DisplayName
	}
	return cfg
}
