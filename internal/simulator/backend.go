package simulator

import (
	"context"
	"time"

	"github.com/signagelab/mrrsim/internal/billing"
)

// Clock settlement statuses reported by the backend.
const (
	ClockStatusReady           = "ready"
	ClockStatusAdvancing       = "advancing"
	ClockStatusInternalFailure = "internal_failure"
)

// Backend is the slice of the remote billing API the simulator drives.
// *billing.Client implements it; tests substitute a local fake.
type Backend interface {
	CreateTestClock(ctx context.Context, frozen time.Time, name string) (string, error)
	AdvanceTestClock(ctx context.Context, clockID string, to time.Time) error
	ClockStatus(ctx context.Context, clockID string) (string, error)
	ListTestClockIDs(ctx context.Context) ([]string, error)
	DeleteTestClock(ctx context.Context, clockID string) error

	CreateCustomer(ctx context.Context, spec billing.CustomerSpec) (string, error)
	AttachDefaultPaymentMethod(ctx context.Context, customerID string) error
	DetachDefaultPaymentMethod(ctx context.Context, customerID string) error

	CreateSubscription(ctx context.Context, customerID, priceID string, quantity int) (string, error)
	ChangeSubscription(ctx context.Context, subscriptionID, priceID string, quantity int) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

var _ Backend = (*billing.Client)(nil)
