// Package billing wraps the Stripe test-mode API behind the narrow surface
// the simulator and ETL consume. All outbound calls go through a shared
// throttle policy; transient network and rate-limit errors are absorbed by
// the SDK's retry layer underneath it.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signagelab/mrrsim/internal/catalog"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// testPaymentMethod is Stripe's always-succeeding test card token. Declining
// tokens are rejected at attach time, so payment failure is induced by
// detaching this method instead (see the lifecycle engine).
const testPaymentMethod = "pm_card_visa"

// Client is the throttled Stripe wrapper.
type Client struct {
	sc       *client.API
	throttle *throttle
}

// NewClient builds a Client for the given test-mode secret key.
func NewClient(secretKey string, policy Policy) *Client {
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(4),
	}
	sc := &client.API{}
	sc.Init(secretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return &Client{sc: sc, throttle: newThrottle(policy)}
}

// CustomerSpec describes a simulated customer to create.
type CustomerSpec struct {
	Name        string
	Email       string
	TestClockID string
}

// CreateTestClock creates a simulated clock frozen at the given time.
func (c *Client) CreateTestClock(ctx context.Context, frozen time.Time, name string) (string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	params := &stripe.TestHelpersTestClockParams{
		FrozenTime: stripe.Int64(frozen.Unix()),
		Name:       stripe.String(name),
	}
	params.Context = callCtx
	params.SetIdempotencyKey(uuid.NewString())
	clock, err := c.sc.TestHelpersTestClocks.New(params)
	if err != nil {
		return "", fmt.Errorf("create test clock: %w", err)
	}
	return clock.ID, nil
}

// AdvanceTestClock moves a clock's frozen time forward to the given instant.
func (c *Client) AdvanceTestClock(ctx context.Context, clockID string, to time.Time) error {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	params := &stripe.TestHelpersTestClockAdvanceParams{
		FrozenTime: stripe.Int64(to.Unix()),
	}
	params.Context = callCtx
	if _, err := c.sc.TestHelpersTestClocks.Advance(clockID, params); err != nil {
		return fmt.Errorf("advance test clock %s: %w", clockID, err)
	}
	return nil
}

// ClockStatus returns the clock's settlement status ("ready", "advancing",
// or "internal_failure").
func (c *Client) ClockStatus(ctx context.Context, clockID string) (string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	params := &stripe.TestHelpersTestClockParams{}
	params.Context = callCtx
	clock, err := c.sc.TestHelpersTestClocks.Get(clockID, params)
	if err != nil {
		return "", fmt.Errorf("get test clock %s: %w", clockID, err)
	}
	return string(clock.Status), nil
}

// ListTestClockIDs returns every test clock in the account. Used by pre-run
// cleanup to delete leftovers from previous runs.
func (c *Client) ListTestClockIDs(ctx context.Context) ([]string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	params := &stripe.TestHelpersTestClockListParams{}
	params.Context = callCtx
	params.Limit = stripe.Int64(100)

	var ids []string
	it := c.sc.TestHelpersTestClocks.List(params)
	for it.Next() {
		ids = append(ids, it.TestHelpersTestClock().ID)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list test clocks: %w", err)
	}
	return ids, nil
}

// DeleteTestClock removes a clock and, with it, every customer it owns.
func (c *Client) DeleteTestClock(ctx context.Context, clockID string) error {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	params := &stripe.TestHelpersTestClockParams{}
	params.Context = callCtx
	if _, err := c.sc.TestHelpersTestClocks.Del(clockID, params); err != nil {
		return fmt.Errorf("delete test clock %s: %w", clockID, err)
	}
	return nil
}

// CreateCustomer creates a customer attached to a test clock.
func (c *Client) CreateCustomer(ctx context.Context, spec CustomerSpec) (string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	params := &stripe.CustomerParams{
		Name:      stripe.String(spec.Name),
		Email:     stripe.String(spec.Email),
		TestClock: stripe.String(spec.TestClockID),
	}
	params.Context = callCtx
	params.SetIdempotencyKey(uuid.NewString())
	cus, err := c.sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return cus.ID, nil
}

// AttachDefaultPaymentMethod attaches the succeeding test card and sets it
// as the customer's default for invoices.
func (c *Client) AttachDefaultPaymentMethod(ctx context.Context, customerID string) error {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	attachParams := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	attachParams.Context = callCtx
	pm, err := c.sc.PaymentMethods.Attach(testPaymentMethod, attachParams)
	if err != nil {
		return fmt.Errorf("attach payment method to %s: %w", customerID, err)
	}

	updateParams := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(pm.ID),
		},
	}
	updateParams.Context = callCtx
	if _, err := c.sc.Customers.Update(customerID, updateParams); err != nil {
		return fmt.Errorf("set default payment method for %s: %w", customerID, err)
	}
	return nil
}

// DetachDefaultPaymentMethod removes the customer's default payment method,
// guaranteeing the next scheduled charge fails and the backend marks the
// subscription past_due on its own.
func (c *Client) DetachDefaultPaymentMethod(ctx context.Context, customerID string) error {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	getParams := &stripe.CustomerParams{}
	getParams.Context = callCtx
	cus, err := c.sc.Customers.Get(customerID, getParams)
	if err != nil {
		return fmt.Errorf("get customer %s: %w", customerID, err)
	}
	if cus.InvoiceSettings == nil || cus.InvoiceSettings.DefaultPaymentMethod == nil {
		return fmt.Errorf("customer %s has no default payment method", customerID)
	}

	detachParams := &stripe.PaymentMethodDetachParams{}
	detachParams.Context = callCtx
	if _, err := c.sc.PaymentMethods.Detach(cus.InvoiceSettings.DefaultPaymentMethod.ID, detachParams); err != nil {
		return fmt.Errorf("detach payment method for %s: %w", customerID, err)
	}
	return nil
}

// CreateSubscription starts a monthly subscription on priceID with the
// given screen quantity.
func (c *Client) CreateSubscription(ctx context.Context, customerID, priceID string, quantity int) (string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(int64(quantity)),
		}},
	}
	params.Context = callCtx
	params.SetIdempotencyKey(uuid.NewString())
	sub, err := c.sc.Subscriptions.New(params)
	if err != nil {
		return "", fmt.Errorf("create subscription for %s: %w", customerID, err)
	}
	return sub.ID, nil
}

// ChangeSubscription moves a subscription to a new price and quantity
// without proration, replacing the single existing item in place.
func (c *Client) ChangeSubscription(ctx context.Context, subscriptionID, priceID string, quantity int) error {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	getParams := &stripe.SubscriptionParams{}
	getParams.Context = callCtx
	sub, err := c.sc.Subscriptions.Get(subscriptionID, getParams)
	if err != nil {
		return fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("subscription %s has no items", subscriptionID)
	}

	updateParams := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:       stripe.String(sub.Items.Data[0].ID),
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(int64(quantity)),
		}},
		ProrationBehavior: stripe.String("none"),
	}
	updateParams.Context = callCtx
	if _, err := c.sc.Subscriptions.Update(subscriptionID, updateParams); err != nil {
		return fmt.Errorf("update subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// CancelSubscription cancels a subscription immediately.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	params := &stripe.SubscriptionCancelParams{}
	params.Context = callCtx
	if _, err := c.sc.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// FindProductByTier looks up a seeded product by its tier metadata.
func (c *Client) FindProductByTier(ctx context.Context, tierKey string) (string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	params := &stripe.ProductSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['tier']:'%s'", tierKey),
			Limit:   stripe.Int64(1),
			Context: callCtx,
		},
	}
	it := c.sc.Products.Search(params)
	for it.Next() {
		return it.Product().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("search products for tier %s: %w", tierKey, err)
	}
	return "", nil
}

// CreateProduct creates the product for a catalog tier.
func (c *Client) CreateProduct(ctx context.Context, tier catalog.PlanTier) (string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	params := &stripe.ProductParams{
		Name:        stripe.String(tier.DisplayName),
		Description: stripe.String(tier.Description),
		Metadata:    map[string]string{"tier": tier.Key},
	}
	params.Context = callCtx
	params.SetIdempotencyKey(uuid.NewString())
	product, err := c.sc.Products.New(params)
	if err != nil {
		return "", fmt.Errorf("create product %s: %w", tier.Key, err)
	}
	return product.ID, nil
}

// FindActivePrice returns the product's first active price, or "".
func (c *Client) FindActivePrice(ctx context.Context, productID string) (string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	params := &stripe.PriceListParams{
		Product: stripe.String(productID),
		Active:  stripe.Bool(true),
	}
	params.Context = callCtx
	params.Limit = stripe.Int64(1)
	it := c.sc.Prices.List(params)
	for it.Next() {
		return it.Price().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list prices for product %s: %w", productID, err)
	}
	return "", nil
}

// CreatePrice creates a monthly recurring per-screen price for a product.
func (c *Client) CreatePrice(ctx context.Context, productID string, tier catalog.PlanTier) (string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	params := &stripe.PriceParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(tier.PriceCents),
		Currency:   stripe.String(string(stripe.CurrencyUSD)),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
		Metadata: map[string]string{"tier": tier.Key},
	}
	params.Context = callCtx
	params.SetIdempotencyKey(uuid.NewString())
	price, err := c.sc.Prices.New(params)
	if err != nil {
		return "", fmt.Errorf("create price for %s: %w", tier.Key, err)
	}
	return price.ID, nil
}
