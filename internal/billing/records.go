package billing

import (
	"context"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
)

// InvoiceRecord is the flattened invoice shape loaded into the warehouse
// reference tables. Reference only: snapshot rows, not invoices, are the
// MRR source of truth.
type InvoiceRecord struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	Status         string
	AmountPaid     int64
	Currency       string
	PriceID        string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Created        time.Time
}

// SubscriptionRecord is the flattened subscription shape used by the ETL
// reference import and the cross-validator.
type SubscriptionRecord struct {
	SubscriptionID     string
	CustomerID         string
	Status             string
	PriceID            string
	PriceCents         int64
	Interval           string
	Quantity           int64
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	Created            time.Time
	CanceledAt         *time.Time
}

// SearchInvoices pulls every invoice in the account via the Search API.
// The Search API is required because objects attached to test clocks are
// hidden from the plain list endpoints.
func (c *Client) SearchInvoices(ctx context.Context) ([]InvoiceRecord, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	params := &stripe.InvoiceSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   "status:'paid' OR status:'open' OR status:'void' OR status:'uncollectible'",
			Limit:   stripe.Int64(100),
			Context: callCtx,
		},
	}

	var records []InvoiceRecord
	it := c.sc.Invoices.Search(params)
	for it.Next() {
		inv := it.Invoice()
		rec := InvoiceRecord{
			InvoiceID:  inv.ID,
			Status:     string(inv.Status),
			AmountPaid: inv.AmountPaid,
			Currency:   string(inv.Currency),
			Created:    time.Unix(inv.Created, 0).UTC(),
		}
		if inv.Customer != nil {
			rec.CustomerID = inv.Customer.ID
		}
		if inv.PeriodStart > 0 {
			rec.PeriodStart = time.Unix(inv.PeriodStart, 0).UTC()
		}
		if inv.PeriodEnd > 0 {
			rec.PeriodEnd = time.Unix(inv.PeriodEnd, 0).UTC()
		}
		// The subscription ID lives under parent.subscription_details.
		if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
			rec.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
		}
		// Search does not support expand, so the first line's price is
		// fetched separately.
		priceID, err := c.firstLinePriceID(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		rec.PriceID = priceID
		records = append(records, rec)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("search invoices: %w", err)
	}
	return records, nil
}

func (c *Client) firstLinePriceID(ctx context.Context, invoiceID string) (string, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	params := &stripe.InvoiceListLinesParams{
		Invoice: stripe.String(invoiceID),
	}
	params.Context = callCtx
	params.Limit = stripe.Int64(1)
	it := c.sc.Invoices.ListLines(params)
	for it.Next() {
		line := it.InvoiceLineItem()
		if line.Pricing != nil && line.Pricing.PriceDetails != nil {
			return line.Pricing.PriceDetails.Price, nil
		}
		return "", nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list lines for invoice %s: %w", invoiceID, err)
	}
	return "", nil
}

// SearchSubscriptions pulls every subscription in the account via the
// Search API, for the same test-clock visibility reason as invoices.
func (c *Client) SearchSubscriptions(ctx context.Context) ([]SubscriptionRecord, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	params := &stripe.SubscriptionSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   "status:'active' OR status:'canceled' OR status:'past_due' OR status:'incomplete'",
			Limit:   stripe.Int64(100),
			Context: callCtx,
		},
	}

	var records []SubscriptionRecord
	it := c.sc.Subscriptions.Search(params)
	for it.Next() {
		rec, err := flattenSubscription(it.Subscription())
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("search subscriptions: %w", err)
	}
	return records, nil
}

// GetSubscription fetches one subscription's current backend state. Used by
// the cross-validator only; the simulator never reads backend state back.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (SubscriptionRecord, error) {
	callCtx, release, err := c.throttle.acquire(ctx)
	if err != nil {
		return SubscriptionRecord{}, err
	}
	defer release()

	params := &stripe.SubscriptionParams{}
	params.Context = callCtx
	sub, err := c.sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return SubscriptionRecord{}, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	return flattenSubscription(sub)
}

func flattenSubscription(sub *stripe.Subscription) (SubscriptionRecord, error) {
	rec := SubscriptionRecord{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
		Created:        time.Unix(sub.Created, 0).UTC(),
	}
	if sub.Customer != nil {
		rec.CustomerID = sub.Customer.ID
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		rec.CanceledAt = &t
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return rec, fmt.Errorf("subscription %s has no items", sub.ID)
	}
	item := sub.Items.Data[0]
	if item.Price != nil {
		rec.PriceID = item.Price.ID
		rec.PriceCents = item.Price.UnitAmount
		if item.Price.Recurring != nil {
			rec.Interval = string(item.Price.Recurring.Interval)
		}
	}
	rec.Quantity = item.Quantity
	rec.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
	rec.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	return rec, nil
}
