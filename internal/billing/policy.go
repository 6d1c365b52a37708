package billing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Policy bounds outbound request pressure on the billing backend: a fixed
// request rate, a concurrency ceiling, and a per-call timeout. One Policy is
// injected into the Client and applied to every call.
type Policy struct {
	RequestsPerSec float64
	Burst          int
	MaxConcurrency int
	CallTimeout    time.Duration
}

// DefaultPolicy matches the backend's documented test-mode limits with
// headroom to spare.
func DefaultPolicy() Policy {
	return Policy{
		RequestsPerSec: 8,
		Burst:          4,
		MaxConcurrency: 8,
		CallTimeout:    30 * time.Second,
	}
}

type throttle struct {
	limiter *rate.Limiter
	sem     chan struct{}
	timeout time.Duration
}

func newThrottle(p Policy) *throttle {
	if p.RequestsPerSec <= 0 {
		p.RequestsPerSec = DefaultPolicy().RequestsPerSec
	}
	if p.Burst <= 0 {
		p.Burst = 1
	}
	if p.MaxConcurrency <= 0 {
		p.MaxConcurrency = DefaultPolicy().MaxConcurrency
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = DefaultPolicy().CallTimeout
	}
	return &throttle{
		limiter: rate.NewLimiter(rate.Limit(p.RequestsPerSec), p.Burst),
		sem:     make(chan struct{}, p.MaxConcurrency),
		timeout: p.CallTimeout,
	}
}

// acquire blocks until the call may proceed, then returns a bounded call
// context and a release function. Release must be called exactly once.
func (t *throttle) acquire(ctx context.Context) (context.Context, func(), error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("wait for request slot: %w", err)
	}
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	release := func() {
		cancel()
		<-t.sem
	}
	return callCtx, release, nil
}
