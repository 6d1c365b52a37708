package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/signagelab/mrrsim/internal/simmetrics"
)

// ErrSettleTimeout is returned when a clock fails to reach ready within the
// settlement window. It is fatal to the run: a simulated month that never
// settles cannot be committed, and skipping the clock would desynchronize
// its snapshot history from its peers.
var ErrSettleTimeout = errors.New("test clock settlement timed out")

// Advancer moves every clock forward one simulated month per step.
//
// Clocks are advanced strictly one at a time: advancing many clocks
// simultaneously contends on the backend side and inflates settlement
// latency enough that sequential advancement is faster in wall-clock terms.
type Advancer struct {
	cfg     Config
	backend Backend
}

// NewAdvancer creates an Advancer.
func NewAdvancer(cfg Config, backend Backend) *Advancer {
	return &Advancer{cfg: cfg.withDefaults(), backend: backend}
}

// AdvanceAll advances every clock by exactly one month and waits for each
// to settle before starting the next. step is 1-based and only used for
// logging.
func (a *Advancer) AdvanceAll(ctx context.Context, pop *Population, step int) error {
	var bar *progressbar.ProgressBar
	if a.cfg.Progress {
		bar = progressbar.Default(int64(len(pop.Clocks)), fmt.Sprintf("advancing month %d/%d", step, a.cfg.Steps))
	}

	for _, clock := range pop.Clocks {
		start := time.Now()
		target := clock.FrozenTime.AddDate(0, 1, 0)

		if err := a.backend.AdvanceTestClock(ctx, clock.ID, target); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		if err := a.waitForSettle(ctx, clock.ID); err != nil {
			return fmt.Errorf("step %d clock %s: %w", step, clock.ID, err)
		}

		clock.FrozenTime = target
		clock.StepIndex++
		simmetrics.ClockAdvanceDuration.Observe(time.Since(start).Seconds())
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	log.Info().
		Int("step", step).
		Int("clocks", len(pop.Clocks)).
		Str("month", a.cfg.monthLabel(step)).
		Msg("All clocks advanced and settled")
	return nil
}

// waitForSettle polls the clock's status until the backend reports ready,
// bounded by the settlement timeout. Settlement latency is backend
// controlled and variable, so polling is patient rather than fail-fast.
func (a *Advancer) waitForSettle(ctx context.Context, clockID string) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(a.cfg.SettleTimeout)
	defer deadline.Stop()

	for {
		status, err := a.backend.ClockStatus(ctx, clockID)
		if err != nil {
			return fmt.Errorf("poll clock status: %w", err)
		}
		switch status {
		case ClockStatusReady:
			return nil
		case ClockStatusInternalFailure:
			return fmt.Errorf("clock reported internal_failure")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrSettleTimeout, a.cfg.SettleTimeout)
		case <-ticker.C:
		}
	}
}
