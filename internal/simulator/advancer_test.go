package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func provisionedPopulation(t *testing.T, backend *fakeBackend, cfg Config) *Population {
	t.Helper()
	pop, err := NewProvisioner(cfg, backend, testPrices()).Provision(context.Background())
	require.NoError(t, err)
	return pop
}

func TestAdvanceAllMovesEveryClockOneMonth(t *testing.T) {
	cfg := testConfig()
	backend := newFakeBackend()
	backend.settleAfterPolls = 2
	pop := provisionedPopulation(t, backend, cfg)

	a := NewAdvancer(cfg, backend)
	require.NoError(t, a.AdvanceAll(context.Background(), pop, 1))

	want := cfg.BaseTime.AddDate(0, 1, 0)
	for _, clock := range pop.Clocks {
		assert.Equal(t, want, clock.FrozenTime)
		assert.Equal(t, 1, clock.StepIndex)
	}

	require.NoError(t, a.AdvanceAll(context.Background(), pop, 2))
	for _, clock := range pop.Clocks {
		assert.Equal(t, cfg.BaseTime.AddDate(0, 2, 0), clock.FrozenTime)
		assert.Equal(t, 2, clock.StepIndex)
	}
}

func TestAdvanceAllInternalFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	backend := newFakeBackend()
	pop := provisionedPopulation(t, backend, cfg)
	backend.failClockID = pop.Clocks[1].ID

	err := NewAdvancer(cfg, backend).AdvanceAll(context.Background(), pop, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal_failure")
	assert.Contains(t, err.Error(), pop.Clocks[1].ID)

	// The failed clock's local mirror was not committed.
	assert.Equal(t, cfg.BaseTime, pop.Clocks[1].FrozenTime)
	assert.Equal(t, 0, pop.Clocks[1].StepIndex)
}

func TestAdvanceAllSettleTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Millisecond
	cfg.SettleTimeout = 10 * time.Millisecond
	backend := newFakeBackend()
	backend.settleAfterPolls = 1 << 30 // never settles
	pop := provisionedPopulation(t, backend, cfg)

	err := NewAdvancer(cfg, backend).AdvanceAll(context.Background(), pop, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSettleTimeout)
}

func TestAdvanceAllContextCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Hour // force the wait into the select
	backend := newFakeBackend()
	backend.settleAfterPolls = 1 << 30
	pop := provisionedPopulation(t, backend, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := NewAdvancer(cfg, backend).AdvanceAll(ctx, pop, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
