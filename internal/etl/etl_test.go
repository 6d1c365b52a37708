package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/signagelab/mrrsim/internal/billing"
	"github.com/signagelab/mrrsim/internal/runlog"
	"github.com/signagelab/mrrsim/internal/simulator"
	"github.com/signagelab/mrrsim/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	invoices []billing.InvoiceRecord
	subs     []billing.SubscriptionRecord
	err      error
}

func (f *fakeSource) SearchInvoices(context.Context) ([]billing.InvoiceRecord, error) {
	return f.invoices, f.err
}

func (f *fakeSource) SearchSubscriptions(context.Context) ([]billing.SubscriptionRecord, error) {
	return f.subs, f.err
}

func writeArtifacts(t *testing.T, dir string) {
	t.Helper()
	r := simulator.NewRecorder(dir)
	pop := &simulator.Population{Customers: []*simulator.Customer{
		{ID: "cus_ours", Subscription: &simulator.Subscription{
			ID: "sub_ours", CustomerID: "cus_ours", PlanKey: "standard", Screens: 2, Status: simulator.StatusActive,
		}},
	}}
	_, err := r.RecordStep(pop, "2026-03")
	require.NoError(t, err)

	manifest := runlog.NewManifest([]string{"cus_ours"}, []string{"clock_1"})
	require.NoError(t, manifest.Save(dir))
}

func TestRunFiltersToManifest(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir)

	wh, err := warehouse.Open(t.TempDir())
	require.NoError(t, err)
	defer wh.Close()

	source := &fakeSource{
		invoices: []billing.InvoiceRecord{
			{InvoiceID: "in_ours", CustomerID: "cus_ours"},
			{InvoiceID: "in_stray", CustomerID: "cus_stray"},
		},
		subs: []billing.SubscriptionRecord{
			{SubscriptionID: "sub_ours", CustomerID: "cus_ours"},
			{SubscriptionID: "sub_stray", CustomerID: "cus_stray"},
		},
	}

	require.NoError(t, New(wh, source, dir).Run(context.Background()))

	snapshots, invoices, subs, err := wh.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots)
	assert.Equal(t, 1, invoices, "stray invoices must be filtered out")
	assert.Equal(t, 1, subs, "stray subscriptions must be filtered out")
}

func TestRunSnapshotOnly(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir)

	wh, err := warehouse.Open(t.TempDir())
	require.NoError(t, err)
	defer wh.Close()

	require.NoError(t, New(wh, nil, dir).Run(context.Background()))

	snapshots, invoices, subs, err := wh.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots)
	assert.Zero(t, invoices)
	assert.Zero(t, subs)
}

func TestRunMissingSnapshotLog(t *testing.T) {
	wh, err := warehouse.Open(t.TempDir())
	require.NoError(t, err)
	defer wh.Close()

	err = New(wh, nil, t.TempDir()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot log")
}

func TestRunSourceFailure(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir)

	wh, err := warehouse.Open(t.TempDir())
	require.NoError(t, err)
	defer wh.Close()

	source := &fakeSource{err: errors.New("backend down")}
	err = New(wh, source, dir).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")

	// The authoritative snapshot load landed before the failure.
	snapshots, _, _, err := wh.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots)
}

func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir)

	wh, err := warehouse.Open(t.TempDir())
	require.NoError(t, err)
	defer wh.Close()

	source := &fakeSource{
		invoices: []billing.InvoiceRecord{{InvoiceID: "in_ours", CustomerID: "cus_ours"}},
	}
	p := New(wh, source, dir)
	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.Run(context.Background()))

	snapshots, invoices, _, err := wh.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots)
	assert.Equal(t, 1, invoices)
}
