package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/signagelab/mrrsim/internal/simulator"
	"github.com/signagelab/mrrsim/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	wh, err := warehouse.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })

	rows := []simulator.SnapshotRow{
		{Month: "2026-03", CustomerID: "cus_a", SubscriptionID: "sub_a", Plan: "standard", PriceCents: 1000, Screens: 3, MRRCents: 3000, Status: "active"},
		{Month: "2026-03", CustomerID: "cus_b", SubscriptionID: "sub_b", Plan: "free", PriceCents: 0, Screens: 1, MRRCents: 0, Status: "active"},
		{Month: "2026-04", CustomerID: "cus_a", SubscriptionID: "sub_a", Plan: "standard", PriceCents: 1000, Screens: 3, MRRCents: 3000, Status: "past_due"},
	}
	require.NoError(t, wh.LoadSnapshots(rows))

	ts := httptest.NewServer(NewServer(wh).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestMRREndpoint(t *testing.T) {
	ts := testServer(t)

	var body struct {
		Data []warehouse.MonthlyMRR `json:"data"`
	}
	resp := getJSON(t, ts.URL+"/api/mrr", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	require.Len(t, body.Data, 2)
	assert.Equal(t, "2026-03", body.Data[0].Month)
	assert.Equal(t, int64(3000), body.Data[0].MRRCents)
	assert.Equal(t, 2, body.Data[0].Subscriptions)
}

func TestMRRByPlanEndpoint(t *testing.T) {
	ts := testServer(t)

	var body struct {
		Data []warehouse.PlanMRR `json:"data"`
	}
	resp := getJSON(t, ts.URL+"/api/mrr-by-plan", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Data, 3)
}

func TestARPPUEndpoint(t *testing.T) {
	ts := testServer(t)

	var body struct {
		Data []warehouse.MonthlyARPPU `json:"data"`
	}
	resp := getJSON(t, ts.URL+"/api/arppu", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Data, 2)
	assert.Equal(t, 1, body.Data[0].PayingCustomers)
	assert.Equal(t, int64(3000), body.Data[0].ARPPUCents)
}

func TestCustomersByPlanEndpoint(t *testing.T) {
	ts := testServer(t)

	var body struct {
		Data []warehouse.PlanCustomers `json:"data"`
	}
	resp := getJSON(t, ts.URL+"/api/customers-by-plan", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Data, 3)
}

func TestHealthEndpoint(t *testing.T) {
	ts := testServer(t)

	var body map[string]string
	resp := getJSON(t, ts.URL+"/api/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Post(ts.URL+"/api/mrr", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEmptyWarehouseReturnsEmptyData(t *testing.T) {
	wh, err := warehouse.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })

	ts := httptest.NewServer(NewServer(wh).Handler())
	t.Cleanup(ts.Close)

	var body struct {
		Data []warehouse.MonthlyMRR `json:"data"`
	}
	resp := getJSON(t, ts.URL+"/api/mrr", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, body.Data)
	assert.Empty(t, body.Data)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "limits are per IP")
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/mrr", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
