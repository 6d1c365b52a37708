// Package api serves the warehouse aggregates over a small read-only HTTP
// surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/signagelab/mrrsim/internal/simmetrics"
	"github.com/signagelab/mrrsim/internal/warehouse"
)

// Server exposes the warehouse views. It never mutates anything and never
// touches the billing backend.
type Server struct {
	wh      *warehouse.DB
	limiter *RateLimiter
}

// NewServer creates a Server over the given warehouse.
func NewServer(wh *warehouse.DB) *Server {
	return &Server{
		wh:      wh,
		limiter: NewRateLimiter(defaultRateLimit, defaultRateWindow),
	}
}

// Handler returns the routed HTTP handler, rate limited per client IP.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/mrr", s.handleMRR)
	mux.HandleFunc("/api/mrr-by-plan", s.handleMRRByPlan)
	mux.HandleFunc("/api/arppu", s.handleARPPU)
	mux.HandleFunc("/api/customers-by-plan", s.handleCustomersByPlan)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return s.limiter.Middleware(mux)
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Query API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleMRR(w http.ResponseWriter, r *http.Request) {
	serveView(w, r, "mrr", s.wh.MRRMonthly)
}

func (s *Server) handleMRRByPlan(w http.ResponseWriter, r *http.Request) {
	serveView(w, r, "mrr-by-plan", s.wh.MRRByPlan)
}

func (s *Server) handleARPPU(w http.ResponseWriter, r *http.Request) {
	serveView(w, r, "arppu", s.wh.ARPPUMonthly)
}

func (s *Server) handleCustomersByPlan(w http.ResponseWriter, r *http.Request) {
	serveView(w, r, "customers-by-plan", s.wh.CustomersByPlan)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "health", http.StatusMethodNotAllowed)
		return
	}
	if err := s.wh.Ping(); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		writeError(w, "health", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, "health", http.StatusOK, map[string]string{"status": "ok"})
}

// serveView runs one warehouse query and writes the standard envelope.
// Query failures surface as a generic 500; details stay in the log.
func serveView[T any](w http.ResponseWriter, r *http.Request, endpoint string, query func() ([]T, error)) {
	if r.Method != http.MethodGet {
		writeError(w, endpoint, http.StatusMethodNotAllowed)
		return
	}
	rows, err := query()
	if err != nil {
		log.Error().Err(err).Str("endpoint", endpoint).Msg("Warehouse query failed")
		writeError(w, endpoint, http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []T{}
	}
	writeJSON(w, endpoint, http.StatusOK, map[string]any{"data": rows})
}

func writeJSON(w http.ResponseWriter, endpoint string, status int, body any) {
	simmetrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Str("endpoint", endpoint).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, endpoint string, status int) {
	simmetrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status)})
}
