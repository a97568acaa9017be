// Package server exposes health, metrics and last-cycle endpoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Evan-Kim2028/duckdb-pipe/orchestrator"
)

// Stats are the cumulative counters reported by /health
type Stats struct {
	CycleCount   int64
	TotalRows    int64
	LastLoaded   int
	LastSkipped  int
	LastFailed   int
	LastDuration time.Duration
}

// HealthServer provides HTTP endpoints for monitoring
type HealthServer struct {
	server      *http.Server
	router      *mux.Router
	service     string
	logger      *zap.Logger
	startTime   time.Time
	lastCycle   time.Time
	nextCycleAt time.Time
	stats       Stats
	lastReport  *orchestrator.Report
	mu          sync.RWMutex
}

// NewHealthServer creates a health server on addr. metricsHandler is served
// at /metrics when not nil.
func NewHealthServer(addr, service string, metricsHandler http.Handler, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	hs := &HealthServer{
		service:   service,
		logger:    logger,
		startTime: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", hs.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/cycles/last", hs.handleLastCycle).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	hs.router = r

	hs.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return hs
}

// Router returns the HTTP handler, for embedding or tests
func (hs *HealthServer) Router() http.Handler {
	return hs.router
}

// Start serves until Shutdown is called
func (hs *HealthServer) Start() error {
	hs.logger.Info("health server listening", zap.String("addr", hs.server.Addr))
	if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	return hs.server.Shutdown(ctx)
}

// UpdateStats records a completed cycle. It matches Scheduler.OnCycle.
func (hs *HealthServer) UpdateStats(report *orchestrator.Report, nextCycleAt time.Time) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.lastCycle = report.FinishedAt
	hs.nextCycleAt = nextCycleAt
	hs.lastReport = report
	hs.stats.CycleCount++
	hs.stats.TotalRows += report.Rows()
	hs.stats.LastLoaded = report.Count(orchestrator.StatusLoaded)
	hs.stats.LastSkipped = report.Count(orchestrator.StatusSkipped)
	hs.stats.LastFailed = report.Count(orchestrator.StatusFailed)
	hs.stats.LastDuration = report.Duration()
}

func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	nextCycleIn := time.Until(hs.nextCycleAt)
	if nextCycleIn < 0 {
		nextCycleIn = 0
	}

	status := "healthy"
	if hs.stats.LastFailed > 0 {
		status = "degraded"
	}

	response := map[string]interface{}{
		"service":        hs.service,
		"status":         status,
		"cycle_count":    hs.stats.CycleCount,
		"total_rows":     hs.stats.TotalRows,
		"last_loaded":    hs.stats.LastLoaded,
		"last_skipped":   hs.stats.LastSkipped,
		"last_failed":    hs.stats.LastFailed,
		"last_duration":  hs.stats.LastDuration.String(),
		"uptime_seconds": int(time.Since(hs.startTime).Seconds()),
		"next_cycle_in":  nextCycleIn.String(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if !hs.lastCycle.IsZero() {
		response["last_cycle_time"] = hs.lastCycle.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, response)
}

func (hs *HealthServer) handleLastCycle(w http.ResponseWriter, r *http.Request) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	if hs.lastReport == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cycle completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, hs.lastReport)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
