// Package http exposes the operational surface of the daemon: /health and
// /metrics, with correlation-ID and metrics middleware.
package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/aqi-alert-service/internal/circuitbreaker"
	"github.com/kjstillabower/aqi-alert-service/internal/store"
	"github.com/kjstillabower/aqi-alert-service/internal/traffic"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	TrafficWindow    time.Duration // sliding window for upstream error rate
	DegradedErrorPct int           // error rate >= this marks upstream degraded
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store            store.Store
	breaker          *circuitbreaker.CircuitBreaker
	healthConfig     *HealthConfig
	logger           *zap.Logger
	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(st store.Store, breaker *circuitbreaker.CircuitBreaker, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		store:        st,
		breaker:      breaker,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// SetShuttingDown marks the service as draining; health reports shutting-down
// afterwards so load balancers stop routing to this instance.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if err := h.store.Ping(r.Context()); err == nil {
		checks["store"] = "healthy"
	} else {
		checks["store"] = "unhealthy"
	}
	if h.breaker != nil {
		checks["circuitBreaker"] = h.breaker.State().String()
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "aqi-alert-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > upstream degraded > healthy. An open
// breaker reports degraded with 200 since fallback readings still serve.
func (h *Handler) computeHealthStatus(r *http.Request) healthResult {
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.store.Ping(r.Context()); err != nil {
		return healthResult{"unhealthy", http.StatusServiceUnavailable, "store_unreachable"}
	}
	if h.breaker != nil && h.breaker.State() == circuitbreaker.StateOpen {
		return healthResult{"degraded", http.StatusOK, "breaker_open"}
	}
	if h.healthConfig != nil && h.healthConfig.TrafficWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.TrafficWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusOK, "upstream_error_rate"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}
