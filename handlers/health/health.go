// Package health provides health check handlers for the catalog bulk backend
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/middleware"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/utils"
	"github.com/sirupsen/logrus"
)

const checkTimeout = 5 * time.Second

// HealthStatus represents the health check response structure
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
}

// Pinger is anything that can report its own connectivity
type Pinger interface {
	Health(ctx context.Context) error
}

// Check names a dependency probed by the health endpoints
type Check struct {
	Name   string
	Pinger Pinger
}

// Handler contains dependencies for health handlers
type Handler struct {
	Checks  []Check
	Logger  *logrus.Logger
	Version string
}

// NewHandler creates a new health handler
func NewHandler(logger *logrus.Logger, checks ...Check) *Handler {
	return &Handler{
		Checks:  checks,
		Logger:  logger,
		Version: "1.0.0",
	}
}

// HandleHealthCheck provides a health check endpoint for monitoring
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := utils.RequestID(r)
	w.Header().Set(utils.RequestIDHeader, requestID)

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   h.Version,
		Services:  make(map[string]string),
		Uptime:    time.Since(startTime).String(),
	}

	for name, err := range h.runChecks(r.Context()) {
		if err != nil {
			health.Status = "unhealthy"
			health.Services[name] = "unhealthy: " + err.Error()
			h.Logger.WithFields(logrus.Fields{
				"service":    name,
				"request_id": requestID,
				"error":      err.Error(),
			}).Error("Health check failed")
			continue
		}
		health.Services[name] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// HandleLivenessCheck provides a simple liveness probe
func (h *Handler) HandleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// HandleReadinessCheck provides a readiness probe
func (h *Handler) HandleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	requestID := utils.RequestID(r)

	services := make(map[string]string)
	for name, err := range h.runChecks(r.Context()) {
		if err != nil {
			middleware.RespondServiceUnavailable(w, err, requestID)
			return
		}
		services[name] = "ready"
	}

	response := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().Format(time.RFC3339),
		"services":  services,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) runChecks(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	results := make(map[string]error, len(h.Checks))
	for _, c := range h.Checks {
		results[c.Name] = c.Pinger.Health(ctx)
	}
	return results
}

var startTime = time.Now()
