package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is anything whose reachability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type JobStatusReporter interface {
	GetJobStatus() map[string]any
}

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	checks    map[string]Pinger
	scheduler JobStatusReporter
	version   string
	started   time.Time
	timeout   time.Duration
}

// NewHealthHandlers creates a new health handlers instance. Nil checks are
// skipped; scheduler may be nil when background jobs are disabled.
func NewHealthHandlers(version string, checks map[string]Pinger, scheduler JobStatusReporter) *HealthHandlers {
	active := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			active[name] = p
		}
	}
	return &HealthHandlers{
		checks:    active,
		scheduler: scheduler,
		version:   version,
		started:   time.Now(),
		timeout:   2 * time.Second,
	}
}

// LivenessCheck determines if the application is running (basic liveness check)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type dependencyCheck struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// DetailedHealthCheck pings every dependency. A failing dependency turns
// the response into a 503.
func (h *HealthHandlers) DetailedHealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	overall := "healthy"
	checks := make(map[string]dependencyCheck, len(h.checks))
	for name, p := range h.checks {
		start := time.Now()
		check := dependencyCheck{Status: "healthy"}
		if err := p.Ping(ctx); err != nil {
			check.Status = "unhealthy"
			check.Message = err.Error()
			overall = "degraded"
		}
		check.LatencyMS = time.Since(start).Milliseconds()
		checks[name] = check
	}

	body := map[string]any{
		"overall_status": overall,
		"checks":         checks,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"version":        h.version,
		"uptime":         time.Since(h.started).Round(time.Second).String(),
		"goroutines":     runtime.NumGoroutine(),
	}
	if h.scheduler != nil {
		body["jobs"] = h.scheduler.GetJobStatus()
	}

	statusCode := http.StatusOK
	if overall != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, body)
}
