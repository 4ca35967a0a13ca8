package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/invoiceflow/backend/internal/interfaces/http/dto"
)

// Health status values
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
	HealthDisabled = "disabled"
)

// HealthCheck checks one dependency. A failing critical check makes the
// service unhealthy; any other failure only degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	// Check is nil when the dependency is not configured
	Check func(ctx context.Context) error
}

// ComponentHealth is the result of one check
type ComponentHealth struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthHandler reports liveness and dependency health
type HealthHandler struct {
	BaseHandler
	version   string
	checks    []HealthCheck
	timeout   time.Duration
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(version string, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		version:   version,
		checks:    checks,
		timeout:   3 * time.Second,
		startTime: time.Now(),
	}
}

// Check runs every dependency check concurrently. It answers 503 when a
// critical dependency is down.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	results := make([]ComponentHealth, len(h.checks))
	var wg sync.WaitGroup
	for i, check := range h.checks {
		if check.Check == nil {
			results[i] = ComponentHealth{Status: HealthDisabled}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := check.Check(ctx)
			res := ComponentHealth{Status: HealthOK, Latency: time.Since(start).Round(time.Microsecond).String()}
			if err != nil {
				res.Status = HealthDown
				res.Error = err.Error()
			}
			results[i] = res
		}()
	}
	wg.Wait()

	resp := HealthResponse{
		Status:     HealthOK,
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Components: make(map[string]ComponentHealth, len(h.checks)),
	}
	statusCode := http.StatusOK
	for i, check := range h.checks {
		resp.Components[check.Name] = results[i]
		if results[i].Status != HealthDown {
			continue
		}
		if check.Critical {
			resp.Status = HealthDown
			statusCode = http.StatusServiceUnavailable
		} else if resp.Status == HealthOK {
			resp.Status = HealthDegraded
		}
	}

	if statusCode != http.StatusOK {
		body := dto.NewErrorResponseWithRequestID(dto.ErrCodeUnavailable, "A critical dependency is down", getRequestID(c))
		body.Data = resp
		c.JSON(statusCode, body)
		return
	}
	h.Success(c, resp)
}
