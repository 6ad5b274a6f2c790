package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName  string
	version      string
	dependencies map[string]Pinger
}

// NewHealthHandler returns a new handler instance. Nil dependencies are
// skipped, so in-memory deployments report only what they run.
func NewHealthHandler(serviceName, version string, dependencies map[string]Pinger) *HealthHandler {
	deps := make(map[string]Pinger, len(dependencies))
	for name, dep := range dependencies {
		if dep != nil {
			deps[name] = dep
		}
	}
	return &HealthHandler{serviceName: serviceName, version: version, dependencies: deps}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings every dependency concurrently under one deadline. The
// session store is among them: without it no login can complete.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	results := make(map[string]probeResult, len(h.dependencies))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, dep := range h.dependencies {
		wg.Add(1)
		go func(name string, dep Pinger) {
			defer wg.Done()
			start := time.Now()
			err := dep.Ping(ctx)
			mu.Lock()
			results[name] = probeResult{err: err, latency: time.Since(start)}
			mu.Unlock()
		}(name, dep)
	}
	wg.Wait()

	depStatus := fiber.Map{}
	ready := true
	for name, res := range results {
		entry := fiber.Map{"status": "ok", "latency_ms": res.latency.Milliseconds()}
		if res.err != nil {
			entry["status"] = "unavailable"
			entry["error"] = res.err.Error()
			ready = false
		}
		depStatus[name] = entry
	}

	if !ready {
		return apperrors.NewDomainError("DEPENDENCY_UNAVAILABLE", "one or more dependencies unavailable",
			fiber.StatusServiceUnavailable, depStatus)
	}
	return c.JSON(fiber.Map{
		"status":       "ready",
		"dependencies": depStatus,
	})
}

type probeResult struct {
	err     error
	latency time.Duration
}
