package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ats-auth/internal/persistence"
)

const readinessTimeout = 2 * time.Second

type dependencyCheck struct {
	name  string
	probe func(context.Context) error
	// note replaces the probe result when the dependency is intentionally absent
	note string
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	checks      []dependencyCheck
}

// NewHealthHandler builds the probes. A nil store is not reported; a
// Postgres without a pool reports the in-memory credential store; a nil
// Redis means revocation is off.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis) *HealthHandler {
	h := &HealthHandler{serviceName: serviceName, version: version}
	if postgres != nil {
		check := dependencyCheck{name: "postgres", probe: postgres.Ping}
		if !postgres.Enabled() {
			check = dependencyCheck{name: "postgres", note: "in-memory"}
		}
		h.checks = append(h.checks, check)
	}
	if redis != nil {
		h.checks = append(h.checks, dependencyCheck{name: "redis", probe: redis.Ping})
	} else if postgres != nil {
		h.checks = append(h.checks, dependencyCheck{name: "redis", note: "disabled"})
	}
	return h
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings every configured dependency.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	status := fiber.Map{}
	ready := true
	for _, check := range h.checks {
		if check.probe == nil {
			status[check.name] = check.note
			continue
		}
		if err := check.probe(ctx); err != nil {
			status[check.name] = err.Error()
			ready = false
			continue
		}
		status[check.name] = "ok"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": status,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":       "ready",
		"service":      h.serviceName,
		"dependencies": status,
	})
}
