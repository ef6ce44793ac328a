package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// HealthProbe reports the state of an optional dependency.
type HealthProbe struct {
	Name  string
	Check func() bool
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string          `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
	Service      string          `json:"service"`
	Environment  string          `json:"environment"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
}

// HealthCheck reports service health. Failing probes degrade the status but
// never fail the request since the chat core runs without them.
func HealthCheck(cfg config.Config, probes ...HealthProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if len(probes) > 0 {
			payload.Dependencies = make(map[string]bool, len(probes))
			for _, probe := range probes {
				healthy := probe.Check == nil || probe.Check()
				payload.Dependencies[probe.Name] = healthy
				if !healthy {
					payload.Status = "degraded"
				}
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
