package controllers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HealthController struct {
	checks map[string]HealthCheck
}

func NewHealthController(checks map[string]HealthCheck) *HealthController {
	return &HealthController{checks: checks}
}

// HandleHealth reports every dependency and answers 503 when one is down.
func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := fiber.StatusOK
	result := fiber.Map{}
	for _, name := range names {
		if err := hc.checks[name](ctx); err != nil {
			log.Warnf("[Health] %s unreachable: %v", name, err)
			result[name] = "down"
			status = fiber.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}

	result["status"] = "ok"
	if status != fiber.StatusOK {
		result["status"] = "degraded"
	}
	return c.Status(status).JSON(result)
}

// WebhookStats reads the webhook outcome counters.
type WebhookStats interface {
	Totals(ctx context.Context) (map[string]int64, error)
	Day(ctx context.Context, day time.Time) (map[string]int64, error)
}

type MetricsController struct {
	stats WebhookStats
}

func NewMetricsController(stats WebhookStats) *MetricsController {
	return &MetricsController{stats: stats}
}

// HandleWebhookMetrics returns all-time and today's counters.
func (mc *MetricsController) HandleWebhookMetrics(c *fiber.Ctx) error {
	ctx := c.UserContext()
	totals, err := mc.stats.Totals(ctx)
	if err != nil {
		log.Errorf("[Metrics] Reading totals failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "metrics_unavailable"})
	}
	today, err := mc.stats.Day(ctx, time.Now())
	if err != nil {
		log.Errorf("[Metrics] Reading daily counters failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "metrics_unavailable"})
	}
	return c.JSON(fiber.Map{"totals": totals, "today": today})
}
