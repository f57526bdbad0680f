package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cleanconnect/cleanconnect/app/controllers"
)

// Dependencies carries the controllers the routers mount. Nil controllers
// are not mounted.
type Dependencies struct {
	Webhook        *controllers.WebhookController
	Health         *controllers.HealthController
	Metrics        *controllers.MetricsController
	LimiterStorage fiber.Storage
}

type WebhookRouter struct {
	deps Dependencies
}

func NewWebhookRouter(deps Dependencies) *WebhookRouter {
	return &WebhookRouter{deps: deps}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	if h.deps.Health != nil {
		app.Get("/healthz", h.deps.Health.HandleHealth)
	}
	if h.deps.Webhook != nil {
		// Provider deliveries stay outside the API rate limiter.
		app.Post("/webhooks/payments", h.deps.Webhook.HandlePaymentWebhook)
	}
}
