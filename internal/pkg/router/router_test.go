package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanconnect/cleanconnect/app/controllers"
)

func TestInstallRouterMountsRoutes(t *testing.T) {
	app := fiber.New()
	InstallRouter(app, Dependencies{
		Health: controllers.NewHealthController(map[string]controllers.HealthCheck{
			"database": func(context.Context) error { return nil },
		}),
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// No webhook controller, no route.
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/payments", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestApiRateLimit(t *testing.T) {
	app := fiber.New()
	NewApiRouter(Dependencies{}).InstallRouter(app)

	var last int
	for i := 0; i < 61; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/", nil), -1)
		require.NoError(t, err)
		last = resp.StatusCode
	}
	assert.Equal(t, fiber.StatusTooManyRequests, last)
}
