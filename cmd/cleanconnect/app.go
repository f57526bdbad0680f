package main

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/cleanconnect/cleanconnect/app/controllers"
	"github.com/cleanconnect/cleanconnect/app/repository"
	"github.com/cleanconnect/cleanconnect/internal/pkg/audit"
	"github.com/cleanconnect/cleanconnect/internal/pkg/cache"
	"github.com/cleanconnect/cleanconnect/internal/pkg/database"
	"github.com/cleanconnect/cleanconnect/internal/pkg/env"
	"github.com/cleanconnect/cleanconnect/internal/pkg/fulfillment"
	"github.com/cleanconnect/cleanconnect/internal/pkg/geocode"
	"github.com/cleanconnect/cleanconnect/internal/pkg/invoice"
	"github.com/cleanconnect/cleanconnect/internal/pkg/mail"
	"github.com/cleanconnect/cleanconnect/internal/pkg/metrics/counter"
	"github.com/cleanconnect/cleanconnect/internal/pkg/notify"
	"github.com/cleanconnect/cleanconnect/internal/pkg/provider"
	"github.com/cleanconnect/cleanconnect/internal/pkg/retry"
	"github.com/cleanconnect/cleanconnect/internal/pkg/router"
	"github.com/cleanconnect/cleanconnect/internal/pkg/webhook"
)

// NewApplication wires configuration, stores and collaborators into a
// fiber app. A missing signing secret aborts startup.
func NewApplication(ctx context.Context) (*fiber.App, error) {
	env.SetupEnvFile()
	if err := env.Require("WEBHOOK_SIGNING_SECRET", "DB_USER", "DB_NAME"); err != nil {
		return nil, err
	}

	if err := database.SetupDatabase(); err != nil {
		return nil, err
	}
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos, err := repository.SharedRepositories()
	if err != nil {
		return nil, err
	}
	loc := env.Location()
	adminEmail := env.GetEnv("ADMIN_EMAIL", "")

	auditor := audit.NewEmitter(repos.Audit)
	notifier := notify.NewService(repos.Notification)
	mailer := mail.NewSerialSender(mail.NewSMTPMailerFromEnv(), env.GetDuration("MAIL_SEND_DELAY_MS", 600, time.Millisecond))
	locker := fulfillment.NewRedisLocker(cache.NewLocker(cache.GetClient(), "saga:lock:", env.GetDuration("SAGA_LOCK_TTL_SECONDS", 120, time.Second)))

	archiveCfg, err := invoice.LoadArchiveConfig()
	if err != nil {
		return nil, err
	}
	var archive invoice.Archiver
	if archiveCfg.Enabled {
		s3Archive, err := invoice.NewS3Archive(ctx, archiveCfg)
		if err != nil {
			return nil, err
		}
		archive = s3Archive
	}

	opts := []fulfillment.Option{
		fulfillment.WithAuditor(auditor),
		fulfillment.WithNotifier(notifier),
		fulfillment.WithMailer(mailer),
		fulfillment.WithLocker(locker),
		fulfillment.WithInvoices(invoice.NewGenerator(repos.Invoice, archive, archiveCfg)),
	}
	if stripeClient := provider.NewStripeClientFromEnv(); stripeClient != nil {
		opts = append(opts, fulfillment.WithProvider(stripeClient))
	}
	if geocoder := geocode.NewClientFromEnv(); geocoder.BaseURL != "" {
		opts = append(opts, fulfillment.WithGeocoder(geocoder))
	} else {
		log.Warn("[Server] GEOCODER_URL not set, addresses are stored without coordinates")
	}

	saga := fulfillment.New(repos, fulfillment.Config{
		AdminEmail:     adminEmail,
		CandidateLimit: env.GetInt("MATCH_CANDIDATE_LIMIT", 50),
		Location:       loc,
	}, opts...)
	retries := retry.NewService(repos, adminEmail, loc,
		retry.WithAuditor(auditor),
		retry.WithMailer(mailer),
		retry.WithLocker(locker),
	)

	webhookCounter := counter.NewWebhook(cache.GetClient())
	deps := router.Dependencies{
		Webhook: controllers.NewWebhookController(
			webhook.NewVerifier(env.GetEnv("WEBHOOK_SIGNING_SECRET", ""), env.GetDuration("WEBHOOK_TOLERANCE_SECONDS", 300, time.Second)),
			webhook.NewDispatcher(saga, retries),
			repos.WebhookDelivery,
			webhookCounter,
			env.GetDuration("WEBHOOK_TIMEOUT_SECONDS", 25, time.Second),
		),
		Health: controllers.NewHealthController(map[string]controllers.HealthCheck{
			"database": database.Ping,
			"cache":    cache.Ping,
		}),
		Metrics: controllers.NewMetricsController(webhookCounter),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err == nil {
		deps.LimiterStorage = router.NewLimiterStorage()
	} else {
		log.Warnf("[Server] Redis unavailable, API rate limit is per process: %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if user, pass := env.GetEnv("METRICS_USER", ""), env.GetEnv("METRICS_PASSWORD", ""); user != "" && pass != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{user: pass},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	if specPath := findOpenAPIDocument(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	} else {
		log.Warn("[Server] OpenAPI document not found, /docs/api disabled")
	}

	router.InstallRouter(app, deps)
	return app, nil
}

func findOpenAPIDocument() string {
	for _, base := range []string{"./", "../../", "../../../"} {
		p := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
