package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/SchoolPay/app/controllers"
	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
	apiv1 "github.com/ManuelReschke/SchoolPay/internal/api/v1"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/billing"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/cache"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/concepts"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/database"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/env"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway/midtrans"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/idempotency"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/payments"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/router"
)

func main() {
	app := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if m := jobqueue.GetManager(); m != nil {
			m.Stop()
		}
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	redisClient := cache.GetClient()

	serverKey := env.GetEnv("MIDTRANS_SERVER_KEY", "")
	if serverKey == "" {
		log.Println("MIDTRANS_SERVER_KEY is empty; checkout and webhooks will fail")
	}
	gw := midtrans.New(midtrans.Config{
		ServerKey:  serverKey,
		Production: env.GetEnv("MIDTRANS_ENV", "sandbox") == "production",
	})

	settings := models.GetPaymentSettings()
	checkout := payments.NewCheckoutService(payments.CheckoutDeps{
		Concepts:       repos.Concept,
		Payments:       repos.Payment,
		Users:          repos.User,
		Accounts:       repos.BillingAccount,
		Gateway:        gw,
		Locker:         cache.NewLocker(redisClient),
		Policy:         payments.NewRetryPolicy(settings.RetryWindow()),
		GatewayTimeout: time.Duration(env.GetEnvInt("GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,
	})

	manager := jobqueue.NewManager(redisClient, repos.Payment, gw, concepts.NewPurger(repos.Concept), jobqueue.ConfigFromEnv())
	jobqueue.SetManager(manager)
	if env.GetEnv("JOBS_ENABLED", "true") == "true" {
		if err := manager.Start(); err != nil {
			log.Fatalf("Could not start job manager: %v", err)
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	server := &apiv1.APIServer{
		Concepts: controllers.NewConceptController(concepts.NewService(repos.Concept, repos.User)),
		Checkout: controllers.NewCheckoutController(checkout),
		Payments: controllers.NewPaymentController(repos.Payment, payments.NewSummaryService(repos.Concept, repos.Payment, repos.User)),
		Webhooks: controllers.NewWebhookController(billing.NewServiceFromDB(db, serverKey), manager.Counters()),
		Admin:    controllers.NewAdminController(manager),
	}
	opts := apiv1.Options{
		APIKey: env.GetEnv("API_KEY", ""),
		Idempotency: idempotency.New(idempotency.Config{
			Store: idempotency.NewRedisStore(redisClient),
			TTL:   env.GetEnvDuration("IDEMPOTENCY_TTL", idempotency.DefaultTTL),
		}),
	}
	router.InstallRouter(app, server, opts,
		router.HealthCheck{Name: "database", Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		router.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	)

	return app
}
