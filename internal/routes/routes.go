package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dealerbook/dealerbook/internal/account"
	"github.com/dealerbook/dealerbook/internal/config"
	"github.com/dealerbook/dealerbook/internal/event"
	"github.com/dealerbook/dealerbook/internal/gateway"
	"github.com/dealerbook/dealerbook/internal/ledger"
	"github.com/dealerbook/dealerbook/internal/middleware"
	"github.com/dealerbook/dealerbook/internal/reconcile"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Stores: Postgres in real deployments, in-memory for dev.
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, d.Cfg.ApplyRetryLimit)
	} else {
		store = ledger.NewInMemory()
	}

	var events event.Publisher
	if d.Cache != nil {
		events = event.NewRedisPublisher(d.Cache, d.Cfg.EventChannel)
	} else {
		events = event.NewLogPublisher(d.Logger)
	}

	accountSvc := account.NewService(store)
	gatewaySvc := gateway.NewService(store, events, d.Logger)
	reconcileSvc := reconcile.NewService(store, events, d.Logger)

	accountHandler := account.NewHandler(accountSvc)
	gatewayHandler := gateway.NewHandler(gatewaySvc, store)
	reconcileHandler := reconcile.NewHandler(reconcileSvc)

	// API routes: everything in the ledger is tenant-scoped.
	api := app.Group("/api/v1", middleware.TenantScope())
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterAccountRoutes(api, accountHandler, gatewayHandler)
	RegisterEventRoutes(api, gatewayHandler)
	RegisterReconcileRoutes(api, reconcileHandler, d.Cache, d.Cfg.RepairRatePerMin)

	return nil
}
