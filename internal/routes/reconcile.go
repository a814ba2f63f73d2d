package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dealerbook/dealerbook/internal/middleware"
	"github.com/dealerbook/dealerbook/internal/reconcile"
)

// RegisterReconcileRoutes wires drift reporting and the audited repair.
func RegisterReconcileRoutes(r fiber.Router, h *reconcile.Handler, cache *redis.Client, repairRate int) {
	r.Post("/accounts/:accountId/reconcile", h.Reconcile)
	r.Post("/accounts/:accountId/repair", middleware.RepairRateLimit(cache, repairRate), h.Repair)
}
