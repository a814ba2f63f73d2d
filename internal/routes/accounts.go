package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dealerbook/dealerbook/internal/account"
	"github.com/dealerbook/dealerbook/internal/gateway"
)

// RegisterAccountRoutes wires the dealer account registry endpoints plus the
// per-account transaction log read.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler, g *gateway.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts/:accountId", h.Get)
	r.Get("/accounts/:accountId/transactions", g.History)
	r.Post("/accounts/:accountId/adjustments", g.ManualAdjustment)
}
