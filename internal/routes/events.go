package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dealerbook/dealerbook/internal/gateway"
)

// RegisterEventRoutes wires the integration gateway: the seam where external
// order/payment subsystems hand business events to the ledger.
func RegisterEventRoutes(r fiber.Router, h *gateway.Handler) {
	r.Post("/events/orders", h.OrderFinalized)
	r.Post("/events/orders/:orderId/cancel", h.OrderCancelled)
	r.Post("/events/payments", h.PaymentReceived)
}
