package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dealerbook/dealerbook/internal/ledger"
	"github.com/dealerbook/dealerbook/internal/middleware"
)

// Handler exposes the business-event endpoints and the history read.
type Handler struct {
	service *Service
	store   ledger.Store
}

// NewHandler builds a gateway HTTP handler.
func NewHandler(service *Service, store ledger.Store) *Handler {
	return &Handler{service: service, store: store}
}

// OrderFinalized records an order purchase against the dealer balance.
func (h *Handler) OrderFinalized(c *fiber.Ctx) error {
	var req OrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := h.service.OrderFinalized(c.UserContext(), OrderEvent{
		TenantID:  middleware.TenantID(c),
		AccountID: req.AccountID,
		OrderID:   req.OrderID,
		Amount:    req.Amount,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toTransactionResponse(txn))
}

// OrderCancelled records a compensating entry for a cancelled order.
func (h *Handler) OrderCancelled(c *fiber.Ctx) error {
	var req CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := h.service.OrderCancelled(c.UserContext(), OrderEvent{
		TenantID:  middleware.TenantID(c),
		AccountID: req.AccountID,
		OrderID:   c.Params("orderId"),
		Amount:    req.Amount,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toTransactionResponse(txn))
}

// PaymentReceived records a dealer payment.
func (h *Handler) PaymentReceived(c *fiber.Ctx) error {
	var req PaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := h.service.PaymentReceived(c.UserContext(), PaymentEvent{
		TenantID:  middleware.TenantID(c),
		AccountID: req.AccountID,
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toTransactionResponse(txn))
}

// ManualAdjustment records an operator correction with explicit direction.
func (h *Handler) ManualAdjustment(c *fiber.Ctx) error {
	var req AdjustmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := h.service.ManualAdjustment(c.UserContext(), AdjustmentInput{
		TenantID:    middleware.TenantID(c),
		AccountID:   c.Params("accountId"),
		Direction:   req.Direction,
		Amount:      req.Amount,
		Description: req.Description,
		Actor:       req.Actor,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toTransactionResponse(txn))
}

// History lists ledger entries for an account, newest first by default.
// Query params: since, until (RFC3339), ref_kind, limit, order=asc|desc.
func (h *Handler) History(c *fiber.Ctx) error {
	f := ledger.Filter{
		RefKind:   ledger.ReferenceKind(c.Query("ref_kind")),
		Limit:     c.QueryInt("limit"),
		Ascending: c.Query("order") == "asc",
	}
	if v := c.Query("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid since: "+err.Error())
		}
		f.Since = &ts
	}
	if v := c.Query("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid until: "+err.Error())
		}
		f.Until = &ts
	}

	txns, err := h.store.History(c.UserContext(), middleware.TenantID(c), c.Params("accountId"), f)
	if err != nil {
		return mapError(err)
	}

	out := make([]TransactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, toTransactionResponse(txn))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidDirection),
		errors.Is(err, ledger.ErrDescriptionTooLong),
		errors.Is(err, ErrMissingReference),
		errors.Is(err, ErrActorRequired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrTenantForbidden):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrVersionConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
