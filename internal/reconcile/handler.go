package reconcile

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dealerbook/dealerbook/internal/ledger"
	"github.com/dealerbook/dealerbook/internal/middleware"
)

// Handler exposes the reconcile/repair endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a reconciliation HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type reportResponse struct {
	TenantID         string    `json:"tenant_id"`
	AccountID        string    `json:"account_id"`
	StoredBalance    string    `json:"stored_balance"`
	ReplayedBalance  string    `json:"replayed_balance"`
	Drift            string    `json:"drift"`
	Corrected        bool      `json:"corrected"`
	TransactionCount int       `json:"transaction_count"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Reconcile replays history and reports drift without writing.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	report, err := h.service.Reconcile(c.UserContext(), middleware.TenantID(c), c.Params("accountId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(reportResponse{
		TenantID:         report.TenantID,
		AccountID:        report.AccountID,
		StoredBalance:    report.StoredBalance.String(),
		ReplayedBalance:  report.ReplayedBalance.String(),
		Drift:            report.Drift.String(),
		Corrected:        report.Corrected,
		TransactionCount: report.TransactionCount,
		CheckedAt:        report.CheckedAt,
	})
}

type repairRequest struct {
	ConfirmedBy string `json:"confirmed_by"`
}

// Repair overwrites the cached balance with the replayed value. Requires an
// explicit confirming operator.
func (h *Handler) Repair(c *fiber.Ctx) error {
	var req repairRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.ConfirmedBy == "" {
		return fiber.NewError(http.StatusBadRequest, "confirmed_by is required")
	}

	acct, err := h.service.Repair(c.UserContext(), middleware.TenantID(c), c.Params("accountId"), req.ConfirmedBy)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id":      acct.ID,
		"current_balance": acct.CurrentBalance.String(),
		"version":         acct.Version,
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrTenantForbidden):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrVersionConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrHistoryInconsistent):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}
