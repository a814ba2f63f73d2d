package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/ledger"
	"github.com/dealerbook/dealerbook/internal/middleware"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Name               string          `json:"name"`
	DealerCode         string          `json:"dealer_code"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	OpeningBalanceType string          `json:"opening_balance_type"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	OwnerUserID        string          `json:"owner_user_id"`
}

type accountResponse struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"tenant_id"`
	DealerCode         string          `json:"dealer_code"`
	Name               string          `json:"name"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	OpeningBalanceType string          `json:"opening_balance_type"`
	CurrentBalance     decimal.Decimal `json:"current_balance"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	BalanceStatus      string          `json:"balance_status,omitempty"`
	CreditUtilization  string          `json:"credit_utilization,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Create opens a dealer account for the request tenant.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	acct, err := h.service.Create(c.UserContext(), CreateInput{
		TenantID:           middleware.TenantID(c),
		Name:               req.Name,
		DealerCode:         req.DealerCode,
		OpeningBalance:     req.OpeningBalance,
		OpeningBalanceType: req.OpeningBalanceType,
		CreditLimit:        req.CreditLimit,
		OwnerUserID:        req.OwnerUserID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidOpeningBalance),
			errors.Is(err, ErrInvalidBalanceType),
			errors.Is(err, ErrInvalidCreditLimit):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrDealerCodeTaken):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return err
		}
	}

	return c.Status(http.StatusCreated).JSON(toResponse(acct, View{}))
}

// Get returns an account with its derived views.
func (h *Handler) Get(c *fiber.Ctx) error {
	view, err := h.service.Get(c.UserContext(), middleware.TenantID(c), c.Params("accountId"))
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrTenantForbidden):
			return fiber.NewError(http.StatusForbidden, err.Error())
		default:
			return err
		}
	}
	return c.Status(http.StatusOK).JSON(toResponse(view.Account, view))
}

func toResponse(acct ledger.Account, view View) accountResponse {
	resp := accountResponse{
		ID:                 acct.ID,
		TenantID:           acct.TenantID,
		DealerCode:         acct.DealerCode,
		Name:               acct.Name,
		OpeningBalance:     acct.OpeningBalance,
		OpeningBalanceType: string(acct.OpeningBalanceType),
		CurrentBalance:     acct.CurrentBalance,
		CreditLimit:        acct.CreditLimit,
		CreatedAt:          acct.CreatedAt,
	}
	if view.BalanceStatus != "" {
		resp.BalanceStatus = string(view.BalanceStatus)
		resp.CreditUtilization = view.CreditUtilization.String()
	}
	return resp
}
