package gateway

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/ledger"
)

// OrderRequest captures an order-finalized event from the order subsystem.
type OrderRequest struct {
	AccountID string          `json:"account_id"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// CancelRequest captures an order cancellation/refund event.
type CancelRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentRequest captures a payment-received event.
type PaymentRequest struct {
	AccountID string          `json:"account_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// AdjustmentRequest captures a manual correction with an explicit direction.
type AdjustmentRequest struct {
	Direction   string          `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Actor       string          `json:"actor"`
}

// TransactionResponse is the API shape of one ledger entry.
type TransactionResponse struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Sequence      int64           `json:"sequence"`
	Direction     string          `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ReferenceKind string          `json:"reference_kind"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Actor         string          `json:"actor"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toTransactionResponse(txn ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            txn.ID,
		AccountID:     txn.AccountID,
		Sequence:      txn.Sequence,
		Direction:     string(txn.Direction),
		Amount:        txn.Amount,
		Description:   txn.Description,
		ReferenceKind: string(txn.Reference.Kind),
		ReferenceID:   txn.Reference.ID,
		BalanceAfter:  txn.BalanceAfter,
		Actor:         txn.Actor,
		CreatedAt:     txn.CreatedAt,
	}
}
