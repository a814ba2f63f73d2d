package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/balance"
	"github.com/dealerbook/dealerbook/internal/event"
	"github.com/dealerbook/dealerbook/internal/ledger"
)

// SystemActor marks entries caused by upstream systems rather than a person.
const SystemActor = "system"

var (
	// ErrMissingReference occurs when an event arrives without its source id.
	ErrMissingReference = errors.New("source event id is required")
	// ErrActorRequired occurs when a manual adjustment has no human actor.
	ErrActorRequired = errors.New("actor is required for manual adjustments")
)

// Service is the seam between external order/payment subsystems and the
// ledger: each accepted business event maps to exactly one ledger entry, and
// a balance-changed event is published after each successful commit. Pricing,
// tax and stock logic all live upstream.
type Service struct {
	store  ledger.Store
	events event.Publisher
	logger *slog.Logger
}

// NewService constructs the integration gateway.
func NewService(store ledger.Store, events event.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, events: events, logger: logger}
}

// OrderEvent describes a finalized or cancelled order for a dealer.
type OrderEvent struct {
	TenantID  string
	AccountID string
	OrderID   string
	Amount    decimal.Decimal
}

// PaymentEvent describes a payment received from a dealer.
type PaymentEvent struct {
	TenantID  string
	AccountID string
	PaymentID string
	Amount    decimal.Decimal
}

// AdjustmentInput describes a manual balance correction. Direction is
// mandatory: the ledger never guesses which way an adjustment goes.
type AdjustmentInput struct {
	TenantID    string
	AccountID   string
	Direction   string
	Amount      decimal.Decimal
	Description string
	Actor       string
}

// OrderFinalized debits the dealer for a purchase.
func (s *Service) OrderFinalized(ctx context.Context, ev OrderEvent) (ledger.Transaction, error) {
	if ev.OrderID == "" {
		return ledger.Transaction{}, ErrMissingReference
	}
	return s.apply(ctx, ledger.ApplyInput{
		TenantID:    ev.TenantID,
		AccountID:   ev.AccountID,
		Direction:   balance.Debit,
		Amount:      ev.Amount,
		Description: "order purchase",
		Reference:   ledger.Reference{Kind: ledger.RefOrder, ID: ev.OrderID},
		Actor:       SystemActor,
	}, "order")
}

// OrderCancelled compensates a finalized order with an opposite-direction
// entry. History is never edited or deleted.
func (s *Service) OrderCancelled(ctx context.Context, ev OrderEvent) (ledger.Transaction, error) {
	if ev.OrderID == "" {
		return ledger.Transaction{}, ErrMissingReference
	}
	return s.apply(ctx, ledger.ApplyInput{
		TenantID:    ev.TenantID,
		AccountID:   ev.AccountID,
		Direction:   balance.Credit,
		Amount:      ev.Amount,
		Description: "order cancelled",
		Reference:   ledger.Reference{Kind: ledger.RefCorrection, ID: ev.OrderID},
		Actor:       SystemActor,
	}, "order_cancelled")
}

// PaymentReceived credits the dealer for money received.
func (s *Service) PaymentReceived(ctx context.Context, ev PaymentEvent) (ledger.Transaction, error) {
	if ev.PaymentID == "" {
		return ledger.Transaction{}, ErrMissingReference
	}
	return s.apply(ctx, ledger.ApplyInput{
		TenantID:    ev.TenantID,
		AccountID:   ev.AccountID,
		Direction:   balance.Credit,
		Amount:      ev.Amount,
		Description: "payment received",
		Reference:   ledger.Reference{Kind: ledger.RefPayment, ID: ev.PaymentID},
		Actor:       SystemActor,
	}, "payment")
}

// ManualAdjustment applies an operator-supplied correction with an explicit
// direction.
func (s *Service) ManualAdjustment(ctx context.Context, in AdjustmentInput) (ledger.Transaction, error) {
	if in.Actor == "" {
		return ledger.Transaction{}, ErrActorRequired
	}
	dir, err := balance.ParseDirection(in.Direction)
	if err != nil {
		return ledger.Transaction{}, ledger.ErrInvalidDirection
	}
	return s.apply(ctx, ledger.ApplyInput{
		TenantID:    in.TenantID,
		AccountID:   in.AccountID,
		Direction:   dir,
		Amount:      in.Amount,
		Description: in.Description,
		Reference:   ledger.Reference{Kind: ledger.RefManual},
		Actor:       in.Actor,
	}, "adjustment")
}

func (s *Service) apply(ctx context.Context, in ledger.ApplyInput, cause string) (ledger.Transaction, error) {
	txn, err := s.store.Apply(ctx, in)
	if err != nil {
		return ledger.Transaction{}, err
	}

	// Publication failures never unwind the committed write, but they must be
	// visible to operators.
	if s.events != nil {
		if err := s.events.Publish(ctx, event.BalanceChanged{
			TenantID:      txn.TenantID,
			AccountID:     txn.AccountID,
			TransactionID: txn.ID,
			Direction:     string(txn.Direction),
			Amount:        txn.Amount,
			BalanceAfter:  txn.BalanceAfter,
			Cause:         cause,
			OccurredAt:    time.Now().UTC(),
		}); err != nil {
			s.logger.Warn("balance event publish failed",
				"tenant_id", txn.TenantID,
				"account_id", txn.AccountID,
				"transaction_id", txn.ID,
				"cause", cause,
				"error", err,
			)
		}
	}

	return txn, nil
}
