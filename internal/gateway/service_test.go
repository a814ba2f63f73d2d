package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/account"
	"github.com/dealerbook/dealerbook/internal/event"
	"github.com/dealerbook/dealerbook/internal/ledger"
	"github.com/dealerbook/dealerbook/internal/logging"
)

type capturePublisher struct {
	events []event.BalanceChanged
}

func (p *capturePublisher) Publish(_ context.Context, ev event.BalanceChanged) error {
	p.events = append(p.events, ev)
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func setup(t *testing.T, opening, openingType string) (ledger.Store, *Service, *capturePublisher, ledger.Account) {
	t.Helper()
	store := ledger.NewInMemory()
	pub := &capturePublisher{}
	svc := NewService(store, pub, logging.Discard())

	acct, err := account.NewService(store).Create(context.Background(), account.CreateInput{
		TenantID:           "005",
		Name:               "Kivu Traders",
		OpeningBalance:     dec(opening),
		OpeningBalanceType: openingType,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return store, svc, pub, acct
}

func TestOrderFinalizedDebitsDealer(t *testing.T) {
	_, svc, pub, acct := setup(t, "1000", "credit")

	txn, err := svc.OrderFinalized(context.Background(), OrderEvent{
		TenantID:  "005",
		AccountID: acct.ID,
		OrderID:   "ord-42",
		Amount:    dec("116"),
	})
	if err != nil {
		t.Fatalf("order finalized: %v", err)
	}
	if !txn.BalanceAfter.Equal(dec("-884")) {
		t.Fatalf("expected balance after -884, got %s", txn.BalanceAfter)
	}
	if txn.Reference.Kind != ledger.RefOrder || txn.Reference.ID != "ord-42" {
		t.Fatalf("unexpected reference: %+v", txn.Reference)
	}
	if txn.Actor != SystemActor {
		t.Fatalf("expected system actor, got %q", txn.Actor)
	}

	if len(pub.events) != 1 || pub.events[0].Cause != "order" {
		t.Fatalf("expected one order event, got %+v", pub.events)
	}
	if !pub.events[0].BalanceAfter.Equal(dec("-884")) {
		t.Fatalf("event carries wrong balance: %s", pub.events[0].BalanceAfter)
	}
}

func TestPaymentReceivedCreditsDealer(t *testing.T) {
	_, svc, _, acct := setup(t, "1000", "credit")
	ctx := context.Background()

	if _, err := svc.OrderFinalized(ctx, OrderEvent{
		TenantID: "005", AccountID: acct.ID, OrderID: "ord-1", Amount: dec("116"),
	}); err != nil {
		t.Fatalf("order: %v", err)
	}

	txn, err := svc.PaymentReceived(ctx, PaymentEvent{
		TenantID:  "005",
		AccountID: acct.ID,
		PaymentID: "pay-7",
		Amount:    dec("200"),
	})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if !txn.BalanceAfter.Equal(dec("-1084")) {
		t.Fatalf("expected balance after -1084, got %s", txn.BalanceAfter)
	}
	if txn.Description != "payment received" {
		t.Fatalf("unexpected description %q", txn.Description)
	}
}

func TestOrderCancelledCompensates(t *testing.T) {
	store, svc, _, acct := setup(t, "0", "debit")
	ctx := context.Background()

	if _, err := svc.OrderFinalized(ctx, OrderEvent{
		TenantID: "005", AccountID: acct.ID, OrderID: "ord-9", Amount: dec("250"),
	}); err != nil {
		t.Fatalf("order: %v", err)
	}
	txn, err := svc.OrderCancelled(ctx, OrderEvent{
		TenantID: "005", AccountID: acct.ID, OrderID: "ord-9", Amount: dec("250"),
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !txn.BalanceAfter.IsZero() {
		t.Fatalf("expected net zero after compensation, got %s", txn.BalanceAfter)
	}
	if txn.Reference.Kind != ledger.RefCorrection {
		t.Fatalf("cancellation must be a correction entry, got %s", txn.Reference.Kind)
	}

	// The original entry must still be in history untouched.
	history, err := store.History(ctx, "005", acct.ID, ledger.Filter{Ascending: true})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected both entries preserved, got %d", len(history))
	}
}

func TestManualAdjustmentRequiresDirectionAndActor(t *testing.T) {
	_, svc, _, acct := setup(t, "0", "debit")
	ctx := context.Background()

	if _, err := svc.ManualAdjustment(ctx, AdjustmentInput{
		TenantID: "005", AccountID: acct.ID, Amount: dec("10"), Actor: "ops@example",
	}); !errors.Is(err, ledger.ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}

	if _, err := svc.ManualAdjustment(ctx, AdjustmentInput{
		TenantID: "005", AccountID: acct.ID, Direction: "credit", Amount: dec("10"),
	}); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("expected ErrActorRequired, got %v", err)
	}

	txn, err := svc.ManualAdjustment(ctx, AdjustmentInput{
		TenantID:    "005",
		AccountID:   acct.ID,
		Direction:   "credit",
		Amount:      dec("10"),
		Description: "goodwill credit",
		Actor:       "ops@example",
	})
	if err != nil {
		t.Fatalf("adjustment: %v", err)
	}
	if txn.Reference.Kind != ledger.RefManual {
		t.Fatalf("expected manual reference, got %s", txn.Reference.Kind)
	}
	if !txn.BalanceAfter.Equal(dec("-10")) {
		t.Fatalf("expected -10 after credit adjustment, got %s", txn.BalanceAfter)
	}
}

func TestEventsRequireSourceID(t *testing.T) {
	_, svc, pub, acct := setup(t, "0", "debit")
	ctx := context.Background()

	if _, err := svc.OrderFinalized(ctx, OrderEvent{
		TenantID: "005", AccountID: acct.ID, Amount: dec("10"),
	}); !errors.Is(err, ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
	if _, err := svc.PaymentReceived(ctx, PaymentEvent{
		TenantID: "005", AccountID: acct.ID, Amount: dec("10"),
	}); !errors.Is(err, ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("rejected events must publish nothing, got %+v", pub.events)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, event.BalanceChanged) error {
	return errors.New("broker unreachable")
}

func TestPublishFailureDoesNotUnwindCommit(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, failingPublisher{}, logging.Discard())
	ctx := context.Background()

	acct, err := account.NewService(store).Create(ctx, account.CreateInput{
		TenantID:           "005",
		Name:               "Kivu Traders",
		OpeningBalance:     dec("0"),
		OpeningBalanceType: "debit",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	txn, err := svc.OrderFinalized(ctx, OrderEvent{
		TenantID: "005", AccountID: acct.ID, OrderID: "ord-1", Amount: dec("50"),
	})
	if err != nil {
		t.Fatalf("a dead broker must not fail the write: %v", err)
	}
	if !txn.BalanceAfter.Equal(dec("50")) {
		t.Fatalf("expected balance after 50, got %s", txn.BalanceAfter)
	}

	cached, err := store.GetAccount(ctx, "005", acct.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !cached.CurrentBalance.Equal(dec("50")) {
		t.Fatalf("commit lost: cached balance %s", cached.CurrentBalance)
	}
	history, err := store.History(ctx, "005", acct.ID, ledger.Filter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected the committed entry in history, got %d", len(history))
	}
}

func TestRejectedApplyPublishesNothing(t *testing.T) {
	_, svc, pub, acct := setup(t, "0", "debit")

	_, err := svc.OrderFinalized(context.Background(), OrderEvent{
		TenantID:  "005",
		AccountID: acct.ID,
		OrderID:   "ord-neg",
		Amount:    dec("-5"),
	})
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected no events after failed apply")
	}
}
