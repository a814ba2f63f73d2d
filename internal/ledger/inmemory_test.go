package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/balance"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestAccount(t *testing.T, s Store, tenantID string, opening string, openingType balance.Direction) Account {
	t.Helper()
	now := time.Now().UTC()
	acct := Account{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		DealerCode:         "DLR-" + uuid.NewString()[:8],
		Name:               "Test Dealer",
		OpeningBalance:     dec(opening),
		OpeningBalanceType: openingType,
		CurrentBalance:     balance.OpeningSignedValue(dec(opening), openingType),
		CreditLimit:        dec("10000"),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acct
}

func TestInMemoryApplyUpdatesBalanceAndSnapshot(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acct := newTestAccount(t, s, "005", "1000", balance.Credit)

	txn, err := s.Apply(ctx, ApplyInput{
		TenantID:    "005",
		AccountID:   acct.ID,
		Direction:   balance.Debit,
		Amount:      dec("116"),
		Description: "order purchase",
		Reference:   Reference{Kind: RefOrder, ID: "ord-1"},
		Actor:       "system",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !txn.BalanceAfter.Equal(dec("-884")) {
		t.Fatalf("expected balance after -884, got %s", txn.BalanceAfter)
	}

	fetched, err := s.GetAccount(ctx, "005", acct.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !fetched.CurrentBalance.Equal(dec("-884")) {
		t.Fatalf("expected cached balance -884, got %s", fetched.CurrentBalance)
	}
	if fetched.Version != acct.Version+1 {
		t.Fatalf("expected version bump, got %d", fetched.Version)
	}

	txn2, err := s.Apply(ctx, ApplyInput{
		TenantID:  "005",
		AccountID: acct.ID,
		Direction: balance.Credit,
		Amount:    dec("200"),
		Reference: Reference{Kind: RefPayment, ID: "pay-1"},
		Actor:     "system",
	})
	if err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	if !txn2.BalanceAfter.Equal(dec("-1084")) {
		t.Fatalf("expected balance after -1084, got %s", txn2.BalanceAfter)
	}
}

func TestInMemoryApplyRejectsNegativeAmount(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acct := newTestAccount(t, s, "005", "0", balance.Debit)

	_, err := s.Apply(ctx, ApplyInput{
		TenantID:  "005",
		AccountID: acct.ID,
		Direction: balance.Debit,
		Amount:    dec("-5"),
		Actor:     "system",
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	// Nothing may be appended on a failed apply.
	history, err := s.History(ctx, "005", acct.ID, Filter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history))
	}
}

func TestInMemoryApplyRejectsUnknownDirection(t *testing.T) {
	s := NewInMemory()
	acct := newTestAccount(t, s, "005", "0", balance.Debit)

	_, err := s.Apply(context.Background(), ApplyInput{
		TenantID:  "005",
		AccountID: acct.ID,
		Direction: balance.Direction("adjustment"),
		Amount:    dec("10"),
		Actor:     "ops",
	})
	if !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
}

func TestInMemoryTenantIsolation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acct := newTestAccount(t, s, "005", "0", balance.Debit)

	if _, err := s.GetAccount(ctx, "006", acct.ID); !errors.Is(err, ErrTenantForbidden) {
		t.Fatalf("expected ErrTenantForbidden, got %v", err)
	}
	if _, err := s.Apply(ctx, ApplyInput{
		TenantID:  "006",
		AccountID: acct.ID,
		Direction: balance.Debit,
		Amount:    dec("10"),
		Actor:     "system",
	}); !errors.Is(err, ErrTenantForbidden) {
		t.Fatalf("expected ErrTenantForbidden on apply, got %v", err)
	}
	if _, err := s.GetAccount(ctx, "005", uuid.NewString()); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestInMemoryDealerCodeUniquePerTenant(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acct := newTestAccount(t, s, "005", "0", balance.Debit)

	dup := acct
	dup.ID = uuid.NewString()
	if err := s.CreateAccount(ctx, dup); !errors.Is(err, ErrDealerCodeTaken) {
		t.Fatalf("expected ErrDealerCodeTaken, got %v", err)
	}

	// Same code under another tenant is fine.
	other := acct
	other.ID = uuid.NewString()
	other.TenantID = "006"
	if err := s.CreateAccount(ctx, other); err != nil {
		t.Fatalf("same code, different tenant: %v", err)
	}
}

func TestInMemoryConcurrentAppliesLoseNoUpdates(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acct := newTestAccount(t, s, "005", "0", balance.Debit)

	const workers = 25
	amount := dec("40")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Apply(ctx, ApplyInput{
				TenantID:    "005",
				AccountID:   acct.ID,
				Direction:   balance.Debit,
				Amount:      amount,
				Description: fmt.Sprintf("order %d", i),
				Reference:   Reference{Kind: RefOrder, ID: fmt.Sprintf("ord-%d", i)},
				Actor:       "system",
			})
			if err != nil {
				t.Errorf("apply %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	fetched, err := s.GetAccount(ctx, "005", acct.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	want := amount.Mul(decimal.NewFromInt(workers))
	if !fetched.CurrentBalance.Equal(want) {
		t.Fatalf("lost update: balance %s, want %s", fetched.CurrentBalance, want)
	}

	// Every snapshot must be distinct along some serial order.
	history, err := s.History(ctx, "005", acct.ID, Filter{Ascending: true})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != workers {
		t.Fatalf("expected %d transactions, got %d", workers, len(history))
	}
	running := decimal.Zero
	for i, txn := range history {
		if txn.Sequence != int64(i+1) {
			t.Fatalf("entry %d has sequence %d; sequences must be gapless and ordered", i, txn.Sequence)
		}
		running = balance.ApplyDelta(running, txn.Direction, txn.Amount)
		if !running.Equal(txn.BalanceAfter) {
			t.Fatalf("snapshot %d broken: running %s, stored %s", i, running, txn.BalanceAfter)
		}
	}
}

func TestInMemoryHistorySequenceCursor(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acct := newTestAccount(t, s, "005", "0", balance.Debit)

	for i := 0; i < 5; i++ {
		if _, err := s.Apply(ctx, ApplyInput{
			TenantID:  "005",
			AccountID: acct.ID,
			Direction: balance.Debit,
			Amount:    dec("1"),
			Reference: Reference{Kind: RefSystem},
			Actor:     "system",
		}); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	page, err := s.History(ctx, "005", acct.ID, Filter{Ascending: true, AfterSeq: 2, Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page) != 2 || page[0].Sequence != 3 || page[1].Sequence != 4 {
		t.Fatalf("expected sequences 3,4 after cursor 2, got %+v", page)
	}

	// The cursor is exclusive; resuming from the last sequence yields the rest.
	rest, err := s.History(ctx, "005", acct.ID, Filter{Ascending: true, AfterSeq: page[1].Sequence})
	if err != nil {
		t.Fatalf("history rest: %v", err)
	}
	if len(rest) != 1 || rest[0].Sequence != 5 {
		t.Fatalf("expected only sequence 5 remaining, got %+v", rest)
	}
}

func TestInMemoryHistoryFilterAndOrder(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acct := newTestAccount(t, s, "005", "0", balance.Debit)

	refs := []Reference{
		{Kind: RefOrder, ID: "ord-1"},
		{Kind: RefPayment, ID: "pay-1"},
		{Kind: RefOrder, ID: "ord-2"},
	}
	for _, ref := range refs {
		if _, err := s.Apply(ctx, ApplyInput{
			TenantID:  "005",
			AccountID: acct.ID,
			Direction: balance.Debit,
			Amount:    dec("1"),
			Reference: ref,
			Actor:     "system",
		}); err != nil {
			t.Fatalf("apply %s: %v", ref.ID, err)
		}
	}

	orders, err := s.History(ctx, "005", acct.ID, Filter{RefKind: RefOrder})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 order entries, got %d", len(orders))
	}
	if orders[0].Reference.ID != "ord-2" {
		t.Fatalf("expected newest first, got %s", orders[0].Reference.ID)
	}

	limited, err := s.History(ctx, "005", acct.ID, Filter{Limit: 1, Ascending: true})
	if err != nil {
		t.Fatalf("history limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Reference.ID != "ord-1" {
		t.Fatalf("expected oldest entry only, got %+v", limited)
	}
}

func TestInMemoryOverwriteBalanceCAS(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acct := newTestAccount(t, s, "005", "0", balance.Debit)

	repaired, err := s.OverwriteBalance(ctx, "005", acct.ID, dec("77"), acct.Version)
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if !repaired.CurrentBalance.Equal(dec("77")) {
		t.Fatalf("expected 77, got %s", repaired.CurrentBalance)
	}

	// Stale version must not win.
	if _, err := s.OverwriteBalance(ctx, "005", acct.ID, dec("0"), acct.Version); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}
