package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/balance"
)

type inMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	history  map[string][]Transaction
}

// NewInMemory creates a concurrency-safe in-memory store used in tests and
// when the service runs without a database in dev mode.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts: make(map[string]*Account),
		history:  make(map[string][]Transaction),
	}
}

func (s *inMemoryStore) CreateAccount(_ context.Context, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.ID]; exists {
		return ErrDealerCodeTaken
	}
	for _, existing := range s.accounts {
		if existing.TenantID == acct.TenantID && existing.DealerCode == acct.DealerCode {
			return ErrDealerCodeTaken
		}
	}

	stored := acct
	s.accounts[acct.ID] = &stored
	return nil
}

func (s *inMemoryStore) GetAccount(_ context.Context, tenantID, accountID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findAccount(tenantID, accountID)
}

// findAccount requires the caller to hold the lock.
func (s *inMemoryStore) findAccount(tenantID, accountID string) (Account, error) {
	acct, ok := s.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if acct.TenantID != tenantID {
		return Account{}, ErrTenantForbidden
	}
	return *acct, nil
}

func (s *inMemoryStore) Apply(_ context.Context, in ApplyInput) (Transaction, error) {
	if err := in.validate(); err != nil {
		return Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[in.AccountID]
	if !ok {
		return Transaction{}, ErrAccountNotFound
	}
	if acct.TenantID != in.TenantID {
		return Transaction{}, ErrTenantForbidden
	}

	newBalance := balance.ApplyDelta(acct.CurrentBalance, in.Direction, in.Amount)
	now := time.Now().UTC()

	txn := Transaction{
		ID:           uuid.NewString(),
		TenantID:     in.TenantID,
		AccountID:    in.AccountID,
		Sequence:     acct.Version + 1,
		Direction:    in.Direction,
		Amount:       in.Amount,
		Description:  in.Description,
		Reference:    in.Reference,
		BalanceAfter: newBalance,
		Actor:        in.Actor,
		CreatedAt:    now,
	}

	s.history[in.AccountID] = append(s.history[in.AccountID], txn)
	acct.CurrentBalance = newBalance
	acct.Version++
	acct.UpdatedAt = now

	return txn, nil
}

func (s *inMemoryStore) History(_ context.Context, tenantID, accountID string, f Filter) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.findAccount(tenantID, accountID); err != nil {
		return nil, err
	}

	var out []Transaction
	for _, txn := range s.history[accountID] {
		if f.Since != nil && txn.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && txn.CreatedAt.After(*f.Until) {
			continue
		}
		if f.RefKind != "" && txn.Reference.Kind != f.RefKind {
			continue
		}
		if f.AfterSeq > 0 && txn.Sequence <= f.AfterSeq {
			continue
		}
		out = append(out, txn)
	}

	// History is kept in append order, which is ascending sequence order;
	// timestamps can collide so the sequence is the tiebreak.
	if !f.Ascending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit := f.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *inMemoryStore) OverwriteBalance(_ context.Context, tenantID, accountID string, newBalance decimal.Decimal, expectedVersion int64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if acct.TenantID != tenantID {
		return Account{}, ErrTenantForbidden
	}
	if acct.Version != expectedVersion {
		return Account{}, ErrVersionConflict
	}

	acct.CurrentBalance = newBalance
	acct.Version++
	acct.UpdatedAt = time.Now().UTC()
	return *acct, nil
}
