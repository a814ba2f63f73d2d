package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/balance"
	"github.com/dealerbook/dealerbook/internal/event"
	"github.com/dealerbook/dealerbook/internal/ledger"
)

const defaultPageSize = 500

// Service replays an account's transaction history against its opening seed
// and reports drift between the replayed value and the cached balance.
// Reconcile only ever reads; Repair is the explicit, audited write that
// corrects the cache. Neither invents business events.
type Service struct {
	store    ledger.Store
	events   event.Publisher
	logger   *slog.Logger
	pageSize int
}

// NewService builds a reconciliation service.
func NewService(store ledger.Store, events event.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, events: events, logger: logger, pageSize: defaultPageSize}
}

// Report is the outcome of one reconciliation pass. Drift is stored minus
// replayed; zero drift means the cache agrees with history.
type Report struct {
	TenantID         string
	AccountID        string
	StoredBalance    decimal.Decimal
	ReplayedBalance  decimal.Decimal
	Drift            decimal.Decimal
	Corrected        bool
	TransactionCount int
	CheckedAt        time.Time
}

// Reconcile replays history and reports drift. Safe to call any number of
// times; it never writes.
func (s *Service) Reconcile(ctx context.Context, tenantID, accountID string) (Report, error) {
	acct, err := s.store.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return Report{}, err
	}

	replayed, count, err := s.replay(ctx, acct)
	if err != nil {
		return Report{}, err
	}

	return Report{
		TenantID:         tenantID,
		AccountID:        accountID,
		StoredBalance:    acct.CurrentBalance,
		ReplayedBalance:  replayed,
		Drift:            acct.CurrentBalance.Sub(replayed),
		TransactionCount: count,
		CheckedAt:        time.Now().UTC(),
	}, nil
}

// Repair overwrites the cached balance with the replayed value. Explicit and
// audited: the confirming operator is recorded and a balance-changed event is
// published. A concurrent writer surfaces as ErrVersionConflict; re-run after
// the dust settles.
func (s *Service) Repair(ctx context.Context, tenantID, accountID, confirmedBy string) (ledger.Account, error) {
	acct, err := s.store.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return ledger.Account{}, err
	}

	replayed, _, err := s.replay(ctx, acct)
	if err != nil {
		return ledger.Account{}, err
	}

	if acct.CurrentBalance.Equal(replayed) {
		return acct, nil
	}

	repaired, err := s.store.OverwriteBalance(ctx, tenantID, accountID, replayed, acct.Version)
	if err != nil {
		return ledger.Account{}, err
	}

	s.logger.Info("balance repaired",
		"tenant_id", tenantID,
		"account_id", accountID,
		"confirmed_by", confirmedBy,
		"was", acct.CurrentBalance.String(),
		"now", repaired.CurrentBalance.String(),
	)
	if s.events != nil {
		if err := s.events.Publish(ctx, event.BalanceChanged{
			TenantID:     tenantID,
			AccountID:    accountID,
			BalanceAfter: repaired.CurrentBalance,
			Cause:        "repair",
			OccurredAt:   time.Now().UTC(),
		}); err != nil {
			s.logger.Warn("balance event publish failed",
				"tenant_id", tenantID,
				"account_id", accountID,
				"cause", "repair",
				"error", err,
			)
		}
	}

	return repaired, nil
}

// replay streams history oldest-first in pages and folds every entry through
// the balance engine, cross-checking each stored balance-after snapshot along
// the way. A snapshot mismatch means corrupted or out-of-order history and is
// surfaced, never papered over. Pages cursor on the per-account sequence,
// which is strictly monotonic, so colliding timestamps cannot stall or
// truncate the replay.
func (s *Service) replay(ctx context.Context, acct ledger.Account) (decimal.Decimal, int, error) {
	running := balance.OpeningSignedValue(acct.OpeningBalance, acct.OpeningBalanceType)
	count := 0

	var cursor int64

	for {
		page, err := s.store.History(ctx, acct.TenantID, acct.ID, ledger.Filter{
			Ascending: true,
			Limit:     s.pageSize,
			AfterSeq:  cursor,
		})
		if err != nil {
			return decimal.Decimal{}, 0, err
		}

		for _, txn := range page {
			if txn.Sequence <= cursor {
				return decimal.Decimal{}, 0, fmt.Errorf(
					"%w: transaction %s out of sequence (%d after %d)",
					ledger.ErrHistoryInconsistent, txn.ID, txn.Sequence, cursor)
			}
			cursor = txn.Sequence

			running = balance.ApplyDelta(running, txn.Direction, txn.Amount)
			if !running.Equal(txn.BalanceAfter) {
				return decimal.Decimal{}, 0, fmt.Errorf(
					"%w: transaction %s replayed to %s but recorded %s",
					ledger.ErrHistoryInconsistent, txn.ID, running, txn.BalanceAfter)
			}
			count++
		}

		if len(page) < s.pageSize {
			break
		}
	}

	return running, count, nil
}
