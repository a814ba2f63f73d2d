package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/balance"
)

var (
	// ErrInvalidAmount occurs when a caller submits a negative amount.
	// Direction is carried by the entry direction, never by the amount sign.
	ErrInvalidAmount = errors.New("amount must not be negative")

	// ErrInvalidDirection occurs when an entry direction is missing or unknown.
	ErrInvalidDirection = errors.New("direction must be debit or credit")

	// ErrDescriptionTooLong occurs when a description exceeds the stored bound.
	ErrDescriptionTooLong = errors.New("description too long")

	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDealerCodeTaken indicates the dealer code is already assigned within the tenant.
	ErrDealerCodeTaken = errors.New("dealer code already in use")

	// ErrTenantForbidden indicates the account exists under a different tenant.
	ErrTenantForbidden = errors.New("account belongs to another tenant")

	// ErrVersionConflict indicates concurrent writers raced past the balance
	// version guard and the bounded retries were exhausted.
	ErrVersionConflict = errors.New("concurrent balance update")

	// ErrHistoryInconsistent indicates a replayed balance disagrees with a
	// stored balance-after snapshot. Never auto-corrected.
	ErrHistoryInconsistent = errors.New("history disagrees with stored snapshot")
)

// MaxDescriptionLen bounds transaction descriptions.
const MaxDescriptionLen = 500

// ReferenceKind tags the external event a transaction points back to.
type ReferenceKind string

const (
	RefOrder          ReferenceKind = "order"
	RefPayment        ReferenceKind = "payment"
	RefAdjustment     ReferenceKind = "adjustment"
	RefOpeningBalance ReferenceKind = "opening_balance"
	RefSystem         ReferenceKind = "system"
	RefManual         ReferenceKind = "manual"
	RefMigration      ReferenceKind = "migration"
	RefCorrection     ReferenceKind = "correction"
)

// Reference is a tagged pointer from a transaction to the business event that
// caused it. ID may be empty for manual entries.
type Reference struct {
	Kind ReferenceKind
	ID   string
}

// Account is a dealer's ledger record. CurrentBalance is the cached signed
// balance: positive means the dealer owes the business, negative means the
// dealer holds credit. It must always equal the replay of the opening seed
// through every transaction, and is written only inside Apply (and, for
// repair, OverwriteBalance).
type Account struct {
	ID                 string
	TenantID           string
	DealerCode         string
	Name               string
	OpeningBalance     decimal.Decimal
	OpeningBalanceType balance.Direction
	CurrentBalance     decimal.Decimal
	CreditLimit        decimal.Decimal
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Transaction is one immutable ledger entry. Rows are append-only: corrections
// happen by appending a compensating entry, never by editing history.
//
// Sequence is the account version that committed the entry: strictly monotonic
// per account, so replay order stays deterministic even when timestamps collide.
type Transaction struct {
	ID           string
	TenantID     string
	AccountID    string
	Sequence     int64
	Direction    balance.Direction
	Amount       decimal.Decimal
	Description  string
	Reference    Reference
	BalanceAfter decimal.Decimal
	Actor        string
	CreatedAt    time.Time
}

// ApplyInput captures one balance-affecting event.
type ApplyInput struct {
	TenantID    string
	AccountID   string
	Direction   balance.Direction
	Amount      decimal.Decimal
	Description string
	Reference   Reference
	Actor       string
}

func (in ApplyInput) validate() error {
	if in.Amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, err := balance.ParseDirection(string(in.Direction)); err != nil {
		return ErrInvalidDirection
	}
	if len(in.Description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// Filter narrows a history read. Zero values mean "no constraint"; results
// default to newest-first with a capped page size. AfterSeq is an exclusive
// sequence cursor for paging ascending replays without duplicates.
type Filter struct {
	Since     *time.Time
	Until     *time.Time
	RefKind   ReferenceKind
	AfterSeq  int64
	Limit     int
	Ascending bool
}

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultHistoryLimit
	case f.Limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return f.Limit
	}
}

// Store is the contract implemented by ledger backends (e.g. Postgres).
//
// Apply is the single write path for balances: it appends the transaction row
// and updates the cached balance as one atomic unit, serialized per account by
// a compare-and-swap on the account version. History never mutates state.
type Store interface {
	CreateAccount(ctx context.Context, acct Account) error
	GetAccount(ctx context.Context, tenantID, accountID string) (Account, error)
	Apply(ctx context.Context, in ApplyInput) (Transaction, error)
	History(ctx context.Context, tenantID, accountID string, f Filter) ([]Transaction, error)
	// OverwriteBalance force-sets the cached balance. Reserved for the audited
	// repair operation; guarded by the same version CAS as Apply.
	OverwriteBalance(ctx context.Context, tenantID, accountID string, newBalance decimal.Decimal, expectedVersion int64) (Account, error)
}
