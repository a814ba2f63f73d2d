package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/balance"
	"github.com/dealerbook/dealerbook/internal/ledger"
)

var (
	// ErrInvalidOpeningBalance occurs when the opening magnitude is negative.
	ErrInvalidOpeningBalance = errors.New("opening balance must not be negative")
	// ErrInvalidBalanceType occurs when the opening balance type is not credit or debit.
	ErrInvalidBalanceType = errors.New("opening balance type must be debit or credit")
	// ErrInvalidCreditLimit occurs when the credit limit is negative.
	ErrInvalidCreditLimit = errors.New("credit limit must not be negative")
)

// codeRetries bounds regeneration attempts when a generated dealer code collides.
const codeRetries = 3

// Service owns the dealer account lifecycle: creation with an opening balance
// seed and tenant-scoped reads with derived views. The dealer code it assigns
// is display glue only and never participates in balance logic.
type Service struct {
	store ledger.Store
}

// NewService builds an account registry backed by the ledger store.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// CreateInput captures data required to open a dealer account.
type CreateInput struct {
	TenantID           string
	Name               string
	DealerCode         string
	OpeningBalance     decimal.Decimal
	OpeningBalanceType string
	CreditLimit        decimal.Decimal
	OwnerUserID        string
}

// Create validates the opening fields, converts the opening magnitude to the
// signed seed and persists the account. No opening-balance transaction row is
// written; the stored opening fields are the replay seed.
func (s *Service) Create(ctx context.Context, in CreateInput) (ledger.Account, error) {
	if in.OpeningBalance.Sign() < 0 {
		return ledger.Account{}, ErrInvalidOpeningBalance
	}
	openingType, err := balance.ParseDirection(in.OpeningBalanceType)
	if err != nil {
		return ledger.Account{}, ErrInvalidBalanceType
	}
	if in.CreditLimit.Sign() < 0 {
		return ledger.Account{}, ErrInvalidCreditLimit
	}

	now := time.Now().UTC()
	acct := ledger.Account{
		ID:                 uuid.NewString(),
		TenantID:           in.TenantID,
		Name:               in.Name,
		OpeningBalance:     in.OpeningBalance,
		OpeningBalanceType: openingType,
		CurrentBalance:     balance.OpeningSignedValue(in.OpeningBalance, openingType),
		CreditLimit:        in.CreditLimit,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if in.DealerCode != "" {
		acct.DealerCode = in.DealerCode
		return acct, s.store.CreateAccount(ctx, acct)
	}

	for attempt := 0; attempt < codeRetries; attempt++ {
		acct.DealerCode = generateDealerCode()
		err := s.store.CreateAccount(ctx, acct)
		if errors.Is(err, ledger.ErrDealerCodeTaken) {
			continue
		}
		return acct, err
	}
	return ledger.Account{}, ledger.ErrDealerCodeTaken
}

// View is an account plus its derived read-only views, computed on read and
// never persisted.
type View struct {
	Account           ledger.Account
	BalanceStatus     balance.Status
	CreditUtilization decimal.Decimal
}

// Get returns the account with its derived balance status and utilization.
func (s *Service) Get(ctx context.Context, tenantID, accountID string) (View, error) {
	acct, err := s.store.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return View{}, err
	}
	return View{
		Account:           acct,
		BalanceStatus:     balance.StatusOf(acct.CurrentBalance),
		CreditUtilization: balance.CreditUtilization(acct.CurrentBalance, acct.CreditLimit),
	}, nil
}

func generateDealerCode() string {
	return "DLR-" + strings.ToUpper(uuid.NewString()[:8])
}
