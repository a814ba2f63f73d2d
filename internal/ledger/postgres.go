package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dealerbook/dealerbook/internal/balance"
)

const uniqueViolation = "23505"

// PostgresStore persists accounts and their append-only transaction log in
// PostgreSQL. The transaction append and the cached balance update happen in
// one database transaction, guarded by a compare-and-swap on the account
// version so concurrent writers to the same account never lose an update.
type PostgresStore struct {
	db         *pgxpool.Pool
	retryLimit int
}

// NewPostgresStore constructs a Postgres-backed store. retryLimit bounds the
// internal retries on version conflicts before surfacing ErrVersionConflict.
func NewPostgresStore(db *pgxpool.Pool, retryLimit int) *PostgresStore {
	if retryLimit < 0 {
		retryLimit = 0
	}
	return &PostgresStore{db: db, retryLimit: retryLimit}
}

// CreateAccount inserts the account row seeded with its opening balance.
func (s *PostgresStore) CreateAccount(ctx context.Context, acct Account) error {
	acctID, err := uuid.Parse(acct.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO accounts
        (id, tenant_id, dealer_code, name, opening_balance, opening_balance_type,
         current_balance, credit_limit, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		acctID, acct.TenantID, acct.DealerCode, acct.Name,
		acct.OpeningBalance, string(acct.OpeningBalanceType),
		acct.CurrentBalance, acct.CreditLimit, acct.Version,
		acct.CreatedAt.UTC(), acct.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDealerCodeTaken
		}
		return err
	}
	return nil
}

// GetAccount fetches an account, enforcing the tenant boundary.
func (s *PostgresStore) GetAccount(ctx context.Context, tenantID, accountID string) (Account, error) {
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, tenant_id, dealer_code, name,
        opening_balance, opening_balance_type, current_balance, credit_limit,
        version, created_at, updated_at
        FROM accounts WHERE id = $1`, acctID)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	if acct.TenantID != tenantID {
		return Account{}, ErrTenantForbidden
	}
	return acct, nil
}

// Apply appends a transaction and updates the cached balance atomically,
// retrying a bounded number of times when another writer wins the version race.
func (s *PostgresStore) Apply(ctx context.Context, in ApplyInput) (Transaction, error) {
	if err := in.validate(); err != nil {
		return Transaction{}, err
	}

	for attempt := 0; attempt <= s.retryLimit; attempt++ {
		txn, err := s.applyOnce(ctx, in)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		return txn, err
	}
	return Transaction{}, ErrVersionConflict
}

func (s *PostgresStore) applyOnce(ctx context.Context, in ApplyInput) (Transaction, error) {
	acctID, err := uuid.Parse(in.AccountID)
	if err != nil {
		return Transaction{}, ErrAccountNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var (
		tenantID string
		current  decimal.Decimal
		version  int64
	)
	err = tx.QueryRow(ctx, `SELECT tenant_id, current_balance, version
        FROM accounts WHERE id = $1`, acctID).Scan(&tenantID, &current, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrAccountNotFound
		}
		return Transaction{}, err
	}
	if tenantID != in.TenantID {
		return Transaction{}, ErrTenantForbidden
	}

	newBalance := balance.ApplyDelta(current, in.Direction, in.Amount)
	now := time.Now().UTC()
	txnID := uuid.New()

	var refID *string
	if in.Reference.ID != "" {
		refID = &in.Reference.ID
	}

	// The entry carries the version that commits it, so replay order is total
	// per account regardless of timestamp collisions.
	seq := version + 1

	if _, err := tx.Exec(ctx, `INSERT INTO transactions
        (id, tenant_id, account_id, sequence, direction, amount, description,
         reference_kind, reference_id, balance_after, actor, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		txnID, in.TenantID, acctID, seq, string(in.Direction), in.Amount,
		in.Description, string(in.Reference.Kind), refID, newBalance,
		in.Actor, now); err != nil {
		return Transaction{}, err
	}

	cmd, err := tx.Exec(ctx, `UPDATE accounts
        SET current_balance = $1, version = version + 1, updated_at = $2
        WHERE id = $3 AND version = $4`, newBalance, now, acctID, version)
	if err != nil {
		return Transaction{}, err
	}
	if cmd.RowsAffected() == 0 {
		// Another writer bumped the version; the rollback also discards the
		// transaction row so nothing partial survives.
		return Transaction{}, ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}

	return Transaction{
		ID:           txnID.String(),
		TenantID:     in.TenantID,
		AccountID:    in.AccountID,
		Sequence:     seq,
		Direction:    in.Direction,
		Amount:       in.Amount,
		Description:  in.Description,
		Reference:    in.Reference,
		BalanceAfter: newBalance,
		Actor:        in.Actor,
		CreatedAt:    now,
	}, nil
}

// History reads the transaction log, newest first unless asked otherwise.
func (s *PostgresStore) History(ctx context.Context, tenantID, accountID string, f Filter) ([]Transaction, error) {
	if _, err := s.GetAccount(ctx, tenantID, accountID); err != nil {
		return nil, err
	}
	acctID, _ := uuid.Parse(accountID)

	query := `SELECT id, tenant_id, account_id, sequence, direction, amount,
        description, reference_kind, reference_id, balance_after, actor, created_at
        FROM transactions WHERE tenant_id = $1 AND account_id = $2`
	args := []any{tenantID, acctID}

	if f.Since != nil {
		args = append(args, f.Since.UTC())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.Until != nil {
		args = append(args, f.Until.UTC())
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if f.RefKind != "" {
		args = append(args, string(f.RefKind))
		query += fmt.Sprintf(" AND reference_kind = $%d", len(args))
	}
	if f.AfterSeq > 0 {
		args = append(args, f.AfterSeq)
		query += fmt.Sprintf(" AND sequence > $%d", len(args))
	}

	if f.Ascending {
		query += " ORDER BY sequence ASC"
	} else {
		query += " ORDER BY sequence DESC"
	}
	args = append(args, f.limit())
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// OverwriteBalance force-sets the cached balance under the version guard.
// Used only by the audited repair operation.
func (s *PostgresStore) OverwriteBalance(ctx context.Context, tenantID, accountID string, newBalance decimal.Decimal, expectedVersion int64) (Account, error) {
	if _, err := s.GetAccount(ctx, tenantID, accountID); err != nil {
		return Account{}, err
	}
	acctID, _ := uuid.Parse(accountID)

	row := s.db.QueryRow(ctx, `UPDATE accounts
        SET current_balance = $1, version = version + 1, updated_at = $2
        WHERE id = $3 AND tenant_id = $4 AND version = $5
        RETURNING id, tenant_id, dealer_code, name, opening_balance,
        opening_balance_type, current_balance, credit_limit, version,
        created_at, updated_at`,
		newBalance, time.Now().UTC(), acctID, tenantID, expectedVersion)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrVersionConflict
		}
		return Account{}, err
	}
	return acct, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		acct        Account
		id          uuid.UUID
		openingType string
		createdAt   time.Time
		updatedAt   time.Time
	)
	if err := row.Scan(&id, &acct.TenantID, &acct.DealerCode, &acct.Name,
		&acct.OpeningBalance, &openingType, &acct.CurrentBalance,
		&acct.CreditLimit, &acct.Version, &createdAt, &updatedAt); err != nil {
		return Account{}, err
	}
	acct.ID = id.String()
	acct.OpeningBalanceType = balance.Direction(openingType)
	acct.CreatedAt = createdAt.UTC()
	acct.UpdatedAt = updatedAt.UTC()
	return acct, nil
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var (
		txn       Transaction
		id        uuid.UUID
		acctID    uuid.UUID
		direction string
		refKind   string
		refID     *string
		createdAt time.Time
	)
	if err := row.Scan(&id, &txn.TenantID, &acctID, &txn.Sequence, &direction,
		&txn.Amount, &txn.Description, &refKind, &refID, &txn.BalanceAfter,
		&txn.Actor, &createdAt); err != nil {
		return Transaction{}, err
	}
	txn.ID = id.String()
	txn.AccountID = acctID.String()
	txn.Direction = balance.Direction(direction)
	txn.Reference.Kind = ReferenceKind(refKind)
	if refID != nil {
		txn.Reference.ID = *refID
	}
	txn.CreatedAt = createdAt.UTC()
	return txn, nil
}
