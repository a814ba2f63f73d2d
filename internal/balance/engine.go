package balance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Direction states which way a ledger entry moves a dealer balance. Every
// entry carries one explicitly; the ledger never infers intent from the sign
// of an amount. Manual adjustments reuse the same two values.
type Direction string

const (
	// Debit increases what the dealer owes the business.
	Debit Direction = "debit"
	// Credit decreases what the dealer owes (or grows the dealer's credit).
	Credit Direction = "credit"
)

// ParseDirection validates and normalizes a direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Debit:
		return Debit, nil
	case Credit:
		return Credit, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Status is the derived standing of a signed balance.
type Status string

const (
	// StatusDebit means the dealer owes the business (balance > 0).
	StatusDebit Status = "debit"
	// StatusCredit means the dealer holds credit with the business (balance < 0).
	StatusCredit Status = "credit"
	// StatusBalanced means the account nets to zero.
	StatusBalanced Status = "balanced"
)

// ApplyDelta returns the balance after applying one entry. Debit adds to the
// signed balance, credit subtracts from it.
func ApplyDelta(balance decimal.Decimal, dir Direction, amount decimal.Decimal) decimal.Decimal {
	if dir == Credit {
		return balance.Sub(amount)
	}
	return balance.Add(amount)
}

// StatusOf maps a signed balance to its standing: positive balances are debit
// (dealer owes), negative are credit (dealer is owed), zero is balanced.
func StatusOf(balance decimal.Decimal) Status {
	switch balance.Sign() {
	case 1:
		return StatusDebit
	case -1:
		return StatusCredit
	default:
		return StatusBalanced
	}
}

// CreditUtilization reports abs(balance) as a percentage of the credit limit.
// A zero limit always yields zero rather than dividing.
func CreditUtilization(balance, creditLimit decimal.Decimal) decimal.Decimal {
	if creditLimit.IsZero() {
		return decimal.Zero
	}
	return balance.Abs().Div(creditLimit).Mul(decimal.NewFromInt(100))
}

// OpeningSignedValue converts the stored opening magnitude plus type into the
// signed seed used for replay: a credit opening means the business owes the
// dealer, so the seed is negative.
func OpeningSignedValue(magnitude decimal.Decimal, typ Direction) decimal.Decimal {
	if typ == Credit {
		return magnitude.Neg()
	}
	return magnitude
}
