package ledger

import "github.com/shopspring/decimal"

// CorruptBalance is a test helper that clobbers the cached balance of an
// in-memory account without appending a transaction, simulating the drift the
// reconciliation service exists to detect.
func CorruptBalance(s Store, accountID string, bad decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if acct, exists := mem.accounts[accountID]; exists {
			acct.CurrentBalance = bad
		}
	}
}
