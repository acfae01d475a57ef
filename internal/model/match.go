package model

// MatchStatus classifies the outcome of pairing a ledger transaction
// with a provider transaction.
type MatchStatus string

const (
	StatusMatched           MatchStatus = "matched"
	StatusAmountMismatch    MatchStatus = "amount_mismatch"
	StatusMissingProvider   MatchStatus = "missing_provider"
	StatusMissingLedger     MatchStatus = "missing_ledger"
	StatusPendingSettlement MatchStatus = "pending_settlement"
)

// MatchResult pairs zero-or-one ledger transaction with zero-or-one
// provider transaction. Results are immutable once created; a new
// reconciliation run supersedes prior results rather than mutating them.
type MatchResult struct {
	ID            string
	Ledger        *Transaction
	Provider      *Transaction
	Status        MatchStatus
	VarianceMinor int64 // providerAmount - ledgerAmount, 0 when one side absent
}

// LedgerID returns the ledger transaction ID, or "" when absent.
func (r MatchResult) LedgerID() string {
	if r.Ledger == nil {
		return ""
	}
	return r.Ledger.ID
}

// ProviderID returns the provider transaction ID, or "" when absent.
func (r MatchResult) ProviderID() string {
	if r.Provider == nil {
		return ""
	}
	return r.Provider.ID
}
