package model

import "time"

// Severity ranks how urgently an exception needs operator attention.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ExceptionCategory names the reconciliation failure mode.
type ExceptionCategory string

const (
	CategoryMissingProvider   ExceptionCategory = "missing_provider"
	CategoryMissingLedger     ExceptionCategory = "missing_ledger"
	CategoryAmountMismatch    ExceptionCategory = "amount_mismatch"
	CategoryDelayedSettlement ExceptionCategory = "delayed_settlement"
)

// ExceptionRecord is derived from every non-matched MatchResult. Exactly
// one exists per non-matched result; matched results produce none.
type ExceptionRecord struct {
	ID                   string
	MatchID              string
	Category             ExceptionCategory
	Severity             Severity
	FinancialImpactMinor int64 // |variance|, or the full one-sided amount
	Resolved             bool
	ResolutionNote       string
	ResolvedBy           string
	ResolvedAt           *time.Time
}
