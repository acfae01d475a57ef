// Package classify turns non-matched reconciliation results into
// exception records for the operator queue. Classification is
// deterministic: the same result and clock always produce the same
// severity.
package classify

import (
	"time"

	"github.com/daybook-dev/daybook/internal/model"
)

// Config holds the severity policy knobs.
type Config struct {
	// HighVariancePct marks an amount mismatch high-severity when
	// |variance| reaches this percentage of the ledger amount.
	HighVariancePct int64
	// PendingMediumAge promotes a pending settlement from low to medium
	// once it has aged past this duration.
	PendingMediumAge time.Duration
}

// Classify derives the exception for a result, or nil for Matched.
// The caller assigns the exception ID.
func Classify(r model.MatchResult, asOf time.Time, cfg Config) *model.ExceptionRecord {
	switch r.Status {
	case model.StatusMatched:
		return nil

	case model.StatusAmountMismatch:
		return &model.ExceptionRecord{
			MatchID:              r.ID,
			Category:             model.CategoryAmountMismatch,
			Severity:             mismatchSeverity(r, cfg),
			FinancialImpactMinor: abs(r.VarianceMinor),
		}

	case model.StatusMissingProvider:
		// The ledger believes money moved that the provider cannot
		// confirm: double-payment risk, always high.
		return &model.ExceptionRecord{
			MatchID:              r.ID,
			Category:             model.CategoryMissingProvider,
			Severity:             model.SeverityHigh,
			FinancialImpactMinor: r.Ledger.AmountMinor,
		}

	case model.StatusMissingLedger:
		return &model.ExceptionRecord{
			MatchID:              r.ID,
			Category:             model.CategoryMissingLedger,
			Severity:             model.SeverityHigh,
			FinancialImpactMinor: r.Provider.AmountMinor,
		}

	case model.StatusPendingSettlement:
		severity := model.SeverityLow
		if asOf.Sub(r.Ledger.Timestamp) > cfg.PendingMediumAge {
			severity = model.SeverityMedium
		}
		return &model.ExceptionRecord{
			MatchID:              r.ID,
			Category:             model.CategoryDelayedSettlement,
			Severity:             severity,
			FinancialImpactMinor: 0,
		}
	}
	return nil
}

func mismatchSeverity(r model.MatchResult, cfg Config) model.Severity {
	ledgerAmount := r.Ledger.AmountMinor
	if ledgerAmount == 0 {
		return model.SeverityHigh
	}
	if abs(r.VarianceMinor)*100 >= cfg.HighVariancePct*ledgerAmount {
		return model.SeverityHigh
	}
	return model.SeverityMedium
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
