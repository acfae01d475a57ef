// Package ledger owns the per-day aggregate and the close state
// machine: Open -> PendingClose -> Closed, with Closed terminal.
package ledger

import (
	"fmt"

	"github.com/daybook-dev/daybook/internal/model"
)

// Aggregate builds a DayLedger from one reconciliation run's results.
// Adjustment and artifact state live in the store and are layered on by
// the engine; a freshly aggregated day is Open.
func Aggregate(key model.DayKey, runID string, results []model.MatchResult) model.DayLedger {
	day := model.DayLedger{
		Key:               key,
		State:             model.DayOpen,
		RunID:             runID,
		TotalTransactions: len(results),
	}
	for _, r := range results {
		if r.Status == model.StatusMatched {
			day.MatchedCount++
		}
		day.TotalVarianceMinor += r.VarianceMinor
	}
	return day
}

// CloseChecks evaluates the close guards and returns every failing
// check. An empty slice means the day may transition to PendingClose.
//
// Guards:
//  1. effective variance (raw variance net of adjustments) is zero,
//  2. no unresolved exceptions remain,
//  3. report generation and backup are both flagged complete.
func CloseChecks(day model.DayLedger, unresolvedExceptions int) []string {
	var reasons []string

	if v := day.EffectiveVariance(); v != 0 {
		reasons = append(reasons, fmt.Sprintf("variance is %d minor units, must be zero", v))
	}
	if day.MatchedCount != day.TotalTransactions && unresolvedExceptions > 0 {
		reasons = append(reasons, fmt.Sprintf("%d unresolved exceptions", unresolvedExceptions))
	}
	if !day.ReportsGenerated {
		reasons = append(reasons, "reports not generated")
	}
	if !day.BackupComplete {
		reasons = append(reasons, "backup not complete")
	}
	return reasons
}

// Transition validates a single state-machine step. Closed is terminal
// and no step may skip a state.
func Transition(day model.DayLedger, to model.DayState) error {
	from := day.State
	switch {
	case from == model.DayClosed:
		return &DayAlreadyClosedError{Key: day.Key}
	case from == model.DayOpen && to == model.DayPendingClose:
		return nil
	case from == model.DayPendingClose && to == model.DayClosed:
		return nil
	case from == model.DayPendingClose && to == model.DayOpen:
		// An operator may back out of a pending close before commit.
		return nil
	default:
		return fmt.Errorf("illegal day state transition %s -> %s for %s", from, to, day.Key)
	}
}
