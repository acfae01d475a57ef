package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-dev/daybook/internal/model"
)

var key = model.DayKey{Date: "2026-08-29", Provider: "grx"}

func result(status model.MatchStatus, variance int64) model.MatchResult {
	return model.MatchResult{Status: status, VarianceMinor: variance}
}

func TestAggregate(t *testing.T) {
	results := []model.MatchResult{
		result(model.StatusMatched, 0),
		result(model.StatusMatched, 0),
		result(model.StatusAmountMismatch, -500),
		result(model.StatusMissingProvider, 0),
	}

	day := Aggregate(key, "run-1", results)

	assert.Equal(t, model.DayOpen, day.State)
	assert.Equal(t, 4, day.TotalTransactions)
	assert.Equal(t, 2, day.MatchedCount)
	assert.Equal(t, int64(-500), day.TotalVarianceMinor)
}

func TestAggregate_Conservation(t *testing.T) {
	results := []model.MatchResult{
		result(model.StatusAmountMismatch, -500),
		result(model.StatusAmountMismatch, 300),
		result(model.StatusMatched, 0),
	}

	day := Aggregate(key, "run-1", results)

	var sum int64
	for _, r := range results {
		sum += r.VarianceMinor
	}
	assert.Equal(t, sum, day.TotalVarianceMinor)
}

func cleanDay() model.DayLedger {
	return model.DayLedger{
		Key:               key,
		State:             model.DayOpen,
		TotalTransactions: 3,
		MatchedCount:      3,
		ReportsGenerated:  true,
		BackupComplete:    true,
	}
}

func TestCloseChecks_AllPass(t *testing.T) {
	assert.Empty(t, CloseChecks(cleanDay(), 0))
}

func TestCloseChecks_EnumeratesEveryFailure(t *testing.T) {
	day := cleanDay()
	day.TotalVarianceMinor = -500
	day.MatchedCount = 2
	day.ReportsGenerated = false
	day.BackupComplete = false

	reasons := CloseChecks(day, 1)
	require.Len(t, reasons, 4)
	assert.Contains(t, reasons[0], "variance")
	assert.Contains(t, reasons[1], "unresolved exceptions")
	assert.Contains(t, reasons[2], "reports")
	assert.Contains(t, reasons[3], "backup")
}

func TestCloseChecks_AdjustmentOffsetsVariance(t *testing.T) {
	day := cleanDay()
	day.TotalVarianceMinor = -500
	day.AdjustmentMinor = 500
	day.MatchedCount = 2

	// Variance nets to zero via a recorded write-off; the unresolved
	// exception still blocks.
	reasons := CloseChecks(day, 1)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "unresolved")
}

func TestCloseChecks_ResolvedExceptionsUnblock(t *testing.T) {
	day := cleanDay()
	day.MatchedCount = 2 // one non-matched result, but it is resolved
	assert.Empty(t, CloseChecks(day, 0))
}

func TestTransition_HappyPath(t *testing.T) {
	day := cleanDay()
	require.NoError(t, Transition(day, model.DayPendingClose))

	day.State = model.DayPendingClose
	require.NoError(t, Transition(day, model.DayClosed))
	require.NoError(t, Transition(day, model.DayOpen)) // back out before commit
}

func TestTransition_ClosedIsTerminal(t *testing.T) {
	day := cleanDay()
	day.State = model.DayClosed

	for _, to := range []model.DayState{model.DayOpen, model.DayPendingClose, model.DayClosed} {
		err := Transition(day, to)
		var closed *DayAlreadyClosedError
		require.ErrorAs(t, err, &closed, "transition to %s must be rejected", to)
		assert.Equal(t, key, closed.Key)
	}
}

func TestTransition_NoSkipping(t *testing.T) {
	day := cleanDay()
	err := Transition(day, model.DayClosed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal")
}

func TestCloseBlockedError_ListsAllReasons(t *testing.T) {
	err := &CloseBlockedError{Key: key, Reasons: []string{"variance is -500 minor units, must be zero", "backup not complete"}}
	assert.Contains(t, err.Error(), "variance")
	assert.Contains(t, err.Error(), "backup")
	assert.Contains(t, err.Error(), key.String())
}
