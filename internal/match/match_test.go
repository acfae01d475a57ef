package match

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-dev/daybook/internal/model"
)

var (
	baseTime = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	asOf     = time.Date(2026, 8, 30, 4, 0, 0, 0, time.UTC)
)

func defaultConfig() Config {
	return Config{Window: 24 * time.Hour, SettlementWindow: 24 * time.Hour}
}

func ledgerTxn(id, ref string, amount int64, at time.Time) model.Transaction {
	return model.Transaction{
		ID:          id,
		Source:      model.SourceLedger,
		Provider:    "grx",
		InternalRef: ref,
		AmountMinor: amount,
		Timestamp:   at,
	}
}

func providerTxn(id, ref string, amount int64, at time.Time) model.Transaction {
	return model.Transaction{
		ID:          id,
		Source:      "grx",
		Provider:    "grx",
		InternalRef: ref,
		AmountMinor: amount,
		Timestamp:   at,
		SettledAt:   &at,
	}
}

func run(t *testing.T, ledger, provider []model.Transaction) []model.MatchResult {
	t.Helper()
	results, err := Run(context.Background(), ledger, provider, defaultConfig(), asOf)
	require.NoError(t, err)
	return results
}

func TestMatch_ByReference(t *testing.T) {
	ledger := []model.Transaction{ledgerTxn("led-1", "REF-001", 50000, baseTime)}
	provider := []model.Transaction{providerTxn("prv-1", "REF-001", 50000, baseTime.Add(3*time.Hour))}

	results := run(t, ledger, provider)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusMatched, results[0].Status)
	assert.Equal(t, int64(0), results[0].VarianceMinor)
	assert.Equal(t, "led-1", results[0].LedgerID())
	assert.Equal(t, "prv-1", results[0].ProviderID())
}

func TestMatch_AmountMismatchOnLinkedReference(t *testing.T) {
	ledger := []model.Transaction{ledgerTxn("led-1", "REF-007", 60000, baseTime)}
	provider := []model.Transaction{providerTxn("prv-1", "REF-007", 59500, baseTime)}

	results := run(t, ledger, provider)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusAmountMismatch, results[0].Status)
	assert.Equal(t, int64(-500), results[0].VarianceMinor)
}

func TestMatch_ByAmountWithinWindow(t *testing.T) {
	ledger := []model.Transaction{ledgerTxn("led-1", "", 25000, baseTime)}
	provider := []model.Transaction{providerTxn("prv-1", "", 25000, baseTime.Add(10*time.Hour))}

	results := run(t, ledger, provider)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusMatched, results[0].Status)
	assert.Equal(t, "prv-1", results[0].ProviderID())
}

func TestMatch_AmountOutsideWindowNotPaired(t *testing.T) {
	ledger := []model.Transaction{ledgerTxn("led-1", "", 25000, baseTime)}
	provider := []model.Transaction{providerTxn("prv-1", "", 25000, baseTime.Add(30*time.Hour))}

	results := run(t, ledger, provider)
	require.Len(t, results, 2)
	assert.Equal(t, model.StatusPendingSettlement, results[1].Status) // led-1 sorts after ""
	assert.Equal(t, model.StatusMissingLedger, results[0].Status)
}

func TestMatch_TieBreakSmallestTimeDelta(t *testing.T) {
	ledger := []model.Transaction{ledgerTxn("led-1", "", 10000, baseTime)}
	provider := []model.Transaction{
		providerTxn("prv-far", "", 10000, baseTime.Add(8*time.Hour)),
		providerTxn("prv-near", "", 10000, baseTime.Add(1*time.Hour)),
	}

	results := run(t, ledger, provider)
	for _, r := range results {
		if r.LedgerID() == "led-1" {
			assert.Equal(t, "prv-near", r.ProviderID())
		}
	}
}

func TestMatch_TieBreakEarliestProviderTimestamp(t *testing.T) {
	// Both candidates sit 2h from the ledger timestamp; the earlier one wins.
	ledger := []model.Transaction{ledgerTxn("led-1", "", 10000, baseTime)}
	provider := []model.Transaction{
		providerTxn("prv-after", "", 10000, baseTime.Add(2*time.Hour)),
		providerTxn("prv-before", "", 10000, baseTime.Add(-2*time.Hour)),
	}

	results := run(t, ledger, provider)
	for _, r := range results {
		if r.LedgerID() == "led-1" {
			assert.Equal(t, "prv-before", r.ProviderID())
		}
	}
}

func TestMatch_ReferenceBeatsProximity(t *testing.T) {
	// A same-amount record 1 minute away must lose to the reference link
	// 20 hours away.
	ledger := []model.Transaction{ledgerTxn("led-1", "REF-001", 10000, baseTime)}
	provider := []model.Transaction{
		providerTxn("prv-close", "", 10000, baseTime.Add(time.Minute)),
		providerTxn("prv-ref", "REF-001", 10000, baseTime.Add(20*time.Hour)),
	}

	results := run(t, ledger, provider)
	for _, r := range results {
		if r.LedgerID() == "led-1" {
			assert.Equal(t, "prv-ref", r.ProviderID())
		}
	}
}

func TestMatch_PendingSettlementVsMissingProvider(t *testing.T) {
	recent := ledgerTxn("led-recent", "REF-A", 10000, asOf.Add(-2*time.Hour))
	stale := ledgerTxn("led-stale", "REF-B", 25000, asOf.Add(-48*time.Hour))
	settled := ledgerTxn("led-settled", "REF-C", 5000, asOf.Add(-2*time.Hour))
	st := asOf.Add(-time.Hour)
	settled.SettledAt = &st

	results := run(t, []model.Transaction{recent, stale, settled}, nil)
	byLedger := make(map[string]model.MatchResult)
	for _, r := range results {
		byLedger[r.LedgerID()] = r
	}

	assert.Equal(t, model.StatusPendingSettlement, byLedger["led-recent"].Status)
	assert.Equal(t, model.StatusMissingProvider, byLedger["led-stale"].Status)
	// Settled but absent from the provider feed is a missing record, not pending.
	assert.Equal(t, model.StatusMissingProvider, byLedger["led-settled"].Status)
	assert.Equal(t, int64(0), byLedger["led-stale"].VarianceMinor)
}

func TestMatch_MissingLedger(t *testing.T) {
	provider := []model.Transaction{providerTxn("prv-1", "REF-X", 7000, baseTime)}

	results := run(t, nil, provider)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusMissingLedger, results[0].Status)
	assert.Nil(t, results[0].Ledger)
}

func TestMatch_NoDoubleMatching(t *testing.T) {
	ledger := []model.Transaction{
		ledgerTxn("led-1", "", 10000, baseTime),
		ledgerTxn("led-2", "", 10000, baseTime.Add(time.Hour)),
	}
	provider := []model.Transaction{providerTxn("prv-1", "", 10000, baseTime)}

	results := run(t, ledger, provider)
	seen := make(map[string]int)
	for _, r := range results {
		if r.Ledger != nil {
			seen["L"+r.LedgerID()]++
		}
		if r.Provider != nil {
			seen["P"+r.ProviderID()]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "transaction %s consumed more than once", id)
	}
}

func TestMatch_IdempotentUnderShuffle(t *testing.T) {
	var ledger, provider []model.Transaction
	for i := 0; i < 20; i++ {
		at := baseTime.Add(time.Duration(i) * time.Minute)
		ledger = append(ledger, ledgerTxn(fmtID("led", i), fmtID("REF", i%15), int64(1000+i*100), at))
		if i%3 != 0 {
			provider = append(provider, providerTxn(fmtID("prv", i), fmtID("REF", i%15), int64(1000+i*100), at.Add(time.Hour)))
		}
	}

	baseline := run(t, ledger, provider)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		l := append([]model.Transaction(nil), ledger...)
		p := append([]model.Transaction(nil), provider...)
		rng.Shuffle(len(l), func(i, j int) { l[i], l[j] = l[j], l[i] })
		rng.Shuffle(len(p), func(i, j int) { p[i], p[j] = p[j], p[i] })

		got := run(t, l, p)
		require.Len(t, got, len(baseline))
		for i := range baseline {
			assert.Equal(t, baseline[i].ID, got[i].ID)
			assert.Equal(t, baseline[i].Status, got[i].Status)
			assert.Equal(t, baseline[i].VarianceMinor, got[i].VarianceMinor)
		}
	}
}

func TestMatch_MultiProviderPartitions(t *testing.T) {
	l1 := ledgerTxn("led-1", "REF-1", 5000, baseTime)
	l2 := ledgerTxn("led-2", "REF-2", 5000, baseTime)
	l2.Provider = "payo"
	p1 := providerTxn("prv-1", "REF-1", 5000, baseTime)
	p2 := providerTxn("prv-2", "REF-2", 5000, baseTime)
	p2.Provider = "payo"

	results := run(t, []model.Transaction{l1, l2}, []model.Transaction{p1, p2})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, model.StatusMatched, r.Status)
	}
}

func TestMatch_CrossProviderNeverPairs(t *testing.T) {
	l := ledgerTxn("led-1", "REF-1", 5000, baseTime)
	p := providerTxn("prv-1", "REF-1", 5000, baseTime)
	p.Provider = "payo"

	results := run(t, []model.Transaction{l}, []model.Transaction{p})
	require.Len(t, results, 2)
	byID := map[string]model.MatchStatus{}
	for _, r := range results {
		byID[r.ID] = r.Status
	}
	assert.Equal(t, model.StatusPendingSettlement, byID["led-1~"])
	assert.Equal(t, model.StatusMissingLedger, byID["~prv-1"])
}

func TestMatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, []model.Transaction{ledgerTxn("led-1", "", 100, baseTime)}, nil, defaultConfig(), asOf)
	require.ErrorIs(t, err, context.Canceled)
}

func fmtID(prefix string, n int) string {
	const digits = "0123456789"
	return prefix + "-" + string(digits[n/10%10]) + string(digits[n%10])
}
