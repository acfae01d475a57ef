package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-dev/daybook/internal/model"
)

func rawLedger(id, ref, amount, ts string) RawEntry {
	return RawEntry{
		ID:          id,
		Source:      "ledger",
		Provider:    "grx",
		InternalRef: ref,
		Amount:      amount,
		Timestamp:   ts,
	}
}

func TestNormalize_Valid(t *testing.T) {
	raw := []RawEntry{
		rawLedger("led-1", "REF-001", "500.00", "2026-08-29T10:00:00Z"),
		rawLedger("led-2", "REF-002", "123.45", "2026-08-29T11:00:00Z"),
	}

	txns, report, err := Normalize(raw, PolicySkip)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, 2, report.Accepted)
	assert.Empty(t, report.Rejected)

	assert.Equal(t, "led-1", txns[0].ID)
	assert.Equal(t, model.Source("ledger"), txns[0].Source)
	assert.Equal(t, int64(50000), txns[0].AmountMinor)
	assert.Equal(t, int64(12345), txns[1].AmountMinor)
	assert.Nil(t, txns[0].SettledAt)
}

func TestNormalize_SettledTimestamp(t *testing.T) {
	entry := rawLedger("led-1", "REF-001", "10.00", "2026-08-29T10:00:00Z")
	entry.SettledAt = "2026-08-29T16:30:00Z"

	txns, _, err := Normalize([]RawEntry{entry}, PolicySkip)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.NotNil(t, txns[0].SettledAt)
	assert.Equal(t, 16, txns[0].SettledAt.UTC().Hour())
}

func TestNormalize_RejectsNegativeAmount(t *testing.T) {
	raw := []RawEntry{
		rawLedger("led-1", "REF-001", "-5.00", "2026-08-29T10:00:00Z"),
		rawLedger("led-2", "REF-002", "5.00", "2026-08-29T10:00:00Z"),
	}

	txns, report, err := Normalize(raw, PolicySkip)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "led-1", report.Rejected[0].ID)
	assert.Contains(t, report.Rejected[0].Error(), "negative amount")
}

func TestNormalize_RejectsBadTimestamp(t *testing.T) {
	raw := []RawEntry{rawLedger("led-1", "REF-001", "5.00", "yesterday")}

	txns, report, err := Normalize(raw, PolicySkip)
	require.NoError(t, err)
	assert.Empty(t, txns)
	require.Len(t, report.Rejected, 1)
	assert.Contains(t, report.Rejected[0].Reason, "timestamp")
}

func TestNormalize_RejectsSubCentPrecision(t *testing.T) {
	raw := []RawEntry{rawLedger("led-1", "REF-001", "5.001", "2026-08-29T10:00:00Z")}

	_, report, err := Normalize(raw, PolicySkip)
	require.NoError(t, err)
	require.Len(t, report.Rejected, 1)
	assert.Contains(t, report.Rejected[0].Reason, "decimal places")
}

func TestNormalize_AbortPolicy(t *testing.T) {
	raw := []RawEntry{
		rawLedger("led-1", "REF-001", "bad", "2026-08-29T10:00:00Z"),
	}

	_, _, err := Normalize(raw, PolicyAbort)
	require.Error(t, err)

	var nerr *Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "led-1", nerr.ID)
}

func TestNormalize_DuplicateKeepsLatest(t *testing.T) {
	raw := []RawEntry{
		rawLedger("led-1", "REF-001", "5.00", "2026-08-29T10:00:00Z"),
		rawLedger("led-2", "REF-001", "5.00", "2026-08-29T12:00:00Z"),
	}

	txns, report, err := Normalize(raw, PolicySkip)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "led-2", txns[0].ID)
	assert.Equal(t, []string{"led-1"}, report.Duplicates)
}

func TestNormalize_DuplicateEarlierRowSecond(t *testing.T) {
	raw := []RawEntry{
		rawLedger("led-1", "REF-001", "5.00", "2026-08-29T12:00:00Z"),
		rawLedger("led-2", "REF-001", "5.00", "2026-08-29T10:00:00Z"),
	}

	txns, report, err := Normalize(raw, PolicySkip)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "led-1", txns[0].ID)
	assert.Equal(t, []string{"led-2"}, report.Duplicates)
}

func TestNormalize_FeeExceedsAmountIsSoftCheck(t *testing.T) {
	entry := rawLedger("led-1", "REF-001", "5.00", "2026-08-29T10:00:00Z")
	entry.Fee = "6.00"

	txns, report, err := Normalize([]RawEntry{entry}, PolicySkip)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "fee")
}

func TestNormalize_NoReferenceNeverDeduped(t *testing.T) {
	a := rawLedger("led-1", "", "5.00", "2026-08-29T10:00:00Z")
	b := rawLedger("led-2", "", "5.00", "2026-08-29T10:00:00Z")

	txns, report, err := Normalize([]RawEntry{a, b}, PolicySkip)
	require.NoError(t, err)
	assert.Len(t, txns, 2)
	assert.Empty(t, report.Duplicates)
}
