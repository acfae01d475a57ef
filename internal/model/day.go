package model

import (
	"fmt"
	"time"
)

// DayState is the lifecycle state of a business day's reconciliation.
// Closed is terminal: no transition ever leaves it.
type DayState string

const (
	DayOpen         DayState = "open"
	DayPendingClose DayState = "pending_close"
	DayClosed       DayState = "closed"
)

// DateFormat is the canonical business-date layout used in day keys.
const DateFormat = "2006-01-02"

// DayKey identifies one DayLedger: a business date plus an optional
// provider scope. An empty provider means the day covers all providers.
type DayKey struct {
	Date     string // YYYY-MM-DD
	Provider string
}

// String renders the key as "2026-08-29" or "2026-08-29/grx".
func (k DayKey) String() string {
	if k.Provider == "" {
		return k.Date
	}
	return k.Date + "/" + k.Provider
}

// NewDayKey validates the date and builds a key.
func NewDayKey(date, provider string) (DayKey, error) {
	if _, err := time.Parse(DateFormat, date); err != nil {
		return DayKey{}, fmt.Errorf("invalid business date %q: %w", date, err)
	}
	return DayKey{Date: date, Provider: provider}, nil
}

// DayLedger aggregates one business day. Once Closed it is immutable;
// corrections are appended as Adjustment records, never in-place edits.
type DayLedger struct {
	Key                DayKey
	State              DayState
	RunID              string // reconciliation run that produced the totals
	TotalTransactions  int
	MatchedCount       int
	TotalVarianceMinor int64 // sum of all result variances
	AdjustmentMinor    int64 // sum of recorded adjustments
	ReportsGenerated   bool  // artifact flag, owned by external systems
	BackupComplete     bool  // artifact flag, owned by external systems
	ClosedBy           string
	ClosedAt           *time.Time
}

// EffectiveVariance is the close-guard quantity: raw variance net of
// recorded adjustments (approved write-offs).
func (d DayLedger) EffectiveVariance() int64 {
	return d.TotalVarianceMinor + d.AdjustmentMinor
}

// AuditEntry is one immutable row in a day's audit trail.
type AuditEntry struct {
	ID      string
	Key     DayKey
	Action  string // "run", "close", "resolve", "adjust"
	Actor   string
	At      time.Time
	Summary string // JSON snapshot or free-text detail
}

// Adjustment is an audited correction appended to a day. Adjustments
// against a Closed day reference it without reopening it.
type Adjustment struct {
	ID          string
	Key         DayKey
	AmountMinor int64
	Reason      string
	RecordedBy  string
	RecordedAt  time.Time
}
