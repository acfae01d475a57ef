package normalize

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daybook-dev/daybook/internal/model"
)

// Policy selects how bad input records are handled.
type Policy string

const (
	// PolicySkip drops bad records and collects their errors in the Report.
	PolicySkip Policy = "skip"
	// PolicyAbort fails the whole run on the first bad record.
	PolicyAbort Policy = "abort"
)

// RawEntry is one unvalidated row from a ledger export or provider
// settlement feed. Amounts are decimal strings; timestamps RFC 3339.
type RawEntry struct {
	ID          string
	Source      string
	Provider    string
	InternalRef string
	ProviderRef string
	Amount      string
	Fee         string
	Timestamp   string
	SettledAt   string // empty = not yet settled
}

// Error reports a rejected input record.
type Error struct {
	Source string
	ID     string
	Reason string
}

func (e Error) Error() string {
	return fmt.Sprintf("normalization [%s/%s]: %s", e.Source, e.ID, e.Reason)
}

// Report collects the non-fatal outcomes of a normalization pass.
type Report struct {
	Accepted   int
	Rejected   []Error  // present only under PolicySkip
	Duplicates []string // transaction IDs superseded by a later duplicate
	Warnings   []string // soft-check findings, e.g. fee exceeding amount
}

// Normalize validates and canonicalizes raw feed rows into Transactions.
// Duplicate references within one feed keep the latest row by timestamp.
// Under PolicySkip bad rows are collected in the Report; under
// PolicyAbort the first bad row fails the pass.
func Normalize(raw []RawEntry, policy Policy) ([]model.Transaction, Report, error) {
	var report Report
	var txns []model.Transaction

	for _, entry := range raw {
		txn, err := canonicalize(entry)
		if err != nil {
			if policy == PolicyAbort {
				return nil, Report{}, err
			}
			report.Rejected = append(report.Rejected, *err)
			continue
		}
		if txn.FeeMinor > txn.AmountMinor {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s: fee %d exceeds amount %d", txn.ID, txn.FeeMinor, txn.AmountMinor))
		}
		txns = append(txns, txn)
	}

	txns, superseded := dedupe(txns)
	report.Duplicates = superseded
	report.Accepted = len(txns)

	return txns, report, nil
}

func canonicalize(entry RawEntry) (model.Transaction, *Error) {
	fail := func(reason string) (model.Transaction, *Error) {
		return model.Transaction{}, &Error{Source: entry.Source, ID: entry.ID, Reason: reason}
	}

	if entry.ID == "" {
		return fail("missing transaction ID")
	}
	if entry.Source == "" {
		return fail("missing source")
	}

	amount, err := parseMinor(entry.Amount)
	if err != nil {
		return fail(fmt.Sprintf("amount %q: %v", entry.Amount, err))
	}
	if amount < 0 {
		return fail(fmt.Sprintf("negative amount %q", entry.Amount))
	}

	var fee int64
	if entry.Fee != "" {
		fee, err = parseMinor(entry.Fee)
		if err != nil {
			return fail(fmt.Sprintf("fee %q: %v", entry.Fee, err))
		}
		if fee < 0 {
			return fail(fmt.Sprintf("negative fee %q", entry.Fee))
		}
	}

	ts, err := time.Parse(time.RFC3339, entry.Timestamp)
	if err != nil {
		return fail(fmt.Sprintf("timestamp %q: %v", entry.Timestamp, err))
	}

	var settledAt *time.Time
	if entry.SettledAt != "" {
		st, err := time.Parse(time.RFC3339, entry.SettledAt)
		if err != nil {
			return fail(fmt.Sprintf("settled timestamp %q: %v", entry.SettledAt, err))
		}
		settledAt = &st
	}

	return model.Transaction{
		ID:          entry.ID,
		Source:      model.Source(entry.Source),
		Provider:    entry.Provider,
		InternalRef: entry.InternalRef,
		ProviderRef: entry.ProviderRef,
		AmountMinor: amount,
		FeeMinor:    fee,
		Timestamp:   ts,
		SettledAt:   settledAt,
	}, nil
}

// parseMinor converts a decimal string like "500.00" to minor units.
// More than two decimal places is rejected: feeds carry currency
// amounts, not rates.
func parseMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("more than 2 decimal places")
	}
	return shifted.IntPart(), nil
}

// dedupe keeps the latest row per (source, reference); rows without any
// reference are never considered duplicates. Returns surviving
// transactions in input order plus the superseded IDs.
func dedupe(txns []model.Transaction) ([]model.Transaction, []string) {
	type key struct {
		source model.Source
		ref    string
	}

	latest := make(map[key]int) // key -> index in txns
	var superseded []string
	for i, t := range txns {
		ref := t.Reference()
		if ref == "" {
			continue
		}
		k := key{source: t.Source, ref: ref}
		prev, seen := latest[k]
		if !seen {
			latest[k] = i
			continue
		}
		if t.Timestamp.After(txns[prev].Timestamp) {
			superseded = append(superseded, txns[prev].ID)
			latest[k] = i
		} else {
			superseded = append(superseded, t.ID)
		}
	}

	if len(superseded) == 0 {
		return txns, nil
	}

	drop := make(map[string]bool, len(superseded))
	for _, id := range superseded {
		drop[id] = true
	}
	kept := txns[:0]
	for _, t := range txns {
		if !drop[t.ID] {
			kept = append(kept, t)
		}
	}
	sort.Strings(superseded)
	return kept, superseded
}
