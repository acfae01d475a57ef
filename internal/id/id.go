package id

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FormatExceptionID returns an exception ID like "2026-08-29-EX-001".
func FormatExceptionID(date string, seq int) string {
	return fmt.Sprintf("%s-EX-%03d", date, seq)
}

// FormatAdjustmentID returns an adjustment ID like "2026-08-29-ADJ-001".
func FormatAdjustmentID(date string, seq int) string {
	return fmt.Sprintf("%s-ADJ-%03d", date, seq)
}

// MatchID derives a deterministic result ID from the consumed
// transaction IDs, e.g. "led-17~prv-93"; one side empty for singletons.
func MatchID(ledgerID, providerID string) string {
	return ledgerID + "~" + providerID
}

// NewRunID returns a fresh reconciliation run ID.
func NewRunID() string {
	return uuid.NewString()
}

// NewAuditID returns a fresh audit entry ID.
func NewAuditID() string {
	return uuid.NewString()
}

// ParseSeq extracts the trailing sequence from a formatted ID like
// "2026-08-29-EX-007". Returns an error when the ID has no numeric tail.
func ParseSeq(id string) (int, error) {
	i := strings.LastIndex(id, "-")
	if i < 0 || i == len(id)-1 {
		return 0, fmt.Errorf("invalid ID format: %q", id)
	}
	seq, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid sequence in ID %q: %w", id, err)
	}
	return seq, nil
}
