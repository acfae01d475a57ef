package ledger

import (
	"fmt"
	"strings"

	"github.com/daybook-dev/daybook/internal/model"
)

// CloseBlockedError refuses a day-close request. Reasons enumerates
// every failing guard, not just the first, so the operator sees the
// full checklist at once.
type CloseBlockedError struct {
	Key     model.DayKey
	Reasons []string
}

func (e *CloseBlockedError) Error() string {
	return fmt.Sprintf("close blocked for %s: %s", e.Key, strings.Join(e.Reasons, "; "))
}

// DayAlreadyClosedError rejects any mutation of a Closed day.
type DayAlreadyClosedError struct {
	Key model.DayKey
}

func (e *DayAlreadyClosedError) Error() string {
	return fmt.Sprintf("day %s is already closed", e.Key)
}

// CommitError reports a failure while committing PendingClose to
// Closed. The day remains at PendingClose and the close is retryable.
type CommitError struct {
	Key model.DayKey
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("close commit failed for %s (day remains pending, retry): %v", e.Key, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
