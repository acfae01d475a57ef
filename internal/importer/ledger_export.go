package importer

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/daybook-dev/daybook/internal/normalize"
)

// LedgerExportParser parses the platform's internal ledger export.
type LedgerExportParser struct{}

const (
	ledgerNumFields   = 8
	ledgerColID       = 0
	ledgerColProvider = 1
	ledgerColIntRef   = 2
	ledgerColPrvRef   = 3
	ledgerColAmount   = 4
	ledgerColFee      = 5
	ledgerColInitAt   = 6
	ledgerColSettled  = 7
)

// LedgerExportHeader is the expected header of a ledger export file.
const LedgerExportHeader = "txn_id,provider,internal_ref,provider_ref,amount,fee,initiated_at,settled_at"

// Format returns the parser name.
func (p *LedgerExportParser) Format() string { return "ledger-export" }

// Parse reads a ledger export CSV into raw entries.
func (p *LedgerExportParser) Parse(r io.Reader) ([]normalize.RawEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = ledgerNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ledger export CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	entries := make([]normalize.RawEntry, 0, len(records)-1)
	for _, rec := range records[1:] {
		entries = append(entries, normalize.RawEntry{
			ID:          rec[ledgerColID],
			Source:      "ledger",
			Provider:    rec[ledgerColProvider],
			InternalRef: rec[ledgerColIntRef],
			ProviderRef: rec[ledgerColPrvRef],
			Amount:      rec[ledgerColAmount],
			Fee:         rec[ledgerColFee],
			Timestamp:   rec[ledgerColInitAt],
			SettledAt:   rec[ledgerColSettled],
		})
	}
	return entries, nil
}
