package importer

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/daybook-dev/daybook/internal/normalize"
)

// SettlementParser parses the generic provider settlement export every
// onboarded provider is asked to deliver. Provider-specific formats get
// their own parsers registered under the catalogue's feed_format.
type SettlementParser struct{}

const (
	settleNumFields  = 6
	settleColID      = 0
	settleColRef     = 1
	settleColAmount  = 2
	settleColFee     = 3
	settleColInitAt  = 4
	settleColSettled = 5
)

// SettlementHeader is the expected header of a settlement file.
const SettlementHeader = "settlement_id,reference,amount,fee,initiated_at,settled_at"

// Format returns the parser name.
func (p *SettlementParser) Format() string { return "settlement" }

// Parse reads a settlement CSV into raw entries. Source and Provider
// are stamped by LoadProviderFeed since the file does not carry them.
func (p *SettlementParser) Parse(r io.Reader) ([]normalize.RawEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = settleNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading settlement CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	entries := make([]normalize.RawEntry, 0, len(records)-1)
	for _, rec := range records[1:] {
		entries = append(entries, normalize.RawEntry{
			ID:          rec[settleColID],
			ProviderRef: rec[settleColRef],
			Amount:      rec[settleColAmount],
			Fee:         rec[settleColFee],
			Timestamp:   rec[settleColInitAt],
			SettledAt:   rec[settleColSettled],
		})
	}
	return entries, nil
}
