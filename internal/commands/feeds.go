package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daybook-dev/daybook/internal/importer"
	"github.com/daybook-dev/daybook/internal/normalize"
	"github.com/daybook-dev/daybook/internal/providers"
)

// CSVFeedSource reads feeds from <dataDir>/import/. For a day key of
// date d and provider p it expects:
//
//	ledger_<d>.csv  - the internal ledger export
//	<p>_<d>.csv     - the provider's settlement file
//
// A missing provider file is not an error: the run proceeds with an
// empty provider side and the matcher reports the gaps. A missing
// ledger file with a present provider file is likewise allowed. Both
// missing means there is nothing to reconcile.
type CSVFeedSource struct {
	DataDir  string
	Registry *importer.Registry
}

func (f *CSVFeedSource) Fetch(ctx context.Context, date string, prov providers.Provider) (ledgerRows, providerRows []normalize.RawEntry, err error) {
	importPath := filepath.Join(f.DataDir, "import")

	ledgerFile := filepath.Join(importPath, "ledger_"+date+".csv")
	if fileExists(ledgerFile) {
		ledgerRows, err = importer.LoadLedgerFeed(ledgerFile, f.Registry)
		if err != nil {
			return nil, nil, err
		}
		// Keep only rows for the provider under reconciliation.
		if prov.Code != "" {
			filtered := ledgerRows[:0]
			for _, row := range ledgerRows {
				if row.Provider == prov.Code {
					filtered = append(filtered, row)
				}
			}
			ledgerRows = filtered
		}
	}

	if prov.Code != "" {
		provFile := filepath.Join(importPath, prov.Code+"_"+date+".csv")
		if fileExists(provFile) {
			format := prov.FeedFormat
			if format == "" {
				format = "settlement"
			}
			providerRows, err = importer.LoadProviderFeed(provFile, prov.Code, format, f.Registry)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	if len(ledgerRows) == 0 && len(providerRows) == 0 {
		return nil, nil, fmt.Errorf("no feeds found in %s for %s", importPath, date)
	}
	return ledgerRows, providerRows, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
