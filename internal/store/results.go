package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daybook-dev/daybook/internal/model"
)

func insertResult(ctx context.Context, tx *sql.Tx, dayKey string, r model.MatchResult) error {
	var ledgerAmount, providerAmount sql.NullInt64
	var reference string
	if r.Ledger != nil {
		ledgerAmount = sql.NullInt64{Int64: r.Ledger.AmountMinor, Valid: true}
		reference = r.Ledger.Reference()
	}
	if r.Provider != nil {
		providerAmount = sql.NullInt64{Int64: r.Provider.AmountMinor, Valid: true}
		if reference == "" {
			reference = r.Provider.Reference()
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO match_results (id, day_key, status, ledger_id, provider_id, ledger_amount, provider_amount, reference, variance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, dayKey, string(r.Status), r.LedgerID(), r.ProviderID(),
		ledgerAmount, providerAmount, reference, r.VarianceMinor)
	if err != nil {
		return fmt.Errorf("inserting result %s: %w", r.ID, err)
	}
	return nil
}

// ListResults returns a day's match results ordered by ledger then
// provider transaction ID, mirroring the matcher's output order. The
// reconstructed transactions carry IDs and amounts only; full records
// live in the source feeds.
func (s *Store) ListResults(ctx context.Context, key model.DayKey) ([]model.MatchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, ledger_id, provider_id, ledger_amount, provider_amount, reference, variance
		FROM match_results WHERE day_key = ? ORDER BY ledger_id, provider_id`,
		key.String())
	if err != nil {
		return nil, fmt.Errorf("listing results for %s: %w", key, err)
	}
	defer rows.Close()

	var out []model.MatchResult
	for rows.Next() {
		var r model.MatchResult
		var status, ledgerID, providerID, reference string
		var ledgerAmount, providerAmount sql.NullInt64
		if err := rows.Scan(&r.ID, &status, &ledgerID, &providerID,
			&ledgerAmount, &providerAmount, &reference, &r.VarianceMinor); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.Status = model.MatchStatus(status)
		if ledgerID != "" {
			r.Ledger = &model.Transaction{
				ID:          ledgerID,
				Source:      model.SourceLedger,
				Provider:    key.Provider,
				InternalRef: reference,
				AmountMinor: ledgerAmount.Int64,
			}
		}
		if providerID != "" {
			r.Provider = &model.Transaction{
				ID:          providerID,
				Provider:    key.Provider,
				ProviderRef: reference,
				AmountMinor: providerAmount.Int64,
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
