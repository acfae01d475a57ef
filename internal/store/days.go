package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/daybook-dev/daybook/internal/ledger"
	"github.com/daybook-dev/daybook/internal/model"
)

// GetDay loads a day ledger, or nil when the day has never been
// reconciled. AdjustmentMinor is folded in from the adjustments table.
func (s *Store) GetDay(ctx context.Context, key model.DayKey) (*model.DayLedger, error) {
	query := `
		SELECT state, run_id, total_transactions, matched_count, total_variance,
		       reports_generated, backup_complete, closed_by, closed_at,
		       COALESCE((SELECT SUM(amount) FROM adjustments WHERE day_key = days.day_key), 0)
		FROM days WHERE day_key = ?
	`
	row := s.db.QueryRowContext(ctx, query, key.String())

	day := model.DayLedger{Key: key}
	var state string
	var reports, backup int
	var closedAt sql.NullString
	err := row.Scan(&state, &day.RunID, &day.TotalTransactions, &day.MatchedCount,
		&day.TotalVarianceMinor, &reports, &backup, &day.ClosedBy, &closedAt,
		&day.AdjustmentMinor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading day %s: %w", key, err)
	}

	day.State = model.DayState(state)
	day.ReportsGenerated = reports != 0
	day.BackupComplete = backup != 0
	if closedAt.Valid {
		t, err := time.Parse(time.RFC3339, closedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing closed_at for %s: %w", key, err)
		}
		day.ClosedAt = &t
	}
	return &day, nil
}

// SaveRun atomically replaces a day's results and exceptions with a new
// run's output and updates the day totals. Artifact flags and any
// pending-close state survive; a Closed day rejects the write.
func (s *Store) SaveRun(ctx context.Context, day model.DayLedger, results []model.MatchResult, exceptions []model.ExceptionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning run commit: %w", err)
	}
	defer tx.Rollback()

	dayKey := day.Key.String()

	var state string
	err = tx.QueryRowContext(ctx, "SELECT state FROM days WHERE day_key = ?", dayKey).Scan(&state)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First run for this day.
	case err != nil:
		return fmt.Errorf("checking day state: %w", err)
	case model.DayState(state) == model.DayClosed:
		return &ledger.DayAlreadyClosedError{Key: day.Key}
	}

	upsert := `
		INSERT INTO days (day_key, date, provider, state, run_id, total_transactions, matched_count, total_variance)
		VALUES (?, ?, ?, 'open', ?, ?, ?, ?)
		ON CONFLICT(day_key) DO UPDATE SET
			run_id = excluded.run_id,
			total_transactions = excluded.total_transactions,
			matched_count = excluded.matched_count,
			total_variance = excluded.total_variance
	`
	if _, err := tx.ExecContext(ctx, upsert, dayKey, day.Key.Date, day.Key.Provider,
		day.RunID, day.TotalTransactions, day.MatchedCount, day.TotalVarianceMinor); err != nil {
		return fmt.Errorf("upserting day %s: %w", day.Key, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM match_results WHERE day_key = ?", dayKey); err != nil {
		return fmt.Errorf("clearing prior results: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM exceptions WHERE day_key = ?", dayKey); err != nil {
		return fmt.Errorf("clearing prior exceptions: %w", err)
	}

	for _, r := range results {
		if err := insertResult(ctx, tx, dayKey, r); err != nil {
			return err
		}
	}
	for _, e := range exceptions {
		if err := insertException(ctx, tx, dayKey, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run for %s: %w", day.Key, err)
	}

	s.log.Info().
		Str("day", dayKey).
		Int("results", len(results)).
		Int("exceptions", len(exceptions)).
		Msg("Run committed")
	return nil
}

// SetState advances the day state with an optimistic from-state check,
// so concurrent close attempts cannot both succeed.
func (s *Store) SetState(ctx context.Context, key model.DayKey, from, to model.DayState) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE days SET state = ? WHERE day_key = ? AND state = ?",
		string(to), key.String(), string(from))
	if err != nil {
		return fmt.Errorf("updating state for %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating state for %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("day %s is not in state %s", key, from)
	}
	return nil
}

// CloseDay commits PendingClose -> Closed as one transaction: the audit
// entry and the terminal state land together or not at all.
func (s *Store) CloseDay(ctx context.Context, key model.DayKey, entry model.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning close commit: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE days SET state = ?, closed_by = ?, closed_at = ? WHERE day_key = ? AND state = ?",
		string(model.DayClosed), entry.Actor, entry.At.Format(time.RFC3339),
		key.String(), string(model.DayPendingClose))
	if err != nil {
		return fmt.Errorf("closing day %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("closing day %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("day %s is not pending close", key)
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing close for %s: %w", key, err)
	}

	s.log.Info().Str("day", key.String()).Str("closed_by", entry.Actor).Msg("Day closed")
	return nil
}

// SetArtifacts records the externally produced artifact flags.
func (s *Store) SetArtifacts(ctx context.Context, key model.DayKey, reportsGenerated, backupComplete bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE days SET reports_generated = ?, backup_complete = ? WHERE day_key = ?",
		boolToInt(reportsGenerated), boolToInt(backupComplete), key.String())
	if err != nil {
		return fmt.Errorf("setting artifacts for %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting artifacts for %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("day %s has not been reconciled yet", key)
	}
	return nil
}

// AddAdjustment appends an audited correction. Adjustments are
// append-only and permitted against Closed days.
func (s *Store) AddAdjustment(ctx context.Context, adj model.Adjustment) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO adjustments (id, day_key, amount, reason, recorded_by, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
		adj.ID, adj.Key.String(), adj.AmountMinor, adj.Reason, adj.RecordedBy,
		adj.RecordedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting adjustment %s: %w", adj.ID, err)
	}
	return nil
}

// CountAdjustments returns the number of adjustments recorded for a day.
func (s *Store) CountAdjustments(ctx context.Context, key model.DayKey) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM adjustments WHERE day_key = ?", key.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting adjustments for %s: %w", key, err)
	}
	return n, nil
}

// ListAdjustments returns a day's adjustments in recording order.
func (s *Store) ListAdjustments(ctx context.Context, key model.DayKey) ([]model.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, amount, reason, recorded_by, recorded_at FROM adjustments WHERE day_key = ? ORDER BY id",
		key.String())
	if err != nil {
		return nil, fmt.Errorf("listing adjustments for %s: %w", key, err)
	}
	defer rows.Close()

	var out []model.Adjustment
	for rows.Next() {
		adj := model.Adjustment{Key: key}
		var at string
		if err := rows.Scan(&adj.ID, &adj.AmountMinor, &adj.Reason, &adj.RecordedBy, &at); err != nil {
			return nil, fmt.Errorf("scanning adjustment: %w", err)
		}
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("parsing adjustment time: %w", err)
		}
		adj.RecordedAt = t
		out = append(out, adj)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
