package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/daybook-dev/daybook/internal/model"
)

func insertException(ctx context.Context, tx *sql.Tx, dayKey string, e model.ExceptionRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO exceptions (id, day_key, match_id, category, severity, financial_impact)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, dayKey, e.MatchID, string(e.Category), string(e.Severity), e.FinancialImpactMinor)
	if err != nil {
		return fmt.Errorf("inserting exception %s: %w", e.ID, err)
	}
	return nil
}

// ListExceptions returns a day's exceptions ordered by ID.
func (s *Store) ListExceptions(ctx context.Context, key model.DayKey) ([]model.ExceptionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_id, category, severity, financial_impact, resolved, resolution_note, resolved_by, resolved_at
		FROM exceptions WHERE day_key = ? ORDER BY id`,
		key.String())
	if err != nil {
		return nil, fmt.Errorf("listing exceptions for %s: %w", key, err)
	}
	defer rows.Close()

	var out []model.ExceptionRecord
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetException loads one exception and its day key, or nil when absent.
func (s *Store) GetException(ctx context.Context, exceptionID string) (*model.ExceptionRecord, model.DayKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, match_id, category, severity, financial_impact, resolved, resolution_note, resolved_by, resolved_at,
		       d.date, d.provider
		FROM exceptions e JOIN days d ON d.day_key = e.day_key
		WHERE e.id = ?`, exceptionID)

	var e model.ExceptionRecord
	var category, severity string
	var resolved int
	var resolvedAt sql.NullString
	var key model.DayKey
	err := row.Scan(&e.ID, &e.MatchID, &category, &severity, &e.FinancialImpactMinor,
		&resolved, &e.ResolutionNote, &e.ResolvedBy, &resolvedAt, &key.Date, &key.Provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.DayKey{}, nil
	}
	if err != nil {
		return nil, model.DayKey{}, fmt.Errorf("loading exception %s: %w", exceptionID, err)
	}

	e.Category = model.ExceptionCategory(category)
	e.Severity = model.Severity(severity)
	e.Resolved = resolved != 0
	if resolvedAt.Valid {
		t, err := time.Parse(time.RFC3339, resolvedAt.String)
		if err != nil {
			return nil, model.DayKey{}, fmt.Errorf("parsing resolved_at: %w", err)
		}
		e.ResolvedAt = &t
	}
	return &e, key, nil
}

// ResolveException records an operator resolution. Resolution never
// changes the underlying variance; it only satisfies close guard 2.
func (s *Store) ResolveException(ctx context.Context, exceptionID, resolvedBy, note string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE exceptions SET resolved = 1, resolution_note = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ?`,
		note, resolvedBy, at.Format(time.RFC3339), exceptionID)
	if err != nil {
		return fmt.Errorf("resolving exception %s: %w", exceptionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving exception %s: %w", exceptionID, err)
	}
	if n == 0 {
		return fmt.Errorf("exception %s not found", exceptionID)
	}
	return nil
}

// UnresolvedCount returns the number of open exceptions for a day.
func (s *Store) UnresolvedCount(ctx context.Context, key model.DayKey) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM exceptions WHERE day_key = ? AND resolved = 0",
		key.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unresolved exceptions for %s: %w", key, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanException(row rowScanner) (*model.ExceptionRecord, error) {
	var e model.ExceptionRecord
	var category, severity string
	var resolved int
	var resolvedAt sql.NullString
	err := row.Scan(&e.ID, &e.MatchID, &category, &severity, &e.FinancialImpactMinor,
		&resolved, &e.ResolutionNote, &e.ResolvedBy, &resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning exception: %w", err)
	}
	e.Category = model.ExceptionCategory(category)
	e.Severity = model.Severity(severity)
	e.Resolved = resolved != 0
	if resolvedAt.Valid {
		t, err := time.Parse(time.RFC3339, resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing resolved_at: %w", err)
		}
		e.ResolvedAt = &t
	}
	return &e, nil
}
