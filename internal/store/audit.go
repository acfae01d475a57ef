package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/daybook-dev/daybook/internal/model"
)

func insertAudit(ctx context.Context, tx *sql.Tx, entry model.AuditEntry) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO audit_entries (id, day_key, action, actor, at, summary) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ID, entry.Key.String(), entry.Action, entry.Actor,
		entry.At.Format(time.RFC3339), entry.Summary)
	if err != nil {
		return fmt.Errorf("inserting audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// AppendAudit appends one audit entry outside any larger transaction.
func (s *Store) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning audit append: %w", err)
	}
	defer tx.Rollback()

	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// ListAudit returns a day's audit trail in chronological order.
func (s *Store) ListAudit(ctx context.Context, key model.DayKey) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, action, actor, at, summary FROM audit_entries WHERE day_key = ? ORDER BY at, id",
		key.String())
	if err != nil {
		return nil, fmt.Errorf("listing audit for %s: %w", key, err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		entry := model.AuditEntry{Key: key}
		var at string
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Actor, &at, &entry.Summary); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("parsing audit time: %w", err)
		}
		entry.At = t
		out = append(out, entry)
	}
	return out, rows.Err()
}
