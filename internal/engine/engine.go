// Package engine orchestrates reconciliation runs and the day-close
// workflow. It is the only writer of reconciliation state; the CLI,
// HTTP API, and scheduler are thin callers.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/daybook-dev/daybook/internal/auditlog"
	"github.com/daybook-dev/daybook/internal/classify"
	"github.com/daybook-dev/daybook/internal/id"
	"github.com/daybook-dev/daybook/internal/ledger"
	"github.com/daybook-dev/daybook/internal/match"
	"github.com/daybook-dev/daybook/internal/model"
	"github.com/daybook-dev/daybook/internal/normalize"
	"github.com/daybook-dev/daybook/internal/providers"
	"github.com/daybook-dev/daybook/internal/store"
)

// ErrRunInProgress rejects a second reconciliation trigger while one is
// already in flight for the same day key.
var ErrRunInProgress = errors.New("reconciliation already in progress for this day")

// FeedSource supplies the raw feeds for a run. The CLI reads CSV files;
// a deployment against live provider APIs would implement this with its
// own timeout and retry policy.
type FeedSource interface {
	Fetch(ctx context.Context, date string, provider providers.Provider) (ledgerRows, providerRows []normalize.RawEntry, err error)
}

// Config carries the policy knobs for a run.
type Config struct {
	Match           match.Config
	Classify        classify.Config
	NormalizePolicy normalize.Policy
	DataDir         string // location of the CSV audit log; empty disables it
}

// Engine owns reconciliation state for all day keys.
type Engine struct {
	store     *store.Store
	providers *providers.Service
	feeds     FeedSource
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates an Engine.
func New(st *store.Store, catalogue *providers.Service, feeds FeedSource, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		store:     st,
		providers: catalogue,
		feeds:     feeds,
		cfg:       cfg,
		log:       log.With().Str("component", "engine").Logger(),
		now:       time.Now,
		inFlight:  make(map[string]bool),
	}
}

// RunResult is the full output of one reconciliation run.
type RunResult struct {
	Day        model.DayLedger
	Results    []model.MatchResult
	Exceptions []model.ExceptionRecord
	Report     normalize.Report
	// VerifyOnly is set when the day was already closed: the results
	// were recomputed for verification but nothing was committed.
	VerifyOnly bool
}

// RunReconciliation executes one full pass for a day key. At most one
// run per day key is in flight at a time; a concurrent trigger gets
// ErrRunInProgress. A cancelled run commits nothing. Running against a
// Closed day recomputes results for verification without committing.
func (e *Engine) RunReconciliation(ctx context.Context, date, providerCode string) (*RunResult, error) {
	key, err := model.NewDayKey(date, providerCode)
	if err != nil {
		return nil, err
	}
	prov, err := e.resolveProvider(providerCode)
	if err != nil {
		return nil, err
	}

	release, err := e.acquire(key)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := e.store.GetDay(ctx, key)
	if err != nil {
		return nil, err
	}
	verifyOnly := existing != nil && existing.State == model.DayClosed

	ledgerRows, providerRows, err := e.feeds.Fetch(ctx, date, prov)
	if err != nil {
		return nil, fmt.Errorf("fetching feeds for %s: %w", key, err)
	}

	ledgerTxns, ledgerReport, err := normalize.Normalize(ledgerRows, e.cfg.NormalizePolicy)
	if err != nil {
		return nil, err
	}
	providerTxns, providerReport, err := normalize.Normalize(providerRows, e.cfg.NormalizePolicy)
	if err != nil {
		return nil, err
	}
	report := mergeReports(ledgerReport, providerReport)

	asOf := e.now()
	matchCfg := e.cfg.Match
	if prov.SettlementWindowHours > 0 {
		matchCfg.SettlementWindow = time.Duration(prov.SettlementWindowHours) * time.Hour
	}

	results, err := match.Run(ctx, ledgerTxns, providerTxns, matchCfg, asOf)
	if err != nil {
		return nil, err
	}

	exceptions := e.classifyAll(key, results, asOf)
	runID := id.NewRunID()
	day := ledger.Aggregate(key, runID, results)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &RunResult{
		Day:        day,
		Results:    results,
		Exceptions: exceptions,
		Report:     report,
		VerifyOnly: verifyOnly,
	}
	if verifyOnly {
		e.log.Info().Str("day", key.String()).Msg("Verification run against closed day, not committed")
		return result, nil
	}

	if err := e.store.SaveRun(ctx, day, results, exceptions); err != nil {
		return nil, err
	}

	// Reload to fold in artifacts and adjustments recorded earlier.
	saved, err := e.store.GetDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if saved != nil {
		result.Day = *saved
	}

	e.audit(ctx, key, "run", "system", runID,
		fmt.Sprintf("%d results, %d exceptions, variance %d", len(results), len(exceptions), day.TotalVarianceMinor))

	e.log.Info().
		Str("day", key.String()).
		Str("run_id", runID).
		Int("results", len(results)).
		Int("exceptions", len(exceptions)).
		Int64("variance", day.TotalVarianceMinor).
		Msg("Reconciliation run committed")
	return result, nil
}

// RequestDayClose evaluates the close guards and, when all pass, walks
// the day through PendingClose to Closed in one serialized operation.
// A CommitError leaves the day at PendingClose for retry.
func (e *Engine) RequestDayClose(ctx context.Context, date, providerCode, closedBy string) (*model.DayLedger, error) {
	key, err := model.NewDayKey(date, providerCode)
	if err != nil {
		return nil, err
	}

	release, err := e.acquire(key)
	if err != nil {
		return nil, err
	}
	defer release()

	day, err := e.store.GetDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, fmt.Errorf("day %s has not been reconciled", key)
	}
	if day.State == model.DayClosed {
		return nil, &ledger.DayAlreadyClosedError{Key: key}
	}

	unresolved, err := e.store.UnresolvedCount(ctx, key)
	if err != nil {
		return nil, err
	}
	if reasons := ledger.CloseChecks(*day, unresolved); len(reasons) > 0 {
		return nil, &ledger.CloseBlockedError{Key: key, Reasons: reasons}
	}

	if day.State == model.DayOpen {
		if err := ledger.Transition(*day, model.DayPendingClose); err != nil {
			return nil, err
		}
		if err := e.store.SetState(ctx, key, model.DayOpen, model.DayPendingClose); err != nil {
			return nil, err
		}
		day.State = model.DayPendingClose
	}

	closedAt := e.now().UTC()
	snapshot, err := json.Marshal(map[string]any{
		"total_transactions": day.TotalTransactions,
		"matched_count":      day.MatchedCount,
		"total_variance":     day.TotalVarianceMinor,
		"adjustments":        day.AdjustmentMinor,
		"run_id":             day.RunID,
	})
	if err != nil {
		return nil, fmt.Errorf("building close snapshot: %w", err)
	}

	entry := model.AuditEntry{
		ID:      id.NewAuditID(),
		Key:     key,
		Action:  "close",
		Actor:   closedBy,
		At:      closedAt,
		Summary: string(snapshot),
	}
	if err := e.store.CloseDay(ctx, key, entry); err != nil {
		return nil, &ledger.CommitError{Key: key, Err: err}
	}

	e.auditCSV(key, "close", closedBy, entry.ID, string(snapshot))

	closed, err := e.store.GetDay(ctx, key)
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("day", key.String()).Str("closed_by", closedBy).Msg("Day closed")
	return closed, nil
}

// ResolveException records an operator resolution. Resolution satisfies
// close guard 2 but never changes the recorded variance; write-offs go
// through RecordAdjustment.
func (e *Engine) ResolveException(ctx context.Context, exceptionID, resolvedBy, note string) error {
	exc, key, err := e.store.GetException(ctx, exceptionID)
	if err != nil {
		return err
	}
	if exc == nil {
		return fmt.Errorf("exception %s not found", exceptionID)
	}

	day, err := e.store.GetDay(ctx, key)
	if err != nil {
		return err
	}
	if day != nil && day.State == model.DayClosed {
		return &ledger.DayAlreadyClosedError{Key: key}
	}

	if err := e.store.ResolveException(ctx, exceptionID, resolvedBy, note, e.now().UTC()); err != nil {
		return err
	}
	e.audit(ctx, key, "resolve", resolvedBy, exceptionID, note)
	return nil
}

// RecordAdjustment appends an audited correction. Closed days accept
// adjustments: they reference the day without reopening it.
func (e *Engine) RecordAdjustment(ctx context.Context, date, providerCode string, amountMinor int64, reason, recordedBy string) (*model.Adjustment, error) {
	key, err := model.NewDayKey(date, providerCode)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, errors.New("adjustment requires a reason")
	}

	seq, err := e.store.CountAdjustments(ctx, key)
	if err != nil {
		return nil, err
	}
	adj := model.Adjustment{
		ID:          id.FormatAdjustmentID(key.Date, seq+1),
		Key:         key,
		AmountMinor: amountMinor,
		Reason:      reason,
		RecordedBy:  recordedBy,
		RecordedAt:  e.now().UTC(),
	}
	if err := e.store.AddAdjustment(ctx, adj); err != nil {
		return nil, err
	}
	e.audit(ctx, key, "adjust", recordedBy, adj.ID, reason)
	return &adj, nil
}

// SetArtifacts records the externally produced artifact flags for a
// day. The engine only checks these during close; producing the report
// and backup is someone else's job.
func (e *Engine) SetArtifacts(ctx context.Context, date, providerCode string, reportsGenerated, backupComplete bool) error {
	key, err := model.NewDayKey(date, providerCode)
	if err != nil {
		return err
	}
	day, err := e.store.GetDay(ctx, key)
	if err != nil {
		return err
	}
	if day == nil {
		return fmt.Errorf("day %s has not been reconciled", key)
	}
	if day.State == model.DayClosed {
		return &ledger.DayAlreadyClosedError{Key: key}
	}
	return e.store.SetArtifacts(ctx, key, reportsGenerated, backupComplete)
}

// Day returns the day snapshot for the summary cards, or nil when the
// day has never been reconciled.
func (e *Engine) Day(ctx context.Context, date, providerCode string) (*model.DayLedger, error) {
	key, err := model.NewDayKey(date, providerCode)
	if err != nil {
		return nil, err
	}
	return e.store.GetDay(ctx, key)
}

// Results returns the match results for the reconciliation table.
func (e *Engine) Results(ctx context.Context, date, providerCode string) ([]model.MatchResult, error) {
	key, err := model.NewDayKey(date, providerCode)
	if err != nil {
		return nil, err
	}
	return e.store.ListResults(ctx, key)
}

// Exceptions returns the exception records for the exceptions panel.
func (e *Engine) Exceptions(ctx context.Context, date, providerCode string) ([]model.ExceptionRecord, error) {
	key, err := model.NewDayKey(date, providerCode)
	if err != nil {
		return nil, err
	}
	return e.store.ListExceptions(ctx, key)
}

// AuditTrail returns a day's audit entries.
func (e *Engine) AuditTrail(ctx context.Context, date, providerCode string) ([]model.AuditEntry, error) {
	key, err := model.NewDayKey(date, providerCode)
	if err != nil {
		return nil, err
	}
	return e.store.ListAudit(ctx, key)
}

// Providers exposes the provider catalogue.
func (e *Engine) Providers() *providers.Service {
	return e.providers
}

// acquire takes the per-day-key slot shared by runs and closes, so a
// close never races a run over the same aggregates.
func (e *Engine) acquire(key model.DayKey) (func(), error) {
	k := key.String()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[k] {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, k)
	}
	e.inFlight[k] = true
	return func() {
		e.mu.Lock()
		delete(e.inFlight, k)
		e.mu.Unlock()
	}, nil
}

func (e *Engine) resolveProvider(code string) (providers.Provider, error) {
	if code == "" {
		return providers.Provider{}, nil
	}
	prov, ok := e.providers.Get(code)
	if !ok {
		return providers.Provider{}, fmt.Errorf("unknown provider %q", code)
	}
	return prov, nil
}

// classifyAll derives exceptions from non-matched results and assigns
// sequential IDs. Results arrive sorted, so IDs are deterministic.
func (e *Engine) classifyAll(key model.DayKey, results []model.MatchResult, asOf time.Time) []model.ExceptionRecord {
	var out []model.ExceptionRecord
	seq := 0
	for _, r := range results {
		exc := classify.Classify(r, asOf, e.cfg.Classify)
		if exc == nil {
			continue
		}
		seq++
		exc.ID = id.FormatExceptionID(key.Date, seq)
		out = append(out, *exc)
	}
	return out
}

// audit writes to both the database audit table and the CSV trail.
func (e *Engine) audit(ctx context.Context, key model.DayKey, action, actor, refID, details string) {
	entry := model.AuditEntry{
		ID:      id.NewAuditID(),
		Key:     key,
		Action:  action,
		Actor:   actor,
		At:      e.now().UTC(),
		Summary: details,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		e.log.Error().Err(err).Str("day", key.String()).Str("action", action).Msg("Audit append failed")
	}
	e.auditCSV(key, action, actor, refID, details)
}

func (e *Engine) auditCSV(key model.DayKey, action, actor, refID, details string) {
	if e.cfg.DataDir == "" {
		return
	}
	err := auditlog.Append(e.cfg.DataDir, auditlog.Entry{
		Timestamp: e.now().UTC(),
		Actor:     actor,
		Action:    action,
		DayKey:    key.String(),
		RefID:     refID,
		Details:   details,
	})
	if err != nil {
		e.log.Error().Err(err).Str("day", key.String()).Msg("Audit CSV append failed")
	}
}

func mergeReports(a, b normalize.Report) normalize.Report {
	return normalize.Report{
		Accepted:   a.Accepted + b.Accepted,
		Rejected:   append(a.Rejected, b.Rejected...),
		Duplicates: append(a.Duplicates, b.Duplicates...),
		Warnings:   append(a.Warnings, b.Warnings...),
	}
}
