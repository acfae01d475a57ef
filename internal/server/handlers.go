package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/daybook-dev/daybook/internal/buildinfo"
	"github.com/daybook-dev/daybook/internal/engine"
	"github.com/daybook-dev/daybook/internal/ledger"
	"github.com/daybook-dev/daybook/internal/model"
)

type dayResponse struct {
	Date               string     `json:"date"`
	Provider           string     `json:"provider"`
	State              string     `json:"state"`
	RunID              string     `json:"run_id"`
	TotalTransactions  int        `json:"total_transactions"`
	MatchedCount       int        `json:"matched_count"`
	TotalVarianceMinor int64      `json:"total_variance_minor"`
	AdjustmentMinor    int64      `json:"adjustment_minor"`
	EffectiveVariance  int64      `json:"effective_variance_minor"`
	ReportsGenerated   bool       `json:"reports_generated"`
	BackupComplete     bool       `json:"backup_complete"`
	ClosedBy           string     `json:"closed_by,omitempty"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

func toDayResponse(d model.DayLedger) dayResponse {
	return dayResponse{
		Date:               d.Key.Date,
		Provider:           d.Key.Provider,
		State:              string(d.State),
		RunID:              d.RunID,
		TotalTransactions:  d.TotalTransactions,
		MatchedCount:       d.MatchedCount,
		TotalVarianceMinor: d.TotalVarianceMinor,
		AdjustmentMinor:    d.AdjustmentMinor,
		EffectiveVariance:  d.EffectiveVariance(),
		ReportsGenerated:   d.ReportsGenerated,
		BackupComplete:     d.BackupComplete,
		ClosedBy:           d.ClosedBy,
		ClosedAt:           d.ClosedAt,
	}
}

type transactionResponse struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Reference   string     `json:"reference"`
	AmountMinor int64      `json:"amount_minor"`
	FeeMinor    int64      `json:"fee_minor"`
	Timestamp   time.Time  `json:"timestamp"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
}

type resultResponse struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	VarianceMinor int64                `json:"variance_minor"`
	Ledger        *transactionResponse `json:"ledger,omitempty"`
	Provider      *transactionResponse `json:"provider,omitempty"`
}

func toTransactionResponse(t *model.Transaction) *transactionResponse {
	if t == nil {
		return nil
	}
	return &transactionResponse{
		ID:          t.ID,
		Source:      string(t.Source),
		Reference:   t.Reference(),
		AmountMinor: t.AmountMinor,
		FeeMinor:    t.FeeMinor,
		Timestamp:   t.Timestamp,
		SettledAt:   t.SettledAt,
	}
}

type exceptionResponse struct {
	ID                   string     `json:"id"`
	MatchID              string     `json:"match_id"`
	Category             string     `json:"category"`
	Severity             string     `json:"severity"`
	FinancialImpactMinor int64      `json:"financial_impact_minor"`
	Resolved             bool       `json:"resolved"`
	ResolutionNote       string     `json:"resolution_note,omitempty"`
	ResolvedBy           string     `json:"resolved_by,omitempty"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
}

type auditResponse struct {
	ID      string    `json:"id"`
	Action  string    `json:"action"`
	Actor   string    `json:"actor"`
	At      time.Time `json:"at"`
	Summary string    `json:"summary"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "daybook",
		"version": buildinfo.Version,
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	type providerResponse struct {
		Code                  string `json:"code"`
		Name                  string `json:"name"`
		FeedFormat            string `json:"feed_format"`
		SettlementWindowHours int    `json:"settlement_window_hours"`
	}
	out := []providerResponse{}
	for _, p := range s.engine.Providers().All() {
		out = append(out, providerResponse{p.Code, p.Name, p.FeedFormat, p.SettlementWindowHours})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date, prov := dayParams(r)
	day, err := s.engine.Day(r.Context(), date, prov)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if day == nil {
		s.writeError(w, http.StatusNotFound, "day has not been reconciled")
		return
	}
	s.writeJSON(w, http.StatusOK, toDayResponse(*day))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	date, prov := dayParams(r)
	results, err := s.engine.Results(r.Context(), date, prov)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := []resultResponse{}
	for _, res := range results {
		out = append(out, resultResponse{
			ID:            res.ID,
			Status:        string(res.Status),
			VarianceMinor: res.VarianceMinor,
			Ledger:        toTransactionResponse(res.Ledger),
			Provider:      toTransactionResponse(res.Provider),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExceptions(w http.ResponseWriter, r *http.Request) {
	date, prov := dayParams(r)
	exceptions, err := s.engine.Exceptions(r.Context(), date, prov)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := []exceptionResponse{}
	for _, exc := range exceptions {
		out = append(out, exceptionResponse{
			ID:                   exc.ID,
			MatchID:              exc.MatchID,
			Category:             string(exc.Category),
			Severity:             string(exc.Severity),
			FinancialImpactMinor: exc.FinancialImpactMinor,
			Resolved:             exc.Resolved,
			ResolutionNote:       exc.ResolutionNote,
			ResolvedBy:           exc.ResolvedBy,
			ResolvedAt:           exc.ResolvedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	date, prov := dayParams(r)
	trail, err := s.engine.AuditTrail(r.Context(), date, prov)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := []auditResponse{}
	for _, e := range trail {
		out = append(out, auditResponse{e.ID, e.Action, e.Actor, e.At, e.Summary})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	date, prov := dayParams(r)
	res, err := s.engine.RunReconciliation(r.Context(), date, prov)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"day":         toDayResponse(res.Day),
		"results":     len(res.Results),
		"exceptions":  len(res.Exceptions),
		"rejected":    len(res.Report.Rejected),
		"verify_only": res.VerifyOnly,
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	date, prov := dayParams(r)
	var body struct {
		ClosedBy string `json:"closed_by"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.ClosedBy == "" {
		s.writeError(w, http.StatusBadRequest, "closed_by is required")
		return
	}
	day, err := s.engine.RequestDayClose(r.Context(), date, prov, body.ClosedBy)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toDayResponse(*day))
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	date, prov := dayParams(r)
	var body struct {
		ReportsGenerated bool `json:"reports_generated"`
		BackupComplete   bool `json:"backup_complete"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if err := s.engine.SetArtifacts(r.Context(), date, prov, body.ReportsGenerated, body.BackupComplete); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	date, prov := dayParams(r)
	var body struct {
		AmountMinor int64  `json:"amount_minor"`
		Reason      string `json:"reason"`
		RecordedBy  string `json:"recorded_by"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	adj, err := s.engine.RecordAdjustment(r.Context(), date, prov, body.AmountMinor, body.Reason, body.RecordedBy)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":           adj.ID,
		"amount_minor": adj.AmountMinor,
		"reason":       adj.Reason,
		"recorded_by":  adj.RecordedBy,
		"recorded_at":  adj.RecordedAt,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	excID := chi.URLParam(r, "id")
	var body struct {
		ResolvedBy string `json:"resolved_by"`
		Note       string `json:"note"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.ResolvedBy == "" {
		s.writeError(w, http.StatusBadRequest, "resolved_by is required")
		return
	}
	if err := s.engine.ResolveException(r.Context(), excID, body.ResolvedBy, body.Note); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func dayParams(r *http.Request) (date, provider string) {
	return chi.URLParam(r, "date"), r.URL.Query().Get("provider")
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeEngineError maps domain errors onto HTTP statuses. Close guard
// failures carry the full reason list so the dashboard can show every
// unmet condition at once.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var blocked *ledger.CloseBlockedError
	if errors.As(err, &blocked) {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "day close blocked",
			"reasons": blocked.Reasons,
		})
		return
	}
	var closed *ledger.DayAlreadyClosedError
	if errors.As(err, &closed) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	var commit *ledger.CommitError
	if errors.As(err, &commit) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if errors.Is(err, engine.ErrRunInProgress) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
