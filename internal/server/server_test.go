package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-dev/daybook/internal/classify"
	"github.com/daybook-dev/daybook/internal/engine"
	"github.com/daybook-dev/daybook/internal/match"
	"github.com/daybook-dev/daybook/internal/normalize"
	"github.com/daybook-dev/daybook/internal/providers"
	"github.com/daybook-dev/daybook/internal/store"
)

type stubFeeds struct {
	ledger   []normalize.RawEntry
	provider []normalize.RawEntry
}

func (f *stubFeeds) Fetch(ctx context.Context, date string, prov providers.Provider) ([]normalize.RawEntry, []normalize.RawEntry, error) {
	return f.ledger, f.provider, nil
}

// mismatchFeeds returns a single reference-linked pair that settles
// five hundred minor units short on the provider side.
func mismatchFeeds(date string) *stubFeeds {
	ts := time.Now().UTC().Add(-3 * time.Hour).Format(time.RFC3339)
	return &stubFeeds{
		ledger: []normalize.RawEntry{{
			ID: "led-1", Source: "ledger", Provider: "grx",
			InternalRef: "REF-001", Amount: "600.00",
			Timestamp: ts, SettledAt: ts,
		}},
		provider: []normalize.RawEntry{{
			ID: "prv-1", Source: "grx", Provider: "grx",
			ProviderRef: "REF-001", Amount: "595.00",
			Timestamp: ts, SettledAt: ts,
		}},
	}
}

func newTestServer(t *testing.T, feeds engine.FeedSource) *Server {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "daybook.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	eng := engine.New(st, providers.NewService(providers.Defaults()), feeds, engine.Config{
		Match:           match.Config{Window: 24 * time.Hour, SettlementWindow: 24 * time.Hour},
		Classify:        classify.Config{HighVariancePct: 10, PendingMediumAge: 6 * time.Hour},
		NormalizePolicy: normalize.PolicySkip,
	}, zerolog.Nop())

	return New(Config{Port: 0, Log: zerolog.Nop(), Engine: eng})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubFeeds{})
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "daybook", body["service"])
}

func TestProviders(t *testing.T) {
	srv := newTestServer(t, &stubFeeds{})
	rec := doJSON(t, srv, http.MethodGet, "/api/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	decode(t, rec, &body)
	codes := make([]string, 0, len(body))
	for _, p := range body {
		codes = append(codes, p["code"].(string))
	}
	assert.Contains(t, codes, "grx")
	assert.Contains(t, codes, "bank")
}

func TestDayNotReconciled(t *testing.T) {
	srv := newTestServer(t, &stubFeeds{})
	rec := doJSON(t, srv, http.MethodGet, "/api/days/2026-08-29?provider=grx", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidDate(t *testing.T) {
	srv := newTestServer(t, &stubFeeds{})
	rec := doJSON(t, srv, http.MethodGet, "/api/days/tomorrow?provider=grx", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcileAndQuery(t *testing.T) {
	date := time.Now().UTC().Format("2006-01-02")
	srv := newTestServer(t, mismatchFeeds(date))

	rec := doJSON(t, srv, http.MethodPost, "/api/days/"+date+"/reconcile?provider=grx", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var run map[string]any
	decode(t, rec, &run)
	assert.Equal(t, float64(1), run["results"])
	assert.Equal(t, float64(1), run["exceptions"])
	assert.Equal(t, false, run["verify_only"])

	rec = doJSON(t, srv, http.MethodGet, "/api/days/"+date+"?provider=grx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var day map[string]any
	decode(t, rec, &day)
	assert.Equal(t, "open", day["state"])
	assert.Equal(t, float64(-500), day["total_variance_minor"])

	rec = doJSON(t, srv, http.MethodGet, "/api/days/"+date+"/results?provider=grx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var results []map[string]any
	decode(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "amount_mismatch", results[0]["status"])

	rec = doJSON(t, srv, http.MethodGet, "/api/days/"+date+"/exceptions?provider=grx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var exceptions []map[string]any
	decode(t, rec, &exceptions)
	require.Len(t, exceptions, 1)
	assert.Equal(t, "amount_mismatch", exceptions[0]["category"])
}

func TestCloseRequiresClosedBy(t *testing.T) {
	srv := newTestServer(t, &stubFeeds{})
	rec := doJSON(t, srv, http.MethodPost, "/api/days/2026-08-29/close?provider=grx", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseFlowOverHTTP(t *testing.T) {
	date := time.Now().UTC().Format("2006-01-02")
	srv := newTestServer(t, mismatchFeeds(date))
	base := "/api/days/" + date
	query := "?provider=grx"

	rec := doJSON(t, srv, http.MethodPost, base+"/reconcile"+query, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Blocked close returns every failing guard.
	rec = doJSON(t, srv, http.MethodPost, base+"/close"+query, map[string]string{"closed_by": "ops"})
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict struct {
		Error   string   `json:"error"`
		Reasons []string `json:"reasons"`
	}
	decode(t, rec, &conflict)
	assert.Equal(t, "day close blocked", conflict.Error)
	assert.Len(t, conflict.Reasons, 4)

	rec = doJSON(t, srv, http.MethodGet, base+"/exceptions"+query, nil)
	var exceptions []map[string]any
	decode(t, rec, &exceptions)
	excID := exceptions[0]["id"].(string)

	rec = doJSON(t, srv, http.MethodPost, "/api/exceptions/"+excID+"/resolve",
		map[string]string{"resolved_by": "ops", "note": "fee confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, base+"/artifacts"+query,
		map[string]bool{"reports_generated": true, "backup_complete": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, base+"/adjustments"+query,
		map[string]any{"amount_minor": 500, "reason": "write-off", "recorded_by": "ops"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, base+"/close"+query, map[string]string{"closed_by": "ops"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var day map[string]any
	decode(t, rec, &day)
	assert.Equal(t, "closed", day["state"])
	assert.Equal(t, "ops", day["closed_by"])

	// Second close conflicts.
	rec = doJSON(t, srv, http.MethodPost, base+"/close"+query, map[string]string{"closed_by": "ops"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Rerun against the closed day is verification-only.
	rec = doJSON(t, srv, http.MethodPost, base+"/reconcile"+query, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run map[string]any
	decode(t, rec, &run)
	assert.Equal(t, true, run["verify_only"])

	rec = doJSON(t, srv, http.MethodGet, base+"/audit"+query, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trail []map[string]any
	decode(t, rec, &trail)
	assert.NotEmpty(t, trail)
}

func TestResolveUnknownException(t *testing.T) {
	srv := newTestServer(t, &stubFeeds{})
	rec := doJSON(t, srv, http.MethodPost, "/api/exceptions/2026-08-29-EX-999/resolve",
		map[string]string{"resolved_by": "ops"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjustmentRequiresReason(t *testing.T) {
	date := time.Now().UTC().Format("2006-01-02")
	srv := newTestServer(t, mismatchFeeds(date))

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/days/%s/adjustments?provider=grx", date),
		map[string]any{"amount_minor": 100, "recorded_by": "ops"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
