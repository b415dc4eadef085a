package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/research"
	"github.com/sells-group/outreach-cli/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	eng := engine.New(s, research.NewAdapter(s), nil, nil, engine.DefaultConfig())
	return newRouter(eng, s, false), s
}

func seedFitCompany(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertCompany(ctx, model.Company{
		ID:            "acme",
		Name:          "Acme Distribution",
		DCCount:       25,
		GateFitScore:  80,
		TruckFitScore: 40,
		CombinedScore: model.CombinedScore(80, 40),
		Category:      model.AssignCategory(80, 40),
	}))
	require.NoError(t, s.UpsertAttendee(ctx, model.Attendee{
		ID:            "acme-dana",
		FirstName:     "Dana",
		LastName:      "Reyes",
		CompanyID:     "acme",
		JobTitle:      "VP Operations",
		TicketType:    model.TicketRetailerCPG,
		Email:         "dana@acme.example",
		GateFitScore:  80,
		TruckFitScore: 40,
		CombinedScore: model.CombinedScore(80, 40),
	}))
}

func TestRouterHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouterClassifyThenListAttempts(t *testing.T) {
	r, s := newTestRouter(t)
	seedFitCompany(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/waves/w1/classify", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var created map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, 1, created["attempts_created"])

	req = httptest.NewRequest(http.MethodGet, "/api/attempts?wave=w1", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var attempts []model.OutreachAttempt
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, "acme-dana", attempts[0].AttendeeID)
	assert.Equal(t, model.StatePending, attempts[0].State)
}

func TestRouterBudgets(t *testing.T) {
	r, s := newTestRouter(t)
	seedFitCompany(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/waves/w1/classify", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/budgets?wave=w1", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var usage []model.BudgetUsage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &usage))
	require.Len(t, usage, 1)
	assert.Equal(t, "acme", usage[0].CompanyID)
	assert.Equal(t, 1, usage[0].Cap)
	assert.Equal(t, 0, usage[0].Consumed)
}

func TestRouterAttemptNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/attempts/nope", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterSignalValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{
		"attendee_id": "acme-dana",
		"wave":        "w1",
		"signal":      "ghosted",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/signals", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouterComposeUnavailable(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/attempts/abc/compose", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterSignalNoAttemptIsNoOp(t *testing.T) {
	r, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{
		"attendee_id": "unknown",
		"wave":        "w1",
		"signal":      string(model.SignalReplied),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/signals", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
