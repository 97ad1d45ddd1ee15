package server

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

	"github.com/regenloop/coherence-engine/internal/analyzer"
	"github.com/regenloop/coherence-engine/internal/driver"
	"github.com/regenloop/coherence-engine/internal/gates"
	"github.com/regenloop/coherence-engine/internal/ledger"
)

func newTestServer(t *testing.T, opts Options) (*Server, *ledger.Ledger) {
	t.Helper()

	backend, err := ledger.NewSQLiteBackend(filepath.Join(t.TempDir(), "trail.db"))
	require.NoError(t, err)

	trail, err := ledger.New(context.Background(), backend)
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })

	machine := gates.NewMachine(trail, nil, nil)
	if opts.Thresholds == (analyzer.Thresholds{}) {
		opts.Thresholds = analyzer.DefaultThresholds()
	}
	if opts.Recursion == (driver.Config{}) {
		opts.Recursion = driver.DefaultConfig()
	}
	return New(trail, machine, opts, nil), trail
}

func doJSON(t *testing.T, s *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthGuardsAPIButNotHealth(t *testing.T) {
	s, _ := newTestServer(t, Options{AuthToken: "secret"})

	rec := doJSON(t, s, http.MethodGet, "/ledger/query", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/ledger/query", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/ledger/query", nil, "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyzeEndpoint(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodPost, "/analyze", map[string]string{
		"text": "The cache invalidation is broken. The cache invalidation is broken. The cache invalidation is broken.",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result analyzer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Coherent)
	assert.Greater(t, result.Curl, 0.0)
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodPost, "/ledger/append", ledger.DecisionEntry{
		Actor:     "reviewer",
		Decision:  "accept draft",
		Rationale: "all checks passed",
		Outcome:   ledger.OutcomeSuccess,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var appended ledger.DecisionEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appended))
	assert.NotEmpty(t, appended.ID)
	assert.NotEmpty(t, appended.Hash)

	rec = doJSON(t, s, http.MethodGet, "/ledger/query?actor=reviewer", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Entries []ledger.DecisionEntry `json:"entries"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, appended.ID, out.Entries[0].ID)
}

func TestAppendRejectsInvalidEntry(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodPost, "/ledger/append", ledger.DecisionEntry{
		Actor: "reviewer",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "validation", envelope["kind"])
}

func TestVerifyEndpoint(t *testing.T) {
	s, trail := newTestServer(t, Options{})

	_, err := trail.Append(context.Background(), ledger.DecisionEntry{
		Actor:     "reviewer",
		Decision:  "accept",
		Rationale: "fine",
		Outcome:   ledger.OutcomeSuccess,
	})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/ledger/verify", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report ledger.VerificationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.EntriesChecked)
}

func TestWalkUnknownEntryIs404(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodGet, "/ledger/walk/no-such-id", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportTimeline(t *testing.T) {
	s, trail := newTestServer(t, Options{})

	_, err := trail.Append(context.Background(), ledger.DecisionEntry{
		Actor:     "reviewer",
		Decision:  "publish",
		Rationale: "approved",
		Outcome:   ledger.OutcomeSuccess,
	})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/ledger/export?format=timeline", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reviewer: publish")
}

func TestCoherenceAndRecurse(t *testing.T) {
	s, trail := newTestServer(t, Options{
		Recursion: driver.Config{Target: 0.85, MaxIterations: 1, Window: 50},
	})

	score := 0.4
	for i := 0; i < 3; i++ {
		_, err := trail.Append(context.Background(), ledger.DecisionEntry{
			Actor:          "gate-machine",
			Decision:       "gate understanding->knowledge",
			Rationale:      "preconditions failed",
			Outcome:        ledger.OutcomeFailure,
			GateState:      "knowledge",
			CoherenceScore: &score,
			Context:        map[string]string{"gate": "understanding->knowledge"},
		})
		require.NoError(t, err)
	}

	rec := doJSON(t, s, http.MethodGet, "/coherence", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		Coherence float64 `json:"coherence"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 0.0, snap.Coherence)

	rec = doJSON(t, s, http.MethodPost, "/coherence/recurse", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report driver.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Achieved)
	assert.Equal(t, 1, report.Iterations)
	assert.NotEmpty(t, report.Recommendations)
}

func TestGatePhaseAndAdvance(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodGet, "/gates/phase", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(gates.PhaseUnderstanding))

	rec = doJSON(t, s, http.MethodPost, "/gates/advance", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tr gates.Transition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.True(t, tr.Passed)
	assert.Equal(t, gates.PhaseKnowledge, tr.To)
}

func TestInvalidQueryParamsRejected(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodGet, "/ledger/query?since=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/ledger/query?min_coherence=high", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
