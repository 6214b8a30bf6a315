package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/nl2schema/pkg/config"
	"github.com/codeready-toolchain/nl2schema/pkg/persist"
)

func testConfig() *config.Config {
	return &config.Config{
		Defaults:  &config.Defaults{LLMProvider: "default", Pipeline: "default", MaxNLDescriptionLength: 20},
		Queue:     config.DefaultQueueConfig(),
		Retention: config.DefaultRetentionConfig(),
		PipelineRegistry: config.NewPipelineRegistry(map[string]*config.PipelineConfig{
			"default": {LLMProvider: "default", Phases: []config.PhaseConfig{
				{Number: 1, Name: "Domain & Entity Discovery", Substeps: []config.SubstepRef{{StepID: "1.1"}}},
			}},
		}, "default"),
		SubstepRegistry: config.NewSubstepRegistry(map[string]*config.SubstepConfig{}),
		LLMProviderRegistry: config.NewLLMProviderRegistry(map[string]*config.LLMProviderConfig{
			"default": {Type: config.LLMProviderTypeGoogle, Model: "gemini", Address: "localhost:50051"},
		}),
	}
}

// fakeStore is an in-memory persist.Store used only for handler tests.
type fakeStore struct {
	persist.Store
	runs   map[string]persist.PipelineRun
	events map[string][]persist.PipelineEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:   map[string]persist.PipelineRun{},
		events: map[string][]persist.PipelineEvent{},
	}
}

func (f *fakeStore) CreateRun(_ context.Context, run persist.PipelineRun) (persist.PipelineRun, error) {
	run.CreatedAt = time.Now()
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeStore) GetRun(_ context.Context, id string) (persist.PipelineRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return persist.PipelineRun{}, persist.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) ListRuns(_ context.Context, filters persist.RunFilters) (persist.RunListResult, error) {
	var runs []persist.PipelineRun
	for _, r := range f.runs {
		runs = append(runs, r)
	}
	return persist.RunListResult{Runs: runs, TotalCount: len(runs), Limit: filters.Limit, Offset: filters.Offset}, nil
}

func (f *fakeStore) ListEvents(_ context.Context, runID string, afterSeq int) ([]persist.PipelineEvent, error) {
	var out []persist.PipelineEvent
	for _, e := range f.events[runID] {
		if e.SequenceNumber > afterSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) Health(_ context.Context) (persist.HealthStatus, error) {
	return persist.HealthStatus{Status: "healthy"}, nil
}

func TestHandleSubmitRun(t *testing.T) {
	store := newFakeStore()
	s := NewServer(testConfig(), store, nil)

	body := `{"nl_description": "a library system"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "a library system")
	assert.Len(t, store.runs, 1)
}

func TestHandleSubmitRunRejectsOversizedDescription(t *testing.T) {
	store := newFakeStore()
	s := NewServer(testConfig(), store, nil)

	body := `{"nl_description": "this description is far longer than twenty characters"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.runs)
}

func TestHandleSubmitRunRejectsMissingDescription(t *testing.T) {
	s := NewServer(testConfig(), newFakeStore(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRunNotFound(t *testing.T) {
	s := NewServer(testConfig(), newFakeStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetRunFound(t *testing.T) {
	store := newFakeStore()
	store.runs["run-1"] = persist.PipelineRun{ID: "run-1", Status: "pending", CurrentPhase: 1}
	s := NewServer(testConfig(), store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"run-1"`)
}

func TestHandleListRuns(t *testing.T) {
	store := newFakeStore()
	store.runs["run-1"] = persist.PipelineRun{ID: "run-1", Status: "pending"}
	s := NewServer(testConfig(), store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_count":1`)
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(testConfig(), newFakeStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}
