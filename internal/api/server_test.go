package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/engine"
	"github.com/licitatech/pncp-harvester/internal/pncp"
)

type fakeRunner struct {
	mu       sync.Mutex
	summary  pncp.RunSummary
	err      error
	block    chan struct{} // when set, Run blocks until closed
	runCalls []engine.RunParams
	days     []int
}

func (f *fakeRunner) Run(_ context.Context, params engine.RunParams) (pncp.RunSummary, error) {
	f.mu.Lock()
	f.runCalls = append(f.runCalls, params)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.summary, f.err
}

func (f *fakeRunner) Backfill(_ context.Context, days int, params engine.RunParams) (pncp.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days = append(f.days, days)
	f.runCalls = append(f.runCalls, params)
	return f.summary, f.err
}

type fakeScheduler struct {
	enabled bool
}

func (f *fakeScheduler) Enable()       { f.enabled = true }
func (f *fakeScheduler) Disable()      { f.enabled = false }
func (f *fakeScheduler) Enabled() bool { return f.enabled }
func (f *fakeScheduler) Spec() string  { return "0 6 * * *" }

type fakeStats struct {
	counts map[string]int64
	recent []pncp.StoredRecord
}

func (f *fakeStats) CountByStatus(context.Context) (map[string]int64, error) {
	return f.counts, nil
}

func (f *fakeStats) RecentRecords(context.Context, int) ([]pncp.StoredRecord, error) {
	return f.recent, nil
}

func summaryFixture() pncp.RunSummary {
	return pncp.RunSummary{
		RunID:      "run-1",
		TargetDate: "15/03/2024",
		FoundCount: 2,
		NewCount:   1,
		StartedAt:  time.Date(2024, time.March, 16, 6, 0, 0, 0, time.UTC),
	}
}

func newTestServer(runner Runner, sched SchedulerControl, stats StatsProvider, cfg Config) *Server {
	return NewServer(runner, sched, stats, cfg, zap.NewNop())
}

func TestTriggerExtraction(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{summary: summaryFixture()}
	s := newTestServer(runner, &fakeScheduler{}, &fakeStats{}, Config{})

	body := `{"target_date":"15/03/2024","save_attachments":true,"max_candidates":5}`
	req := httptest.NewRequest(http.MethodPost, "/v1/extractions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got pncp.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "run-1", got.RunID)

	require.Len(t, runner.runCalls, 1)
	require.Equal(t, engine.RunParams{TargetDate: "15/03/2024", SaveAttachments: true, MaxCandidates: 5}, runner.runCalls[0])

	// The summary is now served from the run history.
	req = httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerExtractionEmptyBodyUsesDefaults(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{summary: summaryFixture()}
	s := newTestServer(runner, nil, nil, Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/extractions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, engine.RunParams{}, runner.runCalls[0])
}

func TestConcurrentTriggerConflicts(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	runner := &fakeRunner{summary: summaryFixture(), block: block}
	s := newTestServer(runner, nil, nil, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodPost, "/v1/extractions", nil)
		s.Handler().ServeHTTP(httptest.NewRecorder(), req)
	}()

	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.runCalls) == 1
	}, time.Second, 5*time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/v1/extractions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	close(block)
	<-done
}

func TestTriggerBackfillValidatesDays(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{summary: summaryFixture()}
	s := newTestServer(runner, nil, nil, Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/extractions/backfill", strings.NewReader(`{"days":0}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/extractions/backfill", strings.NewReader(`{"days":7}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int{7}, runner.days)
}

func TestRunsHistoryBounded(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeRunner{}, nil, nil, Config{HistorySize: 2})
	s.RecordRun(pncp.RunSummary{RunID: "a"})
	s.RecordRun(pncp.RunSummary{RunID: "b"})
	s.RecordRun(pncp.RunSummary{RunID: "c"})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Runs []pncp.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Runs, 2)
	require.Equal(t, "c", payload.Runs[0].RunID)

	req = httptest.NewRequest(http.MethodGet, "/v1/runs/a", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardStats(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{
		counts: map[string]int64{"Divulgada no PNCP": 10, "Encerrada": 5},
		recent: []pncp.StoredRecord{{ID: "row-1", NaturalID: "111/2024/7"}},
	}
	s := newTestServer(&fakeRunner{}, nil, stats, Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/dashboard/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		TotalRecords int64            `json:"total_records"`
		ByStatus     map[string]int64 `json:"by_status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, int64(15), payload.TotalRecords)
}

func TestSchedulerToggle(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{enabled: true}
	s := newTestServer(&fakeRunner{}, sched, nil, Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/scheduler/disable", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, sched.enabled)

	req = httptest.NewRequest(http.MethodGet, "/v1/scheduler", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"enabled":false`)
}

func TestAPIKeyGuardsV1Routes(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeRunner{summary: summaryFixture()}, nil, nil, Config{APIKey: "secreto"})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set("X-API-Key", "secreto")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Health endpoints stay open.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidJSONRejected(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeRunner{}, nil, nil, Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/extractions", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
