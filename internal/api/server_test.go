package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goharmonic/adapters/ingest"
	"goharmonic/adapters/postgres"
	"goharmonic/app"
	"goharmonic/domain/catalog"
	"goharmonic/domain/core"
	"goharmonic/internal/config"
	"goharmonic/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newService() *app.AnalysisService {
	t1 := catalog.Table{
		Columns: []string{"KIC", "numax", "Delnu"},
		Rows:    [][]string{{"1", "38", "1"}, {"2", "12", "1"}, {"3", "8", "1"}},
	}
	t2 := catalog.Table{
		Columns: []string{"KIC", "Radius"},
		Rows:    [][]string{{"1", "4.0"}, {"2", "9.5"}, {"3", "12.0"}},
	}
	readers := []ports.CatalogReader{
		ingest.NewTableReader("table1", "KIC", t1),
		ingest.NewTableReader("table2", "KIC", t2),
	}
	return app.NewAnalysisService(config.DefaultRunConfig(), readers, nil)
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewServer(ctx, newService(), nil, opts...)
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	w := do(newTestServer(t), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestStartRun_Wait(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodPost, "/api/runs?wait=true")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	run := body["run"].(map[string]interface{})
	assert.Equal(t, StatusCompleted, run["status"])
	result := body["result"].(map[string]interface{})
	assert.EqualValues(t, 3, result["n_valid"])
	score := result["score_report"].(map[string]interface{})
	assert.Equal(t, "needs more work", score["readiness"])

	w = do(s, http.MethodGet, "/api/runs/latest/results")
	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)
	keys := results["keys"].([]interface{})
	assert.Equal(t, app.KeyRunID, keys[0])
	assert.Contains(t, keys, app.KeyFinalScore)
	assert.NotEmpty(t, results["transcript"])
}

func TestStartRun_Background(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodPost, "/api/runs")
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode(t, w)["run_id"].(string)
	s.Wait()

	w = do(s, http.MethodGet, "/api/runs/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusCompleted, decode(t, w)["run"].(map[string]interface{})["status"])

	w = do(s, http.MethodGet, "/api/runs")
	assert.Len(t, decode(t, w)["runs"], 1)
}

func TestReport(t *testing.T) {
	s := newTestServer(t)
	do(s, http.MethodPost, "/api/runs?wait=true")

	w := do(s, http.MethodGet, "/api/runs/latest/report?format=md")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "# K-index analysis: yu2018_red_giants"))

	w = do(s, http.MethodGet, "/api/runs/latest/report")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<table>")
}

func TestUnknownRun(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/runs/latest").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/runs/nope/report").Code)
}

type blockingRunner struct{ release chan struct{} }

func (b blockingRunner) Run(ctx context.Context, runID core.RunID, sink ports.ResultSink) (*app.AnalysisResult, error) {
	<-b.release
	return &app.AnalysisResult{RunID: runID}, nil
}

func TestReport_NotFinished(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := blockingRunner{release: make(chan struct{})}
	s := NewServer(ctx, runner, nil)

	require.Equal(t, http.StatusAccepted, do(s, http.MethodPost, "/api/runs").Code)
	w := do(s, http.MethodGet, "/api/runs/latest/report")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, StatusRunning, decode(t, w)["status"])

	close(runner.release)
	s.Wait()
}

type failingRunner struct{}

func (failingRunner) Run(ctx context.Context, runID core.RunID, sink ports.ResultSink) (*app.AnalysisResult, error) {
	return &app.AnalysisResult{RunID: runID}, errors.New("invariant broken")
}

func TestStartRun_Failure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewServer(ctx, failingRunner{}, nil)

	w := do(s, http.MethodPost, "/api/runs?wait=true")
	run := decode(t, w)["run"].(map[string]interface{})
	assert.Equal(t, StatusFailed, run["status"])
	assert.Equal(t, "invariant broken", run["error"])
}

func TestStartRun_SinkFactoryError(t *testing.T) {
	s := newTestServer(t, WithSinks(func(core.RunID) ([]ports.ResultSink, func(), error) {
		return nil, nil, errors.New("disk full")
	}))
	assert.Equal(t, http.StatusInternalServerError, do(s, http.MethodPost, "/api/runs").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/runs/latest").Code)
}

type fakeHistory struct{ rows []postgres.ResultRow }

func (f fakeHistory) ListResults(ctx context.Context, runID string) ([]postgres.ResultRow, error) {
	return f.rows, nil
}

func TestHistory(t *testing.T) {
	id := core.NewRunID().String()

	s := newTestServer(t)
	assert.Equal(t, http.StatusNotImplemented, do(s, http.MethodGet, "/api/history/"+id).Code)

	s = newTestServer(t, WithHistory(fakeHistory{rows: []postgres.ResultRow{
		{RunID: id, Key: "final_score", Value: json.RawMessage(`1.6`), UpdatedAt: time.Now()},
	}}))
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/history/not-a-uuid").Code)
	w := do(s, http.MethodGet, "/api/history/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["results"], 1)

	s = newTestServer(t, WithHistory(fakeHistory{}))
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/history/"+id).Code)
}

func TestHubDeliversToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(ctx, nil)

	events, unsubscribe := hub.Subscribe("run-1")
	defer unsubscribe()
	require.Eventually(t, func() bool { return hub.Subscribers("run-1") == 1 }, time.Second, time.Millisecond)

	sink := NewSink(hub, "run-1")
	require.NoError(t, sink.Log("hello"))
	require.NoError(t, sink.Save("n_valid", 3))
	require.NoError(t, NewSink(hub, "run-2").Log("not for us"))
	sink.Done()

	var got []RunEvent
	timeout := time.After(time.Second)
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("received %d of 3 events", len(got))
		}
	}
	assert.Equal(t, EventLog, got[0].Kind)
	assert.Equal(t, "hello", got[0].Line)
	assert.Equal(t, "n_valid", got[1].Key)
	assert.JSONEq(t, "3", string(got[1].Value))
	assert.Equal(t, EventDone, got[2].Kind)
}
