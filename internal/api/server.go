// Package api exposes analysis runs over HTTP: start a run, follow its
// transcript as Server-Sent Events, fetch results and the rendered report.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/gin-gonic/gin"

	"goharmonic/adapters/postgres"
	"goharmonic/adapters/sink"
	"goharmonic/app"
	"goharmonic/domain/core"
	"goharmonic/internal"
	"goharmonic/internal/errors"
	"goharmonic/internal/report"
	"goharmonic/ports"
)

// Run states
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Runner executes one analysis run against a sink
type Runner interface {
	Run(ctx context.Context, runID core.RunID, sink ports.ResultSink) (*app.AnalysisResult, error)
}

// SinkFactory opens the durable sinks for a run. The returned func releases them.
type SinkFactory func(runID core.RunID) ([]ports.ResultSink, func(), error)

// History reads results persisted by earlier processes
type History interface {
	ListResults(ctx context.Context, runID string) ([]postgres.ResultRow, error)
}

type runState struct {
	ID        core.RunID          `json:"run_id"`
	Status    string              `json:"status"`
	Error     string              `json:"error,omitempty"`
	Started   time.Time           `json:"started"`
	Completed time.Time           `json:"completed,omitempty"`
	Result    *app.AnalysisResult `json:"-"`
	results   *sink.Memory
}

// Server holds the HTTP routes and the runs started through them
type Server struct {
	router  *gin.Engine
	runner  Runner
	persist SinkFactory
	history History
	hub     *Hub
	ctx     context.Context
	logger  *internal.Logger

	mu     sync.RWMutex
	runs   *orderedmap.OrderedMap[string, *runState]
	latest string
	wg     sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithSinks adds durable sinks to every run
func WithSinks(f SinkFactory) Option {
	return func(s *Server) { s.persist = f }
}

// WithHistory serves persisted results for runs this process did not start
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// NewServer creates the router. Runs started through it live until ctx is done.
func NewServer(ctx context.Context, runner Runner, logger *internal.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	s := &Server{
		router: gin.New(),
		runner: runner,
		hub:    NewHub(ctx, logger.With("component", "hub")),
		ctx:    ctx,
		logger: logger,
		runs:   orderedmap.NewOrderedMap[string, *runState](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	api.POST("/runs", s.handleStartRun)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.GET("/runs/:id/results", s.handleGetResults)
	api.GET("/runs/:id/report", s.handleGetReport)
	api.GET("/runs/:id/events", s.hub.HandleStream)
	api.GET("/history/:id", s.handleHistory)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until every background run has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStartRun starts a run in the background and returns 202. With
// ?wait=true it runs inline and returns the result.
func (s *Server) handleStartRun(c *gin.Context) {
	state := &runState{ID: core.NewRunID(), Status: StatusRunning, Started: time.Now().UTC(), results: sink.NewMemory()}
	id := state.ID.String()

	sinks := []ports.ResultSink{state.results, NewSink(s.hub, id)}
	release := func() {}
	if s.persist != nil {
		extra, closeFn, err := s.persist(state.ID)
		if err != nil {
			s.logger.Error("failed to open result sinks for run %s: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open result sinks"})
			return
		}
		sinks = append(sinks, extra...)
		release = closeFn
	}

	s.mu.Lock()
	s.runs.Set(id, state)
	s.latest = id
	s.mu.Unlock()

	recorder := sink.NewRecorder(s.logger.With("run_id", id), sinks...)
	execute := func(ctx context.Context) {
		defer release()
		defer NewSink(s.hub, id).Done()
		res, err := s.runner.Run(ctx, state.ID, recorder)
		s.finish(state, res, err)
	}

	if c.Query("wait") == "true" {
		execute(c.Request.Context())
		s.respondRun(c, state)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		execute(s.ctx)
	}()
	c.JSON(http.StatusAccepted, gin.H{"run_id": id, "status": StatusRunning})
}

func (s *Server) finish(state *runState, res *app.AnalysisResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.Result = res
	state.Completed = time.Now().UTC()
	if err != nil {
		state.Status = StatusFailed
		state.Error = err.Error()
		s.logger.Error("run %s failed: %v", state.ID, err)
		return
	}
	state.Status = StatusCompleted
}

func (s *Server) handleListRuns(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]runState, 0, s.runs.Len())
	for _, id := range s.runs.Keys() {
		st, _ := s.runs.Get(id)
		runs = append(runs, *st)
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "latest": s.latest})
}

func (s *Server) handleGetRun(c *gin.Context) {
	state, ok := s.lookup(c)
	if !ok {
		return
	}
	s.respondRun(c, state)
}

func (s *Server) respondRun(c *gin.Context, state *runState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body := gin.H{"run": state}
	if state.Result != nil {
		body["result"] = state.Result
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleGetResults(c *gin.Context) {
	state, ok := s.lookup(c)
	if !ok {
		return
	}
	keys := state.results.Keys()
	values := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		values[k], _ = state.results.Get(k)
	}
	c.JSON(http.StatusOK, gin.H{"run_id": state.ID, "keys": keys, "results": values, "transcript": state.results.Lines()})
}

// handleGetReport renders HTML, or Markdown with ?format=md
func (s *Server) handleGetReport(c *gin.Context) {
	state, ok := s.lookup(c)
	if !ok {
		return
	}
	s.mu.RLock()
	res, status := state.Result, state.Status
	s.mu.RUnlock()
	if res == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "run has not finished", "status": status})
		return
	}

	if c.Query("format") == "md" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(res)))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(res))
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no result database configured"})
		return
	}
	id := c.Param("id")
	if _, err := core.ParseRunID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	rows, err := s.history.ListResults(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("failed to load history for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load results", "code": errors.GetCode(err)})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "results": rows})
}

// lookup resolves :id, accepting "latest"; it writes the 404 itself
func (s *Server) lookup(c *gin.Context) (*runState, bool) {
	id := c.Param("id")
	s.mu.RLock()
	if id == "latest" {
		id = s.latest
	}
	state, ok := s.runs.Get(id)
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return nil, false
	}
	return state, true
}
