package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"goharmonic/adapters/ingest"
	"goharmonic/adapters/postgres"
	"goharmonic/adapters/sink"
	"goharmonic/app"
	"goharmonic/domain/core"
	"goharmonic/internal"
	"goharmonic/internal/config"
	"goharmonic/ports"
)

// Container holds the application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Run    *config.RunConfig
	Logger *internal.Logger

	// Infrastructure; DB is nil unless DATABASE_URL is set
	DB *sqlx.DB

	Readers []ports.CatalogReader
	Service *app.AnalysisService
}

// New builds the container from process configuration. The run configuration
// comes from cfg.RunConfigPath, or the built-in defaults when it is empty.
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewLogger(internal.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	}

	run := config.DefaultRunConfig()
	if cfg.RunConfigPath != "" {
		var err error
		if run, err = config.LoadRun(cfg.RunConfigPath); err != nil {
			return nil, err
		}
	}
	return NewWithRun(cfg, run, logger), nil
}

// NewWithRun builds the container around an already loaded run configuration
func NewWithRun(cfg *config.Config, run *config.RunConfig, logger *internal.Logger) *Container {
	readers := ingest.Readers(run, logger.With("component", "ingest"))
	return &Container{
		Config:  cfg,
		Run:     run,
		Logger:  logger,
		Readers: readers,
		Service: app.NewAnalysisService(run, readers, logger.With("component", "pipeline")),
	}
}

// InitWithDatabase connects to Postgres and prepares the result tables.
// Without DATABASE_URL it does nothing.
func (c *Container) InitWithDatabase(ctx context.Context) error {
	if c.Config.Database.URL == "" {
		return nil
	}
	db, err := postgres.Open(c.Config.Database.URL)
	if err != nil {
		return err
	}
	if err := postgres.NewResultRepository(db, c.Config.Database.Table, "").EnsureSchema(ctx); err != nil {
		db.Close()
		return err
	}
	c.DB = db
	c.Logger.Info("result database ready (table %s)", c.Config.Database.Table)
	return nil
}

// Sinks opens the durable sinks for one run: the JSON result store, the text
// transcript and, when configured, Postgres
func (c *Container) Sinks(runID core.RunID) ([]ports.ResultSink, func(), error) {
	store, err := sink.NewJSONStore(c.Config.Results.ResultsFile)
	if err != nil {
		return nil, nil, err
	}
	transcript, err := sink.NewTranscript(c.Config.Results.TranscriptFile, fmt.Sprintf("%s (run %s)", c.Run.Name, runID))
	if err != nil {
		return nil, nil, err
	}

	sinks := []ports.ResultSink{store, transcript}
	if c.DB != nil {
		sinks = append(sinks, postgres.NewResultRepository(c.DB, c.Config.Database.Table, runID.String()))
	}
	release := func() {
		if err := transcript.Close(); err != nil {
			c.Logger.Warn("failed to close transcript: %v", err)
		}
	}
	return sinks, release, nil
}

// History returns the persisted result reader, or nil without a database
func (c *Container) History() *postgres.ResultRepository {
	if c.DB == nil {
		return nil
	}
	return postgres.NewResultRepository(c.DB, c.Config.Database.Table, "")
}

// Execute runs the pipeline once against the durable sinks plus extra
func (c *Container) Execute(ctx context.Context, runID core.RunID, extra ...ports.ResultSink) (*app.AnalysisResult, error) {
	if runID.IsEmpty() {
		runID = core.NewRunID()
	}
	sinks, release, err := c.Sinks(runID)
	if err != nil {
		return nil, err
	}
	defer release()
	recorder := sink.NewRecorder(c.Logger.With("run_id", runID.String()), append(sinks, extra...)...)
	return c.Service.Run(ctx, runID, recorder)
}

// Shutdown releases infrastructure
func (c *Container) Shutdown() error {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	_ = c.Logger.Sync()
	return nil
}
