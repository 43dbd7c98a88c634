package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DefaultTimeout bounds each statement issued through the ResultSink interface
const DefaultTimeout = 10 * time.Second

// ResultRow is one stored result
type ResultRow struct {
	RunID     string          `db:"run_id" json:"run_id"`
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ResultRepository stores the results of one run in Postgres. Each Save is an
// upsert on (run_id, key); transcript lines go to a sibling table.
type ResultRepository struct {
	db    *sqlx.DB
	table string
	runID string
	seq   int
}

// Open connects to Postgres with lib/pq
func Open(url string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}

// NewResultRepository creates a repository for runID. table must already be a
// validated identifier.
func NewResultRepository(db *sqlx.DB, table, runID string) *ResultRepository {
	return &ResultRepository{db: db, table: table, runID: runID}
}

// EnsureSchema creates the result and transcript tables if missing
func (r *ResultRepository) EnsureSchema(ctx context.Context) error {
	results := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, key)
	)`, r.table)
	if _, err := r.db.ExecContext(ctx, results); err != nil {
		return fmt.Errorf("failed to create %s: %w", r.table, err)
	}

	transcript := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_transcript (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		line TEXT NOT NULL,
		logged_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`, r.table)
	if _, err := r.db.ExecContext(ctx, transcript); err != nil {
		return fmt.Errorf("failed to create %s_transcript: %w", r.table, err)
	}
	return nil
}

// Save upserts value under key for this run
func (r *ResultRepository) Save(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal result %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (run_id, key, value, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, r.table)
	if _, err := r.db.ExecContext(ctx, query, r.runID, key, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save result %s: %w", key, err)
	}
	return nil
}

// Log appends a transcript line for this run
func (r *ResultRepository) Log(line string) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	r.seq++
	query := fmt.Sprintf(`INSERT INTO %s_transcript (run_id, seq, line, logged_at) VALUES ($1, $2, $3, $4)`, r.table)
	if _, err := r.db.ExecContext(ctx, query, r.runID, r.seq, line, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

// ListResults returns all results of a run ordered by key
func (r *ResultRepository) ListResults(ctx context.Context, runID string) ([]ResultRow, error) {
	query := fmt.Sprintf(`SELECT run_id, key, value, updated_at FROM %s WHERE run_id = $1 ORDER BY key`, r.table)

	var rows []ResultRow
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return rows, nil
}

// LatestRunID returns the run with the most recent update, or "" when the table is empty
func (r *ResultRepository) LatestRunID(ctx context.Context) (string, error) {
	query := fmt.Sprintf(`SELECT run_id FROM %s ORDER BY updated_at DESC LIMIT 1`, r.table)

	var runIDs []string
	if err := r.db.SelectContext(ctx, &runIDs, query); err != nil {
		return "", fmt.Errorf("failed to find latest run: %w", err)
	}
	if len(runIDs) == 0 {
		return "", nil
	}
	return runIDs[0], nil
}
