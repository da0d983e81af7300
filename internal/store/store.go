// Package store persists run reports to PostgreSQL so outcomes can be
// compared across runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/runner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the tables PersistRun writes to. Every statement is
// idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    target      TEXT NOT NULL,
    driver      TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    total       INTEGER NOT NULL,
    passed      INTEGER NOT NULL,
    failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    scenario_id TEXT NOT NULL,
    name        TEXT NOT NULL,
    kind        TEXT NOT NULL,
    input       TEXT NOT NULL,
    expected    TEXT NOT NULL,
    actual      TEXT NOT NULL,
    passed      BOOLEAN NOT NULL,
    strategy    TEXT,
    score       DOUBLE PRECISION,
    code        TEXT NOT NULL,
    error       TEXT NOT NULL,
    artifact    TEXT NOT NULL,
    signals     JSONB NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL,
    PRIMARY KEY (run_id, scenario_id)
);
CREATE INDEX IF NOT EXISTS outcomes_scenario_idx ON outcomes (scenario_id);
`

const insertRunSQL = `
INSERT INTO runs (id, target, driver, started_at, finished_at, total, passed, failed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

var outcomeColumns = []string{
	"run_id", "scenario_id", "name", "kind", "input", "expected", "actual", "passed",
	"strategy", "score", "code", "error", "artifact", "signals", "started_at", "duration_ms",
}

const historySQL = `
SELECT o.run_id, r.started_at, r.driver, o.passed, o.code, o.actual, COALESCE(o.score, 0)
FROM outcomes o
JOIN runs r ON r.id = o.run_id
WHERE o.scenario_id = $1
ORDER BY r.started_at DESC
LIMIT $2`

const recentRunsSQL = `
SELECT id, target, driver, started_at, finished_at, total, passed, failed
FROM runs
ORDER BY started_at DESC
LIMIT $1`

// HistoryEntry is one past observation of a scenario.
type HistoryEntry struct {
	RunID     string
	StartedAt time.Time
	Driver    string
	Passed    bool
	Code      string
	Actual    string
	Score     float64
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID      string
	Target     string
	Driver     string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Passed     int
	Failed     int
}

// Store provides the PostgreSQL persistence for run reports.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PersistRun writes the run row and all of its outcomes in one transaction.
func (s *Store) PersistRun(ctx context.Context, report *runner.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	sum := report.Summary()
	if _, err := tx.Exec(ctx, insertRunSQL,
		report.RunID, report.Target, report.Driver,
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
		sum.Total, sum.Passed, sum.Failed,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}

	if len(report.Outcomes) > 0 {
		if err := s.persistOutcomes(ctx, tx, report); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Run persisted.", zap.String("run_id", report.RunID), zap.Int("outcomes", len(report.Outcomes)))
	return nil
}

func (s *Store) persistOutcomes(ctx context.Context, tx pgx.Tx, report *runner.Report) error {
	rows := make([][]any, len(report.Outcomes))
	for i, o := range report.Outcomes {
		signals := "[]"
		if len(o.Signals) > 0 {
			b, err := json.Marshal(o.Signals)
			if err != nil {
				return fmt.Errorf("failed to encode signals for %s: %w", o.ScenarioID, err)
			}
			signals = string(b)
		}

		var strategy *string
		var score *float64
		if o.Match != nil {
			st := string(o.Match.Strategy)
			strategy, score = &st, &o.Match.Score
		}

		rows[i] = []any{
			report.RunID, o.ScenarioID, o.Name, string(o.Kind),
			o.Input, o.Expected, o.Actual, o.Passed,
			strategy, score, string(o.Code), o.Err, o.Artifact,
			signals, o.StartedAt.UTC(), o.Duration.Milliseconds(),
		}
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy outcomes: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(rows), n)
	}
	return nil
}

// History returns the most recent observations of one scenario, newest first.
func (s *Store) History(ctx context.Context, scenarioID string, limit int) ([]HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, historySQL, scenarioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", scenarioID, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.RunID, &e.StartedAt, &e.Driver, &e.Passed, &e.Code, &e.Actual, &e.Score); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return entries, nil
}

// RecentRuns lists the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Target, &r.Driver, &r.StartedAt, &r.FinishedAt, &r.Total, &r.Passed, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}
