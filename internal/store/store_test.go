package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/singlish-check/internal/corpus"
	"github.com/xkilldash9x/singlish-check/internal/match"
	"github.com/xkilldash9x/singlish-check/internal/runner"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleReport() *runner.Report {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &runner.Report{
		RunID:      "run-42",
		Target:     "https://www.swifttranslator.com/",
		Driver:     "rod",
		StartedAt:  start,
		FinishedAt: start.Add(10 * time.Second),
		Outcomes: []runner.Outcome{
			{
				ScenarioID: "Pos_Fun_0001", Name: "greeting", Kind: corpus.KindStrict,
				Input: "oyaata kohomadha", Expected: "ඔයාට කොහොමද", Actual: "ඔයාට කොහොමද",
				Passed: true, Match: &match.Result{IsMatch: true, Score: 1, Strategy: match.StrategyExact},
				StartedAt: start, Duration: 1500 * time.Millisecond,
			},
			{
				ScenarioID: "Neg_Fun_0001", Name: "mixed english", Kind: corpus.KindExploratory,
				Input: "Zoom meeting ekak", Actual: "Zoom meeting එකක්", Passed: true,
				Signals:   []runner.SignalResult{{Expr: "hasTargetScript(output)", Value: true}},
				StartedAt: start.Add(2 * time.Second), Duration: time.Second,
			},
		},
	}
}

func TestNewStore(t *testing.T) {
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())

	mockPool.ExpectExec(flexibleSQLMatcher(Schema)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.EnsureSchema(context.Background()))

	mockPool.ExpectExec(flexibleSQLMatcher(Schema)).WillReturnError(errors.New("permission denied"))
	err := s.EnsureSchema(context.Background())
	assert.ErrorContains(t, err, "failed to apply schema: permission denied")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPersistRun(t *testing.T) {
	ctx := context.Background()

	t.Run("writes run and outcomes in one transaction", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(core))
		report := sampleReport()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs("run-42", report.Target, "rod", pgxmock.AnyArg(), pgxmock.AnyArg(), 2, 2, 0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"outcomes"}, outcomeColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PersistRun(ctx, report))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.All(), "no errors expected after a successful commit")
	})

	t.Run("run without outcomes skips the copy", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		report := sampleReport()
		report.Outcomes = nil

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs("run-42", report.Target, "rod", pgxmock.AnyArg(), pgxmock.AnyArg(), 0, 0, 0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PersistRun(ctx, report))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		beginErr := errors.New("too many connections")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.PersistRun(ctx, sampleReport())
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("duplicate run id rolls back", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WillReturnError(errors.New("duplicate key value violates unique constraint"))
		mockPool.ExpectRollback()

		err := s.PersistRun(ctx, sampleReport())
		assert.ErrorContains(t, err, "failed to insert run run-42")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("short copy rolls back", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"outcomes"}, outcomeColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.PersistRun(ctx, sampleReport())
		assert.ErrorContains(t, err, "mismatch in copied outcomes count: expected 2, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rollback failure is logged", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(core))
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WillReturnError(errors.New("connection reset"))
		mockPool.ExpectRollback().WillReturnError(errors.New("connection already closed"))

		require.Error(t, s.PersistRun(ctx, sampleReport()))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "Failed to rollback transaction.", logs.All()[0].Message)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestHistory(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	newer := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)

	rows := pgxmock.NewRows([]string{"run_id", "started_at", "driver", "passed", "code", "actual", "score"}).
		AddRow("run-2", newer, "chromedp", false, "VALIDATION_MISMATCH", "මාම", 0.5).
		AddRow("run-1", older, "chromedp", true, "", "මම", 1.0)
	mockPool.ExpectQuery(flexibleSQLMatcher(historySQL)).WithArgs("Pos_Fun_0002", 5).WillReturnRows(rows)

	entries, err := s.History(context.Background(), "Pos_Fun_0002", 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, HistoryEntry{
		RunID: "run-2", StartedAt: newer, Driver: "chromedp",
		Code: "VALIDATION_MISMATCH", Actual: "මාම", Score: 0.5,
	}, entries[0])
	assert.True(t, entries[1].Passed)

	mockPool.ExpectQuery(flexibleSQLMatcher(historySQL)).WithArgs("missing", 5).WillReturnError(errors.New("relation \"outcomes\" does not exist"))
	_, err = s.History(context.Background(), "missing", 5)
	assert.ErrorContains(t, err, "failed to query history for missing")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecentRuns(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "target", "driver", "started_at", "finished_at", "total", "passed", "failed"}).
		AddRow("run-2", "https://www.swifttranslator.com/", "playwright", start, start.Add(time.Minute), 30, 28, 2)
	mockPool.ExpectQuery(flexibleSQLMatcher(recentRunsSQL)).WithArgs(10).WillReturnRows(rows)

	runs, err := s.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "playwright", runs[0].Driver)
	assert.Equal(t, 30, runs[0].Total)
	assert.Equal(t, 2, runs[0].Failed)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
