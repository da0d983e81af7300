package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/config"
	"github.com/xkilldash9x/singlish-check/internal/store"
)

func mockStore(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	openStore = func(ctx context.Context, _ config.DatabaseConfig, logger *zap.Logger) (*store.Store, func(), error) {
		st, err := store.New(ctx, mockPool, logger)
		return st, func() {}, err
	}
	return mockPool
}

func TestHistory_Scenario(t *testing.T) {
	resetForTest(t)
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	mockPool := mockStore(t)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"run_id", "started_at", "driver", "passed", "code", "actual", "score"}).
		AddRow("run-3", at, "chromedp", true, "", "මම", 1.0).
		AddRow("run-2", at.Add(-time.Hour), "chromedp", false, "VALIDATION_MISMATCH", "මාම", 0.5).
		AddRow("run-1", at.Add(-2*time.Hour), "rod", true, "", "මම", 1.0).
		AddRow("run-0", at.Add(-3*time.Hour), "rod", true, "", "මම", 1.0)
	mockPool.ExpectQuery("FROM outcomes").WithArgs("Pos_Fun_0009", 4).WillReturnRows(rows)

	out, err := executeCommand(t, "history", "Pos_Fun_0009", "--limit", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "run-2  FAIL")
	assert.Contains(t, out, "VALIDATION_MISMATCH")
	assert.Contains(t, out, "Pos_Fun_0009 passed 3 of the last 4 runs (75%)")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestHistory_Runs(t *testing.T) {
	resetForTest(t)
	mockPool := mockStore(t)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "target", "driver", "started_at", "finished_at", "total", "passed", "failed"}).
		AddRow("run-9", targetURL, "playwright", at, at.Add(90*time.Second), 30, 27, 3)
	mockPool.ExpectQuery("FROM runs").WithArgs(10).WillReturnRows(rows)

	out, err := executeCommand(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "run-9")
	assert.Contains(t, out, "27/30 passed")
	assert.Contains(t, out, "1m30s")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestHistory_Empty(t *testing.T) {
	resetForTest(t)
	mockPool := mockStore(t)
	mockPool.ExpectQuery("FROM outcomes").WithArgs("Pos_Fun_0001", 10).
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "started_at", "driver", "passed", "code", "actual", "score"}))

	out, err := executeCommand(t, "history", "Pos_Fun_0001")
	require.NoError(t, err)
	assert.Contains(t, out, "no outcomes stored for Pos_Fun_0001")
}

func TestHistory_RequiresDatabase(t *testing.T) {
	resetForTest(t)
	_, err := executeCommand(t, "history")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoDatabase)
}

func TestHistory_InvalidLimit(t *testing.T) {
	resetForTest(t)
	_, err := executeCommand(t, "history", "--limit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be a positive integer")
}
