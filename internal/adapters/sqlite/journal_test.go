package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradegate/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestJournal creates a temporary database for testing
func setupTestJournal(t *testing.T) (*Journal, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tradegate-journal-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	j, err := NewJournal(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		j.Close()
		os.RemoveAll(tmpDir)
	}

	return j, cleanup
}

func TestJournal_RecordOpen(t *testing.T) {
	j, cleanup := setupTestJournal(t)
	defer cleanup()

	ctx := context.Background()
	pos := &domain.Position{
		Instrument: "NVDA",
		Direction:  domain.Long,
		EntryPrice: 100.0,
		Quantity:   200,
		OrigQty:    200,
		Stop:       98.0,
		BackupStop: 90.0,
		Target1:    104.0,
		Target2:    108.0,
		Sector:     "TECH",
		EntryTime:  time.Now(),
	}
	require.NoError(t, j.RecordOpen(ctx, pos))

	var count int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM position_opens WHERE instrument = ?`, "NVDA").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestJournal_RecordClose(t *testing.T) {
	j, cleanup := setupTestJournal(t)
	defer cleanup()

	ctx := context.Background()
	rec := &domain.TradeRecord{
		Instrument: "NVDA",
		Direction:  domain.Long,
		EntryPrice: 100.0,
		ExitPrice:  104.0,
		Quantity:   100,
		PnL:        400.0,
		EntryTime:  time.Now().Add(-48 * time.Hour),
		ExitTime:   time.Now(),
		Reason:     domain.CloseReasonTarget1,
		Partial:    true,
	}
	require.NoError(t, j.RecordClose(ctx, rec))

	var reason string
	var partial int
	err := j.db.QueryRowContext(ctx,
		`SELECT close_reason, partial FROM trade_history WHERE instrument = ?`, "NVDA").Scan(&reason, &partial)
	require.NoError(t, err)
	assert.Equal(t, "TARGET_1", reason)
	assert.Equal(t, 1, partial)
}

func TestJournal_RecordVeto(t *testing.T) {
	j, cleanup := setupTestJournal(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, j.RecordVeto(ctx, "AMD", "correlation", "pairwise correlation 0.82 exceeds 0.75", time.Now()))

	var rule string
	err := j.db.QueryRowContext(ctx, `SELECT rule FROM vetoes WHERE instrument = ?`, "AMD").Scan(&rule)
	require.NoError(t, err)
	assert.Equal(t, "correlation", rule)
}
