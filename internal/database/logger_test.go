package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"certificate-guard/internal/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestConnect_RoutesQueryErrorsToStructuredLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	db, err := Connect(Config{
		Driver:   DriverSQLite,
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: gormlogger.Warn,
		Logger:   logger.NewLoggerWithOutput("info", "json", buf),
	})
	require.NoError(t, err)
	defer Close(db)

	require.Error(t, db.Exec("SELECT * FROM missing_table").Error)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0]["level"])
	assert.Equal(t, "Database query failed", entries[0]["message"])
	assert.Equal(t, "gorm", entries[0]["source"])
	assert.Contains(t, entries[0]["sql"], "missing_table")
	assert.Contains(t, entries[0]["error"], "no such table")
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT 1", 1 }

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		elapsed time.Duration
		err     error
		message string
		logged  string
	}{
		{name: "Query error", level: gormlogger.Warn, err: errors.New("boom"), message: "Database query failed", logged: "error"},
		{name: "Record not found is ignored", level: gormlogger.Warn, err: gorm.ErrRecordNotFound},
		{name: "Slow query", level: gormlogger.Warn, elapsed: time.Second, message: "Slow database query", logged: "warning"},
		{name: "Fast query below info level", level: gormlogger.Warn},
		{name: "Every query in info mode", level: gormlogger.Info, message: "Database query", logged: "debug"},
		{name: "Silent", level: gormlogger.Silent, err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			l := NewGormLogger(logger.NewLoggerWithOutput("debug", "json", buf), tt.level)

			l.Trace(ctx, time.Now().Add(-tt.elapsed), query, tt.err)

			entries := decodeLines(t, buf)
			if tt.message == "" {
				assert.Empty(t, entries)
				return
			}
			require.Len(t, entries, 1)
			assert.Equal(t, tt.message, entries[0]["message"])
			assert.Equal(t, tt.logged, entries[0]["level"])
			assert.Equal(t, "SELECT 1", entries[0]["sql"])
		})
	}
}

func TestGormLogger_LogMode(t *testing.T) {
	buf := new(bytes.Buffer)
	base := NewGormLogger(logger.NewLoggerWithOutput("debug", "json", buf), gormlogger.Silent)

	base.Warn(context.Background(), "ignored %d", 1)
	assert.Empty(t, buf.String())

	base.LogMode(gormlogger.Warn).Warn(context.Background(), "column %s changed", "ip")
	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "column ip changed", entries[0]["message"])
}
