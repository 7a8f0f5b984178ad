package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/testutil"
)

func TestRecordingLogger(t *testing.T) {
	logger := testutil.NewRecordingLogger()

	logger.Info("extraction done", logging.Int("entities", 2))
	child := logger.Named("grpc").With(logging.String("request_id", "r-1"))
	child.Warn("invalid API key")

	entries := logger.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "", entries[0].Name)

	e, ok := logger.Find("warn", "API key")
	require.True(t, ok)
	assert.Equal(t, "grpc", e.Name)
	v, ok := e.Field("request_id")
	require.True(t, ok)
	assert.Equal(t, "r-1", v)

	_, ok = logger.Find("error", "API key")
	assert.False(t, ok)
	assert.Equal(t, 1, logger.Count("warn"))

	logger.Reset()
	assert.Empty(t, child.(*testutil.RecordingLogger).Entries())
}

func TestRecordingLogger_WithDoesNotAlias(t *testing.T) {
	logger := testutil.NewRecordingLogger()
	base := logger.With(logging.String("service", "worker"))
	a := base.With(logging.Int("consumer", 0))
	b := base.With(logging.Int("consumer", 1))

	a.Info("started")
	b.Info("started")

	entries := logger.Entries()
	require.Len(t, entries, 2)
	va, _ := entries[0].Field("consumer")
	vb, _ := entries[1].Field("consumer")
	assert.Equal(t, 0, va)
	assert.Equal(t, 1, vb)
}

//Personal.AI order the ending
