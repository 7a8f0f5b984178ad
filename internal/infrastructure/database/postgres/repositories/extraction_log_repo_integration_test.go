//go:build integration

package repositories_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// startPostgres launches a PostgreSQL 16 container, migrates it and returns
// an open connection.
func startPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "agribot_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := postgres.PostgresConfig{
		Host:     host,
		Port:     portNum,
		Database: "agribot_test",
		Username: "test",
		Password: "test",
		SSLMode:  "disable",
	}
	require.NoError(t, postgres.RunMigrations(postgres.DSN(cfg), ""))

	version, dirty, err := postgres.MigrationStatus(postgres.DSN(cfg), "")
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(2), version)

	conn, err := postgres.NewConnection(ctx, cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestExtractionLogRepository_Integration(t *testing.T) {
	conn := startPostgres(t)
	repo := repositories.NewExtractionLogRepository(conn, logging.NewNopLogger())
	ctx := context.Background()

	rec := &repositories.ExtractionLog{
		RequestID:        "req-int-1",
		TextHash:         "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0",
		TextLength:       37,
		DecodePath:       "offset",
		ModelName:        "phobert-ner",
		EntityCount:      2,
		EntityTypes:      []string{"CROP", "AREA"},
		Entities:         json.RawMessage(`[{"type":"CROP","text":"lúa"},{"type":"AREA","text":"2 ha"}]`),
		ProcessingTimeMs: 4.2,
	}
	require.NoError(t, repo.Save(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero())

	t.Run("FindByID", func(t *testing.T) {
		got, err := repo.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.RequestID, got.RequestID)
		assert.Equal(t, []string{"CROP", "AREA"}, got.EntityTypes)
		assert.JSONEq(t, string(rec.Entities), string(got.Entities))
	})

	t.Run("DuplicateID", func(t *testing.T) {
		dup := *rec
		err := repo.Save(ctx, &dup)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))
	})

	t.Run("FindByEntityType", func(t *testing.T) {
		logs, err := repo.FindByEntityType(ctx, "AREA", 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, rec.ID, logs[0].ID)
	})

	t.Run("SaveBatchAndCount", func(t *testing.T) {
		batch := []*repositories.ExtractionLog{
			{TextHash: "a", DecodePath: "rules_only", Source: "worker"},
			{TextHash: "b", DecodePath: "offsetless"},
		}
		require.NoError(t, repo.SaveBatch(ctx, batch))

		counts, err := repo.CountByDecodePath(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts["offset"])
		assert.Equal(t, int64(1), counts["rules_only"])
		assert.Equal(t, int64(1), counts["offsetless"])

		_, total, err := repo.ListRecent(ctx, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})

	t.Run("DeleteOlderThan", func(t *testing.T) {
		n, err := repo.DeleteOlderThan(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		_, err = repo.FindByID(ctx, rec.ID)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

//Personal.AI order the ending
