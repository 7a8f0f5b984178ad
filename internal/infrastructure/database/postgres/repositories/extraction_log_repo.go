package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// ExtractionLog is one audited extraction. Only a hash of the user text is
// stored.
type ExtractionLog struct {
	ID               uuid.UUID       `json:"id"`
	RequestID        string          `json:"request_id"`
	Source           string          `json:"source"`
	TextHash         string          `json:"text_hash"`
	TextLength       int             `json:"text_length"`
	DecodePath       string          `json:"decode_path"`
	ModelName        string          `json:"model_name"`
	ModelDegraded    bool            `json:"model_degraded"`
	EntityCount      int             `json:"entity_count"`
	EntityTypes      []string        `json:"entity_types"`
	Entities         json.RawMessage `json:"entities"`
	UnmatchedTokens  int             `json:"unmatched_tokens"`
	ProcessingTimeMs float64         `json:"processing_time_ms"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ExtractionLogRepository persists ExtractionLog rows.
type ExtractionLogRepository struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
	types    *pgtype.Map
}

func NewExtractionLogRepository(conn *postgres.Connection, log logging.Logger) *ExtractionLogRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	r := &ExtractionLogRepository{conn: conn, log: log, types: pgtype.NewMap()}
	if conn != nil {
		r.executor = conn.DB()
	}
	return r
}

const extractionLogColumns = `id, request_id, source, text_hash, text_length, decode_path, model_name,
	model_degraded, entity_count, entity_types, entities, unmatched_tokens, processing_time_ms, created_at`

// Save inserts rec, assigning an id when unset and filling CreatedAt.
func (r *ExtractionLogRepository) Save(ctx context.Context, rec *ExtractionLog) error {
	return r.save(ctx, r.executor, rec)
}

func (r *ExtractionLogRepository) save(ctx context.Context, exec queryExecutor, rec *ExtractionLog) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Source == "" {
		rec.Source = "http"
	}
	if len(rec.Entities) == 0 {
		rec.Entities = json.RawMessage("[]")
	}
	if rec.EntityTypes == nil {
		rec.EntityTypes = []string{}
	}

	query := `
		INSERT INTO extraction_logs (
			id, request_id, source, text_hash, text_length, decode_path, model_name,
			model_degraded, entity_count, entity_types, entities, unmatched_tokens, processing_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	err := exec.QueryRowContext(ctx, query,
		rec.ID, rec.RequestID, rec.Source, rec.TextHash, rec.TextLength, rec.DecodePath, rec.ModelName,
		rec.ModelDegraded, rec.EntityCount, rec.EntityTypes, []byte(rec.Entities), rec.UnmatchedTokens, rec.ProcessingTimeMs,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(err, errors.ErrCodeConflict, "extraction log already exists").WithDetail(rec.ID.String())
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save extraction log")
	}
	return nil
}

// SaveBatch inserts all records in one transaction.
func (r *ExtractionLogRepository) SaveBatch(ctx context.Context, recs []*ExtractionLog) error {
	if len(recs) == 0 {
		return nil
	}
	return r.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := r.save(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ExtractionLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*ExtractionLog, error) {
	query := `SELECT ` + extractionLogColumns + ` FROM extraction_logs WHERE id = $1`
	rec, err := r.scan(r.executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeNotFound, "extraction log not found").WithDetail(id.String())
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load extraction log")
	}
	return rec, nil
}

// FindByTextHash returns the newest logs of one text, newest first.
func (r *ExtractionLogRepository) FindByTextHash(ctx context.Context, hash string, limit int) ([]*ExtractionLog, error) {
	query := `SELECT ` + extractionLogColumns + ` FROM extraction_logs
		WHERE text_hash = $1 ORDER BY created_at DESC LIMIT $2`
	return r.query(ctx, query, hash, clampLimit(limit))
}

// FindByEntityType returns the newest logs containing an entity of
// entityType.
func (r *ExtractionLogRepository) FindByEntityType(ctx context.Context, entityType string, limit int) ([]*ExtractionLog, error) {
	query := `SELECT ` + extractionLogColumns + ` FROM extraction_logs
		WHERE $1 = ANY(entity_types) ORDER BY created_at DESC LIMIT $2`
	return r.query(ctx, query, entityType, clampLimit(limit))
}

// ListRecent pages through all logs, newest first, and returns the total
// row count.
func (r *ExtractionLogRepository) ListRecent(ctx context.Context, limit, offset int) ([]*ExtractionLog, int64, error) {
	var total int64
	if err := r.executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM extraction_logs`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count extraction logs")
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + extractionLogColumns + ` FROM extraction_logs
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	logs, err := r.query(ctx, query, clampLimit(limit), offset)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// CountByDecodePath aggregates the logs created since the given time.
func (r *ExtractionLogRepository) CountByDecodePath(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.executor.QueryContext(ctx,
		`SELECT decode_path, COUNT(*) FROM extraction_logs WHERE created_at >= $1 GROUP BY decode_path`, since)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count extraction logs by path")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var path string
		var n int64
		if err := rows.Scan(&path, &n); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan decode path count")
		}
		counts[path] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate decode path counts")
	}
	return counts, nil
}

// DeleteOlderThan removes logs created before the cutoff and returns how
// many rows went.
func (r *ExtractionLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.executor.ExecContext(ctx, `DELETE FROM extraction_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to purge extraction logs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read purged row count")
	}
	r.log.Info("Purged extraction logs", logging.Int64("rows", n), logging.String("before", before.Format(time.RFC3339)))
	return n, nil
}

func (r *ExtractionLogRepository) query(ctx context.Context, query string, args ...interface{}) ([]*ExtractionLog, error) {
	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query extraction logs")
	}
	defer rows.Close()

	var logs []*ExtractionLog
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan extraction log")
		}
		logs = append(logs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate extraction logs")
	}
	return logs, nil
}

func (r *ExtractionLogRepository) scan(row scanner) (*ExtractionLog, error) {
	var rec ExtractionLog
	var entities []byte
	err := row.Scan(
		&rec.ID, &rec.RequestID, &rec.Source, &rec.TextHash, &rec.TextLength, &rec.DecodePath, &rec.ModelName,
		&rec.ModelDegraded, &rec.EntityCount, r.types.SQLScanner(&rec.EntityTypes), &entities,
		&rec.UnmatchedTokens, &rec.ProcessingTimeMs, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Entities = json.RawMessage(entities)
	return &rec, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	}
	return limit
}

//Personal.AI order the ending
