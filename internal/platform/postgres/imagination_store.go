// Package postgres implements the store interfaces on PostgreSQL via the
// pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/store"
)

// PostgreSQL error codes
const (
	pgUniqueViolationCode     = "23505"
	pgForeignKeyViolationCode = "23503"
)

const imaginationColumns = `
	id, user_id, kind, prompt, delineation, context, enhance_prompt, image_url,
	engine, aspect_ratio, status, task_status, progress, error, poll_state,
	results, bulk_id, retry_count, reports, created_at, updated_at`

// ImaginationStore implements store.ImaginationStore on PostgreSQL.
type ImaginationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewImaginationStore creates the PostgreSQL-backed imagination store.
// If logger is nil, the default logger is used.
func NewImaginationStore(db store.DBTX, logger *slog.Logger) *ImaginationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImaginationStore{
		db:     db,
		logger: logger.With(slog.String("component", "imagination_store")),
	}
}

var _ store.ImaginationStore = (*ImaginationStore)(nil)

// Create implements store.ImaginationStore.
func (s *ImaginationStore) Create(ctx context.Context, img *domain.Imagination) error {
	if err := img.Validate(); err != nil {
		return err
	}

	contextJSON, resultsJSON, reportsJSON, err := encodeJSONColumns(img)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO imaginations (` + imaginationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = s.db.ExecContext(ctx, query,
		img.ID, img.UserID, img.Kind, img.Prompt, img.Delineation, contextJSON,
		img.EnhancePrompt, img.ImageURL, img.Engine, img.AspectRatio,
		img.Status, img.TaskStatus, img.Progress, img.Error,
		nullableJSON(img.PollState), resultsJSON, img.BulkID, img.RetryCount,
		reportsJSON, img.CreatedAt, img.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolationCode:
				return fmt.Errorf("%w: imagination %s already exists", store.ErrInvalidEntity, img.ID)
			case pgForeignKeyViolationCode:
				return fmt.Errorf("%w: bulk %v not found", store.ErrInvalidEntity, img.BulkID)
			}
		}
		s.logger.Error("failed to create imagination",
			slog.String("error", err.Error()),
			slog.String("imagination_id", img.ID.String()))
		return err
	}
	return nil
}

// GetByID implements store.ImaginationStore.
func (s *ImaginationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Imagination, error) {
	query := `SELECT ` + imaginationColumns + ` FROM imaginations WHERE id = $1`
	return scanImagination(s.db.QueryRowContext(ctx, query, id))
}

// Update implements store.ImaginationStore.
func (s *ImaginationStore) Update(ctx context.Context, img *domain.Imagination) error {
	if err := img.Validate(); err != nil {
		return err
	}

	contextJSON, resultsJSON, reportsJSON, err := encodeJSONColumns(img)
	if err != nil {
		return err
	}

	query := `
		UPDATE imaginations
		SET prompt = $2, delineation = $3, context = $4, enhance_prompt = $5,
		    image_url = $6, engine = $7, aspect_ratio = $8, status = $9,
		    task_status = $10, progress = $11, error = $12, poll_state = $13,
		    results = $14, bulk_id = $15, retry_count = $16, reports = $17,
		    updated_at = $18
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		img.ID, img.Prompt, img.Delineation, contextJSON, img.EnhancePrompt,
		img.ImageURL, img.Engine, img.AspectRatio, img.Status, img.TaskStatus,
		img.Progress, img.Error, nullableJSON(img.PollState), resultsJSON,
		img.BulkID, img.RetryCount, reportsJSON, time.Now().UTC(),
	)
	if err != nil {
		s.logger.Error("failed to update imagination",
			slog.String("error", err.Error()),
			slog.String("imagination_id", img.ID.String()))
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: imagination %s", store.ErrNotFound, img.ID)
	}
	return nil
}

// FindByUser implements store.ImaginationStore.
func (s *ImaginationStore) FindByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Imagination, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + imaginationColumns + `
		FROM imaginations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectImaginations(rows)
}

// FindByBulk implements store.ImaginationStore.
func (s *ImaginationStore) FindByBulk(ctx context.Context, bulkID uuid.UUID) ([]*domain.Imagination, error) {
	query := `
		SELECT ` + imaginationColumns + `
		FROM imaginations
		WHERE bulk_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, bulkID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectImaginations(rows)
}

// FindUnfinished implements store.ImaginationStore.
func (s *ImaginationStore) FindUnfinished(ctx context.Context, olderThan time.Duration) ([]*domain.Imagination, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `
		SELECT ` + imaginationColumns + `
		FROM imaginations
		WHERE status NOT IN ('done', 'completed', 'error', 'cancelled')
		  AND updated_at < $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectImaginations(rows)
}

// WithTx implements store.ImaginationStore.
func (s *ImaginationStore) WithTx(tx *sql.Tx) store.ImaginationStore {
	return &ImaginationStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImagination(row rowScanner) (*domain.Imagination, error) {
	var (
		img         domain.Imagination
		contextJSON []byte
		pollState   sql.Null[[]byte]
		resultsJSON []byte
		reportsJSON []byte
		errMsg      sql.NullString
		bulkID      uuid.NullUUID
	)
	err := row.Scan(
		&img.ID, &img.UserID, &img.Kind, &img.Prompt, &img.Delineation,
		&contextJSON, &img.EnhancePrompt, &img.ImageURL, &img.Engine,
		&img.AspectRatio, &img.Status, &img.TaskStatus, &img.Progress,
		&errMsg, &pollState, &resultsJSON, &bulkID, &img.RetryCount,
		&reportsJSON, &img.CreatedAt, &img.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	img.Error = errMsg.String
	if bulkID.Valid {
		id := bulkID.UUID
		img.BulkID = &id
	}
	if pollState.Valid {
		img.PollState = json.RawMessage(pollState.V)
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &img.Context); err != nil {
			return nil, fmt.Errorf("failed to decode context: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &img.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results: %w", err)
		}
	}
	if len(reportsJSON) > 0 {
		if err := json.Unmarshal(reportsJSON, &img.Reports); err != nil {
			return nil, fmt.Errorf("failed to decode reports: %w", err)
		}
	}
	return &img, nil
}

func collectImaginations(rows *sql.Rows) ([]*domain.Imagination, error) {
	var out []*domain.Imagination
	for rows.Next() {
		img, err := scanImagination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func encodeJSONColumns(img *domain.Imagination) (contextJSON, resultsJSON, reportsJSON []byte, err error) {
	if contextJSON, err = json.Marshal(img.Context); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode context: %w", err)
	}
	if resultsJSON, err = json.Marshal(img.Results); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode results: %w", err)
	}
	if reportsJSON, err = json.Marshal(img.Reports); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode reports: %w", err)
	}
	return contextJSON, resultsJSON, reportsJSON, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
