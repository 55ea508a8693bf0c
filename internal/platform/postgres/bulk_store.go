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
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/store"
)

const bulkColumns = `
	id, user_id, prompt, delineation, context, enhance_prompt, combinations,
	task_status, total_tasks, total_completed, total_failed, results, errors,
	completed_at, created_at, updated_at`

// BulkStore implements store.BulkStore on PostgreSQL.
type BulkStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewBulkStore creates the PostgreSQL-backed bulk store.
func NewBulkStore(db store.DBTX, logger *slog.Logger) *BulkStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BulkStore{
		db:     db,
		logger: logger.With(slog.String("component", "bulk_store")),
	}
}

var _ store.BulkStore = (*BulkStore)(nil)

// Create implements store.BulkStore.
func (s *BulkStore) Create(ctx context.Context, bulk *domain.BulkImagination) error {
	if err := bulk.Validate(); err != nil {
		return err
	}

	contextJSON, combosJSON, resultsJSON, errorsJSON, err := encodeBulkColumns(bulk)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bulk_imaginations (` + bulkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = s.db.ExecContext(ctx, query,
		bulk.ID, bulk.UserID, bulk.Prompt, bulk.Delineation, contextJSON,
		bulk.EnhancePrompt, combosJSON, bulk.TaskStatus, bulk.TotalTasks,
		bulk.TotalCompleted, bulk.TotalFailed, resultsJSON, errorsJSON,
		bulk.CompletedAt, bulk.CreatedAt, bulk.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to create bulk imagination",
			slog.String("error", err.Error()),
			slog.String("bulk_id", bulk.ID.String()))
		return err
	}
	return nil
}

// GetByID implements store.BulkStore.
func (s *BulkStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.BulkImagination, error) {
	query := `SELECT ` + bulkColumns + ` FROM bulk_imaginations WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)

	var (
		bulk        domain.BulkImagination
		contextJSON []byte
		combosJSON  []byte
		resultsJSON []byte
		errorsJSON  []byte
		completedAt sql.NullTime
	)
	err := row.Scan(
		&bulk.ID, &bulk.UserID, &bulk.Prompt, &bulk.Delineation, &contextJSON,
		&bulk.EnhancePrompt, &combosJSON, &bulk.TaskStatus, &bulk.TotalTasks,
		&bulk.TotalCompleted, &bulk.TotalFailed, &resultsJSON, &errorsJSON,
		&completedAt, &bulk.CreatedAt, &bulk.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		bulk.CompletedAt = &t
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &bulk.Context); err != nil {
			return nil, fmt.Errorf("failed to decode context: %w", err)
		}
	}
	if err := json.Unmarshal(combosJSON, &bulk.Combinations); err != nil {
		return nil, fmt.Errorf("failed to decode combinations: %w", err)
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &bulk.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results: %w", err)
		}
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &bulk.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors: %w", err)
		}
	}
	return &bulk, nil
}

// Update implements store.BulkStore.
func (s *BulkStore) Update(ctx context.Context, bulk *domain.BulkImagination) error {
	if err := bulk.Validate(); err != nil {
		return err
	}

	contextJSON, combosJSON, resultsJSON, errorsJSON, err := encodeBulkColumns(bulk)
	if err != nil {
		return err
	}

	query := `
		UPDATE bulk_imaginations
		SET prompt = $2, delineation = $3, context = $4, enhance_prompt = $5,
		    combinations = $6, task_status = $7, total_tasks = $8,
		    total_completed = $9, total_failed = $10, results = $11,
		    errors = $12, completed_at = $13, updated_at = $14
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		bulk.ID, bulk.Prompt, bulk.Delineation, contextJSON, bulk.EnhancePrompt,
		combosJSON, bulk.TaskStatus, bulk.TotalTasks, bulk.TotalCompleted,
		bulk.TotalFailed, resultsJSON, errorsJSON, bulk.CompletedAt,
		time.Now().UTC(),
	)
	if err != nil {
		s.logger.Error("failed to update bulk imagination",
			slog.String("error", err.Error()),
			slog.String("bulk_id", bulk.ID.String()))
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: bulk %s", store.ErrNotFound, bulk.ID)
	}
	return nil
}

// WithTx implements store.BulkStore.
func (s *BulkStore) WithTx(tx *sql.Tx) store.BulkStore {
	return &BulkStore{db: tx, logger: s.logger}
}

func encodeBulkColumns(bulk *domain.BulkImagination) (contextJSON, combosJSON, resultsJSON, errorsJSON []byte, err error) {
	if contextJSON, err = json.Marshal(bulk.Context); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode context: %w", err)
	}
	if combosJSON, err = json.Marshal(bulk.Combinations); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode combinations: %w", err)
	}
	if resultsJSON, err = json.Marshal(bulk.Results); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode results: %w", err)
	}
	if errorsJSON, err = json.Marshal(bulk.Errors); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode errors: %w", err)
	}
	return contextJSON, combosJSON, resultsJSON, errorsJSON, nil
}
