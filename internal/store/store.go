// Package store defines the persistence interfaces consumed by the lifecycle
// core. Implementations live under internal/platform.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/domain"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidEntity is returned when a store operation references an
	// entity that violates a database constraint.
	ErrInvalidEntity = errors.New("invalid entity")
)

// DBTX abstracts the database access layer so stores work against either a
// connection pool or a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ImaginationStore persists imagination tasks.
type ImaginationStore interface {
	// Create saves a new imagination. It validates the entity first.
	Create(ctx context.Context, img *domain.Imagination) error

	// GetByID retrieves an imagination by id.
	// Returns ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Imagination, error)

	// Update saves changes to an existing imagination.
	// Returns ErrNotFound if it does not exist.
	Update(ctx context.Context, img *domain.Imagination) error

	// FindByUser lists a user's imaginations, newest first.
	FindByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Imagination, error)

	// FindByBulk lists the children of a bulk batch.
	FindByBulk(ctx context.Context, bulkID uuid.UUID) ([]*domain.Imagination, error)

	// FindUnfinished lists imaginations that have not reached a terminal
	// status and were last updated more than olderThan ago. Used by the
	// crash-recovery sweep to resume polling.
	FindUnfinished(ctx context.Context, olderThan time.Duration) ([]*domain.Imagination, error)

	// WithTx returns a store bound to the provided transaction.
	WithTx(tx *sql.Tx) ImaginationStore
}

// BulkStore persists bulk aggregates.
type BulkStore interface {
	// Create saves a new bulk aggregate.
	Create(ctx context.Context, bulk *domain.BulkImagination) error

	// GetByID retrieves a bulk aggregate by id.
	// Returns ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BulkImagination, error)

	// Update saves changes to an existing bulk aggregate.
	Update(ctx context.Context, bulk *domain.BulkImagination) error

	// WithTx returns a store bound to the provided transaction.
	WithTx(tx *sql.Tx) BulkStore
}
