// Package db provides persistence operations for pending sync operations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

// Repository persists pending operations. It implements queue.Store.
type Repository struct {
	db *sql.DB

	// Prepared statements are cached by query string and reused across calls.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Another goroutine may have prepared the same query; keep theirs
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

const selectPendingOperations = `
	SELECT id, seq, kind, content_id, visibility, public_id, payload,
	       enqueued_at, attempt_count, last_error, updated_at
	FROM pending_operations
	ORDER BY seq`

// LoadPendingOperations returns every persisted operation ordered by seq.
func (r *Repository) LoadPendingOperations(ctx context.Context) ([]*models.PendingOperation, error) {
	stmt, err := r.PrepareStmt(ctx, selectPendingOperations)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.PendingOperation
	for rows.Next() {
		var op models.PendingOperation
		var kind, visibility string
		if err := rows.Scan(&op.ID, &op.Seq, &kind, &op.ContentID, &visibility, &op.PublicID,
			&op.Payload, &op.EnqueuedAt, &op.AttemptCount, &op.LastError, &op.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending operation: %w", err)
		}
		op.Kind = models.OperationKind(kind)
		op.Visibility = models.Visibility(visibility)
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}

// SavePendingOperation inserts op.
func (r *Repository) SavePendingOperation(ctx context.Context, op *models.PendingOperation) error {
	stmt, err := r.PrepareStmt(ctx, `
	INSERT INTO pending_operations (id, seq, kind, content_id, visibility, public_id, payload,
	                                enqueued_at, attempt_count, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx, op.ID, op.Seq, string(op.Kind), op.ContentID, string(op.Visibility),
		op.PublicID, op.Payload, op.EnqueuedAt, op.AttemptCount, op.LastError, op.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pending operation %s: %w", op.ID, err)
	}
	return nil
}

// UpdatePendingOperationAttempt stores the attempt count and last error of op.
func (r *Repository) UpdatePendingOperationAttempt(ctx context.Context, op *models.PendingOperation) error {
	stmt, err := r.PrepareStmt(ctx, `
	UPDATE pending_operations
	SET attempt_count = ?, last_error = ?, updated_at = ?
	WHERE id = ?`)
	if err != nil {
		return err
	}

	result, err := stmt.ExecContext(ctx, op.AttemptCount, op.LastError, op.UpdatedAt, op.ID)
	if err != nil {
		return fmt.Errorf("failed to update pending operation %s: %w", op.ID, err)
	}
	return expectOneRow(result, op.ID)
}

// DeletePendingOperation removes the operation with the given id.
func (r *Repository) DeletePendingOperation(ctx context.Context, id string) error {
	stmt, err := r.PrepareStmt(ctx, "DELETE FROM pending_operations WHERE id = ?")
	if err != nil {
		return err
	}

	result, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending operation %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// ClearPendingOperations removes every persisted operation.
func (r *Repository) ClearPendingOperations(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM pending_operations"); err != nil {
		return fmt.Errorf("failed to clear pending operations: %w", err)
	}
	return nil
}

// CountPendingOperations returns the number of persisted operations.
func (r *Repository) CountPendingOperations(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_operations").Scan(&n)
	return n, err
}

func expectOneRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pending operation %s: %w", id, sql.ErrNoRows)
	}
	return nil
}
