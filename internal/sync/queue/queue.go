// Package queue provides the ordered queue of pending publish/unpublish operations.
// Operations are kept in enqueue (Seq) order; an optional Store makes the queue
// survive process restarts.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/logging"
	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

// DefaultMaxSize is used when a non-positive max size is given.
const DefaultMaxSize = 1000

// Store persists queue entries. Implementations must be safe for use by one queue at a time.
type Store interface {
	LoadPendingOperations(ctx context.Context) ([]*models.PendingOperation, error)
	SavePendingOperation(ctx context.Context, op *models.PendingOperation) error
	UpdatePendingOperationAttempt(ctx context.Context, op *models.PendingOperation) error
	DeletePendingOperation(ctx context.Context, id string) error
	ClearPendingOperations(ctx context.Context) error
}

// Stats summarizes queue contents.
type Stats struct {
	Total     int `json:"total"`
	Publish   int `json:"publish"`
	Unpublish int `json:"unpublish"`
	Retrying  int `json:"retrying"` // attempted at least once
}

// OperationQueue is a FIFO queue of pending operations.
// All methods are safe for concurrent use.
type OperationQueue struct {
	mu      sync.Mutex
	items   []*models.PendingOperation
	index   map[string]*models.PendingOperation
	nextSeq int64
	maxSize int
	store   Store
}

// NewOperationQueue creates a memory-only queue.
func NewOperationQueue(maxSize int) *OperationQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &OperationQueue{
		index:   make(map[string]*models.PendingOperation),
		nextSeq: 1,
		maxSize: maxSize,
	}
}

// NewDurableQueue creates a queue backed by store and restores its persisted entries.
func NewDurableQueue(ctx context.Context, maxSize int, store Store) (*OperationQueue, error) {
	q := NewOperationQueue(maxSize)
	q.store = store

	ops, err := store.LoadPendingOperations(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to load pending operations", err)
	}

	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Seq < ops[j].Seq })
	for _, op := range ops {
		q.items = append(q.items, op)
		q.index[op.ID] = op
		if op.Seq >= q.nextSeq {
			q.nextSeq = op.Seq + 1
		}
	}

	if len(ops) > 0 {
		logging.Info("Restored pending operations", map[string]interface{}{"count": len(ops)})
	}

	return q, nil
}

// Append adds op to the tail of the queue and returns the stored copy with its Seq assigned.
// The caller keeps ownership of op; the queue stores a deep copy.
func (q *OperationQueue) Append(ctx context.Context, op *models.PendingOperation) (*models.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.maxSize {
		return nil, apperrors.Newf(apperrors.ErrQueueFull, "queue is full (max size: %d)", q.maxSize)
	}

	item := op.Clone()
	item.Seq = q.nextSeq
	item.UpdatedAt = time.Now().Unix()

	if q.store != nil {
		if err := q.store.SavePendingOperation(ctx, item); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStore, "failed to persist operation", err)
		}
	}

	q.nextSeq++
	q.items = append(q.items, item)
	q.index[item.ID] = item

	logging.Debug("Enqueued operation", map[string]interface{}{
		"operation_id": item.ID,
		"kind":         item.Kind,
		"content_id":   item.ContentID.String(),
		"seq":          item.Seq,
	})

	return item.Clone(), nil
}

// Snapshot returns deep copies of all queued operations in FIFO order.
// It does not remove anything; callers remove entries explicitly once resolved.
func (q *OperationQueue) Snapshot() []*models.PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := make([]*models.PendingOperation, 0, len(q.items))
	for _, item := range q.items {
		ops = append(ops, item.Clone())
	}
	return ops
}

// PendingFor returns copies of the queued operations for one content item, in FIFO order.
func (q *OperationQueue) PendingFor(contentID models.ContentID) []*models.PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ops []*models.PendingOperation
	for _, item := range q.items {
		if item.ContentID == contentID {
			ops = append(ops, item.Clone())
		}
	}
	return ops
}

// RecordAttempt stores the attempt bookkeeping (AttemptCount, LastError) carried by op.
func (q *OperationQueue) RecordAttempt(ctx context.Context, op *models.PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.index[op.ID]
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, "operation %s not found", op.ID)
	}

	item.AttemptCount = op.AttemptCount
	item.LastError = op.LastError
	item.UpdatedAt = time.Now().Unix()

	if q.store != nil {
		if err := q.store.UpdatePendingOperationAttempt(ctx, item); err != nil {
			return apperrors.Wrap(apperrors.ErrStore, "failed to persist attempt", err)
		}
	}
	return nil
}

// Remove deletes the operation with the given ID.
// When the store delete fails the operation stays queued, so memory and
// store never disagree about what is pending.
func (q *OperationQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[id]; !ok {
		return apperrors.Newf(apperrors.ErrNotFound, "operation %s not found", id)
	}

	if q.store != nil {
		if err := q.store.DeletePendingOperation(ctx, id); err != nil {
			return apperrors.Wrap(apperrors.ErrStore, "failed to delete persisted operation", err)
		}
	}

	delete(q.index, id)
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	return nil
}

// IsEmpty reports whether the queue has no operations.
func (q *OperationQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of queued operations.
func (q *OperationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes all operations.
func (q *OperationQueue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store != nil {
		if err := q.store.ClearPendingOperations(ctx); err != nil {
			return apperrors.Wrap(apperrors.ErrStore, "failed to clear persisted operations", err)
		}
	}

	q.items = nil
	q.index = make(map[string]*models.PendingOperation)

	logging.Info("Queue cleared")
	return nil
}

// Stats returns queue statistics.
func (q *OperationQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{Total: len(q.items)}
	for _, item := range q.items {
		switch item.Kind {
		case models.OperationPublish:
			stats.Publish++
		case models.OperationUnpublish:
			stats.Unpublish++
		}
		if item.AttemptCount > 0 {
			stats.Retrying++
		}
	}
	return stats
}
