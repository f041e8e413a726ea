package sync

import (
	"context"
	stdsync "sync"
	"time"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/logging"
	"github.com/kimhsiao/memonexus/contentsync/internal/metrics"
	"github.com/kimhsiao/memonexus/contentsync/internal/models"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/queue"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/transport"
)

// DefaultMaxPayloadBytes limits publish payloads when Config leaves it unset.
const DefaultMaxPayloadBytes = 32 << 20

// Config configures a Service.
type Config struct {
	Executor ExecutorConfig
	// MaxPayloadBytes rejects larger publish payloads. Zero uses DefaultMaxPayloadBytes,
	// a negative value disables the check.
	MaxPayloadBytes int
}

// Service implements ContentSyncService.
type Service struct {
	queue      *queue.OperationQueue
	executor   *Executor
	validator  transport.Validator // nil when the transport does not validate public IDs
	maxPayload int

	// passMu allows one pass over the queue at a time
	passMu stdsync.Mutex

	mu       stdsync.RWMutex
	status   SyncStatus
	lastSync *time.Time
	lastErr  error
	handler  EventHandler
	metrics  *metrics.Metrics
}

var _ ContentSyncService = (*Service)(nil)

// NewService creates a Service draining q through t.
func NewService(q *queue.OperationQueue, t transport.Transport, cfg Config) *Service {
	maxPayload := cfg.MaxPayloadBytes
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayloadBytes
	}
	s := &Service{
		queue:      q,
		executor:   NewExecutor(t, cfg.Executor),
		maxPayload: maxPayload,
		status:     SyncStatusIdle,
	}
	if v, ok := t.(transport.Validator); ok {
		s.validator = v
	}
	return s
}

// SetMetrics sets the metrics recorder. A nil m disables metrics.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	m.SetQueueDepth(s.queue.Len())
}

// SetEventHandler sets the event handler for sync notifications.
func (s *Service) SetEventHandler(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Status returns the current sync status.
func (s *Service) Status() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastSync returns the end time of the last pass without failures.
func (s *Service) LastSync() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// LastError returns the last failure seen during a pass.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// PendingCount returns the number of queued operations.
func (s *Service) PendingCount() int {
	return s.queue.Len()
}

// Pending returns copies of the queued operations in FIFO order.
func (s *Service) Pending() []*models.PendingOperation {
	return s.queue.Snapshot()
}

// PendingFor returns copies of the queued operations for contentID in FIFO order.
func (s *Service) PendingFor(contentID models.ContentID) []*models.PendingOperation {
	return s.queue.PendingFor(contentID)
}

// QueueStats returns statistics of the pending queue.
func (s *Service) QueueStats() queue.Stats {
	return s.queue.Stats()
}

// EnqueuePublish queues a publish operation and runs a pass.
func (s *Service) EnqueuePublish(ctx context.Context, contentID models.ContentID, visibility models.Visibility, payload []byte) (SyncSummary, error) {
	if s.maxPayload > 0 && len(payload) > s.maxPayload {
		return SyncSummary{}, apperrors.Newf(apperrors.ErrValidation,
			"payload is %d bytes, limit is %d", len(payload), s.maxPayload)
	}
	return s.enqueue(ctx, models.NewPublishOperation(contentID, visibility, payload))
}

// EnqueueUnpublish queues an unpublish operation and runs a pass.
// A public ID the transport could never have issued is a validation error.
func (s *Service) EnqueueUnpublish(ctx context.Context, contentID models.ContentID, publicID string) (SyncSummary, error) {
	op := models.NewUnpublishOperation(contentID, publicID)
	if err := op.Validate(); err != nil {
		return SyncSummary{}, err
	}
	if s.validator != nil {
		if err := s.validator.ValidatePublicID(contentID, publicID); err != nil {
			return SyncSummary{}, apperrors.Wrap(apperrors.ErrValidation, "invalid public ID", err)
		}
	}
	return s.enqueue(ctx, op)
}

// SyncPending runs one pass over the queue.
func (s *Service) SyncPending(ctx context.Context) SyncSummary {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	summary, _ := s.runPass(ctx)
	return summary
}

// enqueue appends op and runs a pass while holding the pass lock, so the new
// operation's first attempt always happens in the caller's own pass.
func (s *Service) enqueue(ctx context.Context, op *models.PendingOperation) (SyncSummary, error) {
	if err := op.Validate(); err != nil {
		return SyncSummary{}, err
	}

	s.passMu.Lock()
	defer s.passMu.Unlock()

	stored, err := s.queue.Append(ctx, op)
	if err != nil {
		logging.Warn("Failed to enqueue operation", map[string]interface{}{
			"kind":       op.Kind,
			"content_id": op.ContentID.String(),
			"error":      err.Error(),
		})
		return SyncSummary{}, err
	}

	summary, results := s.runPass(ctx)

	res, attempted := results[stored.ID]
	if !attempted {
		if ctx.Err() != nil {
			return summary, apperrors.Wrap(apperrors.ErrTransport, "sync interrupted before the operation was attempted", ctx.Err())
		}
		return summary, apperrors.Newf(apperrors.ErrTransport,
			"%s of %s is waiting behind a failed operation for the same content", op.Kind, op.ContentID)
	}
	if res.Outcome != OutcomeSucceeded {
		return summary, res.Err
	}
	return summary, nil
}

// runPass attempts each queued operation once in FIFO order.
// The caller must hold passMu.
func (s *Service) runPass(ctx context.Context) (SyncSummary, map[string]Result) {
	start := time.Now()
	s.setStatus(SyncStatusSyncing)
	s.emit(SyncEvent{Type: EventSyncStarted, Timestamp: start})

	ops := s.queue.Snapshot()
	agg := NewAggregator()
	results := make(map[string]Result, len(ops))

	// A failed operation blocks later operations for the same content in this
	// pass so an unpublish never overtakes its publish.
	blocked := make(map[models.ContentID]bool)

	// Queue bookkeeping must land even when ctx is cancelled mid-pass
	bookkeeping := context.WithoutCancel(ctx)

	m := s.getMetrics()
	var lastErr error

	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		if blocked[op.ContentID] {
			logging.Debug("Skipping operation behind failed operation", map[string]interface{}{
				"operation_id": op.ID,
				"content_id":   op.ContentID.String(),
			})
			continue
		}

		agg.Attempt()
		res := s.executor.Execute(ctx, op)
		results[op.ID] = res
		m.ObserveOperation(string(op.Kind), res.Outcome.String())

		switch res.Outcome {
		case OutcomeSucceeded:
			agg.Succeed()
			s.remove(bookkeeping, op)
			s.emit(SyncEvent{
				Type:        EventOperationSucceeded,
				Timestamp:   time.Now(),
				OperationID: op.ID,
				Kind:        op.Kind,
				ContentID:   op.ContentID.String(),
				PublicID:    res.PublicID,
			})

		case OutcomeFailed:
			agg.Fail()
			lastErr = res.Err
			blocked[op.ContentID] = true
			if err := s.queue.RecordAttempt(bookkeeping, op); err != nil {
				logging.Error("Failed to record attempt", err, map[string]interface{}{"operation_id": op.ID})
			}
			logging.Warn("Sync operation failed", map[string]interface{}{
				"operation_id":  op.ID,
				"kind":          op.Kind,
				"content_id":    op.ContentID.String(),
				"attempt_count": op.AttemptCount,
				"error":         op.LastError,
			})
			s.emitFailure(op, false)

		case OutcomeDropped:
			agg.Fail()
			lastErr = res.Err
			s.remove(bookkeeping, op)
			logging.ErrorWithCode("Dropped sync operation", string(apperrors.CodeOf(res.Err)), res.Err, map[string]interface{}{
				"operation_id":  op.ID,
				"kind":          op.Kind,
				"content_id":    op.ContentID.String(),
				"attempt_count": op.AttemptCount,
			})
			s.emitFailure(op, true)
		}
	}

	summary := agg.Summary()
	end := time.Now()

	s.mu.Lock()
	if summary.Failed > 0 {
		s.status = SyncStatusFailed
		s.lastErr = lastErr
	} else {
		s.status = SyncStatusIdle
		s.lastErr = nil
		s.lastSync = &end
	}
	s.mu.Unlock()

	m.ObservePass(end.Sub(start), summary.Failed)
	m.SetQueueDepth(s.queue.Len())

	if summary.Attempted > 0 {
		logging.Info("Sync pass completed", map[string]interface{}{
			"attempted":   summary.Attempted,
			"succeeded":   summary.Succeeded,
			"failed":      summary.Failed,
			"remaining":   s.queue.Len(),
			"duration_ms": end.Sub(start).Milliseconds(),
		})
	}

	s.emit(SyncEvent{Type: EventSyncCompleted, Timestamp: end, Summary: &summary})
	return summary, results
}

func (s *Service) remove(ctx context.Context, op *models.PendingOperation) {
	if err := s.queue.Remove(ctx, op.ID); err != nil {
		logging.Error("Failed to remove resolved operation", err, map[string]interface{}{"operation_id": op.ID})
	}
}

func (s *Service) emitFailure(op *models.PendingOperation, dropped bool) {
	s.emit(SyncEvent{
		Type:        EventOperationFailed,
		Timestamp:   time.Now(),
		OperationID: op.ID,
		Kind:        op.Kind,
		ContentID:   op.ContentID.String(),
		PublicID:    op.PublicID,
		Dropped:     dropped,
		Message:     op.LastError,
	})
}

func (s *Service) setStatus(status SyncStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Service) getMetrics() *metrics.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

func (s *Service) emit(event SyncEvent) {
	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()

	if handler != nil {
		handler.OnSyncEvent(event)
	}
}
