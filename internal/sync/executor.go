package sync

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/models"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/transport"
)

// DefaultAttemptTimeout bounds a single transport call.
const DefaultAttemptTimeout = 30 * time.Second

// Outcome classifies one attempt.
type Outcome int

const (
	// OutcomeSucceeded: the operation is done and leaves the queue.
	OutcomeSucceeded Outcome = iota
	// OutcomeFailed: the operation stays queued for the next pass.
	OutcomeFailed
	// OutcomeDropped: the operation failed terminally and leaves the queue.
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Result is the outcome of one attempt.
type Result struct {
	Outcome  Outcome
	PublicID string // publish only, set on success
	Err      error
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// AttemptTimeout bounds each transport call. Zero uses DefaultAttemptTimeout.
	AttemptTimeout time.Duration
	// MaxAttempts drops an operation after this many failed attempts. Zero retries forever.
	MaxAttempts int
}

// Executor performs single attempts of pending operations against a Transport.
// It never retries internally; retries happen on the next pass.
type Executor struct {
	transport      transport.Transport
	attemptTimeout time.Duration
	maxAttempts    int
}

// NewExecutor creates an Executor over t.
func NewExecutor(t transport.Transport, cfg ExecutorConfig) *Executor {
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Executor{
		transport:      t,
		attemptTimeout: timeout,
		maxAttempts:    cfg.MaxAttempts,
	}
}

// Execute attempts op once. It increments op.AttemptCount and sets op.LastError.
func (e *Executor) Execute(ctx context.Context, op *models.PendingOperation) Result {
	op.AttemptCount++

	if err := op.Validate(); err != nil {
		// Only reachable for entries restored from a corrupted store
		op.LastError = err.Error()
		return Result{Outcome: OutcomeDropped, Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	var publicID string
	var err error
	switch op.Kind {
	case models.OperationPublish:
		publicID, err = e.transport.Publish(attemptCtx, op.ContentID, op.Visibility, op.Payload)
	case models.OperationUnpublish:
		err = e.transport.Unpublish(attemptCtx, op.ContentID, op.PublicID)
	}

	if err == nil {
		op.LastError = ""
		return Result{Outcome: OutcomeSucceeded, PublicID: publicID}
	}

	op.LastError = err.Error()

	if transport.IsPermanent(err) {
		return Result{Outcome: OutcomeDropped, Err: apperrors.Wrap(apperrors.ErrDropped,
			string(op.Kind)+" rejected permanently", err)}
	}
	if e.maxAttempts > 0 && op.AttemptCount >= e.maxAttempts {
		return Result{Outcome: OutcomeDropped, Err: apperrors.Wrap(apperrors.ErrDropped,
			fmt.Sprintf("%s failed after %d attempts", op.Kind, op.AttemptCount), err)}
	}
	return Result{Outcome: OutcomeFailed, Err: apperrors.Wrap(apperrors.ErrTransport, string(op.Kind)+" failed", err)}
}
