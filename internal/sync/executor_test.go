package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/models"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/transport"
)

// TestExecutor_Execute verifies outcome classification.
func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		name        string
		failWith    error
		maxAttempts int
		priorTries  int
		want        Outcome
		wantCode    apperrors.ErrorCode
	}{
		{"success", nil, 0, 0, OutcomeSucceeded, ""},
		{"retryable failure", errors.New("connection reset"), 0, 0, OutcomeFailed, apperrors.ErrTransport},
		{"permanent failure", transport.Permanent(errors.New("access denied")), 0, 0, OutcomeDropped, apperrors.ErrDropped},
		{"below max attempts", errors.New("timeout"), 3, 1, OutcomeFailed, apperrors.ErrTransport},
		{"reaches max attempts", errors.New("timeout"), 3, 2, OutcomeDropped, apperrors.ErrDropped},
		{"unlimited attempts", errors.New("timeout"), 0, 50, OutcomeFailed, apperrors.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := transport.NewMockTransport()
			if tt.failWith != nil {
				mock.SetShouldSucceed(false)
				mock.SetFailError(tt.failWith)
			}

			exec := NewExecutor(mock, ExecutorConfig{MaxAttempts: tt.maxAttempts})
			op := models.NewPublishOperation(models.NewContentID(), models.VisibilityPublic, []byte{0x01})
			op.AttemptCount = tt.priorTries

			res := exec.Execute(context.Background(), op)

			if res.Outcome != tt.want {
				t.Errorf("Outcome = %v, want %v", res.Outcome, tt.want)
			}
			if op.AttemptCount != tt.priorTries+1 {
				t.Errorf("AttemptCount = %d, want %d", op.AttemptCount, tt.priorTries+1)
			}

			if tt.failWith == nil {
				if res.Err != nil || op.LastError != "" {
					t.Errorf("unexpected error state: %v, %q", res.Err, op.LastError)
				}
				if res.PublicID == "" {
					t.Error("PublicID should be set on publish success")
				}
				return
			}

			if got := apperrors.CodeOf(res.Err); got != tt.wantCode {
				t.Errorf("CodeOf(Err) = %v, want %v", got, tt.wantCode)
			}
			if got, want := apperrors.IsRetryable(res.Err), tt.want == OutcomeFailed; got != want {
				t.Errorf("IsRetryable(Err) = %v, want %v", got, want)
			}
			if !errors.Is(res.Err, tt.failWith) {
				t.Error("Err should wrap the transport error")
			}
			if op.LastError == "" {
				t.Error("LastError should be set on failure")
			}
		})
	}
}

// TestExecutor_Unpublish verifies unpublish is routed with the public ID.
func TestExecutor_Unpublish(t *testing.T) {
	mock := transport.NewMockTransport()
	exec := NewExecutor(mock, ExecutorConfig{})

	x := models.NewContentID()
	op := models.NewUnpublishOperation(x, "abc")
	res := exec.Execute(context.Background(), op)

	if res.Outcome != OutcomeSucceeded {
		t.Fatalf("Outcome = %v, want succeeded", res.Outcome)
	}
	calls := mock.Calls()
	if len(calls) != 1 || calls[0].Kind != models.OperationUnpublish || calls[0].PublicID != "abc" {
		t.Errorf("calls = %+v", calls)
	}
}

// TestExecutor_AttemptTimeout verifies each attempt is bounded.
func TestExecutor_AttemptTimeout(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.SetDelay(time.Second)
	exec := NewExecutor(mock, ExecutorConfig{AttemptTimeout: 20 * time.Millisecond})

	start := time.Now()
	op := models.NewPublishOperation(models.NewContentID(), models.VisibilityPrivate, []byte("x"))
	res := exec.Execute(context.Background(), op)

	if res.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %v, want failed", res.Outcome)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", res.Err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("attempt was not bounded by the timeout")
	}
}

// TestExecutor_InvalidOperation verifies corrupted entries are dropped without a transport call.
func TestExecutor_InvalidOperation(t *testing.T) {
	mock := transport.NewMockTransport()
	exec := NewExecutor(mock, ExecutorConfig{})

	op := models.NewPublishOperation(models.NewContentID(), models.VisibilityPublic, nil)
	res := exec.Execute(context.Background(), op)

	if res.Outcome != OutcomeDropped {
		t.Errorf("Outcome = %v, want dropped", res.Outcome)
	}
	if !apperrors.Is(res.Err, apperrors.ErrValidation) {
		t.Errorf("Err = %v, want VALIDATION_ERROR", res.Err)
	}
	if mock.GetCallCount() != 0 {
		t.Error("transport should not be called for an invalid operation")
	}
}

// TestOutcomeString verifies outcome labels.
func TestOutcomeString(t *testing.T) {
	tests := map[Outcome]string{
		OutcomeSucceeded: "succeeded",
		OutcomeFailed:    "failed",
		OutcomeDropped:   "dropped",
		Outcome(9):       "unknown",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", o, got, want)
		}
	}
}
