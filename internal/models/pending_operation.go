package models

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
)

// OperationKind is the kind of a pending sync operation.
type OperationKind string

const (
	OperationPublish   OperationKind = "publish"
	OperationUnpublish OperationKind = "unpublish"
)

// PendingOperation is a queued publish or unpublish request awaiting execution.
// Seq is assigned by the queue on append and defines FIFO order.
type PendingOperation struct {
	ID           string        `db:"id" json:"id"`
	Seq          int64         `db:"seq" json:"seq"`
	Kind         OperationKind `db:"kind" json:"kind"`
	ContentID    ContentID     `db:"content_id" json:"content_id"`
	Visibility   Visibility    `db:"visibility" json:"visibility,omitempty"` // publish only
	PublicID     string        `db:"public_id" json:"public_id,omitempty"`   // unpublish only
	Payload      []byte        `db:"payload" json:"-"`                       // publish only
	EnqueuedAt   int64         `db:"enqueued_at" json:"enqueued_at"`
	AttemptCount int           `db:"attempt_count" json:"attempt_count"`
	LastError    string        `db:"last_error" json:"last_error,omitempty"`
	UpdatedAt    int64         `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for PendingOperation.
func (PendingOperation) TableName() string {
	return "pending_operations"
}

// NewPublishOperation builds a publish operation. The payload is copied.
func NewPublishOperation(contentID ContentID, visibility Visibility, payload []byte) *PendingOperation {
	now := time.Now().Unix()
	return &PendingOperation{
		ID:         uuid.New().String(),
		Kind:       OperationPublish,
		ContentID:  contentID,
		Visibility: visibility,
		Payload:    append([]byte(nil), payload...),
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
}

// NewUnpublishOperation builds an unpublish operation.
func NewUnpublishOperation(contentID ContentID, publicID string) *PendingOperation {
	now := time.Now().Unix()
	return &PendingOperation{
		ID:         uuid.New().String(),
		Kind:       OperationUnpublish,
		ContentID:  contentID,
		PublicID:   publicID,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
}

// Validate checks the operation is well formed for its kind.
func (op *PendingOperation) Validate() error {
	if op.ContentID.IsZero() {
		return apperrors.New(apperrors.ErrValidation, "content ID is required")
	}

	switch op.Kind {
	case OperationPublish:
		if !op.Visibility.IsValid() {
			return apperrors.Newf(apperrors.ErrValidation, "unknown visibility %q", op.Visibility)
		}
		if len(op.Payload) == 0 {
			return apperrors.New(apperrors.ErrValidation, "payload is empty")
		}
	case OperationUnpublish:
		if op.PublicID == "" {
			return apperrors.New(apperrors.ErrValidation, "public ID is required for unpublish")
		}
	default:
		return apperrors.Newf(apperrors.ErrValidation, "unknown operation kind %q", op.Kind)
	}
	return nil
}

// Clone returns a deep copy of the operation.
func (op *PendingOperation) Clone() *PendingOperation {
	c := *op
	if op.Payload != nil {
		c.Payload = append([]byte(nil), op.Payload...)
	}
	return &c
}
