// Package sync provides the content sync service: a queue of publish and
// unpublish operations drained by single-attempt passes over a transport.
package sync

import (
	"context"
	"time"

	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

// SyncStatus represents the current sync status.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusFailed  SyncStatus = "failed" // last pass had failures
)

// ContentSyncService defines the content sync operations.
// This interface allows for mocking in tests and alternative implementations.
type ContentSyncService interface {
	// EnqueuePublish queues a publish of payload at visibility and runs a pass
	// over the whole queue. The summary covers every operation attempted in
	// that pass. A TRANSPORT_FAILURE error is returned alongside the summary
	// when the new operation did not succeed; it stays queued for retry unless
	// the failure was permanent.
	EnqueuePublish(ctx context.Context, contentID models.ContentID, visibility models.Visibility, payload []byte) (SyncSummary, error)

	// EnqueueUnpublish queues revocation of publicID and runs a pass,
	// with the same contract as EnqueuePublish.
	EnqueueUnpublish(ctx context.Context, contentID models.ContentID, publicID string) (SyncSummary, error)

	// SyncPending attempts every queued operation once, in FIFO order.
	// Failures are only counted.
	SyncPending(ctx context.Context) SyncSummary

	// SetEventHandler sets the handler for sync notifications.
	SetEventHandler(handler EventHandler)

	// Status returns the current sync status.
	Status() SyncStatus

	// LastSync returns the end time of the last pass without failures.
	LastSync() *time.Time

	// PendingCount returns the number of queued operations.
	PendingCount() int

	// PendingFor returns the operations still queued for one content item, oldest first.
	PendingFor(contentID models.ContentID) []*models.PendingOperation

	// LastError returns the last failure seen during a pass.
	LastError() error
}
