package sync

import (
	"context"
	stdsync "sync"
	"time"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

// MockService is a mock implementation of ContentSyncService for testing.
// It never touches a queue: every call returns the configured summary.
type MockService struct {
	mu            stdsync.Mutex
	shouldSucceed bool
	summary       SyncSummary
	handler       EventHandler
	lastSync      *time.Time
	lastErr       error
	pending       int
	pendingOps    []*models.PendingOperation

	enqueuePublishCallCount   int
	enqueueUnpublishCallCount int
	syncPendingCallCount      int

	lastEnqueuePublishContentID   models.ContentID
	lastEnqueuePublishVisibility  models.Visibility
	lastEnqueuePublishPayload     []byte
	lastEnqueueUnpublishContentID models.ContentID
	lastEnqueueUnpublishPublicID  string
}

var _ ContentSyncService = (*MockService)(nil)

// NewMockService creates a mock that succeeds with summary {1, 1, 0}.
func NewMockService() *MockService {
	return &MockService{
		shouldSucceed: true,
		summary:       SyncSummary{Attempted: 1, Succeeded: 1},
	}
}

// EnqueuePublish records the call and returns the configured summary,
// or a TRANSPORT_FAILURE error when configured to fail.
func (m *MockService) EnqueuePublish(ctx context.Context, contentID models.ContentID, visibility models.Visibility, payload []byte) (SyncSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enqueuePublishCallCount++
	m.lastEnqueuePublishContentID = contentID
	m.lastEnqueuePublishVisibility = visibility
	m.lastEnqueuePublishPayload = append([]byte(nil), payload...)

	return m.enqueueResultLocked()
}

// EnqueueUnpublish records the call and returns the configured summary,
// or a TRANSPORT_FAILURE error when configured to fail.
func (m *MockService) EnqueueUnpublish(ctx context.Context, contentID models.ContentID, publicID string) (SyncSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enqueueUnpublishCallCount++
	m.lastEnqueueUnpublishContentID = contentID
	m.lastEnqueueUnpublishPublicID = publicID

	return m.enqueueResultLocked()
}

// SyncPending never fails. When configured to fail it reports every attempt as failed.
func (m *MockService) SyncPending(ctx context.Context) SyncSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncPendingCallCount++
	return m.summaryLocked()
}

func (m *MockService) enqueueResultLocked() (SyncSummary, error) {
	summary := m.summaryLocked()
	if !m.shouldSucceed {
		return summary, m.lastErr
	}
	return summary, nil
}

// summaryLocked returns the configured summary, updates status bookkeeping
// and notifies the handler.
func (m *MockService) summaryLocked() SyncSummary {
	summary := m.summary
	if !m.shouldSucceed {
		summary = SyncSummary{Attempted: summary.Attempted, Failed: summary.Attempted}
		m.lastErr = apperrors.New(apperrors.ErrTransport, "mock sync failed")
	} else {
		now := time.Now()
		m.lastSync = &now
		m.lastErr = nil
	}

	if m.handler != nil {
		m.handler.OnSyncEvent(SyncEvent{Type: EventSyncCompleted, Timestamp: time.Now(), Summary: &summary})
	}
	return summary
}

// SetShouldSucceed controls whether the mock operations will succeed.
func (m *MockService) SetShouldSucceed(shouldSucceed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldSucceed = shouldSucceed
}

// SetSummary sets the summary returned by every call.
func (m *MockService) SetSummary(summary SyncSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = summary
}

// SetPendingCount sets the value returned by PendingCount.
func (m *MockService) SetPendingCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = n
}

// SetEventHandler sets the handler notified after each call.
func (m *MockService) SetEventHandler(handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Status returns failed after a failing call, idle otherwise.
func (m *MockService) Status() SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastErr != nil {
		return SyncStatusFailed
	}
	return SyncStatusIdle
}

// LastSync returns the time of the last successful call.
func (m *MockService) LastSync() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// PendingCount returns the value set by SetPendingCount.
func (m *MockService) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// SetPendingOperations sets the operations PendingFor filters.
func (m *MockService) SetPendingOperations(ops []*models.PendingOperation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingOps = ops
}

// PendingFor returns the configured operations for contentID.
func (m *MockService) PendingFor(contentID models.ContentID) []*models.PendingOperation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ops []*models.PendingOperation
	for _, op := range m.pendingOps {
		if op.ContentID == contentID {
			ops = append(ops, op.Clone())
		}
	}
	return ops
}

// LastError returns the error of the last failing call.
func (m *MockService) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// EnqueuePublishCallCount returns the number of EnqueuePublish calls.
func (m *MockService) EnqueuePublishCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueuePublishCallCount
}

// EnqueueUnpublishCallCount returns the number of EnqueueUnpublish calls.
func (m *MockService) EnqueueUnpublishCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueueUnpublishCallCount
}

// SyncPendingCallCount returns the number of SyncPending calls.
func (m *MockService) SyncPendingCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncPendingCallCount
}

// LastEnqueuePublishContentID returns the content ID of the last EnqueuePublish call.
func (m *MockService) LastEnqueuePublishContentID() models.ContentID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEnqueuePublishContentID
}

// LastEnqueuePublishVisibility returns the visibility of the last EnqueuePublish call.
func (m *MockService) LastEnqueuePublishVisibility() models.Visibility {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEnqueuePublishVisibility
}

// LastEnqueuePublishPayload returns a copy of the payload of the last EnqueuePublish call.
func (m *MockService) LastEnqueuePublishPayload() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.lastEnqueuePublishPayload...)
}

// LastEnqueueUnpublishContentID returns the content ID of the last EnqueueUnpublish call.
func (m *MockService) LastEnqueueUnpublishContentID() models.ContentID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEnqueueUnpublishContentID
}

// LastEnqueueUnpublishPublicID returns the public ID of the last EnqueueUnpublish call.
func (m *MockService) LastEnqueueUnpublishPublicID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEnqueueUnpublishPublicID
}

// Reset resets the mock state.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldSucceed = true
	m.summary = SyncSummary{Attempted: 1, Succeeded: 1}
	m.lastSync = nil
	m.lastErr = nil
	m.pending = 0
	m.pendingOps = nil
	m.enqueuePublishCallCount = 0
	m.enqueueUnpublishCallCount = 0
	m.syncPendingCallCount = 0
	m.lastEnqueuePublishContentID = models.NilContentID
	m.lastEnqueuePublishVisibility = ""
	m.lastEnqueuePublishPayload = nil
	m.lastEnqueueUnpublishContentID = models.NilContentID
	m.lastEnqueueUnpublishPublicID = ""
}
