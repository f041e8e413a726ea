package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

// Call records one call made to a MockTransport.
type Call struct {
	Kind       models.OperationKind
	ContentID  models.ContentID
	Visibility models.Visibility
	PublicID   string
	Payload    []byte
}

// MockTransport is an in-memory Transport for tests.
type MockTransport struct {
	mu            sync.Mutex
	shouldSucceed bool
	failErr       error
	failFor       map[models.ContentID]error
	delay         time.Duration
	calls         []Call
	inFlight      int
	maxInFlight   int
}

// NewMockTransport creates a mock transport that succeeds by default.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		shouldSucceed: true,
		failFor:       make(map[models.ContentID]error),
	}
}

// Publish records the call and returns a public-prefixed key on success.
func (m *MockTransport) Publish(ctx context.Context, contentID models.ContentID, visibility models.Visibility, payload []byte) (string, error) {
	err := m.call(ctx, Call{
		Kind:       models.OperationPublish,
		ContentID:  contentID,
		Visibility: visibility,
		Payload:    append([]byte(nil), payload...),
	})
	if err != nil {
		return "", err
	}
	return PrefixPublic + contentID.String(), nil
}

// Unpublish records the call.
func (m *MockTransport) Unpublish(ctx context.Context, contentID models.ContentID, publicID string) error {
	return m.call(ctx, Call{
		Kind:      models.OperationUnpublish,
		ContentID: contentID,
		PublicID:  publicID,
	})
}

func (m *MockTransport) call(ctx context.Context, c Call) error {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.delay
	err := m.failFor[c.ContentID]
	if err == nil && !m.shouldSucceed {
		err = m.failErr
		if err == nil {
			err = errors.New("mock transport failure")
		}
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// SetShouldSucceed controls whether calls succeed.
func (m *MockTransport) SetShouldSucceed(shouldSucceed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldSucceed = shouldSucceed
}

// SetFailError sets the error returned while shouldSucceed is false.
func (m *MockTransport) SetFailError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// FailFor makes every call for contentID return err. A nil err clears it.
func (m *MockTransport) FailFor(contentID models.ContentID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failFor, contentID)
		return
	}
	m.failFor[contentID] = err
}

// SetDelay makes every call wait before returning.
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// Calls returns a copy of the recorded calls in order.
func (m *MockTransport) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// GetCallCount returns the number of calls made.
func (m *MockTransport) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (m *MockTransport) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Reset clears recorded calls and failure settings.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.shouldSucceed = true
	m.failErr = nil
	m.failFor = make(map[models.ContentID]error)
	m.maxInFlight = 0
}
