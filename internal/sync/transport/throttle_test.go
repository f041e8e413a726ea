package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

func TestNewThrottled_disabled(t *testing.T) {
	mock := NewMockTransport()
	assert.Same(t, Transport(mock), NewThrottled(mock, 0, 5))
}

func TestThrottled_limitsRate(t *testing.T) {
	mock := NewMockTransport()
	tr := NewThrottled(mock, 20, 1)
	contentID := models.NewContentID()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := tr.Publish(context.Background(), contentID, models.VisibilityPublic, []byte("x"))
		require.NoError(t, err)
	}

	// burst 1 at 20/s: the 2nd and 3rd calls wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 3, mock.GetCallCount())
}

func TestThrottled_respectsContext(t *testing.T) {
	mock := NewMockTransport()
	tr := NewThrottled(mock, 0.1, 1)
	contentID := models.NewContentID()

	require.NoError(t, tr.Unpublish(context.Background(), contentID, "public/"+contentID.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tr.Unpublish(ctx, contentID, "public/"+contentID.String())
	assert.Error(t, err)
	assert.Equal(t, 1, mock.GetCallCount())
}

func TestThrottled_ValidatePublicID(t *testing.T) {
	x := models.NewContentID()

	s3 := NewThrottled(NewWithClient(nil, "notes"), 10, 1)
	v, ok := s3.(Validator)
	require.True(t, ok)
	assert.NoError(t, v.ValidatePublicID(x, "private/"+x.String()))
	assert.True(t, IsPermanent(v.ValidatePublicID(x, "abc")))

	// Wrapped transports without validation accept anything
	plain := NewThrottled(NewMockTransport(), 10, 1).(Validator)
	assert.NoError(t, plain.ValidatePublicID(x, "abc"))
}
