package transport

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

// Throttled limits the call rate of an underlying Transport.
// Waiting for a token respects ctx, so an attempt timeout also bounds the wait.
type Throttled struct {
	next    Transport
	limiter *rate.Limiter
}

var _ Validator = (*Throttled)(nil)

// NewThrottled wraps next with a limiter allowing perSecond calls with the given burst.
// A non-positive perSecond returns next unchanged.
func NewThrottled(next Transport, perSecond float64, burst int) Transport {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Publish waits for a token, then publishes.
func (t *Throttled) Publish(ctx context.Context, contentID models.ContentID, visibility models.Visibility, payload []byte) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.Publish(ctx, contentID, visibility, payload)
}

// ValidatePublicID delegates to the wrapped transport when it validates public IDs.
func (t *Throttled) ValidatePublicID(contentID models.ContentID, publicID string) error {
	if v, ok := t.next.(Validator); ok {
		return v.ValidatePublicID(contentID, publicID)
	}
	return nil
}

// Unpublish waits for a token, then unpublishes.
func (t *Throttled) Unpublish(ctx context.Context, contentID models.ContentID, publicID string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.next.Unpublish(ctx, contentID, publicID)
}
