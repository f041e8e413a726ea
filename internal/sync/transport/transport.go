// Package transport performs the network side of content sync: uploading a
// payload at a visibility and revoking a previously published object.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

// Transport is the network capability the sync executor drives.
type Transport interface {
	// Publish uploads payload for contentID and returns the public ID
	// that later revokes it.
	Publish(ctx context.Context, contentID models.ContentID, visibility models.Visibility, payload []byte) (string, error)

	// Unpublish revokes a previously published object.
	Unpublish(ctx context.Context, contentID models.ContentID, publicID string) error
}

// Validator is implemented by transports that can reject an unpublish
// before it is queued.
type Validator interface {
	ValidatePublicID(contentID models.ContentID, publicID string) error
}

// ErrPermanent marks a transport error that retrying cannot fix.
var ErrPermanent = errors.New("permanent transport failure")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// Permanent wraps err so that IsPermanent reports true while the original
// error stays reachable through errors.Is and errors.As.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Key prefixes, one per visibility.
const (
	PrefixPublic   = "public/"
	PrefixUnlisted = "unlisted/"
	PrefixPrivate  = "private/"
)

// ObjectKey returns the object key a publish of contentID at visibility is stored under.
// Unlisted keys carry a random suffix so they cannot be guessed from the content ID.
func ObjectKey(contentID models.ContentID, visibility models.Visibility) (string, error) {
	switch visibility {
	case models.VisibilityPublic:
		return PrefixPublic + contentID.String(), nil
	case models.VisibilityUnlisted:
		return PrefixUnlisted + contentID.String() + "/" + uuid.NewString(), nil
	case models.VisibilityPrivate:
		return PrefixPrivate + contentID.String(), nil
	default:
		return "", Permanent(fmt.Errorf("unknown visibility %q", visibility))
	}
}

// ValidatePublicID checks that publicID is a key produced by ObjectKey for contentID.
func ValidatePublicID(contentID models.ContentID, publicID string) error {
	for _, prefix := range []string{PrefixPublic, PrefixUnlisted, PrefixPrivate} {
		rest, ok := strings.CutPrefix(publicID, prefix)
		if !ok {
			continue
		}
		id := contentID.String()
		if rest == id || strings.HasPrefix(rest, id+"/") {
			return nil
		}
		return Permanent(fmt.Errorf("public ID %q does not belong to content %s", publicID, id))
	}
	return Permanent(fmt.Errorf("public ID %q has no known visibility prefix", publicID))
}
