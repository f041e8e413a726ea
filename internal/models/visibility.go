package models

import (
	"strings"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
)

// Visibility governs who can read published content and how a publish is routed.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPublic   Visibility = "public"
)

// Visibilities lists every supported visibility.
func Visibilities() []Visibility {
	return []Visibility{VisibilityPrivate, VisibilityUnlisted, VisibilityPublic}
}

// ParseVisibility converts s (case-insensitive) into a Visibility.
func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(strings.ToLower(strings.TrimSpace(s)))
	if !v.IsValid() {
		return "", apperrors.Newf(apperrors.ErrValidation, "unknown visibility %q", s)
	}
	return v, nil
}

// IsValid reports whether v is one of the supported visibilities.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPrivate, VisibilityUnlisted, VisibilityPublic:
		return true
	}
	return false
}

// String returns the string representation of the visibility.
func (v Visibility) String() string {
	return string(v)
}
