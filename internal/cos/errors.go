// Package cos ("common OS") collects the small, dependency-light helpers
// shared by every other package: JSON codecs, file-safe writes, and the
// typed error kinds described in spec.md §7.
package cos

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the transport-agnostic error categories from
// spec.md §7. Callers type-switch or use errors.As against *KindError.
type Kind string

const (
	ConfigurationMissing   Kind = "ConfigurationMissing"
	AuthenticationFailed   Kind = "AuthenticationFailed"
	NetworkTransient       Kind = "NetworkTransient"
	IntegrityFailure       Kind = "IntegrityFailure"
	FormatInvalid          Kind = "FormatInvalid"
	DeidentificationFailed Kind = "DeidentificationFailed"
	ReidentificationFailed Kind = "ReidentificationFailed"
	StorageExhausted       Kind = "StorageExhausted"
	AssociationRefused     Kind = "AssociationRefused"
	ValidationError        Kind = "ValidationError"
)

// KindError wraps an underlying cause with one of the Kind categories so
// upstream stage code can decide the retry/terminal disposition without
// string-matching messages.
type KindError struct {
	Kind    Kind
	Subject string // e.g. series UID, task id - whatever the error is about
	Cause   error
}

func (e *KindError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Subject, e.Cause)
}

func (e *KindError) Unwrap() error { return e.Cause }

func NewError(kind Kind, subject string, cause error) *KindError {
	return &KindError{Kind: kind, Subject: subject, Cause: cause}
}

// Wrap behaves like errors.Wrap but returns a *KindError so the kind
// survives context-adding.
func Wrap(kind Kind, subject string, err error, msg string) error {
	if err == nil {
		return nil
	}
	return NewError(kind, subject, errors.Wrap(err, msg))
}

// IsKind reports whether err (or any error it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var ke *KindError
	for err != nil {
		if k, ok := err.(*KindError); ok {
			ke = k
			break
		}
		err = errors.Unwrap(err)
	}
	return ke != nil && ke.Kind == kind
}
