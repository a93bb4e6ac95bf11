// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors so that callers (the HTTP layer, the
// sweeper) can react without string matching.
type Kind int

const (
	// KindValidation marks malformed or missing input. Rejected
	// synchronously with no state change.
	KindValidation Kind = iota + 1

	// KindConflict marks a state collision: duplicate external id,
	// invalid handoff transition, a lineage re-link with different
	// semantics. The caller may retry idempotent operations at a
	// higher level.
	KindConflict

	// KindNotFound marks a reference to a missing artifact, version,
	// blob, or handoff.
	KindNotFound

	// KindStorage marks an underlying payload-store or database
	// failure that survived the bounded retry budget.
	KindStorage
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not-found"
	case KindStorage:
		return "storage"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is the engine's error type. It wraps an optional cause and
// carries a Kind for classification. Use [KindOf] to classify any
// error returned by the engine.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of an engine error, or zero if the error
// did not originate from the engine's taxonomy.
func KindOf(err error) Kind {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	return 0
}

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictError(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func storageError(cause error, format string, args ...any) error {
	return &Error{Kind: KindStorage, Message: fmt.Sprintf(format, args...), Err: cause}
}
