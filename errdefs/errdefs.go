//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package errdefs defines the error kinds produced by the grading core and
// predicates to classify them across package boundaries.
package errdefs

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a class of grading failure.
type Kind string

// Error kinds surfaced by the grading core.
const (
	// KindRetrievalFailed means the vector store was unreachable or returned an error.
	KindRetrievalFailed Kind = "retrieval_failed"
	// KindTransientRemote means the chat model failed with a retryable condition.
	KindTransientRemote Kind = "transient_remote"
	// KindOutputMalformed means the model output could not be normalized.
	KindOutputMalformed Kind = "output_malformed"
	// KindCriterionMismatch means model criterion names could not be reconciled with the rubric.
	KindCriterionMismatch Kind = "criterion_mismatch"
	// KindTimeout means a deadline expired with no retries remaining.
	KindTimeout Kind = "timeout"
	// KindCancelled means the caller cancelled the operation.
	KindCancelled Kind = "cancelled"
	// KindInternal means an invariant was violated.
	KindInternal Kind = "internal"
)

// Error carries a kind, a free-text detail, and an optional cause.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind of err, mapping context errors to their kinds.
// Errors that carry no kind are reported as internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return Is(err, KindTransientRemote)
}

// IsCancelled reports whether err resulted from caller cancellation.
func IsCancelled(err error) bool {
	return Is(err, KindCancelled)
}

// IsTimeout reports whether err resulted from an expired deadline.
func IsTimeout(err error) bool {
	return Is(err, KindTimeout)
}

// IsRetrievalFailed reports whether err came from the retrieval backend.
func IsRetrievalFailed(err error) bool {
	return Is(err, KindRetrievalFailed)
}
