//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package errdefs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfTypedError(t *testing.T) {
	err := New(KindOutputMalformed, "no numeric score in %q", "garbage")
	assert.Equal(t, KindOutputMalformed, KindOf(err))
	assert.True(t, Is(err, KindOutputMalformed))
	assert.False(t, IsTransient(err))
}

func TestKindOfWrappedError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("call grader: %w", Wrap(KindTransientRemote, cause, "chat model"))
	assert.True(t, IsTransient(err))
	assert.True(t, errors.Is(err, cause))
}

func TestKindOfContextErrors(t *testing.T) {
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.True(t, IsCancelled(fmt.Errorf("run pipeline: %w", context.Canceled)))
	assert.True(t, IsTimeout(fmt.Errorf("run pipeline: %w", context.DeadlineExceeded)))
}

func TestKindOfUnknownErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := Wrap(KindRetrievalFailed, cause, "similarity search")
	assert.Contains(t, err.Error(), "retrieval_failed")
	assert.Contains(t, err.Error(), "i/o timeout")
	assert.Same(t, cause, errors.Unwrap(err))
}
