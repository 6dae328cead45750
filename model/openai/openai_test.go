//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package openai

import (
	"context"
	"errors"
	"net"
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/gradeflow/errdefs"
)

func TestNewRequiresModelName(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	m, err := New("gpt-4o-mini", WithAPIKey("k"), WithBaseURL("http://localhost:1"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", m.name)
}

func TestClassifyErrorRateLimitIsTransient(t *testing.T) {
	err := classifyError(&openai.Error{StatusCode: 429})
	assert.True(t, errdefs.IsTransient(err))
}

func TestClassifyErrorServerErrorIsTransient(t *testing.T) {
	for _, status := range []int{500, 502, 503} {
		err := classifyError(&openai.Error{StatusCode: status})
		assert.True(t, errdefs.IsTransient(err), "status %d", status)
	}
}

func TestClassifyErrorClientErrorIsFatal(t *testing.T) {
	for _, status := range []int{400, 401, 404} {
		err := classifyError(&openai.Error{StatusCode: status})
		assert.False(t, errdefs.IsTransient(err), "status %d", status)
	}
}

func TestClassifyErrorContext(t *testing.T) {
	assert.True(t, errdefs.IsCancelled(classifyError(context.Canceled)))
	// Deadline expiry is retryable at this layer; the grader promotes it to
	// a timeout only once retries are exhausted.
	assert.True(t, errdefs.IsTransient(classifyError(context.DeadlineExceeded)))
}

func TestClassifyErrorNetworkIsTransient(t *testing.T) {
	var err error = &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	assert.True(t, errdefs.IsTransient(classifyError(err)))
}
