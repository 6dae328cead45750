//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package grader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trpc.group/trpc-go/gradeflow/errdefs"
	"trpc.group/trpc-go/gradeflow/log"
	"trpc.group/trpc-go/gradeflow/model"
	"trpc.group/trpc-go/gradeflow/retrieval"
	"trpc.group/trpc-go/gradeflow/rubric"
)

// Retry defaults for transient chat model failures.
const (
	DefaultMaxRetries     = 10
	DefaultRetryBaseDelay = 4 * time.Second
	DefaultRetryMaxDelay  = 60 * time.Second

	// maxParseRetries bounds the strict-JSON re-prompts on malformed output.
	maxParseRetries = 2
)

type options struct {
	maxRetries            int
	retryBaseDelay        time.Duration
	retryMaxDelay         time.Duration
	temperature           float64
	maxTokens             *int
	disableScaleDetection bool
	sleep                 func(ctx context.Context, d time.Duration) error
}

// Option configures the invoker.
type Option func(*options)

// WithMaxRetries bounds the transient retry count per invocation.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithRetryBaseDelay sets the exponential backoff base delay.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(o *options) { o.retryBaseDelay = d }
}

// WithRetryMaxDelay caps the backoff delay.
func WithRetryMaxDelay(d time.Duration) Option {
	return func(o *options) { o.retryMaxDelay = d }
}

// WithTemperature sets the sampling temperature for all roles.
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = t }
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = model.Int(n) }
}

// WithDisableScaleDetection turns off the [0,1]-scale heuristic for rubrics
// whose legitimate maxima are below 1.
func WithDisableScaleDetection(disable bool) Option {
	return func(o *options) { o.disableScaleDetection = disable }
}

// withSleep overrides the backoff sleeper; tests use it to avoid real waits.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// Invoker runs one grading role against the chat model and returns a
// validated Output. It is safe for concurrent use.
type Invoker struct {
	model  model.ChatModel
	opts   options
	schema map[string]any
}

// NewInvoker creates a grader invoker over the given chat model.
func NewInvoker(m model.ChatModel, opts ...Option) (*Invoker, error) {
	if m == nil {
		return nil, errors.New("chat model is nil")
	}
	o := options{
		maxRetries:     DefaultMaxRetries,
		retryBaseDelay: DefaultRetryBaseDelay,
		retryMaxDelay:  DefaultRetryMaxDelay,
		temperature:    0,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries < 0 {
		return nil, fmt.Errorf("max retries must be non-negative: %d", o.maxRetries)
	}
	if o.retryBaseDelay <= 0 || o.retryMaxDelay < o.retryBaseDelay {
		return nil, fmt.Errorf("invalid retry delays: base %v, max %v", o.retryBaseDelay, o.retryMaxDelay)
	}
	return &Invoker{model: m, opts: o, schema: outputSchema()}, nil
}

// Evaluate invokes the chat model under the given role and returns the
// normalized output. peer is required if and only if role is ARBITER.
// Transient provider errors are retried with exponential backoff; malformed
// output triggers up to two strict-JSON re-prompts before failing.
func (inv *Invoker) Evaluate(ctx context.Context, role Role, question rubric.Question,
	answer rubric.StudentAnswer, snippets []retrieval.Snippet, peer *PeerContext) (*Output, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid grader role %q", role)
	}
	if (role == RoleArbiter) != (peer != nil) {
		return nil, fmt.Errorf("peer outputs required iff role is %s, got role %s", RoleArbiter, role)
	}
	prompt, err := buildPrompt(role, question, answer, snippets, peer)
	if err != nil {
		return nil, err
	}
	req := &model.Request{
		Messages: []model.Message{model.NewUserMessage(prompt)},
		Generation: model.GenerationConfig{
			Temperature: model.Float(inv.opts.temperature),
			MaxTokens:   inv.opts.maxTokens,
		},
		JSONSchema: &model.JSONSchema{
			Name:        "grader_output",
			Description: "Chain-of-thought, per-criterion scores, total, and feedback.",
			Schema:      inv.schema,
			Strict:      true,
		},
	}
	transientRetries := 0
	parseRetries := 0
	for {
		resp, err := inv.model.GenerateContent(ctx, req)
		if err != nil {
			if cancelErr := cancelled(ctx, err); cancelErr != nil {
				return nil, cancelErr
			}
			if !errdefs.IsTransient(err) {
				return nil, fmt.Errorf("grader %s: %w", role, err)
			}
			transientRetries++
			if transientRetries > inv.opts.maxRetries {
				if errors.Is(err, context.DeadlineExceeded) {
					return nil, errdefs.Wrap(errdefs.KindTimeout, err,
						"grader %s: deadline exceeded after %d retries", role, inv.opts.maxRetries)
				}
				return nil, fmt.Errorf("grader %s: retries exhausted after %d attempts: %w",
					role, transientRetries, err)
			}
			delay := backoffDelay(inv.opts.retryBaseDelay, inv.opts.retryMaxDelay, transientRetries)
			log.Warnf("grader %s: transient failure (attempt %d/%d), backing off %v: %v",
				role, transientRetries, inv.opts.maxRetries, delay, err)
			if err := inv.opts.sleep(ctx, delay); err != nil {
				return nil, cancelled(ctx, err)
			}
			continue
		}
		out, err := ParseOutput(resp.Content, role, question, inv.opts.disableScaleDetection)
		if err != nil {
			if !errdefs.Is(err, errdefs.KindOutputMalformed) {
				return nil, fmt.Errorf("grader %s: %w", role, err)
			}
			parseRetries++
			if parseRetries > maxParseRetries {
				return nil, fmt.Errorf("grader %s: %w", role, err)
			}
			log.Warnf("grader %s: malformed output (attempt %d/%d), re-prompting with strict JSON: %v",
				role, parseRetries, maxParseRetries, err)
			req = strictRetryRequest(req, prompt)
			continue
		}
		return out, nil
	}
}

// strictRetryRequest re-issues the request with the strict-JSON reminder
// appended to the original prompt.
func strictRetryRequest(req *model.Request, prompt string) *model.Request {
	retry := *req
	retry.Messages = []model.Message{model.NewUserMessage(prompt + strictJSONReminder)}
	return &retry
}

// backoffDelay computes min(base * 2^(attempt-1), max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// cancelled maps context termination to the grading cancellation error,
// or returns nil when err is unrelated to the caller's context.
func cancelled(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) || errdefs.IsCancelled(err) {
		return errdefs.Wrap(errdefs.KindCancelled, err, "grader invocation cancelled")
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errdefs.Wrap(errdefs.KindTimeout, err, "grader invocation deadline exceeded")
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
