//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package telemetry starts the pipeline trace spans and lets callers observe
// span creation through the context.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of all gradeflow spans.
const TracerName = "trpc.group/trpc-go/gradeflow"

// SpanObserver receives the context containing a newly started span.
type SpanObserver func(context.Context)

type spanObserverKey struct{}

// WithSpanObserver injects a span observer into context.
func WithSpanObserver(ctx context.Context, observer SpanObserver) context.Context {
	if observer == nil {
		return ctx
	}
	return context.WithValue(ctx, spanObserverKey{}, observer)
}

// SpanObserverFromContext returns the span observer from context if present.
func SpanObserverFromContext(ctx context.Context) SpanObserver {
	if v, ok := ctx.Value(spanObserverKey{}).(SpanObserver); ok {
		return v
	}
	return nil
}

// Start starts a span under the gradeflow tracer and notifies the context's
// span observer, if any.
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name, opts...)
	if observer := SpanObserverFromContext(ctx); observer != nil {
		observer(ctx)
	}
	return ctx, span
}
