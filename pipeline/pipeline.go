//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package pipeline orchestrates one grading run: retrieval, parallel grading,
// divergence detection, optional arbitration, and consensus.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trpc.group/trpc-go/gradeflow/consensus"
	"trpc.group/trpc-go/gradeflow/errdefs"
	"trpc.group/trpc-go/gradeflow/grader"
	"trpc.group/trpc-go/gradeflow/internal/telemetry"
	"trpc.group/trpc-go/gradeflow/log"
	"trpc.group/trpc-go/gradeflow/retrieval"
	"trpc.group/trpc-go/gradeflow/rubric"
)

// Retriever fetches reference material for a question.
type Retriever interface {
	Search(ctx context.Context, query, discipline, topic string, k int) ([]retrieval.Snippet, error)
}

// Evaluator runs one grading role against the chat model.
type Evaluator interface {
	Evaluate(ctx context.Context, role grader.Role, question rubric.Question,
		answer rubric.StudentAnswer, snippets []retrieval.Snippet, peer *grader.PeerContext) (*grader.Output, error)
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithSink registers a phase transition observer.
func WithSink(s Sink) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sink = s
		}
	}
}

// withClock overrides the time source; tests use it for stable timings.
func withClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives the grading state machine for single answers. It is
// safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	retriever Retriever
	evaluator Evaluator
	sink      Sink
	now       func() time.Time
}

// New creates a grading orchestrator.
func New(retriever Retriever, evaluator Evaluator, cfg Config, opts ...Option) (*Orchestrator, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is nil")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	o := &Orchestrator{
		cfg:       cfg,
		retriever: retriever,
		evaluator: evaluator,
		sink:      nopSink{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Grade runs the full pipeline for one student answer and returns the audit
// record. Both primary graders see identical retrieved material; the arbiter
// runs only when their totals diverge beyond the configured threshold.
func (o *Orchestrator) Grade(ctx context.Context, question rubric.Question,
	answer rubric.StudentAnswer) (*Record, error) {
	if err := question.Validate(); err != nil {
		return nil, fmt.Errorf("invalid question: %w", err)
	}
	answer = answer.Normalize()
	if err := answer.Validate(); err != nil {
		return nil, fmt.Errorf("invalid student answer: %w", err)
	}
	if answer.QuestionID != question.ID {
		return nil, fmt.Errorf("answer question id %q does not match question %q", answer.QuestionID, question.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.PipelineTimeout)
	defer cancel()

	started := o.now()
	rec := newRecord(question.ID, answer.StudentID, started)
	ctx, span := telemetry.Start(ctx, "gradeflow.pipeline", trace.WithAttributes(
		attribute.String("gradeflow.record_id", rec.ID),
		attribute.String("gradeflow.question_id", question.ID),
		attribute.String("gradeflow.student_id", answer.StudentID),
	))
	defer span.End()
	o.emit(rec, PhaseInit, nil)

	snippets := o.retrieve(ctx, rec, question)
	if o.cfg.RequireRetrieval && len(snippets) == 0 {
		return nil, o.fail(rec, span, started,
			errdefs.New(errdefs.KindRetrievalFailed, "no reference material for question %s and retrieval is required", question.ID))
	}
	rec.RetrievedSnippets = snippets

	outA, outB, err := o.gradeFanout(ctx, rec, question, answer, snippets)
	if err != nil {
		return nil, o.fail(rec, span, started, err)
	}

	o.emit(rec, PhaseJoin, nil)
	report := consensus.Divergence(outA, outB, o.cfg.DivergenceThreshold)
	rec.Gap = report.Gap
	rec.DivergenceDetected = report.ArbitrationRequired
	rec.GraderOutputs = []*grader.Output{outA, outB}

	if report.ArbitrationRequired {
		arb, err := o.arbitrate(ctx, rec, question, answer, snippets, outA, outB, report.Gap)
		if err != nil {
			return nil, o.fail(rec, span, started, err)
		}
		rec.GraderOutputs = append(rec.GraderOutputs, arb)
	}

	o.emit(rec, PhaseFinalize, nil)
	final, err := consensus.Aggregate(rec.GraderOutputs)
	if err != nil {
		return nil, o.fail(rec, span, started, err)
	}
	rec.FinalGrade = final
	rec.Timings.Total = o.now().Sub(started)
	span.SetAttributes(attribute.Float64("gradeflow.final_grade", final))
	o.emit(rec, PhaseDone, nil)
	return rec, nil
}

// retrieve fetches reference material, downgrading failures to warnings when
// retrieval is optional.
func (o *Orchestrator) retrieve(ctx context.Context, rec *Record, question rubric.Question) []retrieval.Snippet {
	o.emit(rec, PhaseRetrieve, nil)
	ctx, span := telemetry.Start(ctx, "gradeflow.pipeline.retrieve")
	defer span.End()
	start := o.now()
	snippets, err := o.retriever.Search(ctx, question.Statement,
		question.Metadata.Discipline, question.Metadata.Topic, o.cfg.RetrievalTopK)
	rec.Timings.Retrieval = o.now().Sub(start)
	if err != nil {
		log.Warnf("pipeline %s: retrieval failed for question %s, grading without reference material: %v",
			rec.ID, question.ID, err)
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("retrieval failed: %v", err))
		return nil
	}
	if len(snippets) == 0 {
		rec.Warnings = append(rec.Warnings, "no reference material retrieved")
	}
	return snippets
}

// gradeFanout runs graders A and B in parallel over the same material. The
// first failure cancels the sibling invocation.
func (o *Orchestrator) gradeFanout(ctx context.Context, rec *Record, question rubric.Question,
	answer rubric.StudentAnswer, snippets []retrieval.Snippet) (*grader.Output, *grader.Output, error) {
	o.emit(rec, PhaseGradeFanout, nil)
	ctx, span := telemetry.Start(ctx, "gradeflow.pipeline.grade_fanout")
	defer span.End()
	start := o.now()
	var outs [2]*grader.Output
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range []grader.Role{grader.RoleGraderA, grader.RoleGraderB} {
		i, role := i, role
		g.Go(func() error {
			out, err := o.evaluator.Evaluate(gctx, role, question, answer, snippets, nil)
			if err != nil {
				return fmt.Errorf("fanout %s: %w", role, err)
			}
			outs[i] = out
			return nil
		})
	}
	err := g.Wait()
	rec.Timings.Grading = o.now().Sub(start)
	if err != nil {
		return nil, nil, err
	}
	return outs[0], outs[1], nil
}

func (o *Orchestrator) arbitrate(ctx context.Context, rec *Record, question rubric.Question,
	answer rubric.StudentAnswer, snippets []retrieval.Snippet,
	outA, outB *grader.Output, gap float64) (*grader.Output, error) {
	o.emit(rec, PhaseArbitrate, nil)
	ctx, span := telemetry.Start(ctx, "gradeflow.pipeline.arbitrate",
		trace.WithAttributes(attribute.Float64("gradeflow.gap", gap)))
	defer span.End()
	start := o.now()
	peer := &grader.PeerContext{GraderA: outA, GraderB: outB, Gap: gap}
	out, err := o.evaluator.Evaluate(ctx, grader.RoleArbiter, question, answer, snippets, peer)
	rec.Timings.Arbitration = o.now().Sub(start)
	if err != nil {
		return nil, fmt.Errorf("arbitration: %w", err)
	}
	return out, nil
}

func (o *Orchestrator) fail(rec *Record, span trace.Span, started time.Time, err error) error {
	rec.Timings.Total = o.now().Sub(started)
	span.RecordError(err)
	o.emit(rec, PhaseFailed, err)
	log.Errorf("pipeline %s: grading failed for question %s, student %s: %v",
		rec.ID, rec.QuestionID, rec.StudentID, err)
	return fmt.Errorf("grade question %s for student %s: %w", rec.QuestionID, rec.StudentID, err)
}

func (o *Orchestrator) emit(rec *Record, phase Phase, err error) {
	o.sink.ObservePhase(PhaseEvent{
		RecordID:   rec.ID,
		QuestionID: rec.QuestionID,
		StudentID:  rec.StudentID,
		Phase:      phase,
		Err:        err,
	})
}
