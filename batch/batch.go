//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package batch schedules many grading pipelines over a bounded worker pool,
// in chunks with an optional cooldown between them.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/gradeflow/errdefs"
	"trpc.group/trpc-go/gradeflow/log"
	"trpc.group/trpc-go/gradeflow/pipeline"
	"trpc.group/trpc-go/gradeflow/rubric"
)

// Scheduler defaults and bounds.
const (
	DefaultParallelism = 4
	DefaultChunkSize   = 4
	DefaultCooldown    = 0
	MaxChunkSize       = 64
)

// Task pairs one question with one student answer to grade.
type Task struct {
	Question rubric.Question      `json:"question"`
	Answer   rubric.StudentAnswer `json:"answer"`
}

// Result is the outcome of one task. Exactly one of Record and Err is set.
type Result struct {
	// Index is the task's position in the submitted slice.
	Index int `json:"index"`
	// Record is the grading record on success.
	Record *pipeline.Record `json:"record,omitempty"`
	// Err is the task failure, nil on success.
	Err error `json:"-"`
}

// Summary aggregates the outcome of a batch run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Err collects every task failure; nil when all tasks succeeded.
	Err error `json:"-"`
}

// Grader runs one grading pipeline.
type Grader interface {
	Grade(ctx context.Context, question rubric.Question, answer rubric.StudentAnswer) (*pipeline.Record, error)
}

type gradeTaskParam struct {
	idx     int
	ctx     context.Context
	task    Task
	grader  Grader
	results []Result
	wg      *sync.WaitGroup
}

func (p *gradeTaskParam) reset() {
	p.idx = 0
	p.ctx = nil
	p.task = Task{}
	p.grader = nil
	p.results = nil
	p.wg = nil
}

var gradeTaskParamPool = &sync.Pool{
	New: func() any { return new(gradeTaskParam) },
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithParallelism bounds the number of pipelines graded concurrently.
func WithParallelism(n int) Option {
	return func(s *Scheduler) { s.parallelism = n }
}

// WithChunkSize bounds how many tasks are dispatched before a cooldown.
func WithChunkSize(n int) Option {
	return func(s *Scheduler) { s.chunkSize = n }
}

// WithCooldown sets the pause between chunks; zero disables it.
func WithCooldown(d time.Duration) Option {
	return func(s *Scheduler) { s.cooldown = d }
}

// withSleep overrides the cooldown sleeper; tests use it to avoid real waits.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// Scheduler fans grading tasks out over a shared worker pool. It is safe for
// concurrent use; one pool serves every Run call.
type Scheduler struct {
	grader      Grader
	parallelism int
	chunkSize   int
	cooldown    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	poolOnce sync.Once
	pool     *ants.PoolWithFunc
	poolErr  error
}

// NewScheduler creates a batch scheduler over the given grader.
func NewScheduler(g Grader, opts ...Option) (*Scheduler, error) {
	if g == nil {
		return nil, errors.New("grader is nil")
	}
	s := &Scheduler{
		grader:      g,
		parallelism: DefaultParallelism,
		chunkSize:   DefaultChunkSize,
		cooldown:    DefaultCooldown,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parallelism <= 0 {
		return nil, fmt.Errorf("parallelism must be greater than 0: %d", s.parallelism)
	}
	if s.chunkSize <= 0 || s.chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("chunk size must be in [1, %d]: %d", MaxChunkSize, s.chunkSize)
	}
	if s.cooldown < 0 {
		return nil, fmt.Errorf("cooldown must be non-negative: %v", s.cooldown)
	}
	return s, nil
}

func (s *Scheduler) ensurePool() error {
	s.poolOnce.Do(func() {
		pool, err := ants.NewPoolWithFunc(s.parallelism, func(args any) {
			param, ok := args.(*gradeTaskParam)
			if !ok {
				panic("grade task pool args type error")
			}
			wg := param.wg
			defer func() {
				wg.Done()
				param.reset()
				gradeTaskParamPool.Put(param)
			}()
			rec, err := param.grader.Grade(param.ctx, param.task.Question, param.task.Answer)
			if err != nil {
				param.results[param.idx] = Result{Index: param.idx, Err: err}
				return
			}
			param.results[param.idx] = Result{Index: param.idx, Record: rec}
		})
		if err != nil {
			s.poolErr = fmt.Errorf("create grade task pool: %w", err)
			return
		}
		s.pool = pool
	})
	return s.poolErr
}

// Run grades every task and returns one result per task, in input order. A
// failing task never stops its siblings; cancellation of ctx stops dispatch
// and marks the remaining tasks cancelled. The summary error aggregates every
// task failure.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) ([]Result, Summary, error) {
	if len(tasks) == 0 {
		return nil, Summary{}, nil
	}
	if err := s.ensurePool(); err != nil {
		return nil, Summary{}, err
	}
	results := make([]Result, len(tasks))
	for chunkStart := 0; chunkStart < len(tasks); chunkStart += s.chunkSize {
		chunkEnd := min(chunkStart+s.chunkSize, len(tasks))
		if err := ctx.Err(); err != nil {
			markCancelled(results, chunkStart, err)
			break
		}
		if chunkStart > 0 && s.cooldown > 0 {
			if err := s.sleep(ctx, s.cooldown); err != nil {
				markCancelled(results, chunkStart, err)
				break
			}
		}
		var wg sync.WaitGroup
		for i := chunkStart; i < chunkEnd; i++ {
			param := gradeTaskParamPool.Get().(*gradeTaskParam)
			param.idx = i
			param.ctx = ctx
			param.task = tasks[i]
			param.grader = s.grader
			param.results = results
			param.wg = &wg
			wg.Add(1)
			if err := s.pool.Invoke(param); err != nil {
				wg.Done()
				param.reset()
				gradeTaskParamPool.Put(param)
				results[i] = Result{Index: i, Err: fmt.Errorf("dispatch grade task: %w", err)}
			}
		}
		wg.Wait()
		log.Debugf("batch: chunk [%d,%d) of %d tasks graded", chunkStart, chunkEnd, len(tasks))
	}
	return results, summarize(tasks, results), nil
}

// Close releases the worker pool.
func (s *Scheduler) Close() error {
	if s.pool != nil {
		s.pool.Release()
	}
	return nil
}

func markCancelled(results []Result, from int, cause error) {
	for i := from; i < len(results); i++ {
		results[i] = Result{
			Index: i,
			Err:   errdefs.Wrap(errdefs.KindCancelled, cause, "batch cancelled before task %d ran", i),
		}
	}
}

func summarize(tasks []Task, results []Result) Summary {
	summary := Summary{Total: len(results)}
	var errs *multierror.Error
	for i, res := range results {
		if res.Err == nil {
			summary.Succeeded++
			continue
		}
		summary.Failed++
		errs = multierror.Append(errs, fmt.Errorf("task %d (question %s, student %s): %w",
			i, tasks[i].Answer.QuestionID, tasks[i].Answer.StudentID, res.Err))
	}
	summary.Err = errs.ErrorOrNil()
	return summary
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
