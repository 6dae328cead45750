//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package pipeline

import (
	"fmt"
	"time"

	"trpc.group/trpc-go/gradeflow/consensus"
	"trpc.group/trpc-go/gradeflow/grader"
)

// Default pipeline parameters.
const (
	DefaultRetrievalTopK   = 4
	DefaultPipelineTimeout = 120 * time.Second
)

// Config carries the tunable parameters of one grading pipeline.
type Config struct {
	// RetrievalTopK is how many reference snippets to retrieve per question.
	RetrievalTopK int `json:"retrieval_top_k"`
	// DivergenceThreshold is the grader score gap above which arbitration runs.
	DivergenceThreshold float64 `json:"divergence_threshold"`
	// MaxRetries bounds transient chat model retries per grader invocation.
	MaxRetries int `json:"max_retries"`
	// RetryBaseDelay is the exponential backoff base delay.
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay time.Duration `json:"retry_max_delay"`
	// Temperature is the sampling temperature for all grading roles.
	Temperature float64 `json:"temperature"`
	// MaxTokens bounds completion length; zero means provider default.
	MaxTokens int `json:"max_tokens"`
	// PipelineTimeout bounds one end-to-end grading run.
	PipelineTimeout time.Duration `json:"pipeline_timeout"`
	// DisableScaleDetection turns off the [0,1]-scale output heuristic for
	// rubrics whose legitimate maxima are below 1.
	DisableScaleDetection bool `json:"disable_scale_detection"`
	// RequireRetrieval fails the pipeline when retrieval errors or returns
	// nothing, instead of grading without reference material.
	RequireRetrieval bool `json:"require_retrieval"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RetrievalTopK:       DefaultRetrievalTopK,
		DivergenceThreshold: consensus.DefaultDivergenceThreshold,
		MaxRetries:          grader.DefaultMaxRetries,
		RetryBaseDelay:      grader.DefaultRetryBaseDelay,
		RetryMaxDelay:       grader.DefaultRetryMaxDelay,
		Temperature:         0,
		PipelineTimeout:     DefaultPipelineTimeout,
	}
}

// GraderOptions maps the grader-facing config fields onto invoker options so
// one Config drives both the orchestrator and the invoker it feeds.
func (c Config) GraderOptions() []grader.Option {
	opts := []grader.Option{
		grader.WithMaxRetries(c.MaxRetries),
		grader.WithRetryBaseDelay(c.RetryBaseDelay),
		grader.WithRetryMaxDelay(c.RetryMaxDelay),
		grader.WithTemperature(c.Temperature),
		grader.WithDisableScaleDetection(c.DisableScaleDetection),
	}
	if c.MaxTokens > 0 {
		opts = append(opts, grader.WithMaxTokens(c.MaxTokens))
	}
	return opts
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("retrieval top-k must be positive: %d", c.RetrievalTopK)
	}
	if c.DivergenceThreshold <= 0 {
		return fmt.Errorf("divergence threshold must be positive: %v", c.DivergenceThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative: %d", c.MaxRetries)
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("invalid retry delays: base %v, max %v", c.RetryBaseDelay, c.RetryMaxDelay)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature out of range [0,2]: %v", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be non-negative: %d", c.MaxTokens)
	}
	if c.PipelineTimeout <= 0 {
		return fmt.Errorf("pipeline timeout must be positive: %v", c.PipelineTimeout)
	}
	return nil
}
