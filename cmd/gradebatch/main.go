//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Command gradebatch grades a batch of exam answers and exports the results
// to an xlsx report.
//
// Questions, answers, and the optional reference corpus are JSON arrays; file
// arguments accept doublestar glob patterns. The chat endpoint is any
// OpenAI-compatible API; the key comes from OPENAI_API_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trpc.group/trpc-go/gradeflow/batch"
	"trpc.group/trpc-go/gradeflow/grader"
	"trpc.group/trpc-go/gradeflow/log"
	"trpc.group/trpc-go/gradeflow/model/openai"
	"trpc.group/trpc-go/gradeflow/pipeline"
	"trpc.group/trpc-go/gradeflow/recordstore/sqlite"
	"trpc.group/trpc-go/gradeflow/retrieval"
	"trpc.group/trpc-go/gradeflow/retrieval/inmemory"
)

func main() {
	var (
		questionsGlob    string
		answersGlob      string
		corpusGlob       string
		modelName        string
		baseURL          string
		output           string
		dbPath           string
		parallelism      int
		chunkSize        int
		cooldown         time.Duration
		threshold        float64
		topK             int
		temperature      float64
		maxRetries       int
		requireRetrieval bool
		disableScale     bool
	)

	flag.StringVar(&questionsGlob, "questions", "", "Glob pattern of question JSON files (required).")
	flag.StringVar(&answersGlob, "answers", "", "Glob pattern of student answer JSON files (required).")
	flag.StringVar(&corpusGlob, "corpus", "", "Optional glob pattern of reference corpus JSON files.")
	flag.StringVar(&modelName, "model", "gpt-4o-mini", "Chat model name.")
	flag.StringVar(&baseURL, "base-url", "", "OpenAI-compatible endpoint base URL.")
	flag.StringVar(&output, "output", "grades.xlsx", "Output xlsx file path.")
	flag.StringVar(&dbPath, "db", "", "Optional SQLite path to persist grading records.")
	flag.IntVar(&parallelism, "parallelism", batch.DefaultParallelism, "Concurrent grading pipelines.")
	flag.IntVar(&chunkSize, "chunk-size", batch.DefaultChunkSize, "Tasks per scheduling chunk.")
	flag.DurationVar(&cooldown, "cooldown", 0, "Pause between scheduling chunks.")
	flag.Float64Var(&threshold, "threshold", pipeline.DefaultConfig().DivergenceThreshold, "Grader divergence threshold.")
	flag.IntVar(&topK, "top-k", pipeline.DefaultRetrievalTopK, "Reference snippets retrieved per question.")
	flag.Float64Var(&temperature, "temperature", 0, "Sampling temperature for all grading roles.")
	flag.IntVar(&maxRetries, "max-retries", grader.DefaultMaxRetries, "Transient retries per grader invocation.")
	flag.BoolVar(&requireRetrieval, "require-retrieval", false, "Fail answers with no reference material instead of grading without it.")
	flag.BoolVar(&disableScale, "disable-scale-detection", false, "Turn off the [0,1]-scale output heuristic for sub-unit rubrics.")
	flag.Parse()

	if questionsGlob == "" || answersGlob == "" {
		fmt.Fprintln(os.Stderr, "questions and answers are required.")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, runOptions{
		questionsGlob:    questionsGlob,
		answersGlob:      answersGlob,
		corpusGlob:       corpusGlob,
		modelName:        modelName,
		baseURL:          baseURL,
		output:           output,
		dbPath:           dbPath,
		parallelism:      parallelism,
		chunkSize:        chunkSize,
		cooldown:         cooldown,
		threshold:        threshold,
		topK:             topK,
		temperature:      temperature,
		maxRetries:       maxRetries,
		requireRetrieval: requireRetrieval,
		disableScale:     disableScale,
	}); err != nil {
		log.Fatalf("gradebatch: %v", err)
	}
}

type runOptions struct {
	questionsGlob    string
	answersGlob      string
	corpusGlob       string
	modelName        string
	baseURL          string
	output           string
	dbPath           string
	parallelism      int
	chunkSize        int
	cooldown         time.Duration
	threshold        float64
	topK             int
	temperature      float64
	maxRetries       int
	requireRetrieval bool
	disableScale     bool
}

func run(ctx context.Context, opts runOptions) error {
	questions, err := loadQuestions(opts.questionsGlob)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	answers, err := loadAnswers(opts.answersGlob)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	tasks, err := buildTasks(questions, answers)
	if err != nil {
		return err
	}

	store := inmemory.New()
	if opts.corpusGlob != "" {
		docs, err := loadCorpus(opts.corpusGlob)
		if err != nil {
			return fmt.Errorf("load corpus: %w", err)
		}
		store.Add(docs...)
	}
	retriever, err := retrieval.NewClient(store)
	if err != nil {
		return err
	}

	cfg := pipeline.DefaultConfig()
	cfg.RetrievalTopK = opts.topK
	cfg.DivergenceThreshold = opts.threshold
	cfg.Temperature = opts.temperature
	cfg.MaxRetries = opts.maxRetries
	cfg.RequireRetrieval = opts.requireRetrieval
	cfg.DisableScaleDetection = opts.disableScale

	chatModel, err := openai.New(opts.modelName,
		openai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
		openai.WithBaseURL(opts.baseURL),
	)
	if err != nil {
		return err
	}
	invoker, err := grader.NewInvoker(chatModel, cfg.GraderOptions()...)
	if err != nil {
		return err
	}

	orchestrator, err := pipeline.New(retriever, invoker, cfg)
	if err != nil {
		return err
	}

	scheduler, err := batch.NewScheduler(orchestrator,
		batch.WithParallelism(opts.parallelism),
		batch.WithChunkSize(opts.chunkSize),
		batch.WithCooldown(opts.cooldown),
	)
	if err != nil {
		return err
	}
	defer scheduler.Close()

	log.Infof("grading %d answers across %d questions with %d reference documents",
		len(tasks), len(questions), store.Len())
	results, summary, err := scheduler.Run(ctx, tasks)
	if err != nil {
		return err
	}
	if summary.Err != nil {
		log.Warnf("%d of %d answers failed:\n%v", summary.Failed, summary.Total, summary.Err)
	}

	if opts.dbPath != "" {
		if err := persistRecords(ctx, opts.dbPath, results); err != nil {
			return err
		}
	}

	if err := exportXLSX(results, exportOptions{OutputPath: opts.output}); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}
	fmt.Printf("Graded %d answers (%d ok, %d failed), report at %s\n",
		summary.Total, summary.Succeeded, summary.Failed, opts.output)
	return nil
}

func persistRecords(ctx context.Context, path string, results []batch.Result) error {
	store, err := sqlite.New(path)
	if err != nil {
		return err
	}
	defer store.Close()
	for _, result := range results {
		if result.Record == nil {
			continue
		}
		if err := store.Save(ctx, result.Record); err != nil {
			return err
		}
	}
	return nil
}
