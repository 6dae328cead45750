//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"

	"trpc.group/trpc-go/gradeflow/batch"
	"trpc.group/trpc-go/gradeflow/retrieval/inmemory"
	"trpc.group/trpc-go/gradeflow/rubric"
)

// loadJSONFiles decodes every file matching the glob pattern as a JSON array
// of T and concatenates the results.
func loadJSONFiles[T any](pattern string) ([]T, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match %q", pattern)
	}
	var all []T
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		all = append(all, items...)
	}
	return all, nil
}

func loadQuestions(pattern string) (map[string]rubric.Question, error) {
	questions, err := loadJSONFiles[rubric.Question](pattern)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]rubric.Question, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
		if _, ok := byID[q.ID]; ok {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		byID[q.ID] = q
	}
	return byID, nil
}

func loadAnswers(pattern string) ([]rubric.StudentAnswer, error) {
	answers, err := loadJSONFiles[rubric.StudentAnswer](pattern)
	if err != nil {
		return nil, err
	}
	for i, a := range answers {
		a = a.Normalize()
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("answer %d: %w", i, err)
		}
		answers[i] = a
	}
	return answers, nil
}

func loadCorpus(pattern string) ([]inmemory.Document, error) {
	docs, err := loadJSONFiles[inmemory.Document](pattern)
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		if d.Content == "" {
			return nil, fmt.Errorf("corpus document %d has empty content", i)
		}
	}
	return docs, nil
}

// buildTasks pairs each answer with its question, preserving answer order.
func buildTasks(questions map[string]rubric.Question, answers []rubric.StudentAnswer) ([]batch.Task, error) {
	tasks := make([]batch.Task, 0, len(answers))
	for _, a := range answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			return nil, fmt.Errorf("answer from student %s references unknown question %q", a.StudentID, a.QuestionID)
		}
		tasks = append(tasks, batch.Task{Question: q, Answer: a})
	}
	return tasks, nil
}
