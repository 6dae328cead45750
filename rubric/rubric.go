//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package rubric defines the exam question and rubric value types shared by
// the grading pipeline.
package rubric

import (
	"errors"
	"fmt"
	"strings"
)

// Difficulty levels recognized in question metadata.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

const minStatementLength = 10

// Criterion is a single weighted rubric criterion.
type Criterion struct {
	// Name identifies the criterion, unique within a rubric.
	Name string `json:"name"`
	// Description explains what the criterion evaluates.
	Description string `json:"description,omitempty"`
	// Weight is the relative weight of the criterion within the rubric.
	Weight float64 `json:"weight"`
	// MaxScore is the maximum score attainable on this criterion.
	MaxScore float64 `json:"max_score"`
}

// Metadata scopes a question to an exam.
type Metadata struct {
	// Discipline is the hard retrieval filter for the question.
	Discipline string `json:"discipline"`
	// Topic refines the semantic intent of retrieval queries.
	Topic string `json:"topic"`
	// Difficulty is optional: easy, medium, or hard.
	Difficulty string `json:"difficulty,omitempty"`
}

// Question is an exam question with its rubric.
type Question struct {
	// ID is an opaque question identifier.
	ID string `json:"id"`
	// Statement is the question text shown to students.
	Statement string `json:"statement"`
	// Rubric is the ordered list of grading criteria.
	Rubric []Criterion `json:"rubric"`
	// Metadata scopes the question to a discipline and topic.
	Metadata Metadata `json:"metadata"`
}

// StudentAnswer is one student's free-text answer to a question.
type StudentAnswer struct {
	// StudentID identifies the student.
	StudentID string `json:"student_id"`
	// QuestionID references the graded question.
	QuestionID string `json:"question_id"`
	// Text is the trimmed answer text.
	Text string `json:"text"`
}

// Validate checks the criterion invariants.
func (c Criterion) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("criterion name is empty")
	}
	if c.Weight <= 0 {
		return fmt.Errorf("criterion %s: weight must be positive: %v", c.Name, c.Weight)
	}
	if c.MaxScore <= 0 || c.MaxScore > 100 {
		return fmt.Errorf("criterion %s: max score must be in (0, 100]: %v", c.Name, c.MaxScore)
	}
	return nil
}

// Validate checks the question invariants.
func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return errors.New("question id is empty")
	}
	if len(strings.TrimSpace(q.Statement)) < minStatementLength {
		return fmt.Errorf("question %s: statement shorter than %d characters", q.ID, minStatementLength)
	}
	if len(q.Rubric) == 0 {
		return fmt.Errorf("question %s: rubric is empty", q.ID)
	}
	seen := make(map[string]struct{}, len(q.Rubric))
	totalWeight := 0.0
	for _, c := range q.Rubric {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("question %s: duplicate criterion name %s", q.ID, c.Name)
		}
		seen[c.Name] = struct{}{}
		totalWeight += c.Weight
	}
	if totalWeight <= 0 {
		return fmt.Errorf("question %s: rubric weight sum must be positive", q.ID)
	}
	if strings.TrimSpace(q.Metadata.Discipline) == "" {
		return fmt.Errorf("question %s: discipline is empty", q.ID)
	}
	if strings.TrimSpace(q.Metadata.Topic) == "" {
		return fmt.Errorf("question %s: topic is empty", q.ID)
	}
	switch q.Metadata.Difficulty {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("question %s: unknown difficulty %q", q.ID, q.Metadata.Difficulty)
	}
	return nil
}

// Criterion returns the rubric criterion with the given name.
func (q Question) Criterion(name string) (Criterion, bool) {
	for _, c := range q.Rubric {
		if c.Name == name {
			return c, true
		}
	}
	return Criterion{}, false
}

// MaxScoreOf returns the max score of the named criterion, or 0 when unknown.
func (q Question) MaxScoreOf(name string) float64 {
	c, ok := q.Criterion(name)
	if !ok {
		return 0
	}
	return c.MaxScore
}

// Validate checks the student answer invariants.
func (a StudentAnswer) Validate() error {
	if strings.TrimSpace(a.StudentID) == "" {
		return errors.New("student id is empty")
	}
	if strings.TrimSpace(a.QuestionID) == "" {
		return errors.New("question id is empty")
	}
	if strings.TrimSpace(a.Text) == "" {
		return errors.New("answer text is empty")
	}
	return nil
}

// Normalize returns a copy of the answer with trimmed text.
func (a StudentAnswer) Normalize() StudentAnswer {
	a.Text = strings.TrimSpace(a.Text)
	return a
}
