//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const questionsJSON = `[
	{
		"id": "q1",
		"statement": "Explain the second law of thermodynamics with an example.",
		"rubric": [
			{"name": "conceito", "weight": 6, "max_score": 6},
			{"name": "exemplo", "weight": 4, "max_score": 4}
		],
		"metadata": {"discipline": "physics", "topic": "thermodynamics"}
	}
]`

const answersJSON = `[
	{"student_id": "s1", "question_id": "q1", "text": "  Entropy never decreases.  "},
	{"student_id": "s2", "question_id": "q1", "text": "Heat flows from hot to cold."}
]`

const corpusJSON = `[
	{"content": "The entropy of an isolated system never decreases.", "source": "thermo.pdf", "discipline": "physics"}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadQuestionsAndBuildTasks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "questions.json", questionsJSON)
	writeFile(t, dir, "answers.json", answersJSON)

	questions, err := loadQuestions(filepath.Join(dir, "questions.json"))
	require.NoError(t, err)
	require.Len(t, questions, 1)

	answers, err := loadAnswers(filepath.Join(dir, "answers.json"))
	require.NoError(t, err)
	require.Len(t, answers, 2)
	// Answers are normalized on load.
	assert.Equal(t, "Entropy never decreases.", answers[0].Text)

	tasks, err := buildTasks(questions, answers)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "q1", tasks[0].Question.ID)
	assert.Equal(t, "s1", tasks[0].Answer.StudentID)
	assert.Equal(t, "s2", tasks[1].Answer.StudentID)
}

func TestLoadQuestionsGlobMatchesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "exams", "midterm"), 0o755))
	writeFile(t, filepath.Join(dir, "exams", "midterm"), "q.json", questionsJSON)

	questions, err := loadQuestions(filepath.Join(dir, "**", "*.json"))
	require.NoError(t, err)
	assert.Len(t, questions, 1)
}

func TestLoadQuestionsRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", questionsJSON)
	writeFile(t, dir, "b.json", questionsJSON)

	_, err := loadQuestions(filepath.Join(dir, "*.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate question id")
}

func TestLoadQuestionsNoMatch(t *testing.T) {
	_, err := loadQuestions(filepath.Join(t.TempDir(), "*.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files match")
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "corpus.json", corpusJSON)

	docs, err := loadCorpus(filepath.Join(dir, "corpus.json"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "physics", docs[0].Discipline)
}

func TestLoadCorpusRejectsEmptyContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "corpus.json", `[{"content": "", "discipline": "physics"}]`)

	_, err := loadCorpus(filepath.Join(dir, "corpus.json"))
	assert.Error(t, err)
}

func TestBuildTasksUnknownQuestion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "questions.json", questionsJSON)
	questions, err := loadQuestions(filepath.Join(dir, "questions.json"))
	require.NoError(t, err)

	writeFile(t, dir, "answers.json", `[{"student_id": "s1", "question_id": "q404", "text": "hi there"}]`)
	answers, err := loadAnswers(filepath.Join(dir, "answers.json"))
	require.NoError(t, err)

	_, err = buildTasks(questions, answers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown question")
}
