//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package rubric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuestion() Question {
	return Question{
		ID:        "q-thermo-01",
		Statement: "Explain the second law of thermodynamics and give one everyday example.",
		Rubric: []Criterion{
			{Name: "conceito", Description: "States the law correctly.", Weight: 6, MaxScore: 6},
			{Name: "exemplo", Description: "Gives a valid example.", Weight: 4, MaxScore: 4},
		},
		Metadata: Metadata{Discipline: "physics", Topic: "thermodynamics", Difficulty: DifficultyMedium},
	}
}

func TestQuestionValidateOK(t *testing.T) {
	require.NoError(t, validQuestion().Validate())
}

func TestQuestionValidateRejectsShortStatement(t *testing.T) {
	q := validQuestion()
	q.Statement = "too short"
	assert.ErrorContains(t, q.Validate(), "statement")
}

func TestQuestionValidateRejectsEmptyRubric(t *testing.T) {
	q := validQuestion()
	q.Rubric = nil
	assert.ErrorContains(t, q.Validate(), "rubric is empty")
}

func TestQuestionValidateRejectsDuplicateCriterion(t *testing.T) {
	q := validQuestion()
	q.Rubric = append(q.Rubric, q.Rubric[0])
	assert.ErrorContains(t, q.Validate(), "duplicate criterion")
}

func TestQuestionValidateRejectsBadWeight(t *testing.T) {
	q := validQuestion()
	q.Rubric[0].Weight = 0
	assert.ErrorContains(t, q.Validate(), "weight")
}

func TestQuestionValidateRejectsBadMaxScore(t *testing.T) {
	q := validQuestion()
	q.Rubric[0].MaxScore = 101
	assert.ErrorContains(t, q.Validate(), "max score")
}

func TestQuestionValidateRejectsUnknownDifficulty(t *testing.T) {
	q := validQuestion()
	q.Metadata.Difficulty = "brutal"
	assert.ErrorContains(t, q.Validate(), "difficulty")
}

func TestQuestionValidateRejectsMissingMetadata(t *testing.T) {
	q := validQuestion()
	q.Metadata.Discipline = " "
	assert.ErrorContains(t, q.Validate(), "discipline")

	q = validQuestion()
	q.Metadata.Topic = ""
	assert.ErrorContains(t, q.Validate(), "topic")
}

func TestMaxScoreOf(t *testing.T) {
	q := validQuestion()
	assert.Equal(t, 6.0, q.MaxScoreOf("conceito"))
	assert.Equal(t, 0.0, q.MaxScoreOf("unknown"))
	_, ok := q.Criterion("exemplo")
	assert.True(t, ok)
}

func TestStudentAnswerValidate(t *testing.T) {
	a := StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "  entropy always grows  "}
	require.NoError(t, a.Validate())
	assert.Equal(t, "entropy always grows", a.Normalize().Text)

	a.Text = "   "
	assert.ErrorContains(t, a.Validate(), "answer text")
}
