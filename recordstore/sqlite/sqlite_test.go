//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/gradeflow/grader"
	"trpc.group/trpc-go/gradeflow/pipeline"
	"trpc.group/trpc-go/gradeflow/recordstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id, questionID, studentID string, grade float64, at time.Time) *pipeline.Record {
	return &pipeline.Record{
		ID:         id,
		QuestionID: questionID,
		StudentID:  studentID,
		FinalGrade: grade,
		Gap:        0.5,
		GraderOutputs: []*grader.Output{
			{Role: grader.RoleGraderA, TotalScore: grade, Reasoning: "ok"},
			{Role: grader.RoleGraderB, TotalScore: grade, Reasoning: "ok"},
		},
		CreatedAt: at,
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := sampleRecord("r1", "q1", "s1", 7.5, time.Now().UTC())
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.StudentID, got.StudentID)
	assert.InDelta(t, 7.5, got.FinalGrade, 1e-9)
	require.Len(t, got.GraderOutputs, 2)
	assert.Equal(t, grader.RoleGraderB, got.GraderOutputs[1].Role)
}

func TestGetMissingRecord(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, recordstore.ErrNotFound)
}

func TestSaveReplacesExistingRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleRecord("r1", "q1", "s1", 5.0, time.Now().UTC())))
	require.NoError(t, s.Save(ctx, sampleRecord("r1", "q1", "s1", 9.0, time.Now().UTC())))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.InDelta(t, 9.0, got.FinalGrade, 1e-9)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListFiltersByQuestion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, sampleRecord("r1", "q1", "s1", 7.0, base)))
	require.NoError(t, s.Save(ctx, sampleRecord("r2", "q1", "s2", 8.0, base.Add(time.Minute))))
	require.NoError(t, s.Save(ctx, sampleRecord("r3", "q2", "s1", 6.0, base.Add(2*time.Minute))))

	q1, err := s.List(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, q1, 2)
	// Newest first.
	assert.Equal(t, "r2", q1[0].ID)
	assert.Equal(t, "r1", q1[1].ID)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSaveValidation(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Save(context.Background(), nil))
	assert.Error(t, s.Save(context.Background(), &pipeline.Record{}))
}

func TestNewValidation(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
