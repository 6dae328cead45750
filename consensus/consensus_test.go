//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package consensus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/gradeflow/grader"
)

func out(role grader.Role, total float64) *grader.Output {
	return &grader.Output{Role: role, TotalScore: total}
}

func TestDivergenceBelowThreshold(t *testing.T) {
	r := Divergence(out(grader.RoleGraderA, 8.0), out(grader.RoleGraderB, 7.0), 1.5)
	assert.InDelta(t, 1.0, r.Gap, 1e-9)
	assert.False(t, r.ArbitrationRequired)
}

func TestDivergenceExactlyAtThresholdDoesNotArbitrate(t *testing.T) {
	r := Divergence(out(grader.RoleGraderA, 8.5), out(grader.RoleGraderB, 7.0), 1.5)
	assert.InDelta(t, 1.5, r.Gap, 1e-9)
	assert.False(t, r.ArbitrationRequired)
}

func TestDivergenceAboveThreshold(t *testing.T) {
	r := Divergence(out(grader.RoleGraderA, 9.0), out(grader.RoleGraderB, 4.0), 1.5)
	assert.InDelta(t, 5.0, r.Gap, 1e-9)
	assert.True(t, r.ArbitrationRequired)
}

func TestDivergenceIsSymmetric(t *testing.T) {
	a, b := out(grader.RoleGraderA, 3.0), out(grader.RoleGraderB, 6.0)
	assert.Equal(t, Divergence(a, b, 1.5).Gap, Divergence(b, a, 1.5).Gap)
}

func TestDivergenceMissingOutputForcesArbitration(t *testing.T) {
	r := Divergence(out(grader.RoleGraderA, 5.0), nil, 1.5)
	assert.True(t, math.IsInf(r.Gap, 1))
	assert.True(t, r.ArbitrationRequired)
}

func TestDivergenceDefaultsThreshold(t *testing.T) {
	r := Divergence(out(grader.RoleGraderA, 8.0), out(grader.RoleGraderB, 6.0), 0)
	assert.InDelta(t, DefaultDivergenceThreshold, r.Threshold, 1e-9)
	assert.True(t, r.ArbitrationRequired)
}

func TestAggregateTwoGradersMean(t *testing.T) {
	final, err := Aggregate([]*grader.Output{
		out(grader.RoleGraderA, 8.0),
		out(grader.RoleGraderB, 7.0),
	})
	require.NoError(t, err)
	assert.InDelta(t, 7.5, final, 1e-9)
}

func TestAggregateThreeGradersDropsOutlier(t *testing.T) {
	final, err := Aggregate([]*grader.Output{
		out(grader.RoleGraderA, 9.0),
		out(grader.RoleGraderB, 4.0),
		out(grader.RoleArbiter, 8.0),
	})
	require.NoError(t, err)
	// 8 and 9 are the closest pair; 4 is discarded.
	assert.InDelta(t, 8.5, final, 1e-9)
}

func TestAggregateThreeGradersTieFavorsUpperPair(t *testing.T) {
	final, err := Aggregate([]*grader.Output{
		out(grader.RoleGraderA, 4.0),
		out(grader.RoleGraderB, 6.0),
		out(grader.RoleArbiter, 8.0),
	})
	require.NoError(t, err)
	// Both pairs are 2 apart; the upper pair (6, 8) wins.
	assert.InDelta(t, 7.0, final, 1e-9)
}

func TestAggregateOrderIndependent(t *testing.T) {
	totals := []float64{9.0, 4.0, 8.0}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		final, err := Aggregate([]*grader.Output{
			out(grader.RoleGraderA, totals[p[0]]),
			out(grader.RoleGraderB, totals[p[1]]),
			out(grader.RoleArbiter, totals[p[2]]),
		})
		require.NoError(t, err)
		assert.InDelta(t, 8.5, final, 1e-9)
	}
}

func TestAggregateDoesNotMutateInputs(t *testing.T) {
	outputs := []*grader.Output{
		out(grader.RoleGraderA, 9.0),
		out(grader.RoleGraderB, 4.0),
		out(grader.RoleArbiter, 8.0),
	}
	_, err := Aggregate(outputs)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, outputs[0].TotalScore, 1e-9)
	assert.InDelta(t, 4.0, outputs[1].TotalScore, 1e-9)
	assert.InDelta(t, 8.0, outputs[2].TotalScore, 1e-9)
}

func TestAggregateRejectsTooFewOutputs(t *testing.T) {
	_, err := Aggregate([]*grader.Output{out(grader.RoleGraderA, 5.0)})
	require.Error(t, err)

	_, err = Aggregate(nil)
	require.Error(t, err)
}

func TestAggregateRejectsNilOutput(t *testing.T) {
	_, err := Aggregate([]*grader.Output{out(grader.RoleGraderA, 5.0), nil})
	require.Error(t, err)
}
