//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package consensus decides whether two grader outputs diverge enough to need
// arbitration and combines grader outputs into a final grade.
package consensus

import (
	"math"
	"sort"

	"trpc.group/trpc-go/gradeflow/errdefs"
	"trpc.group/trpc-go/gradeflow/grader"
)

// DefaultDivergenceThreshold is the score gap above which arbitration runs.
const DefaultDivergenceThreshold = 1.5

const maxFinalGrade = 10.0

// Report is the outcome of comparing the two primary grader outputs.
type Report struct {
	// Gap is the absolute difference between the two total scores.
	Gap float64 `json:"gap"`
	// Threshold is the divergence threshold the gap was compared against.
	Threshold float64 `json:"threshold"`
	// ArbitrationRequired is true when the gap strictly exceeds the threshold.
	ArbitrationRequired bool `json:"arbitration_required"`
}

// Divergence compares the two primary grader outputs. A nil output counts as
// an infinite gap, forcing arbitration rather than silently trusting a single
// grader.
func Divergence(a, b *grader.Output, threshold float64) Report {
	if threshold <= 0 {
		threshold = DefaultDivergenceThreshold
	}
	gap := math.Inf(1)
	if a != nil && b != nil {
		gap = math.Abs(a.TotalScore - b.TotalScore)
	}
	return Report{
		Gap:                 gap,
		Threshold:           threshold,
		ArbitrationRequired: gap > threshold,
	}
}

// Aggregate combines grader outputs into the final grade.
//
// With two outputs the final grade is their mean. With three, the two closest
// totals are averaged and the outlier is discarded; when both pairs are
// equally close, the pair with the higher mean wins. The result is clamped to
// [0, 10]. Fewer than two outputs is an internal error: the pipeline never
// finalizes a grade from a single opinion.
func Aggregate(outputs []*grader.Output) (float64, error) {
	totals := make([]float64, 0, len(outputs))
	for _, out := range outputs {
		if out == nil {
			return 0, errdefs.New(errdefs.KindInternal, "nil grader output in aggregation")
		}
		totals = append(totals, out.TotalScore)
	}
	switch len(totals) {
	case 2:
		return clampFinal((totals[0] + totals[1]) / 2), nil
	case 3:
		return clampFinal(closestPairMean(totals)), nil
	default:
		return 0, errdefs.New(errdefs.KindInternal,
			"aggregation requires 2 or 3 grader outputs, got %d", len(totals))
	}
}

// closestPairMean averages the two closest of three totals. Sorting makes the
// result independent of grader order; only adjacent pairs can be closest.
func closestPairMean(totals []float64) float64 {
	s := append([]float64(nil), totals...)
	sort.Float64s(s)
	lowGap := s[1] - s[0]
	highGap := s[2] - s[1]
	// Ties favor the upper pair so the student gets the benefit of the doubt.
	if highGap <= lowGap {
		return (s[1] + s[2]) / 2
	}
	return (s[0] + s[1]) / 2
}

func clampFinal(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > maxFinalGrade {
		return maxFinalGrade
	}
	return v
}
