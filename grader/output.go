//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package grader

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"trpc.group/trpc-go/gradeflow/errdefs"
	"trpc.group/trpc-go/gradeflow/log"
	"trpc.group/trpc-go/gradeflow/rubric"
)

// Total grades live on a 0..10 scale.
const maxTotalScore = 10.0

// CriterionScore is the model's score for one rubric criterion.
type CriterionScore struct {
	// CriterionName matches a rubric criterion name.
	CriterionName string `json:"criterion_name"`
	// Score is the awarded score, clamped to [0, max score of the criterion].
	Score float64 `json:"score"`
	// Feedback is the optional per-criterion feedback.
	Feedback string `json:"feedback,omitempty"`
}

// Output is a validated, normalized grader result.
type Output struct {
	// Role is the invocation role; it overrides any role the model emitted.
	Role Role `json:"role"`
	// Reasoning is the chain-of-thought produced before the scores.
	Reasoning string `json:"reasoning"`
	// CriterionScores holds one entry per rubric criterion, in rubric order.
	CriterionScores []CriterionScore `json:"criterion_scores"`
	// TotalScore is the sum of criterion scores clamped to [0,10].
	TotalScore float64 `json:"total_score"`
	// FeedbackText is the pedagogical feedback for the student.
	FeedbackText string `json:"feedback_text,omitempty"`
	// Confidence is the optional model self-confidence in [0,1].
	Confidence *float64 `json:"confidence,omitempty"`

	// normalized guards the scale-detection heuristic so it runs at most once.
	normalized bool
}

// looseString tolerates a JSON string or a list of strings (reasoning steps).
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*s = looseString(plain)
		return nil
	}
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or list: %s", compact(data))
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%v", item))
	}
	*s = looseString(strings.Join(parts, "\n"))
	return nil
}

// looseScores tolerates the criterion scores as an array of objects or as a
// mapping from criterion name to score (bare number or object).
type looseScores []CriterionScore

func (cs *looseScores) UnmarshalJSON(data []byte) error {
	var seq []struct {
		CriterionName string      `json:"criterion_name"`
		Name          string      `json:"name"`
		Score         json.Number `json:"score"`
		Feedback      string      `json:"feedback"`
	}
	if err := json.Unmarshal(data, &seq); err == nil {
		out := make([]CriterionScore, 0, len(seq))
		for _, item := range seq {
			name := item.CriterionName
			if name == "" {
				name = item.Name
			}
			score, _ := item.Score.Float64()
			out = append(out, CriterionScore{CriterionName: name, Score: score, Feedback: item.Feedback})
		}
		*cs = out
		return nil
	}
	var mapping map[string]json.RawMessage
	if err := json.Unmarshal(data, &mapping); err != nil {
		return fmt.Errorf("expected array or mapping: %s", compact(data))
	}
	out := make([]CriterionScore, 0, len(mapping))
	for name, raw := range mapping {
		var num float64
		if err := json.Unmarshal(raw, &num); err == nil {
			out = append(out, CriterionScore{CriterionName: name, Score: num})
			continue
		}
		var obj struct {
			Score    float64 `json:"score"`
			Feedback string  `json:"feedback"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("criterion %s: expected number or object: %s", name, compact(raw))
		}
		out = append(out, CriterionScore{CriterionName: name, Score: obj.Score, Feedback: obj.Feedback})
	}
	*cs = out
	return nil
}

// looseOutput is the tolerant wire shape of a grader response.
type looseOutput struct {
	Role            string      `json:"role"`
	Reasoning       looseString `json:"reasoning"`
	CriterionScores looseScores `json:"criterion_scores"`
	TotalScore      json.Number `json:"total_score"`
	FeedbackText    looseString `json:"feedback_text"`
	Confidence      *float64    `json:"confidence"`
}

var numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// ParseOutput decodes a raw model response into a normalized Output for the
// given role and rubric. Free-text responses fall back to numeric recovery;
// responses with no recoverable score fail with an output_malformed error.
func ParseOutput(raw string, role Role, question rubric.Question, disableScaleDetection bool) (*Output, error) {
	raw = strings.TrimSpace(stripCodeFence(raw))
	if raw == "" {
		return nil, errdefs.New(errdefs.KindOutputMalformed, "empty model output")
	}
	var loose looseOutput
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return recoverFromFreeText(raw, role, question)
	}
	out := &Output{
		Reasoning:       string(loose.Reasoning),
		CriterionScores: []CriterionScore(loose.CriterionScores),
		FeedbackText:    string(loose.FeedbackText),
		Confidence:      loose.Confidence,
	}
	if strings.TrimSpace(out.Reasoning) == "" {
		return nil, errdefs.New(errdefs.KindOutputMalformed, "model output has no reasoning")
	}
	if err := out.normalize(role, question, disableScaleDetection); err != nil {
		return nil, err
	}
	return out, nil
}

// normalize applies the normalization pipeline in order: scale detection,
// rubric reconciliation, total computation, role stamping. It is idempotent;
// the scale heuristic never fires twice on the same output.
func (o *Output) normalize(role Role, question rubric.Question, disableScaleDetection bool) error {
	if !o.normalized {
		o.normalized = true
		if !disableScaleDetection && looksNormalizedScale(o.CriterionScores) {
			for i := range o.CriterionScores {
				o.CriterionScores[i].Score *= 10.0
			}
			log.Warnf("grader %s: criterion scores all <= 1.0, assuming [0,1] scale and multiplying by 10", role)
		}
	}
	reconciled, err := reconcileCriteria(o.CriterionScores, role, question)
	if err != nil {
		return err
	}
	o.CriterionScores = reconciled
	total := 0.0
	for _, cs := range o.CriterionScores {
		total += cs.Score
	}
	o.TotalScore = clampTotal(total)
	// The invocation role is authoritative over anything the model emitted.
	o.Role = role
	if o.Confidence != nil {
		c := clamp(*o.Confidence, 0, 1)
		o.Confidence = &c
	}
	return nil
}

// looksNormalizedScale reports whether every criterion score is <= 1.0,
// the heuristic for a model that graded on a [0,1] scale. Rubrics whose
// legitimate maxima are sub-unit must disable the heuristic.
func looksNormalizedScale(scores []CriterionScore) bool {
	if len(scores) == 0 {
		return false
	}
	for _, cs := range scores {
		if cs.Score > 1.0 {
			return false
		}
	}
	return true
}

// reconcileCriteria aligns model criterion scores with the rubric: one entry
// per rubric criterion in rubric order, each clamped to [0, max score].
// Missing criteria score 0 with a synthetic note; unknown criteria are
// dropped and logged. A non-empty score set that matches no rubric criterion
// at all is a criterion mismatch.
func reconcileCriteria(scores []CriterionScore, role Role, question rubric.Question) ([]CriterionScore, error) {
	byName := make(map[string]CriterionScore, len(scores))
	for _, cs := range scores {
		byName[strings.TrimSpace(cs.CriterionName)] = cs
	}
	matched := 0
	out := make([]CriterionScore, 0, len(question.Rubric))
	for _, criterion := range question.Rubric {
		cs, ok := byName[criterion.Name]
		if !ok {
			out = append(out, CriterionScore{
				CriterionName: criterion.Name,
				Score:         0,
				Feedback:      "Criterion not scored by the model.",
			})
			continue
		}
		matched++
		delete(byName, criterion.Name)
		cs.CriterionName = criterion.Name
		cs.Score = clamp(cs.Score, 0, criterion.MaxScore)
		out = append(out, cs)
	}
	if len(scores) > 0 && matched == 0 {
		return nil, errdefs.New(errdefs.KindCriterionMismatch,
			"no model criterion matches the rubric of question %s", question.ID)
	}
	for name := range byName {
		log.Warnf("grader %s: dropping unknown criterion %q for question %s", role, name, question.ID)
	}
	return out, nil
}

// recoverFromFreeText is the last-resort extraction for non-JSON output: the
// first recoverable number becomes the total and the blob becomes the
// reasoning. Criterion scores cannot be recovered and read as zero.
func recoverFromFreeText(raw string, role Role, question rubric.Question) (*Output, error) {
	match := numberPattern.FindString(raw)
	if match == "" {
		return nil, errdefs.New(errdefs.KindOutputMalformed,
			"no numeric score recoverable from free-text output")
	}
	score, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindOutputMalformed, err, "parse recovered score %q", match)
	}
	scores := make([]CriterionScore, 0, len(question.Rubric))
	for _, criterion := range question.Rubric {
		scores = append(scores, CriterionScore{
			CriterionName: criterion.Name,
			Feedback:      "Score recovered from free-text output; per-criterion detail unavailable.",
		})
	}
	log.Warnf("grader %s: model returned free text for question %s, recovered total %.2f", role, question.ID, score)
	return &Output{
		Role:            role,
		Reasoning:       raw,
		CriterionScores: scores,
		TotalScore:      clampTotal(score),
		FeedbackText:    "Automatic grading fallback: the grader returned unstructured output.",
		normalized:      true,
	}, nil
}

func clampTotal(v float64) float64 {
	return clamp(v, 0, maxTotalScore)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return raw
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}

func compact(data []byte) string {
	s := string(data)
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
