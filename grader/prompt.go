//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package grader

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"trpc.group/trpc-go/gradeflow/retrieval"
	"trpc.group/trpc-go/gradeflow/rubric"
)

const graderPreamble = `You are an expert exam evaluator for the discipline of {{.Discipline}}.
Grade the student answer strictly against the rubric below.

Instructions:
- Use the reference material as the primary source of truth, but accept technically correct answers that are equivalent to the reference even when phrased differently.
- Penalize vague generalization that does not engage with the question.
- Write your step-by-step reasoning BEFORE assigning any score.
- If the reference material block is empty, grade using the rubric and your domain knowledge alone.
- Award each criterion a score between 0 and its max_score.
- Respond ONLY with a JSON object matching the required output schema.`

const arbiterPreamble = `You are the senior arbiter evaluator for the discipline of {{.Discipline}}.
Two independent graders disagreed about this student answer by {{printf "%.2f" .Gap}} points.
Re-grade the answer yourself, criterion by criterion. Read both graders' reasoning, but do NOT average their scores: decide each criterion independently on the merits.

Instructions:
- Use the reference material as the primary source of truth, but accept technically correct answers that are equivalent to the reference even when phrased differently.
- Penalize vague generalization that does not engage with the question.
- Write your step-by-step reasoning BEFORE assigning any score.
- If the reference material block is empty, grade using the rubric and your domain knowledge alone.
- Award each criterion a score between 0 and its max_score.
- Respond ONLY with a JSON object matching the required output schema.`

const promptBody = `
## Question
{{.Statement}}

## Rubric (name | weight | max_score | description)
{{.Rubric}}

## Reference material
{{.Snippets}}

## Student answer
{{.Answer}}
{{- if .PeerReviews}}

## Prior grader assessments
{{.PeerReviews}}
{{- end}}`

// strictJSONReminder is appended when the model failed to produce parseable
// JSON and the call is re-issued.
const strictJSONReminder = `

IMPORTANT: your previous output was not valid JSON. Respond with STRICT JSON only: a single object, no markdown fences, no commentary outside the JSON object.`

var (
	graderTmpl  = template.Must(template.New("grader_prompt").Parse(graderPreamble + promptBody))
	arbiterTmpl = template.Must(template.New("arbiter_prompt").Parse(arbiterPreamble + promptBody))
)

type promptData struct {
	// Discipline scopes the evaluator persona.
	Discipline string
	// Statement is the question text.
	Statement string
	// Rubric is the formatted rubric table.
	Rubric string
	// Snippets is the formatted reference material block.
	Snippets string
	// Answer is the student answer text.
	Answer string
	// Gap is the divergence between the two primary graders (arbiter only).
	Gap float64
	// PeerReviews is the formatted peer assessment block (arbiter only).
	PeerReviews string
}

// PeerContext carries the two primary grader outputs to the arbiter.
type PeerContext struct {
	// GraderA is the first grader output.
	GraderA *Output
	// GraderB is the second grader output.
	GraderB *Output
	// Gap is the absolute difference between the two totals.
	Gap float64
}

// buildPrompt renders the role-specific grading prompt.
func buildPrompt(role Role, question rubric.Question, answer rubric.StudentAnswer,
	snippets []retrieval.Snippet, peer *PeerContext) (string, error) {
	data := promptData{
		Discipline: question.Metadata.Discipline,
		Statement:  question.Statement,
		Rubric:     formatRubric(question.Rubric),
		Snippets:   formatSnippets(snippets),
		Answer:     answer.Text,
	}
	tmpl := graderTmpl
	if role == RoleArbiter {
		if peer == nil || peer.GraderA == nil || peer.GraderB == nil {
			return "", fmt.Errorf("arbiter prompt requires both peer outputs")
		}
		tmpl = arbiterTmpl
		data.Gap = peer.Gap
		data.PeerReviews = formatPeerReviews(peer)
	} else if peer != nil {
		return "", fmt.Errorf("peer outputs are only accepted by the arbiter role, got %s", role)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", role, err)
	}
	return buf.String(), nil
}

func formatRubric(criteria []rubric.Criterion) string {
	var b strings.Builder
	for _, c := range criteria {
		fmt.Fprintf(&b, "- %s | %.2f | %.2f | %s\n", c.Name, c.Weight, c.MaxScore, c.Description)
	}
	return strings.TrimSpace(b.String())
}

func formatSnippets(snippets []retrieval.Snippet) string {
	if len(snippets) == 0 {
		return "(no reference material retrieved)"
	}
	var b strings.Builder
	for i, s := range snippets {
		location := s.Source
		if s.Page != nil {
			location = fmt.Sprintf("%s, p.%d", s.Source, *s.Page)
		}
		fmt.Fprintf(&b, "[#%d] (%s) %s\n", i+1, location, s.Content)
	}
	return strings.TrimSpace(b.String())
}

func formatPeerReviews(peer *PeerContext) string {
	var b strings.Builder
	for _, out := range []*Output{peer.GraderA, peer.GraderB} {
		fmt.Fprintf(&b, "### %s (total %.2f)\n%s\n\n", out.Role, out.TotalScore, out.Reasoning)
	}
	fmt.Fprintf(&b, "Score gap between graders: %.2f", peer.Gap)
	return b.String()
}

// outputSchema is the JSON schema requested from the provider for every
// grading role.
func outputSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"reasoning", "criterion_scores", "total_score", "feedback_text"},
		"properties": map[string]any{
			"reasoning": map[string]any{"type": "string", "minLength": 1},
			"criterion_scores": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"criterion_name", "score"},
					"properties": map[string]any{
						"criterion_name": map[string]any{"type": "string", "minLength": 1},
						"score":          map[string]any{"type": "number", "minimum": 0},
						"feedback":       map[string]any{"type": "string"},
					},
				},
			},
			"total_score":   map[string]any{"type": "number", "minimum": 0, "maximum": 10},
			"feedback_text": map[string]any{"type": "string"},
			"confidence":    map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
	}
}
