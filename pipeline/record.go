//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package pipeline

import (
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/gradeflow/grader"
	"trpc.group/trpc-go/gradeflow/retrieval"
)

// Phase identifies one state of the grading pipeline.
type Phase string

// Pipeline phases, in execution order. ARBITRATE only runs when the primary
// graders diverge.
const (
	PhaseInit        Phase = "INIT"
	PhaseRetrieve    Phase = "RETRIEVE"
	PhaseGradeFanout Phase = "GRADE_FANOUT"
	PhaseJoin        Phase = "JOIN"
	PhaseArbitrate   Phase = "ARBITRATE"
	PhaseFinalize    Phase = "FINALIZE"
	PhaseDone        Phase = "DONE"
	PhaseFailed      Phase = "FAILED"
)

// Timings holds per-phase wall-clock durations of one pipeline run.
type Timings struct {
	Retrieval   time.Duration `json:"retrieval"`
	Grading     time.Duration `json:"grading"`
	Arbitration time.Duration `json:"arbitration,omitempty"`
	Total       time.Duration `json:"total"`
}

// Record is the complete audit trail of one graded answer.
type Record struct {
	// ID uniquely identifies this grading run.
	ID string `json:"id"`
	// QuestionID and StudentID identify the graded answer.
	QuestionID string `json:"question_id"`
	StudentID  string `json:"student_id"`
	// FinalGrade is the consensus grade in [0,10].
	FinalGrade float64 `json:"final_grade"`
	// GraderOutputs holds the grader A and B outputs, plus the arbiter output
	// when arbitration ran, in that order.
	GraderOutputs []*grader.Output `json:"grader_outputs"`
	// DivergenceDetected is true when the primary graders diverged.
	DivergenceDetected bool `json:"divergence_detected"`
	// Gap is the absolute score gap between the primary graders.
	Gap float64 `json:"gap"`
	// RetrievedSnippets is the reference material both graders saw.
	RetrievedSnippets []retrieval.Snippet `json:"retrieved_snippets,omitempty"`
	// Timings holds the per-phase durations.
	Timings Timings `json:"timings"`
	// Warnings collects non-fatal anomalies, such as empty retrieval.
	Warnings []string `json:"warnings,omitempty"`
	// CreatedAt is when the pipeline started.
	CreatedAt time.Time `json:"created_at"`
}

func newRecord(questionID, studentID string, now time.Time) *Record {
	return &Record{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		StudentID:  studentID,
		CreatedAt:  now,
	}
}

// PhaseEvent notifies a sink of one pipeline phase transition.
type PhaseEvent struct {
	// RecordID is the grading run the event belongs to.
	RecordID string
	// QuestionID and StudentID identify the graded answer.
	QuestionID string
	StudentID  string
	// Phase is the state the pipeline just entered.
	Phase Phase
	// Err is set only for the FAILED phase.
	Err error
}

// Sink observes pipeline phase transitions. Implementations must be safe for
// concurrent use; the batch scheduler drives many pipelines at once.
type Sink interface {
	ObservePhase(event PhaseEvent)
}

type nopSink struct{}

func (nopSink) ObservePhase(PhaseEvent) {}
