//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package recordstore persists grading records for audit and export.
package recordstore

import (
	"context"
	"errors"

	"trpc.group/trpc-go/gradeflow/pipeline"
)

// ErrNotFound is returned when no record matches the requested id.
var ErrNotFound = errors.New("grading record not found")

// Store persists grading records.
type Store interface {
	// Save stores a record, replacing any record with the same id.
	Save(ctx context.Context, rec *pipeline.Record) error
	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*pipeline.Record, error)
	// List returns records for a question ordered by creation time, newest
	// first. An empty questionID lists every record.
	List(ctx context.Context, questionID string) ([]*pipeline.Record, error)
	// Close releases the underlying storage.
	Close() error
}
