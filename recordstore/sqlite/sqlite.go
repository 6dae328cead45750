//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package sqlite stores grading records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"trpc.group/trpc-go/gradeflow/pipeline"
	"trpc.group/trpc-go/gradeflow/recordstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS grading_records (
	id          TEXT PRIMARY KEY,
	question_id TEXT NOT NULL,
	student_id  TEXT NOT NULL,
	final_grade REAL NOT NULL,
	divergence  INTEGER NOT NULL,
	gap         REAL NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_grading_records_question ON grading_records (question_id, created_at);
`

// Store is a SQLite-backed record store.
type Store struct {
	db *sql.DB
}

var _ recordstore.Store = (*Store)(nil)

// New opens (and creates if needed) the record store at path. Use ":memory:"
// for an ephemeral store.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite record store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite record store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save stores a record, replacing any record with the same id.
func (s *Store) Save(ctx context.Context, rec *pipeline.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if rec.ID == "" {
		return errors.New("record id is empty")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO grading_records
			(id, question_id, student_id, final_grade, divergence, gap, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.QuestionID, rec.StudentID, rec.FinalGrade,
		rec.DivergenceDetected, rec.Gap, string(payload), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*pipeline.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM grading_records WHERE id = ?`, id)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", id, recordstore.ErrNotFound)
		}
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}
	return decode(payload)
}

// List returns records for a question, newest first. An empty questionID
// lists every record.
func (s *Store) List(ctx context.Context, questionID string) ([]*pipeline.Record, error) {
	query := `SELECT payload FROM grading_records ORDER BY created_at DESC, id`
	args := []any{}
	if questionID != "" {
		query = `SELECT payload FROM grading_records WHERE question_id = ? ORDER BY created_at DESC, id`
		args = append(args, questionID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records for question %q: %w", questionID, err)
	}
	defer rows.Close()
	var records []*pipeline.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record payload: %w", err)
		}
		rec, err := decode(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func decode(payload string) (*pipeline.Record, error) {
	var rec pipeline.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode record payload: %w", err)
	}
	return &rec, nil
}
