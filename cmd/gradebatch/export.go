//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"trpc.group/trpc-go/gradeflow/batch"
	"trpc.group/trpc-go/gradeflow/grader"
	"trpc.group/trpc-go/gradeflow/pipeline"
)

const defaultSheetName = "Grades"

type exportOptions struct {
	OutputPath string
	SheetName  string
}

func exportXLSX(results []batch.Result, opts exportOptions) error {
	if opts.OutputPath == "" {
		return errors.New("output path is required")
	}

	sheetName := opts.SheetName
	if sheetName == "" {
		sheetName = defaultSheetName
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	originalSheet := file.GetSheetName(0)
	if err := file.SetSheetName(originalSheet, sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := setColumnWidths(file, sheetName); err != nil {
		return err
	}

	header := []string{
		"Question", "Student", "Final Grade", "Grader A", "Grader B", "Arbiter",
		"Gap", "Divergence", "Warnings", "Error", "Record ID",
	}
	for idx, title := range header {
		cell, cellErr := excelize.CoordinatesToCellName(idx+1, 1)
		if cellErr != nil {
			return fmt.Errorf("convert header cell: %w", cellErr)
		}
		if err := file.SetCellValue(sheetName, cell, title); err != nil {
			return fmt.Errorf("write header %s: %w", cell, err)
		}
	}

	for i, result := range results {
		row := i + 2
		for cell, value := range resultCells(result, row) {
			if err := file.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}

	if err := file.SaveAs(opts.OutputPath); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}

	return nil
}

func resultCells(result batch.Result, row int) map[string]any {
	if result.Err != nil {
		return map[string]any{
			fmt.Sprintf("J%d", row): result.Err.Error(),
		}
	}
	rec := result.Record
	cells := map[string]any{
		fmt.Sprintf("A%d", row): rec.QuestionID,
		fmt.Sprintf("B%d", row): rec.StudentID,
		fmt.Sprintf("C%d", row): rec.FinalGrade,
		fmt.Sprintf("G%d", row): rec.Gap,
		fmt.Sprintf("H%d", row): rec.DivergenceDetected,
		fmt.Sprintf("I%d", row): strings.Join(rec.Warnings, "; "),
		fmt.Sprintf("K%d", row): rec.ID,
	}
	if total, ok := totalOf(rec, grader.RoleGraderA); ok {
		cells[fmt.Sprintf("D%d", row)] = total
	}
	if total, ok := totalOf(rec, grader.RoleGraderB); ok {
		cells[fmt.Sprintf("E%d", row)] = total
	}
	if total, ok := totalOf(rec, grader.RoleArbiter); ok {
		cells[fmt.Sprintf("F%d", row)] = total
	}
	return cells
}

func totalOf(rec *pipeline.Record, role grader.Role) (float64, bool) {
	for _, out := range rec.GraderOutputs {
		if out != nil && out.Role == role {
			return out.TotalScore, true
		}
	}
	return 0, false
}

func setColumnWidths(file *excelize.File, sheetName string) error {
	if err := file.SetColWidth(sheetName, "A", "B", 18); err != nil {
		return fmt.Errorf("set width for A-B: %w", err)
	}
	if err := file.SetColWidth(sheetName, "C", "H", 12); err != nil {
		return fmt.Errorf("set width for C-H: %w", err)
	}
	if err := file.SetColWidth(sheetName, "I", "J", 50); err != nil {
		return fmt.Errorf("set width for I-J: %w", err)
	}
	if err := file.SetColWidth(sheetName, "K", "K", 40); err != nil {
		return fmt.Errorf("set width for K: %w", err)
	}
	return nil
}
