//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package grader invokes the chat model in a grading role and normalizes its
// structured output against the question rubric.
package grader

import "fmt"

// Role identifies which grader persona an invocation runs under.
type Role string

// Grading roles.
const (
	// RoleGraderA is the first independent grader.
	RoleGraderA Role = "GRADER_A"
	// RoleGraderB is the second independent grader.
	RoleGraderB Role = "GRADER_B"
	// RoleArbiter adjudicates when the two graders diverge.
	RoleArbiter Role = "ARBITER"
)

// Valid reports whether the role is one of the known grading roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGraderA, RoleGraderB, RoleArbiter:
		return true
	}
	return false
}

// String returns the wire name of the role.
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a wire name to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown grader role %q", s)
	}
	return r, nil
}
