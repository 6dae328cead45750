//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package model defines the chat model abstraction consumed by the grading
// core. Concrete providers live in subpackages.
package model

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	// Role is one of system, user, or assistant.
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// GenerationConfig controls sampling and token limits.
type GenerationConfig struct {
	// Temperature is the sampling temperature; nil uses the provider default.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxTokens bounds the completion length; nil uses the provider default.
	MaxTokens *int `json:"max_tokens,omitempty"`
}

// JSONSchema requests native structured output from the provider.
type JSONSchema struct {
	// Name is the schema name reported to the provider.
	Name string
	// Description describes the expected payload.
	Description string
	// Schema is the JSON schema as a generic map.
	Schema map[string]any
	// Strict requests strict schema adherence where supported.
	Strict bool
}

// Request is a chat completion request.
type Request struct {
	// Messages is the ordered conversation.
	Messages []Message
	// Generation controls sampling.
	Generation GenerationConfig
	// JSONSchema, when set, requests structured output conforming to the schema.
	JSONSchema *JSONSchema
}

// Response is a chat completion response.
type Response struct {
	// ID is the provider response identifier.
	ID string
	// Model is the provider model name that produced the response.
	Model string
	// Content is the assistant message content.
	Content string
}

// ChatModel generates a completion for a request. Implementations must be
// safe for concurrent use; the grading pipelines share one instance.
type ChatModel interface {
	// GenerateContent performs a single non-streaming chat completion.
	GenerateContent(ctx context.Context, req *Request) (*Response, error)
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
