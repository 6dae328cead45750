//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package openai provides the OpenAI-compatible chat model used for grader
// invocations. Any endpoint speaking the chat completions protocol works
// through the BaseURL option.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/gradeflow/errdefs"
	"trpc.group/trpc-go/gradeflow/model"
)

type options struct {
	apiKey  string
	baseURL string
	extra   []openaiopt.RequestOption
}

// Option configures the model.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL sets an OpenAI-compatible endpoint base URL.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithRequestOptions appends raw client request options.
func WithRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.extra = append(o.extra, opts...) }
}

// Model is a model.ChatModel backed by the openai-go client.
type Model struct {
	client openai.Client
	name   string
}

// New creates a chat model for the named provider model.
func New(name string, opts ...Option) (*Model, error) {
	if name == "" {
		return nil, errors.New("model name is empty")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.extra...)
	return &Model{
		client: openai.NewClient(clientOpts...),
		name:   name,
	}, nil
}

// GenerateContent performs a single non-streaming chat completion.
func (m *Model) GenerateContent(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(req.Messages),
	}
	if req.Generation.Temperature != nil {
		chatRequest.Temperature = openai.Float(*req.Generation.Temperature)
	}
	if req.Generation.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*req.Generation.MaxTokens))
	}
	if req.JSONSchema != nil {
		chatRequest.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.JSONSchema.Name,
					Schema:      req.JSONSchema.Schema,
					Strict:      openai.Bool(req.JSONSchema.Strict),
					Description: openai.String(req.JSONSchema.Description),
				},
			},
		}
	}
	completion, err := m.client.Chat.Completions.New(ctx, chatRequest)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, errdefs.New(errdefs.KindOutputMalformed, "chat completion has no choices")
	}
	return &model.Response{
		ID:      completion.ID,
		Model:   completion.Model,
		Content: completion.Choices[0].Message.Content,
	}, nil
}

// classifyError maps provider errors to grading error kinds so that the
// grader retry loop can decide without importing the SDK.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return errdefs.Wrap(errdefs.KindCancelled, err, "chat completion")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errdefs.Wrap(errdefs.KindTransientRemote, err, "chat completion deadline")
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if isTransientStatus(apiErr.StatusCode) {
			return errdefs.Wrap(errdefs.KindTransientRemote, err,
				"chat completion status %d", apiErr.StatusCode)
		}
		return fmt.Errorf("chat completion status %d: %w", apiErr.StatusCode, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errdefs.Wrap(errdefs.KindTransientRemote, err, "chat completion network error")
	}
	return fmt.Errorf("chat completion: %w", err)
}

func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
