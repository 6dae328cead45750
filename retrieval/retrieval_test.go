//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/gradeflow/errdefs"
)

type fakeStore struct {
	calls   []Filter
	results map[string][]ScoredDocument
	err     error
}

func (s *fakeStore) SimilaritySearchWithDistance(_ context.Context, _ string, _ int, filter Filter) ([]ScoredDocument, error) {
	s.calls = append(s.calls, filter)
	if s.err != nil {
		return nil, s.err
	}
	return s.results[filter.Discipline], nil
}

func TestSearchConvertsDistanceAndSorts(t *testing.T) {
	store := &fakeStore{results: map[string][]ScoredDocument{
		"physics": {
			{Content: "far chunk", Discipline: "physics", Distance: 3},
			{Content: "near chunk", Discipline: "physics", Distance: 0},
			{Content: "mid chunk", Discipline: "physics", Distance: 1},
		},
	}}
	client, err := NewClient(store)
	require.NoError(t, err)

	snippets, err := client.Search(context.Background(), "entropy", "physics", "thermodynamics", 4)
	require.NoError(t, err)
	require.Len(t, snippets, 3)
	assert.Equal(t, "near chunk", snippets[0].Content)
	assert.InDelta(t, 1.0, snippets[0].Relevance, 1e-9)
	assert.Equal(t, "mid chunk", snippets[1].Content)
	assert.InDelta(t, 0.5, snippets[1].Relevance, 1e-9)
	assert.InDelta(t, 0.25, snippets[2].Relevance, 1e-9)
}

func TestSearchAppliesDisciplineFilterOnly(t *testing.T) {
	store := &fakeStore{results: map[string][]ScoredDocument{
		"history": {{Content: "treaty text", Discipline: "history", Distance: 0.2}},
	}}
	client, err := NewClient(store)
	require.NoError(t, err)

	snippets, err := client.Search(context.Background(), "treaty of tordesillas", "history", "colonial america", 4)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	require.Len(t, store.calls, 1)
	assert.Equal(t, "history", store.calls[0].Discipline)
	for _, sn := range snippets {
		assert.Equal(t, "history", sn.Discipline)
	}
}

func TestSearchFallbackDropsFilterOnce(t *testing.T) {
	store := &fakeStore{results: map[string][]ScoredDocument{
		// Only the unfiltered query (empty discipline key) has hits.
		"": {{Content: "general chunk", Discipline: "chemistry", Distance: 1}},
	}}
	client, err := NewClient(store)
	require.NoError(t, err)

	snippets, err := client.Search(context.Background(), "oxidation states", "physics", "", 4)
	require.NoError(t, err)
	require.Len(t, store.calls, 2)
	assert.Equal(t, "physics", store.calls[0].Discipline)
	assert.Equal(t, "", store.calls[1].Discipline)
	// Fallback results are annotated with the requested discipline.
	require.Len(t, snippets, 1)
	assert.Equal(t, "physics", snippets[0].Discipline)
}

func TestSearchBackendErrorIsRetrievalFailed(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	client, err := NewClient(store)
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "query text", "physics", "", 4)
	require.Error(t, err)
	assert.True(t, errdefs.IsRetrievalFailed(err))
}

func TestSearchValidatesArguments(t *testing.T) {
	client, err := NewClient(&fakeStore{})
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "  ", "physics", "", 4)
	assert.ErrorContains(t, err, "query is empty")

	_, err = client.Search(context.Background(), "q text", "", "", 4)
	assert.ErrorContains(t, err, "discipline is empty")

	_, err = client.Search(context.Background(), "q text", "physics", "", MaxK+1)
	assert.ErrorContains(t, err, "k must be in")
}

func TestSearchDefaultsK(t *testing.T) {
	store := &fakeStore{results: map[string][]ScoredDocument{
		"math": {{Content: "algebra chunk", Discipline: "math", Distance: 0.5}},
	}}
	client, err := NewClient(store)
	require.NoError(t, err)

	snippets, err := client.Search(context.Background(), "quadratic formula", "math", "", 0)
	require.NoError(t, err)
	assert.Len(t, snippets, 1)
}

func TestSearchUsesQueryCache(t *testing.T) {
	store := &fakeStore{results: map[string][]ScoredDocument{
		"physics": {{Content: "cached chunk", Discipline: "physics", Distance: 0}},
	}}
	client, err := NewClient(store)
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "entropy", "physics", "", 4)
	require.NoError(t, err)
	_, err = client.Search(context.Background(), "entropy", "physics", "", 4)
	require.NoError(t, err)
	assert.Len(t, store.calls, 1)

	// Different discipline misses the cache and hits the store again.
	snippets, err := client.Search(context.Background(), "entropy", "chemistry", "", 4)
	require.NoError(t, err)
	assert.Empty(t, snippets)
	assert.Len(t, store.calls, 3) // filtered + unfiltered fallback
}

func TestSearchCacheDisabled(t *testing.T) {
	store := &fakeStore{results: map[string][]ScoredDocument{
		"physics": {{Content: "uncached chunk", Discipline: "physics", Distance: 0}},
	}}
	client, err := NewClient(store, WithCacheSize(0))
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "entropy", "physics", "", 4)
	require.NoError(t, err)
	_, err = client.Search(context.Background(), "entropy", "physics", "", 4)
	require.NoError(t, err)
	// Identical queries both reach the store when caching is off.
	assert.Len(t, store.calls, 2)
}

func TestNewClientRequiresStore(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)
}
