//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package retrieval fetches exam context snippets from a vector store,
// scoped to a single discipline to prevent cross-exam leakage.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"trpc.group/trpc-go/gradeflow/errdefs"
	"trpc.group/trpc-go/gradeflow/log"
)

const (
	// DefaultK is the default number of snippets returned by Search.
	DefaultK = 4
	// MaxK bounds the number of snippets a single search may request.
	MaxK = 20
)

// Snippet is one scored context snippet returned by Search.
type Snippet struct {
	// Content is the snippet text.
	Content string `json:"content"`
	// Source names the document the snippet came from.
	Source string `json:"source,omitempty"`
	// Page is the optional page number within the source.
	Page *int `json:"page,omitempty"`
	// Relevance is the similarity score in [0,1], derived from the store distance.
	Relevance float64 `json:"relevance"`
	// Discipline is the exam discipline the snippet belongs to.
	Discipline string `json:"discipline"`
	// Topic is the snippet topic.
	Topic string `json:"topic,omitempty"`
}

// ScoredDocument is a raw vector store hit: a snippet plus its distance.
type ScoredDocument struct {
	// Content is the chunk text.
	Content string
	// Source names the originating document.
	Source string
	// Page is the optional page number.
	Page *int
	// Discipline is the stored discipline metadata.
	Discipline string
	// Topic is the stored topic metadata.
	Topic string
	// Distance is the L2 or cosine distance reported by the store.
	Distance float64
}

// Filter is a single-key equality filter on stored metadata.
type Filter struct {
	// Discipline, when non-empty, restricts hits to one discipline.
	Discipline string
}

// VectorStore is the similarity search interface the client consumes.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// SimilaritySearchWithDistance returns up to k hits for the query text,
	// optionally restricted by the filter, with their distances.
	SimilaritySearchWithDistance(ctx context.Context, query string, k int, filter Filter) ([]ScoredDocument, error)
}

// Client wraps a vector store with discipline scoping, distance-to-relevance
// conversion, and a bounded query cache.
type Client struct {
	store VectorStore
	cache *queryCache
}

// Option configures the client.
type Option func(*Client)

// WithCacheSize bounds the query cache entry count. Zero disables caching.
func WithCacheSize(size int) Option {
	return func(c *Client) { c.cache = newQueryCache(size) }
}

// NewClient creates a retrieval client over the given store.
func NewClient(store VectorStore, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("vector store is nil")
	}
	c := &Client{
		store: store,
		cache: newQueryCache(defaultCacheSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search returns up to k snippets relevant to the query within the given
// discipline, sorted by relevance descending. Topic is semantic intent only
// and is never applied as a hard filter. When the filtered query returns
// empty, a single unfiltered fallback retry is issued and its results are
// annotated with the requested discipline.
func (c *Client) Search(ctx context.Context, query, discipline, topic string, k int) ([]Snippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is empty")
	}
	if strings.TrimSpace(discipline) == "" {
		return nil, errors.New("discipline is empty")
	}
	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		return nil, fmt.Errorf("k must be in [1, %d]: %d", MaxK, k)
	}
	if topic = strings.TrimSpace(topic); topic != "" {
		// Topic enriches the query text, not the filter; filtering on topic
		// would reduce recall.
		query = query + "\n" + topic
	}
	if cached, ok := c.cache.get(query, discipline, k); ok {
		return cached, nil
	}
	docs, err := c.store.SimilaritySearchWithDistance(ctx, query, k, Filter{Discipline: discipline})
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindRetrievalFailed, err, "similarity search")
	}
	if len(docs) == 0 {
		log.Debugf("retrieval: empty result for discipline %s, retrying without filter", discipline)
		docs, err = c.store.SimilaritySearchWithDistance(ctx, query, k, Filter{})
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindRetrievalFailed, err, "similarity search fallback")
		}
	}
	snippets := toSnippets(docs, discipline)
	c.cache.put(query, discipline, k, snippets)
	return snippets, nil
}

// toSnippets converts store hits to snippets: relevance = 1 / (1 + distance),
// annotated with the requested discipline, sorted by relevance descending.
func toSnippets(docs []ScoredDocument, discipline string) []Snippet {
	snippets := make([]Snippet, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		distance := doc.Distance
		if distance < 0 {
			distance = 0
		}
		snippets = append(snippets, Snippet{
			Content:    doc.Content,
			Source:     doc.Source,
			Page:       doc.Page,
			Relevance:  1.0 / (1.0 + distance),
			Discipline: discipline,
			Topic:      doc.Topic,
		})
	}
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Relevance > snippets[j].Relevance
	})
	return snippets
}
