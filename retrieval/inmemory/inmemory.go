//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

// Package inmemory provides an in-memory vector store for fixtures, tests,
// and the batch CLI demo. Similarity is lexical token overlap rather than a
// learned embedding; production deployments plug a real store behind the
// retrieval.VectorStore interface.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"trpc.group/trpc-go/gradeflow/retrieval"
)

// Document is a stored chunk with its exam metadata.
type Document struct {
	// Content is the chunk text.
	Content string `json:"content"`
	// Source names the originating document.
	Source string `json:"source,omitempty"`
	// Page is the optional page number.
	Page *int `json:"page,omitempty"`
	// Discipline is the exam discipline.
	Discipline string `json:"discipline"`
	// Topic is the chunk topic.
	Topic string `json:"topic,omitempty"`
}

// Store is an in-memory retrieval.VectorStore.
type Store struct {
	mu   sync.RWMutex
	docs []Document
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Add appends documents to the store.
func (s *Store) Add(docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, docs...)
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// SimilaritySearchWithDistance returns up to k documents ranked by lexical
// overlap with the query, restricted by the filter. Documents sharing no
// token with the query are omitted.
func (s *Store) SimilaritySearchWithDistance(ctx context.Context, query string, k int, filter retrieval.Filter) ([]retrieval.ScoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]retrieval.ScoredDocument, 0, k)
	for _, doc := range s.docs {
		if filter.Discipline != "" && doc.Discipline != filter.Discipline {
			continue
		}
		similarity := overlap(queryTokens, tokenize(doc.Content))
		if similarity <= 0 {
			continue
		}
		// Map overlap in (0,1] to a distance in [0,inf) so the client's
		// 1/(1+d) conversion restores the similarity ordering.
		hits = append(hits, retrieval.ScoredDocument{
			Content:    doc.Content,
			Source:     doc.Source,
			Page:       doc.Page,
			Discipline: doc.Discipline,
			Topic:      doc.Topic,
			Distance:   (1.0 - similarity) / similarity,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func tokenize(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]\"'")
		if len(f) < 3 {
			continue
		}
		tokens[f] = struct{}{}
	}
	return tokens
}

func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	shared := 0
	for token := range query {
		if _, ok := doc[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(query))
}
