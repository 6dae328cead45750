//
// Tencent is pleased to support the open source community by making gradeflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// gradeflow is licensed under the Apache License Version 2.0.
//

package retrieval

import (
	"fmt"
	"sync"

	"github.com/spaolacci/murmur3"
)

const defaultCacheSize = 256

// queryCache is a bounded map from hashed search arguments to snippet lists.
// Eviction is whole-cache reset at capacity; retrieval corpora are immutable
// within a batch run, so recency tracking is not worth the bookkeeping.
type queryCache struct {
	mu      sync.RWMutex
	maxSize int
	entries map[uint64][]Snippet
}

func newQueryCache(maxSize int) *queryCache {
	if maxSize <= 0 {
		return &queryCache{}
	}
	return &queryCache{
		maxSize: maxSize,
		entries: make(map[uint64][]Snippet, maxSize),
	}
}

func cacheKey(query, discipline string, k int) uint64 {
	h1, _ := murmur3.Sum128([]byte(fmt.Sprintf("%s\x00%s\x00%d", query, discipline, k)))
	return h1
}

func (c *queryCache) get(query, discipline string, k int) ([]Snippet, bool) {
	if c.entries == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snippets, ok := c.entries[cacheKey(query, discipline, k)]
	return snippets, ok
}

func (c *queryCache) put(query, discipline string, k int, snippets []Snippet) {
	if c.entries == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.entries = make(map[uint64][]Snippet, c.maxSize)
	}
	c.entries[cacheKey(query, discipline, k)] = snippets
}
