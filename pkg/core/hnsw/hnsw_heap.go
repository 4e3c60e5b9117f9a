// Package hnsw implements Hierarchical Navigable Small World graph search and
// construction over the on-disk vector and graph stores.
//
// This file defines the heaps used during traversal. Both are keyed by cosine
// similarity, so "best" means highest score.
package hnsw

import (
	"container/heap"
	"sort"
)

// Candidate is a node paired with its similarity to the current query.
type Candidate struct {
	ID    int32
	Score float64
}

// frontier is a max-heap of candidates: the most similar unexplored node is
// always on top, so the search expands the most promising node next.
type frontier []Candidate

func (h frontier) Len() int           { return len(h) }
func (h frontier) Less(i, j int) bool { return h[i].Score > h[j].Score }
func (h frontier) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *frontier) Push(x any)        { *h = append(*h, x.(Candidate)) }
func (h *frontier) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// resultSet is a min-heap holding the best ef candidates found so far. Its
// root is the worst of the best, which is the one evicted when a better
// candidate arrives.
type resultSet []Candidate

func (h resultSet) Len() int           { return len(h) }
func (h resultSet) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h resultSet) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultSet) Push(x any)        { *h = append(*h, x.(Candidate)) }
func (h *resultSet) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Worst returns the lowest-scoring member. The set must not be empty.
func (h resultSet) Worst() Candidate { return h[0] }

func newFrontier(capacity int) *frontier {
	h := make(frontier, 0, capacity)
	heap.Init(&h)
	return &h
}

func newResultSet(capacity int) *resultSet {
	h := make(resultSet, 0, capacity)
	heap.Init(&h)
	return &h
}

// sortCandidates orders by score descending, then by id so equal scores
// produce a stable order.
func sortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].ID < cs[j].ID
	})
}
