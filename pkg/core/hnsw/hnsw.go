package hnsw

import (
	"container/heap"
	"fmt"
	"math/rand"

	"github.com/sanonone/vektor/pkg/core/distance"
	"github.com/sanonone/vektor/pkg/errs"
	"github.com/sanonone/vektor/pkg/storage/flatfile"
)

// VectorSource returns stored vectors by internal id. Deleted records must
// still be returned: traversal routes through tombstones.
type VectorSource interface {
	ReadRawVector(id int32) ([]float32, bool, error)
}

// Graph is the adjacency storage the engine reads and, on insert, writes.
type Graph interface {
	ReadHeader() (flatfile.Header, error)
	WriteHeader(entryPoint, totalNodes int32) error
	ReadNode(id int32) (flatfile.Node, error)
	CreateNode(id int32, maxLevel int) error
	UpdateLinks(id int32, level int, links []int32) error
	Capacity(level int) int
}

// Engine runs HNSW search and insertion directly against the stores. It
// holds no state between calls; every call owns its vector cache and
// visited set.
type Engine struct {
	vectors        VectorSource
	graph          Graph
	m              int
	efConstruction int
}

// New creates an engine. m bounds how many candidates a construction search
// returns; efConstruction is that search's beam width.
func New(vectors VectorSource, graph Graph, m, efConstruction int) *Engine {
	return &Engine{vectors: vectors, graph: graph, m: m, efConstruction: efConstruction}
}

// RandomLevel draws an insertion level by fair coin flips, capped at levels-1.
func RandomLevel(rng *rand.Rand, levels int) int {
	level := 0
	for level < levels-1 && rng.Float64() < 0.5 {
		level++
	}
	return level
}

// vectorCache memoizes vector reads for the length of one operation.
type vectorCache struct {
	src  VectorSource
	vecs map[int32][]float32
}

func newVectorCache(src VectorSource) *vectorCache {
	return &vectorCache{src: src, vecs: make(map[int32][]float32)}
}

func (c *vectorCache) get(id int32) ([]float32, error) {
	if v, ok := c.vecs[id]; ok {
		return v, nil
	}
	v, ok, err := c.src.ReadRawVector(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Corruption("hnsw", "graph references missing vector %d", id)
	}
	c.vecs[id] = v
	return v, nil
}

func (c *vectorCache) similarity(query []float32, id int32) (float64, error) {
	v, err := c.get(id)
	if err != nil {
		return 0, err
	}
	s, err := distance.Cosine(query, v)
	if err != nil {
		return 0, errs.Wrap("hnsw", errs.ErrCorruption, fmt.Errorf("vector %d: %w", id, err))
	}
	return s, nil
}

// Search returns up to k nodes most similar to query, best first. ef is the
// level-0 beam width; it is raised to k when smaller.
func (e *Engine) Search(query []float32, k, ef int) ([]Candidate, error) {
	header, err := e.graph.ReadHeader()
	if err != nil {
		return nil, err
	}
	if header.Empty() || k <= 0 {
		return nil, nil
	}
	entry, err := e.graph.ReadNode(header.EntryPoint)
	if err != nil {
		return nil, err
	}

	c := newVectorCache(e.vectors)
	cur, err := e.descend(c, query, header.EntryPoint, entry.MaxLevel, 0)
	if err != nil {
		return nil, err
	}
	return e.searchLayer(c, query, cur, max(ef, k), 0, k, header.TotalNodes)
}

// SearchLayer runs a single-level beam search from entry and returns up to k
// results (all of them when k <= 0), best first.
func (e *Engine) SearchLayer(query []float32, entry int32, ef, level, k int) ([]Candidate, error) {
	header, err := e.graph.ReadHeader()
	if err != nil {
		return nil, err
	}
	return e.searchLayer(newVectorCache(e.vectors), query, entry, ef, level, k, header.TotalNodes)
}

// descend hill-climbs from entry on levels from down to stopAbove+1, moving
// to the single best improving neighbor until none improves.
func (e *Engine) descend(c *vectorCache, query []float32, entry int32, from, stopAbove int) (int32, error) {
	cur := entry
	best, err := c.similarity(query, cur)
	if err != nil {
		return 0, err
	}
	for level := from; level > stopAbove; level-- {
		for changed := true; changed; {
			changed = false
			node, err := e.graph.ReadNode(cur)
			if err != nil {
				return 0, err
			}
			if level > node.MaxLevel {
				break
			}
			for _, n := range node.Connections[level] {
				s, err := c.similarity(query, n)
				if err != nil {
					return 0, err
				}
				if s > best {
					best, cur, changed = s, n, true
				}
			}
		}
	}
	return cur, nil
}

func (e *Engine) searchLayer(c *vectorCache, query []float32, entry int32, ef, level, k int, total int32) ([]Candidate, error) {
	if ef < 1 {
		ef = 1
	}
	visited := NewBitSet(total)
	visited.Add(entry)

	score, err := c.similarity(query, entry)
	if err != nil {
		return nil, err
	}
	candidates := newFrontier(ef)
	results := newResultSet(ef + 1)
	heap.Push(candidates, Candidate{ID: entry, Score: score})
	heap.Push(results, Candidate{ID: entry, Score: score})

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(Candidate)
		if results.Len() >= ef && current.Score < results.Worst().Score {
			break
		}

		node, err := e.graph.ReadNode(current.ID)
		if err != nil {
			return nil, err
		}
		if level > node.MaxLevel {
			continue
		}
		for _, n := range node.Connections[level] {
			if visited.Has(n) {
				continue
			}
			visited.Add(n)

			s, err := c.similarity(query, n)
			if err != nil {
				return nil, err
			}
			if results.Len() < ef || s > results.Worst().Score {
				heap.Push(candidates, Candidate{ID: n, Score: s})
				heap.Push(results, Candidate{ID: n, Score: s})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := []Candidate(*results)
	sortCandidates(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Insert links node id, whose vector is vec and whose graph row does not yet
// exist, into the graph at levels 0..level.
func (e *Engine) Insert(id int32, vec []float32, level int) error {
	header, err := e.graph.ReadHeader()
	if err != nil {
		return err
	}
	maxLevel := -1
	if !header.Empty() {
		entry, err := e.graph.ReadNode(header.EntryPoint)
		if err != nil {
			return err
		}
		maxLevel = entry.MaxLevel
	}

	if err := e.graph.CreateNode(id, level); err != nil {
		return err
	}
	if header.Empty() {
		return e.promote(id)
	}

	c := newVectorCache(e.vectors)
	c.vecs[id] = vec

	cur, err := e.descend(c, vec, header.EntryPoint, maxLevel, level)
	if err != nil {
		return err
	}

	for lc := min(level, maxLevel); lc >= 0; lc-- {
		found, err := e.searchLayer(c, vec, cur, e.efConstruction, lc, e.m, id+1)
		if err != nil {
			return err
		}
		capacity := e.graph.Capacity(lc)
		selected := make([]int32, 0, capacity)
		for _, cand := range found {
			if cand.ID != id && len(selected) < capacity {
				selected = append(selected, cand.ID)
			}
		}
		if err := e.graph.UpdateLinks(id, lc, selected); err != nil {
			return err
		}
		for _, n := range selected {
			if err := e.linkBack(c, n, id, lc, capacity); err != nil {
				return err
			}
		}
		if len(selected) > 0 {
			cur = selected[0]
		}
	}

	if level > maxLevel {
		return e.promote(id)
	}
	return nil
}

// promote makes id the entry point, keeping the node count.
func (e *Engine) promote(id int32) error {
	header, err := e.graph.ReadHeader()
	if err != nil {
		return err
	}
	return e.graph.WriteHeader(id, header.TotalNodes)
}

// linkBack adds id to n's neighbors at level. An overflowing list keeps the
// capacity neighbors most similar to n itself.
func (e *Engine) linkBack(c *vectorCache, n, id int32, level, capacity int) error {
	node, err := e.graph.ReadNode(n)
	if err != nil {
		return err
	}
	if level > node.MaxLevel {
		return nil
	}
	links := append(node.Connections[level], id)
	if len(links) > capacity {
		base, err := c.get(n)
		if err != nil {
			return err
		}
		scored := make([]Candidate, 0, len(links))
		for _, l := range links {
			s, err := c.similarity(base, l)
			if err != nil {
				return err
			}
			scored = append(scored, Candidate{ID: l, Score: s})
		}
		sortCandidates(scored)
		links = links[:0]
		for _, cand := range scored[:capacity] {
			links = append(links, cand.ID)
		}
	}
	return e.graph.UpdateLinks(n, level, links)
}
