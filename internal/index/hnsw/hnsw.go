// Package hnsw is an approximate nearest neighbour index over the angular metric:
// a hierarchical navigable small-world graph with node-local locking.
//
// Nodes go through pending -> live -> deleted -> purged. Pending and deleted nodes stay
// traversable but never appear in results, which lets a caller insert a vector ahead of
// time and publish it atomically with other index updates. Recall is approximate: at
// the default parameters recall@10 against brute force is at least 0.9, and EfSearch is
// the knob trading recall for latency.
package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/domain/document"
)

const maxLevelCap = 16

// Handle addresses a graph node. Handles are never reused.
type Handle uint32

type state int32

const (
	statePending state = iota
	stateLive
	stateDeleted
	statePurged
)

// Config holds graph parameters.
type Config struct {
	Dim            int
	M              int // max links per node above layer 0; layer 0 gets 2*M
	EfConstruction int
	EfSearch       int
	Seed           int64
}

// DefaultConfig returns M=16, efConstruction=200, efSearch=100.
func DefaultConfig(dim int) Config {
	return Config{Dim: dim, M: 16, EfConstruction: 200, EfSearch: 100, Seed: 42}
}

// Neighbor is a search hit.
type Neighbor struct {
	ID        string
	Closeness float64
}

type node struct {
	id    string
	vec   []float32 // unit length, immutable
	level int
	state atomic.Int32

	mu      sync.RWMutex
	friends [][]Handle
}

func (n *node) is(s state) bool { return state(n.state.Load()) == s }

// Index is safe for concurrent use. Graph edits lock only the adjacency lists they
// touch; mu guards the node table, id map and entry point.
type Index struct {
	cfg       Config
	levelMult float64

	mu         sync.RWMutex
	nodes      []*node
	byID       map[string]Handle
	entry      Handle
	hasEntry   bool
	maxLevel   int
	tombstones int

	rngMu sync.Mutex
	rng   *rand.Rand

	vacuumMu sync.Mutex
}

// New creates an empty graph.
func New(cfg Config) (*Index, error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("hnsw: dimension must be positive, got %d", cfg.Dim)
	}
	if cfg.M < 2 {
		return nil, fmt.Errorf("hnsw: M must be at least 2, got %d", cfg.M)
	}
	if cfg.EfConstruction < cfg.M {
		cfg.EfConstruction = cfg.M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = cfg.M
	}
	return &Index{
		cfg:       cfg,
		levelMult: 1 / math.Log(float64(cfg.M)),
		byID:      make(map[string]Handle),
		maxLevel:  -1,
		rng:       rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec // level sampling, not crypto
	}, nil
}

// Insert links vec into the graph as a pending node under id. The node is invisible
// to Search and Closeness until Publish.
func (x *Index) Insert(id string, vec []float32) (Handle, error) {
	if err := domain.CheckDimensions(vec, x.cfg.Dim); err != nil {
		return 0, fmt.Errorf("hnsw insert %q: %w", id, err)
	}
	v := domain.Normalize(append([]float32(nil), vec...))
	if domain.Dot(v, v) == 0 {
		return 0, fmt.Errorf("hnsw insert %q: zero vector: %w", id, domain.ErrEmbeddingUnavailable)
	}

	level := x.randomLevel()
	n := &node{id: id, vec: v, level: level, friends: make([][]Handle, level+1)}

	x.mu.Lock()
	h := Handle(len(x.nodes))
	x.nodes = append(x.nodes, n)
	if !x.hasEntry {
		x.entry, x.hasEntry, x.maxLevel = h, true, level
		x.mu.Unlock()
		return h, nil
	}
	ep, top := x.entry, x.maxLevel
	x.mu.Unlock()

	cur := candidate{h: ep, dist: distance(v, x.node(ep).vec)}
	for l := top; l > level; l-- {
		cur = x.greedy(v, cur, l)
	}
	for l := min(level, top); l >= 0; l-- {
		found := x.searchLayer(v, cur, x.cfg.EfConstruction, l)
		limit := x.maxConn(l)
		selected := make([]Handle, 0, limit)
		for _, c := range found {
			if len(selected) == limit {
				break
			}
			if c.h == h || x.node(c.h).is(statePurged) {
				continue
			}
			selected = append(selected, c.h)
		}

		n.mu.Lock()
		n.friends[l] = selected
		n.mu.Unlock()
		for _, f := range selected {
			x.link(f, h, l)
		}
		if len(found) > 0 {
			cur = found[0]
		}
	}

	if level > top {
		x.mu.Lock()
		if level > x.maxLevel {
			x.entry, x.maxLevel = h, level
		}
		x.mu.Unlock()
	}
	return h, nil
}

// Publish makes a pending node live and tombstones the previous live node of its id.
func (x *Index) Publish(h Handle) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := x.nodes[h]
	if !n.is(statePending) {
		return
	}
	if old, ok := x.byID[n.id]; ok && old != h {
		x.nodes[old].state.Store(int32(stateDeleted))
		x.tombstones++
	}
	x.byID[n.id] = h
	n.state.Store(int32(stateLive))
}

// Discard tombstones a pending node that will never be published.
func (x *Index) Discard(h Handle) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := x.nodes[h]
	if n.state.CompareAndSwap(int32(statePending), int32(stateDeleted)) {
		x.tombstones++
	}
}

// Delete tombstones the live node of id. Remaining nodes keep their links through it
// until Vacuum repairs them.
func (x *Index) Delete(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	h, ok := x.byID[id]
	if !ok {
		return false
	}
	delete(x.byID, id)
	x.nodes[h].state.Store(int32(stateDeleted))
	x.tombstones++
	return true
}

// Contains reports whether id has a live node.
func (x *Index) Contains(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.byID[id]
	return ok
}

// Len returns the number of live nodes.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}

// Tombstones returns the number of deleted nodes awaiting Vacuum.
func (x *Index) Tombstones() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.tombstones
}

// TombstoneRatio is tombstones over all unpurged nodes.
func (x *Index) TombstoneRatio() float64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	total := len(x.byID) + x.tombstones
	if total == 0 {
		return 0
	}
	return float64(x.tombstones) / float64(total)
}

// Closeness computes 1/(1+acos(cos)) exactly for the live vector of id.
func (x *Index) Closeness(id string, q []float32) (float64, bool) {
	x.mu.RLock()
	h, ok := x.byID[id]
	var n *node
	if ok {
		n = x.nodes[h]
	}
	x.mu.RUnlock()
	if !ok || len(q) != x.cfg.Dim {
		return 0, false
	}
	qq := domain.Dot(q, q)
	if qq == 0 {
		return 0, false
	}
	return closeness(domain.Dot(q, n.vec) / math.Sqrt(qq)), true
}

// Search returns up to k live neighbours of q ordered by closeness descending, ties by
// id. ef <= 0 uses the configured EfSearch; ef is raised to k when smaller.
func (x *Index) Search(q []float32, k, ef int) ([]Neighbor, error) {
	if err := domain.CheckDimensions(q, x.cfg.Dim); err != nil {
		return nil, fmt.Errorf("hnsw search: %w", err)
	}
	if k <= 0 {
		return nil, nil
	}
	if ef <= 0 {
		ef = x.cfg.EfSearch
	}
	ef = max(ef, k)
	v := domain.Normalize(append([]float32(nil), q...))

	x.mu.RLock()
	if !x.hasEntry {
		x.mu.RUnlock()
		return nil, nil
	}
	ep, top := x.entry, x.maxLevel
	x.mu.RUnlock()

	cur := candidate{h: ep, dist: distance(v, x.node(ep).vec)}
	for l := top; l > 0; l-- {
		cur = x.greedy(v, cur, l)
	}
	found := x.searchLayer(v, cur, ef, 0)

	out := make([]Neighbor, 0, min(k, len(found)))
	for _, c := range found {
		n := x.node(c.h)
		if !n.is(stateLive) {
			continue
		}
		out = append(out, Neighbor{ID: n.id, Closeness: closeness(1 - c.dist)})
		if len(out) == k {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Closeness != out[j].Closeness {
			return out[i].Closeness > out[j].Closeness
		}
		return document.CompareID(out[i].ID, out[j].ID) < 0
	})
	return out, nil
}

// Vacuum unlinks deleted nodes, reconnecting their neighbours through the deleted
// nodes' own links, and returns how many were purged. Searches keep running.
func (x *Index) Vacuum() int {
	x.vacuumMu.Lock()
	defer x.vacuumMu.Unlock()

	x.mu.RLock()
	nodes := append([]*node(nil), x.nodes...)
	x.mu.RUnlock()

	dead := make(map[Handle]bool)
	for h, n := range nodes {
		if n.is(stateDeleted) {
			dead[Handle(h)] = true
		}
	}
	if len(dead) == 0 {
		return 0
	}

	for h, n := range nodes {
		if dead[Handle(h)] || n.is(statePurged) {
			continue
		}
		x.repair(Handle(h), n, nodes, dead)
	}

	x.mu.Lock()
	if dead[x.entry] {
		x.hasEntry, x.maxLevel = false, -1
		for h, n := range nodes {
			if dead[Handle(h)] || n.is(statePurged) {
				continue
			}
			if n.level > x.maxLevel {
				x.entry, x.hasEntry, x.maxLevel = Handle(h), true, n.level
			}
		}
	}
	x.tombstones -= len(dead)
	x.mu.Unlock()

	for h := range dead {
		n := nodes[h]
		n.mu.Lock()
		n.friends = nil
		n.mu.Unlock()
		n.state.Store(int32(statePurged))
	}
	return len(dead)
}

// repair replaces links to dead nodes with the closest of the surviving links plus
// the dead nodes' own neighbours. Only Vacuum holds two node locks at once, and
// Vacuum is serialised.
func (x *Index) repair(h Handle, n *node, nodes []*node, dead map[Handle]bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for l := range n.friends {
		touched := false
		for _, f := range n.friends[l] {
			if dead[f] {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}

		pool := make(map[Handle]struct{})
		for _, f := range n.friends[l] {
			if !dead[f] {
				pool[f] = struct{}{}
				continue
			}
			d := nodes[f]
			d.mu.RLock()
			if l < len(d.friends) {
				for _, ff := range d.friends[l] {
					if ff != h && !dead[ff] && int(ff) < len(nodes) && !nodes[ff].is(statePurged) {
						pool[ff] = struct{}{}
					}
				}
			}
			d.mu.RUnlock()
		}

		cands := make([]candidate, 0, len(pool))
		for f := range pool {
			cands = append(cands, candidate{h: f, dist: distance(n.vec, x.node(f).vec)})
		}
		sortCandidates(cands)
		if limit := x.maxConn(l); len(cands) > limit {
			cands = cands[:limit]
		}
		links := make([]Handle, len(cands))
		for i, c := range cands {
			links[i] = c.h
		}
		n.friends[l] = links
	}
}

func (x *Index) node(h Handle) *node {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.nodes[h]
}

func (x *Index) maxConn(level int) int {
	if level == 0 {
		return 2 * x.cfg.M
	}
	return x.cfg.M
}

func (x *Index) randomLevel() int {
	x.rngMu.Lock()
	r := x.rng.Float64()
	x.rngMu.Unlock()
	level := int(math.Floor(-math.Log(1-r) * x.levelMult))
	return min(level, maxLevelCap)
}

func (x *Index) friendsOf(h Handle, level int) []Handle {
	n := x.node(h)
	n.mu.RLock()
	defer n.mu.RUnlock()
	if level >= len(n.friends) {
		return nil
	}
	return append([]Handle(nil), n.friends[level]...)
}

// link adds to -> from's adjacency at level, shrinking to the closest maxConn.
func (x *Index) link(from, to Handle, level int) {
	n := x.node(from)
	n.mu.Lock()
	defer n.mu.Unlock()
	if level >= len(n.friends) {
		return
	}
	links := append(n.friends[level], to)
	limit := x.maxConn(level)
	if len(links) > limit {
		cands := make([]candidate, len(links))
		for i, f := range links {
			cands[i] = candidate{h: f, dist: distance(n.vec, x.node(f).vec)}
		}
		sortCandidates(cands)
		links = links[:0]
		for _, c := range cands[:limit] {
			links = append(links, c.h)
		}
	}
	n.friends[level] = links
}

// greedy walks level towards q until no neighbour is closer.
func (x *Index) greedy(q []float32, cur candidate, level int) candidate {
	for changed := true; changed; {
		changed = false
		for _, f := range x.friendsOf(cur.h, level) {
			fn := x.node(f)
			if fn.is(statePurged) {
				continue
			}
			if d := distance(q, fn.vec); d < cur.dist {
				cur, changed = candidate{h: f, dist: d}, true
			}
		}
	}
	return cur
}

// searchLayer is the ef-bounded best-first search of one level. Result is sorted by
// distance ascending.
func (x *Index) searchLayer(q []float32, entry candidate, ef, level int) []candidate {
	visited := map[Handle]struct{}{entry.h: {}}
	cands := &minHeap{entry}
	results := &maxHeap{entry}

	for cands.Len() > 0 {
		c := heap.Pop(cands).(candidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		for _, f := range x.friendsOf(c.h, level) {
			if _, seen := visited[f]; seen {
				continue
			}
			visited[f] = struct{}{}
			fn := x.node(f)
			if fn.is(statePurged) {
				continue
			}
			d := distance(q, fn.vec)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(cands, candidate{h: f, dist: d})
				heap.Push(results, candidate{h: f, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// distance is 1 - cos for unit vectors.
func distance(a, b []float32) float64 { return 1 - domain.Dot(a, b) }

// closeness maps cosine similarity onto 1/(1+angle).
func closeness(cos float64) float64 {
	cos = math.Max(-1, math.Min(1, cos))
	return 1 / (1 + math.Acos(cos))
}

type candidate struct {
	h    Handle
	dist float64
}

func sortCandidates(c []candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].dist != c[j].dist {
			return c[i].dist < c[j].dist
		}
		return c[i].h < c[j].h
	})
}

type minHeap []candidate

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(v any)        { *h = append(*h, v.(candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	v := old[len(old)-1]
	*h = old[:len(old)-1]
	return v
}

type maxHeap []candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(v any)        { *h = append(*h, v.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	v := old[len(old)-1]
	*h = old[:len(old)-1]
	return v
}
