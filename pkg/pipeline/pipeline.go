package pipeline

import (
	"fmt"
	"strings"
	"sync"
)

// Pipeline is a DAG of Nodes stored as predecessor and successor adjacency
// lists. Node levels (longest path from a source) are computed lazily and
// cached until the next mutation.
//
// Pipelines must be acyclic. Construction is single-goroutine; once built,
// a Pipeline may be shared read-only between goroutines.
type Pipeline struct {
	order []Node
	nodes map[NodeKey]Node
	pre   map[NodeKey][]Node
	post  map[NodeKey][]Node

	mu      sync.Mutex // guards the level cache below
	valid   bool
	levels  map[NodeKey]int
	byLevel [][]Node
}

// New returns an empty pipeline.
func New() *Pipeline {
	return &Pipeline{
		nodes: make(map[NodeKey]Node),
		pre:   make(map[NodeKey][]Node),
		post:  make(map[NodeKey][]Node),
	}
}

// AddNode inserts n with empty adjacency. Adding a node that is already
// present (graph-equal) is a no-op and leaves the level cache intact.
func (p *Pipeline) AddNode(n Node) error {
	if n == nil {
		return ErrNilNode
	}
	k := n.Key()
	if _, ok := p.nodes[k]; ok {
		return nil
	}
	p.nodes[k] = n
	p.order = append(p.order, n)
	p.pre[k] = nil
	p.post[k] = nil
	p.invalidate()
	return nil
}

// AddEdge adds both endpoints if needed, then records from as a predecessor
// of to. Repeated calls with the same pair add the pair again: an AND node
// then receives that predecessor's output once per edge.
func (p *Pipeline) AddEdge(from, to Node) error {
	if from == nil || to == nil {
		return fmt.Errorf("%w: edge %s", ErrNilNode, Edge{From: from, To: to})
	}
	if err := p.AddNode(from); err != nil {
		return err
	}
	if err := p.AddNode(to); err != nil {
		return err
	}
	fk, tk := from.Key(), to.Key()
	p.pre[tk] = append(p.pre[tk], p.nodes[fk])
	p.post[fk] = append(p.post[fk], p.nodes[tk])
	p.invalidate()
	return nil
}

func (p *Pipeline) invalidate() {
	p.mu.Lock()
	p.valid = false
	p.levels = nil
	p.byLevel = nil
	p.mu.Unlock()
}

func (p *Pipeline) lookup(n Node) (NodeKey, error) {
	if n == nil {
		return NodeKey{}, ErrNilNode
	}
	k := n.Key()
	if _, ok := p.nodes[k]; !ok {
		return NodeKey{}, fmt.Errorf("%w: %q (id %s)", ErrNodeNotFound, n.Name(), n.ID())
	}
	return k, nil
}

// Len returns the number of nodes.
func (p *Pipeline) Len() int { return len(p.order) }

// Nodes returns all nodes in insertion order.
func (p *Pipeline) Nodes() []Node {
	return append([]Node(nil), p.order...)
}

// Contains reports whether a graph-equal node was added.
func (p *Pipeline) Contains(n Node) bool {
	if n == nil {
		return false
	}
	_, ok := p.nodes[n.Key()]
	return ok
}

// PreImage returns the direct predecessors of n, one entry per edge.
func (p *Pipeline) PreImage(n Node) ([]Node, error) {
	k, err := p.lookup(n)
	if err != nil {
		return nil, err
	}
	return append([]Node(nil), p.pre[k]...), nil
}

// PostImage returns the direct successors of n, one entry per edge.
func (p *Pipeline) PostImage(n Node) ([]Node, error) {
	k, err := p.lookup(n)
	if err != nil {
		return nil, err
	}
	return append([]Node(nil), p.post[k]...), nil
}

// PreNodes is PreImage under the name executors use.
func (p *Pipeline) PreNodes(n Node) ([]Node, error) { return p.PreImage(n) }

// PostNodes is PostImage under the name executors use.
func (p *Pipeline) PostNodes(n Node) ([]Node, error) { return p.PostImage(n) }

// PreEdges returns the incoming edges of n. A source node yields a single
// sentinel edge whose From is nil, so the result is never empty.
func (p *Pipeline) PreEdges(n Node) ([]Edge, error) {
	k, err := p.lookup(n)
	if err != nil {
		return nil, err
	}
	self := p.nodes[k]
	preds := p.pre[k]
	if len(preds) == 0 {
		return []Edge{{From: nil, To: self}}, nil
	}
	edges := make([]Edge, 0, len(preds))
	for _, from := range preds {
		edges = append(edges, Edge{From: from, To: self})
	}
	return edges, nil
}

// PostEdges returns the outgoing edges of n. A sink node yields a single
// sentinel edge whose To is nil, so the result is never empty.
func (p *Pipeline) PostEdges(n Node) ([]Edge, error) {
	k, err := p.lookup(n)
	if err != nil {
		return nil, err
	}
	self := p.nodes[k]
	succs := p.post[k]
	if len(succs) == 0 {
		return []Edge{{From: self, To: nil}}, nil
	}
	edges := make([]Edge, 0, len(succs))
	for _, to := range succs {
		edges = append(edges, Edge{From: self, To: to})
	}
	return edges, nil
}

// IsTerminal reports whether n has no successors. It inspects the raw
// adjacency list, not the sentinel-augmented PostEdges.
func (p *Pipeline) IsTerminal(n Node) (bool, error) {
	k, err := p.lookup(n)
	if err != nil {
		return false, err
	}
	return len(p.post[k]) == 0, nil
}

// Sources returns the nodes without predecessors, in insertion order.
func (p *Pipeline) Sources() []Node {
	var out []Node
	for _, n := range p.order {
		if len(p.pre[n.Key()]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Terminals returns the nodes without successors, in insertion order.
func (p *Pipeline) Terminals() []Node {
	var out []Node
	for _, n := range p.order {
		if len(p.post[n.Key()]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// HasEdge reports whether at least one from -> to edge exists.
func (p *Pipeline) HasEdge(from, to Node) bool {
	if from == nil || to == nil {
		return false
	}
	tk := to.Key()
	for _, s := range p.post[from.Key()] {
		if s.Key() == tk {
			return true
		}
	}
	return false
}

// Edges returns every edge, grouped by source node in insertion order.
// Sentinel edges are not included.
func (p *Pipeline) Edges() []Edge {
	var out []Edge
	for _, n := range p.order {
		for _, to := range p.post[n.Key()] {
			out = append(out, Edge{From: n, To: to})
		}
	}
	return out
}

// levelFrame is one entry of the explicit leveling stack.
type levelFrame struct {
	key   NodeKey
	preds []Node
	next  int // index of the next predecessor to visit
	level int // running 1 + max(level(pred)) over visited predecessors
}

// ComputeNodeLevel returns the length of the longest path from any source
// to n: 0 for a source, otherwise 1 + the maximum predecessor level. Levels
// of every node visited are stored in memo, which may be shared across
// calls to avoid recomputing common ancestors. A nil memo is allowed.
func (p *Pipeline) ComputeNodeLevel(n Node, memo map[NodeKey]int) (int, error) {
	k, err := p.lookup(n)
	if err != nil {
		return 0, err
	}
	if memo == nil {
		memo = make(map[NodeKey]int)
	}
	return p.levelOf(k, memo, nil)
}

// levelOf walks predecessors depth-first with an explicit stack. Each
// completed node is appended to done, when non-nil, in completion order.
func (p *Pipeline) levelOf(k NodeKey, memo map[NodeKey]int, done *[]NodeKey) (int, error) {
	if lvl, ok := memo[k]; ok {
		return lvl, nil
	}
	visiting := map[NodeKey]bool{k: true}
	stack := []*levelFrame{{key: k, preds: p.pre[k]}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < len(top.preds) {
			pk := top.preds[top.next].Key()
			if lvl, ok := memo[pk]; ok {
				top.level = max(top.level, lvl+1)
				top.next++
				continue
			}
			if visiting[pk] {
				return 0, fmt.Errorf("%w: %q is its own ancestor", ErrCyclic, pk.Name)
			}
			visiting[pk] = true
			stack = append(stack, &levelFrame{key: pk, preds: p.pre[pk]})
			continue
		}

		memo[top.key] = top.level
		if done != nil {
			*done = append(*done, top.key)
		}
		delete(visiting, top.key)
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.level = max(parent.level, top.level+1)
			parent.next++
		}
	}
	return memo[k], nil
}

// ensureLevels recomputes the level cache if a mutation invalidated it.
// Callers must hold p.mu.
func (p *Pipeline) ensureLevels() error {
	if p.valid {
		return nil
	}
	memo := make(map[NodeKey]int, len(p.order))
	completed := make([]NodeKey, 0, len(p.order))
	for _, n := range p.order {
		if _, err := p.levelOf(n.Key(), memo, &completed); err != nil {
			return err
		}
	}

	maxLevel := -1
	for _, lvl := range memo {
		maxLevel = max(maxLevel, lvl)
	}
	byLevel := make([][]Node, maxLevel+1)
	for _, k := range completed {
		lvl := memo[k]
		byLevel[lvl] = append(byLevel[lvl], p.nodes[k])
	}

	p.levels = memo
	p.byLevel = byLevel
	p.valid = true
	return nil
}

// ComputeNodeLevels returns the level of every node. The result is a copy
// of the cache, which stays valid until the next AddNode or AddEdge.
func (p *Pipeline) ComputeNodeLevels() (map[NodeKey]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLevels(); err != nil {
		return nil, err
	}
	out := make(map[NodeKey]int, len(p.levels))
	for k, v := range p.levels {
		out[k] = v
	}
	return out, nil
}

// Level returns the cached level of n.
func (p *Pipeline) Level(n Node) (int, error) {
	k, err := p.lookup(n)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLevels(); err != nil {
		return 0, err
	}
	return p.levels[k], nil
}

// ComputeMaxLevel returns the highest level, or -1 for an empty pipeline.
func (p *Pipeline) ComputeMaxLevel() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLevels(); err != nil {
		return 0, err
	}
	return len(p.byLevel) - 1, nil
}

// NodesByLevel returns the execution plan: bucket i holds every node at
// level i. Within a bucket nodes appear in the order their levels were
// resolved, which is deterministic for a given construction sequence.
// All nodes of a bucket may run concurrently once every earlier bucket
// has been dispatched.
func (p *Pipeline) NodesByLevel() ([][]Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLevels(); err != nil {
		return nil, err
	}
	out := make([][]Node, len(p.byLevel))
	for i, bucket := range p.byLevel {
		out[i] = append([]Node(nil), bucket...)
	}
	return out, nil
}

func (p *Pipeline) String() string {
	var b strings.Builder
	for _, n := range p.order {
		b.WriteString(n.Name())
		b.WriteString(" <-")
		for _, pre := range p.pre[n.Key()] {
			b.WriteString(" ")
			b.WriteString(pre.Name())
		}
		b.WriteString("\n")
	}
	return b.String()
}
