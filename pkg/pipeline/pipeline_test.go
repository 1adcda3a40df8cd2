package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// --- test helpers ---

type stubEstimator struct {
	params Params
	fitted bool
}

func (e *stubEstimator) Fit(_ context.Context, _ Xy) error {
	e.fitted = true
	return nil
}

func (e *stubEstimator) Transform(_ context.Context, x any) (any, error) {
	return x, nil
}

func (e *stubEstimator) Clone() Estimator {
	return &stubEstimator{params: e.params.Clone()}
}

func estNode(t *testing.T, name string) Node {
	t.Helper()
	n, err := NewEstimatorNode(name, &stubEstimator{params: Params{}})
	if err != nil {
		t.Fatalf("NewEstimatorNode(%q): %v", name, err)
	}
	return n
}

func andNode(t *testing.T, name string) Node {
	t.Helper()
	n, err := NewAndNode(name, AndTransformFunc(func(_ context.Context, xys []Xy) (Xy, error) {
		return xys[0], nil
	}))
	if err != nil {
		t.Fatalf("NewAndNode(%q): %v", name, err)
	}
	return n
}

func mustEdge(t *testing.T, p *Pipeline, from, to Node) {
	t.Helper()
	if err := p.AddEdge(from, to); err != nil {
		t.Fatalf("AddEdge(%s, %s): %v", from, to, err)
	}
}

func levelNames(t *testing.T, p *Pipeline) [][]string {
	t.Helper()
	levels, err := p.NodesByLevel()
	if err != nil {
		t.Fatalf("NodesByLevel: %v", err)
	}
	out := make([][]string, len(levels))
	for i, bucket := range levels {
		out[i] = []string{}
		for _, n := range bucket {
			out[i] = append(out[i], n.Name())
		}
	}
	return out
}

func nodeNames(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func levelOf(t *testing.T, p *Pipeline, n Node) int {
	t.Helper()
	lvl, err := p.Level(n)
	if err != nil {
		t.Fatalf("Level(%s): %v", n, err)
	}
	return lvl
}

// --- leveling scenarios ---

func TestNodesByLevel_FanIn(t *testing.T) {
	a, b, c := estNode(t, "A"), estNode(t, "B"), andNode(t, "C")
	p := New()
	mustEdge(t, p, a, c)
	mustEdge(t, p, b, c)

	want := [][]string{{"A", "B"}, {"C"}}
	if diff := cmp.Diff(want, levelNames(t, p)); diff != "" {
		t.Errorf("NodesByLevel mismatch (-want +got):\n%s", diff)
	}
	for n, lvl := range map[Node]int{a: 0, b: 0, c: 1} {
		if got := levelOf(t, p, n); got != lvl {
			t.Errorf("level(%s) = %d, want %d", n, got, lvl)
		}
	}
}

func TestNodesByLevel_LinearChain(t *testing.T) {
	a, b, c, d := estNode(t, "A"), estNode(t, "B"), estNode(t, "C"), estNode(t, "D")
	p := New()
	mustEdge(t, p, a, b)
	mustEdge(t, p, b, c)
	mustEdge(t, p, c, d)

	want := [][]string{{"A"}, {"B"}, {"C"}, {"D"}}
	if diff := cmp.Diff(want, levelNames(t, p)); diff != "" {
		t.Errorf("NodesByLevel mismatch (-want +got):\n%s", diff)
	}
	maxLevel, err := p.ComputeMaxLevel()
	if err != nil {
		t.Fatal(err)
	}
	if maxLevel != 3 {
		t.Errorf("ComputeMaxLevel = %d, want 3", maxLevel)
	}
}

func TestNodesByLevel_Diamond(t *testing.T) {
	a, b, c, d := estNode(t, "A"), estNode(t, "B"), estNode(t, "C"), andNode(t, "D")
	p := New()
	mustEdge(t, p, a, b)
	mustEdge(t, p, a, c)
	mustEdge(t, p, b, d)
	mustEdge(t, p, c, d)

	if got := levelOf(t, p, d); got != 2 {
		t.Errorf("level(D) = %d, want 2", got)
	}
	want := [][]string{{"A"}, {"B", "C"}, {"D"}}
	if diff := cmp.Diff(want, levelNames(t, p)); diff != "" {
		t.Errorf("NodesByLevel mismatch (-want +got):\n%s", diff)
	}
}

func TestNodesByLevel_LongestPathWins(t *testing.T) {
	// A -> B -> C -> E and A -> E: E sits after C, not after A.
	a, b, c, e := estNode(t, "A"), estNode(t, "B"), estNode(t, "C"), andNode(t, "E")
	p := New()
	mustEdge(t, p, a, e)
	mustEdge(t, p, a, b)
	mustEdge(t, p, b, c)
	mustEdge(t, p, c, e)

	if got := levelOf(t, p, e); got != 3 {
		t.Errorf("level(E) = %d, want 3", got)
	}
}

func TestNodesByLevel_BucketOrderFollowsResolution(t *testing.T) {
	// D is added first and pulls V in through its predecessor walk, so V
	// resolves before U even though U was added earlier.
	d, u, v := estNode(t, "D"), estNode(t, "U"), estNode(t, "V")
	p := New()
	if err := p.AddNode(d); err != nil {
		t.Fatal(err)
	}
	if err := p.AddNode(u); err != nil {
		t.Fatal(err)
	}
	mustEdge(t, p, v, d)

	want := [][]string{{"V", "U"}, {"D"}}
	if diff := cmp.Diff(want, levelNames(t, p)); diff != "" {
		t.Errorf("NodesByLevel mismatch (-want +got):\n%s", diff)
	}
}

func TestLevels_Properties(t *testing.T) {
	p := New()
	nodes := make([]Node, 12)
	for i := range nodes {
		nodes[i] = estNode(t, fmt.Sprintf("n%d", i))
	}
	// Forward-only edges keep the graph acyclic.
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			if (i*7+j*3)%5 == 0 {
				mustEdge(t, p, nodes[i], nodes[j])
			}
		}
	}
	for _, n := range nodes {
		if err := p.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}

	levels, err := p.ComputeNodeLevels()
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range nodes {
		preds, err := p.PreImage(n)
		if err != nil {
			t.Fatal(err)
		}
		lvl := levels[n.Key()]
		if len(preds) == 0 {
			if lvl != 0 {
				t.Errorf("source %s has level %d, want 0", n, lvl)
			}
			continue
		}
		tight := false
		for _, pre := range preds {
			pl := levels[pre.Key()]
			if lvl < pl+1 {
				t.Errorf("level(%s)=%d < level(%s)+1=%d", n, lvl, pre, pl+1)
			}
			if lvl == pl+1 {
				tight = true
			}
		}
		if !tight {
			t.Errorf("level(%s)=%d is not 1 + level of any predecessor", n, lvl)
		}
	}

	// Every node lands in exactly one bucket.
	buckets, err := p.NodesByLevel()
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[NodeKey]int)
	for _, bucket := range buckets {
		for _, n := range bucket {
			seen[n.Key()]++
		}
	}
	if len(seen) != len(nodes) {
		t.Errorf("buckets hold %d distinct nodes, want %d", len(seen), len(nodes))
	}
	for k, count := range seen {
		if count != 1 {
			t.Errorf("node %s appears %d times", k.Name, count)
		}
	}
}

func TestComputeNodeLevels_Idempotent(t *testing.T) {
	a, b, c := estNode(t, "A"), estNode(t, "B"), andNode(t, "C")
	p := New()
	mustEdge(t, p, a, c)
	mustEdge(t, p, b, c)

	first, err := p.ComputeNodeLevels()
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.ComputeNodeLevels()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("levels changed between calls:\n%s", diff)
	}
	if diff := cmp.Diff(levelNames(t, p), levelNames(t, p)); diff != "" {
		t.Errorf("buckets changed between calls:\n%s", diff)
	}
}

func TestComputeNodeLevels_ReturnsCopy(t *testing.T) {
	a, b := estNode(t, "A"), estNode(t, "B")
	p := New()
	mustEdge(t, p, a, b)

	levels, err := p.ComputeNodeLevels()
	if err != nil {
		t.Fatal(err)
	}
	levels[b.Key()] = 42
	buckets, _ := p.NodesByLevel()
	buckets[0] = nil

	if got := levelOf(t, p, b); got != 1 {
		t.Errorf("cached level(B) = %d after caller mutation, want 1", got)
	}
	if diff := cmp.Diff([][]string{{"A"}, {"B"}}, levelNames(t, p)); diff != "" {
		t.Errorf("cached buckets mutated by caller:\n%s", diff)
	}
}

func TestComputeNodeLevel_SharedMemo(t *testing.T) {
	a, b, c := estNode(t, "A"), estNode(t, "B"), estNode(t, "C")
	p := New()
	mustEdge(t, p, a, b)
	mustEdge(t, p, b, c)

	memo := make(map[NodeKey]int)
	lvl, err := p.ComputeNodeLevel(c, memo)
	if err != nil {
		t.Fatal(err)
	}
	if lvl != 2 {
		t.Errorf("level(C) = %d, want 2", lvl)
	}
	want := map[NodeKey]int{a.Key(): 0, b.Key(): 1, c.Key(): 2}
	if diff := cmp.Diff(want, memo); diff != "" {
		t.Errorf("memo mismatch (-want +got):\n%s", diff)
	}

	// A pre-seeded memo entry is trusted, not recomputed.
	memo = map[NodeKey]int{b.Key(): 10}
	lvl, err = p.ComputeNodeLevel(c, memo)
	if err != nil {
		t.Fatal(err)
	}
	if lvl != 11 {
		t.Errorf("level(C) with seeded memo = %d, want 11", lvl)
	}
}

func TestComputeNodeLevel_DeepChain(t *testing.T) {
	const depth = 100_000
	p := New()
	prev := estNode(t, "n0")
	first := prev
	for i := 1; i < depth; i++ {
		next := estNode(t, fmt.Sprintf("n%d", i))
		mustEdge(t, p, prev, next)
		prev = next
	}

	lvl, err := p.ComputeNodeLevel(prev, nil)
	if err != nil {
		t.Fatal(err)
	}
	if lvl != depth-1 {
		t.Errorf("level(last) = %d, want %d", lvl, depth-1)
	}
	if got := levelOf(t, p, first); got != 0 {
		t.Errorf("level(first) = %d, want 0", got)
	}
}

func TestNodesByLevel_CycleReported(t *testing.T) {
	a, b, c := estNode(t, "A"), estNode(t, "B"), estNode(t, "C")
	p := New()
	mustEdge(t, p, a, b)
	mustEdge(t, p, b, c)
	mustEdge(t, p, c, a)

	if _, err := p.NodesByLevel(); !errors.Is(err, ErrCyclic) {
		t.Fatalf("NodesByLevel error = %v, want ErrCyclic", err)
	}
	if _, err := p.ComputeNodeLevel(a, nil); !errors.Is(err, ErrCyclic) {
		t.Fatalf("ComputeNodeLevel error = %v, want ErrCyclic", err)
	}
}

func TestComputeMaxLevel_Empty(t *testing.T) {
	p := New()
	maxLevel, err := p.ComputeMaxLevel()
	if err != nil {
		t.Fatal(err)
	}
	if maxLevel != -1 {
		t.Errorf("ComputeMaxLevel on empty pipeline = %d, want -1", maxLevel)
	}
	levels, err := p.NodesByLevel()
	if err != nil {
		t.Fatal(err)
	}
	if len(levels) != 0 {
		t.Errorf("NodesByLevel on empty pipeline = %v, want none", levels)
	}
}

// --- mutation and cache ---

func TestAddNode_ExistingIsNoop(t *testing.T) {
	a, b := estNode(t, "A"), estNode(t, "B")
	p := New()
	mustEdge(t, p, a, b)
	if _, err := p.NodesByLevel(); err != nil {
		t.Fatal(err)
	}
	if !p.valid {
		t.Fatal("level cache should be valid after NodesByLevel")
	}

	if err := p.AddNode(a); err != nil {
		t.Fatal(err)
	}
	if !p.valid {
		t.Error("re-adding an existing node invalidated the level cache")
	}
	if p.Len() != 2 {
		t.Errorf("Len = %d, want 2", p.Len())
	}
	post, _ := p.PostImage(a)
	if diff := cmp.Diff([]string{"B"}, nodeNames(post)); diff != "" {
		t.Errorf("PostImage(A) changed:\n%s", diff)
	}
}

func TestAddNode_NewNodeInvalidatesCache(t *testing.T) {
	a, b, c := estNode(t, "A"), estNode(t, "B"), estNode(t, "C")
	p := New()
	mustEdge(t, p, a, b)
	if diff := cmp.Diff([][]string{{"A"}, {"B"}}, levelNames(t, p)); diff != "" {
		t.Fatal(diff)
	}

	mustEdge(t, p, b, c)
	if p.valid {
		t.Error("AddEdge left the level cache valid")
	}
	if diff := cmp.Diff([][]string{{"A"}, {"B"}, {"C"}}, levelNames(t, p)); diff != "" {
		t.Errorf("levels not recomputed after mutation:\n%s", diff)
	}
}

func TestAddNode_Nil(t *testing.T) {
	p := New()
	if err := p.AddNode(nil); !errors.Is(err, ErrNilNode) {
		t.Errorf("AddNode(nil) = %v, want ErrNilNode", err)
	}
	if err := p.AddEdge(estNode(t, "A"), nil); !errors.Is(err, ErrNilNode) {
		t.Errorf("AddEdge(A, nil) = %v, want ErrNilNode", err)
	}
	if p.Len() != 0 {
		t.Errorf("failed AddEdge added %d nodes", p.Len())
	}
}

func TestAddEdge_MultiEdgeKept(t *testing.T) {
	a, b := estNode(t, "A"), andNode(t, "B")
	p := New()
	mustEdge(t, p, a, b)
	mustEdge(t, p, a, b)

	pre, err := p.PreImage(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"A", "A"}, nodeNames(pre)); diff != "" {
		t.Errorf("PreImage(B) mismatch:\n%s", diff)
	}
	if !p.HasEdge(a, b) {
		t.Error("HasEdge(A, B) = false")
	}
	if p.HasEdge(b, a) {
		t.Error("HasEdge(B, A) = true")
	}
	if got := len(p.Edges()); got != 2 {
		t.Errorf("len(Edges) = %d, want 2", got)
	}
}

// --- queries ---

func TestQueries_UnknownNode(t *testing.T) {
	p := New()
	mustEdge(t, p, estNode(t, "A"), estNode(t, "B"))
	stranger := estNode(t, "stranger")

	checks := map[string]func() error{
		"PreImage":  func() error { _, err := p.PreImage(stranger); return err },
		"PostImage": func() error { _, err := p.PostImage(stranger); return err },
		"PreNodes":  func() error { _, err := p.PreNodes(stranger); return err },
		"PostNodes": func() error { _, err := p.PostNodes(stranger); return err },
		"PreEdges":  func() error { _, err := p.PreEdges(stranger); return err },
		"PostEdges": func() error { _, err := p.PostEdges(stranger); return err },
		"IsTerminal": func() error {
			_, err := p.IsTerminal(stranger)
			return err
		},
		"Level": func() error { _, err := p.Level(stranger); return err },
		"ComputeNodeLevel": func() error {
			_, err := p.ComputeNodeLevel(stranger, nil)
			return err
		},
	}
	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			err := check()
			if !errors.Is(err, ErrNodeNotFound) {
				t.Fatalf("error = %v, want ErrNodeNotFound", err)
			}
		})
	}
}

func TestPreEdges_SourceSentinel(t *testing.T) {
	a, b := estNode(t, "A"), estNode(t, "B")
	p := New()
	mustEdge(t, p, a, b)

	edges, err := p.PreEdges(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("PreEdges(A) returned %d edges, want 1", len(edges))
	}
	if !edges[0].IsSource() || !Equal(edges[0].To, a) {
		t.Errorf("PreEdges(A)[0] = %s, want sentinel -> A", edges[0])
	}

	edges, err = p.PreEdges(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || !edges[0].Equal(Edge{From: a, To: b}) {
		t.Errorf("PreEdges(B) = %v, want [A -> B]", edges)
	}
}

func TestPostEdges_SinkSentinel(t *testing.T) {
	a, b := estNode(t, "A"), estNode(t, "B")
	p := New()
	mustEdge(t, p, a, b)

	edges, err := p.PostEdges(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || !edges[0].IsSink() || !Equal(edges[0].From, b) {
		t.Errorf("PostEdges(B) = %v, want [B -> (none)]", edges)
	}
}

func TestIsTerminal(t *testing.T) {
	a, b := estNode(t, "A"), estNode(t, "B")
	p := New()
	mustEdge(t, p, a, b)

	if term, _ := p.IsTerminal(a); term {
		t.Error("IsTerminal(A) = true, want false")
	}
	if term, _ := p.IsTerminal(b); !term {
		t.Error("IsTerminal(B) = false, want true")
	}
	if diff := cmp.Diff([]string{"B"}, nodeNames(p.Terminals())); diff != "" {
		t.Errorf("Terminals mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A"}, nodeNames(p.Sources())); diff != "" {
		t.Errorf("Sources mismatch:\n%s", diff)
	}
}

func TestPipeline_String(t *testing.T) {
	a, b, c := estNode(t, "A"), estNode(t, "B"), andNode(t, "C")
	p := New()
	mustEdge(t, p, a, c)
	mustEdge(t, p, b, c)

	want := "A <-\nC <- A B\nB <-\n"
	if got := p.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
