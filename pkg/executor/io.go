package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/Bobbins228/codeflare/pkg/pipeline"
)

// Input holds the boundary references fed to source nodes.
type Input struct {
	nodes []pipeline.Node
	refs  map[pipeline.NodeKey][]*pipeline.XYRef
}

// NewInput returns an empty Input.
func NewInput() *Input {
	return &Input{refs: make(map[pipeline.NodeKey][]*pipeline.XYRef)}
}

// Add feeds materialized values to n. Each Xy becomes one boundary ref.
func (in *Input) Add(n pipeline.Node, xys ...pipeline.Xy) *Input {
	refs := make([]*pipeline.XYRef, len(xys))
	for i, xy := range xys {
		refs[i] = pipeline.XYRefOf(xy)
	}
	return in.AddRef(n, refs...)
}

// AddRef feeds existing, possibly unresolved, references to n.
func (in *Input) AddRef(n pipeline.Node, refs ...*pipeline.XYRef) *Input {
	k := n.Key()
	if _, ok := in.refs[k]; !ok {
		in.nodes = append(in.nodes, n)
	}
	in.refs[k] = append(in.refs[k], refs...)
	return in
}

// Refs returns the references fed to n.
func (in *Input) Refs(n pipeline.Node) []*pipeline.XYRef {
	return append([]*pipeline.XYRef(nil), in.refs[n.Key()]...)
}

// Nodes returns the nodes that received input, in the order first added.
func (in *Input) Nodes() []pipeline.Node {
	return append([]pipeline.Node(nil), in.nodes...)
}

// FittedModel is an estimator fitted during a ModeFit run, together with
// the output reference it produced.
type FittedModel struct {
	Node      pipeline.Node
	Estimator pipeline.Estimator
	Output    *pipeline.XYRef
}

// Output holds the references produced by a run. References exist for
// every dispatched invocation even if the run failed; refs downstream of a
// failure resolve to an error. Nodes the run never reached, because it was
// cancelled or failed first, have no refs and Resolve reports
// ErrNotDispatched for them.
type Output struct {
	RunID string

	refs      map[pipeline.NodeKey][]*pipeline.XYRef
	terminals []pipeline.Node

	mu     sync.Mutex
	models []FittedModel
}

func newOutput(runID string, terminals []pipeline.Node) *Output {
	return &Output{
		RunID:     runID,
		refs:      make(map[pipeline.NodeKey][]*pipeline.XYRef),
		terminals: terminals,
	}
}

// Refs returns the references produced by n, in dispatch order. It is
// empty for a node that was never dispatched.
func (o *Output) Refs(n pipeline.Node) []*pipeline.XYRef {
	return append([]*pipeline.XYRef(nil), o.refs[n.Key()]...)
}

// Terminals returns the pipeline's sink nodes, whose refs are the run's results.
func (o *Output) Terminals() []pipeline.Node {
	return append([]pipeline.Node(nil), o.terminals...)
}

// Dispatched reports whether the run reached n.
func (o *Output) Dispatched(n pipeline.Node) bool {
	_, ok := o.refs[n.Key()]
	return ok
}

// Resolve waits for every reference produced by n.
func (o *Output) Resolve(ctx context.Context, n pipeline.Node) ([]pipeline.Xy, error) {
	refs, ok := o.refs[n.Key()]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", n.Name(), ErrNotDispatched)
	}
	out := make([]pipeline.Xy, 0, len(refs))
	for i, ref := range refs {
		xy, err := ref.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("node %q output %d: %w", n.Name(), i, err)
		}
		out = append(out, xy)
	}
	return out, nil
}

// FittedModels returns the estimators fitted during the run.
func (o *Output) FittedModels() []FittedModel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]FittedModel(nil), o.models...)
}

func (o *Output) addModel(m FittedModel) {
	o.mu.Lock()
	o.models = append(o.models, m)
	o.mu.Unlock()
}
