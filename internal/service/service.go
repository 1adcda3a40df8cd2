// Package service glues pipeline definitions, input files and the executor
// together for the CLI and the MCP server.
package service

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Bobbins228/codeflare/internal/transforms"
	"github.com/Bobbins228/codeflare/pkg/executor"
	"github.com/Bobbins228/codeflare/pkg/pipeline"
)

// Load parses and builds a pipeline definition against the built-in
// transform registry.
func Load(def []byte) (*pipeline.Graph, error) {
	d, err := pipeline.LoadDefinition(def)
	if err != nil {
		return nil, err
	}
	return d.Build(transforms.Registry())
}

// Plan is the level schedule of a pipeline.
type Plan struct {
	Pipeline string     `json:"pipeline" yaml:"pipeline"`
	Nodes    int        `json:"nodes" yaml:"nodes"`
	MaxLevel int        `json:"max_level" yaml:"max_level"`
	Levels   [][]string `json:"levels" yaml:"levels"`
	Sources  []string   `json:"sources" yaml:"sources"`
	Sinks    []string   `json:"sinks" yaml:"sinks"`
	Edges    []string   `json:"edges" yaml:"edges"`
}

// PlanOf computes the level schedule of g.
func PlanOf(g *pipeline.Graph) (*Plan, error) {
	levels, err := g.Pipeline.NodesByLevel()
	if err != nil {
		return nil, err
	}
	maxLevel, err := g.Pipeline.ComputeMaxLevel()
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Pipeline: g.Name,
		Nodes:    g.Pipeline.Len(),
		MaxLevel: maxLevel,
		Levels:   make([][]string, len(levels)),
		Sources:  names(g.Pipeline.Sources()),
		Sinks:    names(g.Pipeline.Terminals()),
	}
	for i, bucket := range levels {
		plan.Levels[i] = names(bucket)
	}
	for _, e := range g.Pipeline.Edges() {
		plan.Edges = append(plan.Edges, e.String())
	}
	return plan, nil
}

func names(nodes []pipeline.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

// XyValue is the serialized form of a materialized Xy.
type XyValue struct {
	X any `json:"x" yaml:"x"`
	Y any `json:"y,omitempty" yaml:"y,omitempty"`
}

// InputFile maps source node names to the values fed to them.
//
//	inputs:
//	  load:
//	    - x: [[1, 2], [3, 4]]
//	      y: [0, 1]
type InputFile struct {
	Inputs map[string][]XyValue `json:"inputs" yaml:"inputs"`
}

// ParseInput decodes an input file (YAML or JSON) and binds it to g's
// nodes by name. Nodes are added in name order.
func ParseInput(data []byte, g *pipeline.Graph) (*executor.Input, error) {
	var f InputFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse input YAML: %w", err)
	}
	in := executor.NewInput()
	for _, name := range slices.Sorted(maps.Keys(f.Inputs)) {
		n, ok := g.Node(name)
		if !ok {
			return nil, fmt.Errorf("%w: input names unknown node %q", executor.ErrMissingInput, name)
		}
		for _, v := range f.Inputs[name] {
			in.Add(n, pipeline.NewXy(v.X, v.Y))
		}
	}
	return in, nil
}

// Result is the serialized outcome of a run: every sink node's outputs.
type Result struct {
	Pipeline    string               `json:"pipeline" yaml:"pipeline"`
	RunID       string               `json:"run_id" yaml:"run_id"`
	Outputs     map[string][]XyValue `json:"outputs" yaml:"outputs"`
	FittedNodes []string             `json:"fitted_nodes,omitempty" yaml:"fitted_nodes,omitempty"`
}

// Run executes g over in and materializes the sink outputs.
func Run(ctx context.Context, g *pipeline.Graph, in *executor.Input, opts ...executor.Option) (*Result, error) {
	out, err := executor.New(g.Pipeline, opts...).Run(ctx, in)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Pipeline: g.Name,
		RunID:    out.RunID,
		Outputs:  make(map[string][]XyValue),
	}
	for _, n := range out.Terminals() {
		xys, err := out.Resolve(ctx, n)
		if err != nil {
			return nil, err
		}
		vals := make([]XyValue, len(xys))
		for i, xy := range xys {
			vals[i] = XyValue{X: xy.X(), Y: xy.Y()}
		}
		res.Outputs[n.Name()] = vals
	}
	seen := make(map[string]bool)
	for _, m := range out.FittedModels() {
		if name := m.Node.Name(); !seen[name] {
			seen[name] = true
			res.FittedNodes = append(res.FittedNodes, name)
		}
	}
	slices.Sort(res.FittedNodes)
	return res, nil
}
