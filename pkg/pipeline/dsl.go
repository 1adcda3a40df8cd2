package pipeline

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the top-level YAML structure declaring a pipeline graph.
type Definition struct {
	Pipeline    string    `yaml:"pipeline"`
	Description string    `yaml:"description,omitempty"`
	Nodes       []NodeDef `yaml:"nodes"`
	Edges       []EdgeDef `yaml:"edges,omitempty"`
}

// NodeDef declares a node. Transform names a Factory in the Registry
// passed to Build; Params are handed to that factory.
type NodeDef struct {
	Name      string         `yaml:"name"`
	Kind      NodeKind       `yaml:"kind"`
	Transform string         `yaml:"transform"`
	Params    map[string]any `yaml:"params,omitempty"`
	Firing    string         `yaml:"firing,omitempty"`
	State     string         `yaml:"state,omitempty"`
}

// EdgeDef declares a directed edge between two named nodes.
type EdgeDef struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Factory builds a transform capability (an Estimator or an AndTransform)
// from its parameters.
type Factory func(params Params) (any, error)

// Registry maps transform names to factories.
type Registry map[string]Factory

// Graph is a Pipeline built from a Definition, with its nodes indexed by
// their declared names.
type Graph struct {
	Name        string
	Description string
	Pipeline    *Pipeline
	Nodes       map[string]Node
}

// Node returns the node declared under name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.Nodes[name]
	return n, ok
}

// LoadDefinition parses a YAML pipeline definition.
func LoadDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse pipeline YAML: %w", err)
	}
	return &def, nil
}

// Encode serializes the definition back to YAML.
func (def *Definition) Encode() ([]byte, error) {
	return yaml.Marshal(def)
}

// ParseFiringType accepts "any" or "all" (case-insensitive).
func ParseFiringType(s string) (FiringType, error) {
	switch strings.ToLower(s) {
	case "any":
		return FiringAny, nil
	case "all":
		return FiringAll, nil
	default:
		return 0, fmt.Errorf("unknown firing type %q", s)
	}
}

// ParseStateType accepts the lower-case names printed by StateType.String.
func ParseStateType(s string) (StateType, error) {
	for _, t := range []StateType{StateStateless, StateImmutable, StateMutableSequential, StateMutableAggregate} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown state type %q", s)
}

// Validate checks the definition:
//   - pipeline name is non-empty
//   - at least one node exists, names are unique and non-empty
//   - kinds are estimator or and, transforms are named
//   - firing and state overrides parse
//   - edges reference declared nodes and are not self-loops
func (def *Definition) Validate() error {
	if def.Pipeline == "" {
		return fmt.Errorf("%w: pipeline name is required", ErrInvalidDefinition)
	}
	if len(def.Nodes) == 0 {
		return fmt.Errorf("%w: at least one node is required", ErrInvalidDefinition)
	}

	nodeSet := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if n.Name == "" {
			return fmt.Errorf("%w: node name is required", ErrInvalidDefinition)
		}
		if nodeSet[n.Name] {
			return fmt.Errorf("%w: duplicate node name %q", ErrInvalidDefinition, n.Name)
		}
		nodeSet[n.Name] = true

		if n.Kind != KindEstimator && n.Kind != KindAnd {
			return fmt.Errorf("%w: node %q has unknown kind %q", ErrInvalidDefinition, n.Name, n.Kind)
		}
		if n.Transform == "" {
			return fmt.Errorf("%w: node %q has no transform", ErrInvalidDefinition, n.Name)
		}
		if n.Firing != "" {
			if _, err := ParseFiringType(n.Firing); err != nil {
				return fmt.Errorf("%w: node %q: %v", ErrInvalidDefinition, n.Name, err)
			}
		}
		if n.State != "" {
			if _, err := ParseStateType(n.State); err != nil {
				return fmt.Errorf("%w: node %q: %v", ErrInvalidDefinition, n.Name, err)
			}
		}
	}

	for i, e := range def.Edges {
		if !nodeSet[e.From] {
			return fmt.Errorf("%w: edge %d references unknown source node %q", ErrInvalidDefinition, i, e.From)
		}
		if !nodeSet[e.To] {
			return fmt.Errorf("%w: edge %d references unknown target node %q", ErrInvalidDefinition, i, e.To)
		}
		if e.From == e.To {
			return fmt.Errorf("%w: edge %d is a self-loop on %q", ErrInvalidDefinition, i, e.From)
		}
	}
	return nil
}

// Build validates the definition and constructs its Pipeline, creating each
// node's capability through reg. opts apply to every node.
func (def *Definition) Build(reg Registry, opts ...NodeOption) (*Graph, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	g := &Graph{
		Name:        def.Pipeline,
		Description: def.Description,
		Pipeline:    New(),
		Nodes:       make(map[string]Node, len(def.Nodes)),
	}

	for _, nd := range def.Nodes {
		factory, ok := reg[nd.Transform]
		if !ok || factory == nil {
			return nil, fmt.Errorf("no factory for transform %q (node %q)", nd.Transform, nd.Name)
		}
		capability, err := factory(Params(nd.Params).Clone())
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nd.Name, err)
		}

		nodeOpts := append([]NodeOption(nil), opts...)
		if nd.Firing != "" {
			ft, _ := ParseFiringType(nd.Firing)
			nodeOpts = append(nodeOpts, WithFiringType(ft))
		}
		if nd.State != "" {
			st, _ := ParseStateType(nd.State)
			nodeOpts = append(nodeOpts, WithStateType(st))
		}

		n, err := buildNode(nd, capability, nodeOpts)
		if err != nil {
			return nil, err
		}
		if err := g.Pipeline.AddNode(n); err != nil {
			return nil, err
		}
		g.Nodes[nd.Name] = n
	}

	for _, ed := range def.Edges {
		if err := g.Pipeline.AddEdge(g.Nodes[ed.From], g.Nodes[ed.To]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func buildNode(nd NodeDef, capability any, opts []NodeOption) (Node, error) {
	switch nd.Kind {
	case KindEstimator:
		est, ok := capability.(Estimator)
		if !ok {
			return nil, fmt.Errorf("%w: transform %q for estimator node %q is %T", ErrInvalidCapability, nd.Transform, nd.Name, capability)
		}
		return NewEstimatorNode(nd.Name, est, opts...)
	default:
		fn, ok := capability.(AndTransform)
		if !ok {
			return nil, fmt.Errorf("%w: transform %q for and node %q is %T", ErrInvalidCapability, nd.Transform, nd.Name, capability)
		}
		return NewAndNode(nd.Name, fn, opts...)
	}
}
