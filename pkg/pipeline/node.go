package pipeline

import "fmt"

// InputType declares how many predecessors a node expects.
type InputType int

const (
	// InputOR nodes consume one predecessor output per invocation.
	InputOR InputType = iota
	// InputAND nodes consume one output from every predecessor per invocation.
	InputAND
)

func (t InputType) String() string {
	switch t {
	case InputOR:
		return "or"
	case InputAND:
		return "and"
	default:
		return fmt.Sprintf("InputType(%d)", int(t))
	}
}

// FiringType declares how many ready predecessor outputs a node needs
// before it may fire.
type FiringType int

const (
	// FiringAny fires each invocation as soon as its own inputs are ready.
	FiringAny FiringType = iota
	// FiringAll fires only once every predecessor output is ready.
	FiringAll
)

func (t FiringType) String() string {
	switch t {
	case FiringAny:
		return "any"
	case FiringAll:
		return "all"
	default:
		return fmt.Sprintf("FiringType(%d)", int(t))
	}
}

// StateType declares whether re-invoking a node must preserve ordering or
// accumulates state. The graph does not enforce it; executors schedule by it.
type StateType int

const (
	StateStateless StateType = iota
	StateImmutable
	StateMutableSequential
	StateMutableAggregate
)

func (t StateType) String() string {
	switch t {
	case StateStateless:
		return "stateless"
	case StateImmutable:
		return "immutable"
	case StateMutableSequential:
		return "mutable_sequential"
	case StateMutableAggregate:
		return "mutable_aggregate"
	default:
		return fmt.Sprintf("StateType(%d)", int(t))
	}
}

// Mutable reports whether invocations of a node with this state type must
// be serialized.
func (t StateType) Mutable() bool {
	return t == StateMutableSequential || t == StateMutableAggregate
}

// NodeKind names a concrete node variant.
type NodeKind string

const (
	KindEstimator NodeKind = "estimator"
	KindAnd       NodeKind = "and"
)

// NodeKey is the comparable identity of a node: variant, identity and name.
// The pipeline keys its adjacency maps by NodeKey.
type NodeKey struct {
	Kind NodeKind
	ID   NodeID
	Name string
}

// Node is a unit of computation in a pipeline graph. Nodes are immutable
// after construction; Clone produces an equivalent node with a fresh
// identity and an independent copy of any stateful capability.
type Node interface {
	ID() NodeID
	Name() string
	Kind() NodeKind
	InputType() InputType
	FiringType() FiringType
	StateType() StateType
	Key() NodeKey
	Clone() Node
	String() string
}

// Equal reports whether two nodes are graph-equal. Two nil nodes are equal.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

// keyOf returns the zero key for a nil node, used for boundary endpoints.
func keyOf(n Node) NodeKey {
	if n == nil {
		return NodeKey{}
	}
	return n.Key()
}

// NodeOption configures a node during construction.
type NodeOption func(*nodeConfig)

type nodeConfig struct {
	ids    IDGenerator
	firing *FiringType
	state  *StateType
}

// WithIDGenerator sets the generator that mints the node's identity.
func WithIDGenerator(g IDGenerator) NodeOption {
	return func(c *nodeConfig) {
		c.ids = g
	}
}

// WithFiringType overrides the variant's default firing type.
func WithFiringType(t FiringType) NodeOption {
	return func(c *nodeConfig) {
		c.firing = &t
	}
}

// WithStateType overrides the variant's default state type.
func WithStateType(t StateType) NodeOption {
	return func(c *nodeConfig) {
		c.state = &t
	}
}

// baseNode holds the attributes shared by all node variants.
type baseNode struct {
	id     NodeID
	name   string
	kind   NodeKind
	input  InputType
	firing FiringType
	state  StateType
	ids    IDGenerator
}

func newBaseNode(name string, kind NodeKind, input InputType, firing FiringType, state StateType, opts []NodeOption) baseNode {
	cfg := nodeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ids == nil {
		cfg.ids = defaultIDGenerator()
	}
	if cfg.firing != nil {
		firing = *cfg.firing
	}
	if cfg.state != nil {
		state = *cfg.state
	}
	return baseNode{
		id:     cfg.ids.NewID(),
		name:   name,
		kind:   kind,
		input:  input,
		firing: firing,
		state:  state,
		ids:    cfg.ids,
	}
}

// cloneBase copies the configuration with a freshly minted identity.
func (b baseNode) cloneBase() baseNode {
	b.id = b.ids.NewID()
	return b
}

func (b *baseNode) ID() NodeID             { return b.id }
func (b *baseNode) Name() string           { return b.name }
func (b *baseNode) Kind() NodeKind         { return b.kind }
func (b *baseNode) InputType() InputType   { return b.input }
func (b *baseNode) FiringType() FiringType { return b.firing }
func (b *baseNode) StateType() StateType   { return b.state }
func (b *baseNode) String() string         { return b.name }

func (b *baseNode) Key() NodeKey {
	return NodeKey{Kind: b.kind, ID: b.id, Name: b.name}
}

// NewNode builds the node variant matching the capability: an Estimator
// yields an EstimatorNode, an AndTransform yields an AndNode. Anything else
// fails with ErrInvalidCapability.
func NewNode(name string, capability any, opts ...NodeOption) (Node, error) {
	switch c := capability.(type) {
	case Estimator:
		return NewEstimatorNode(name, c, opts...)
	case AndTransform:
		return NewAndNode(name, c, opts...)
	case nil:
		return nil, fmt.Errorf("%w: node %q has no capability", ErrInvalidCapability, name)
	default:
		return nil, fmt.Errorf("%w: node %q: %T implements neither Estimator nor AndTransform", ErrInvalidCapability, name, capability)
	}
}
