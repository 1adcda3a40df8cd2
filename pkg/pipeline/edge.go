package pipeline

// boundary is how an absent edge endpoint is rendered.
const boundary = "(none)"

// Edge is a directed connection between two nodes. A nil endpoint is the
// pipeline boundary: Edge{From: nil} marks a source, Edge{To: nil} a sink.
// Edges are never stored; the pipeline synthesizes them from adjacency lists.
type Edge struct {
	From Node
	To   Node
}

// EdgeKey is the comparable form of an Edge, usable as a map key.
type EdgeKey struct {
	From NodeKey
	To   NodeKey
}

func (e Edge) Key() EdgeKey {
	return EdgeKey{From: keyOf(e.From), To: keyOf(e.To)}
}

// Equal reports whether both endpoints are graph-equal.
func (e Edge) Equal(o Edge) bool {
	return e.Key() == o.Key()
}

// IsSource reports whether the edge is the sentinel for a node with no predecessors.
func (e Edge) IsSource() bool { return e.From == nil }

// IsSink reports whether the edge is the sentinel for a node with no successors.
func (e Edge) IsSink() bool { return e.To == nil }

func (e Edge) String() string {
	return endpointName(e.From) + " -> " + endpointName(e.To)
}

func endpointName(n Node) string {
	if n == nil {
		return boundary
	}
	return n.Name()
}
