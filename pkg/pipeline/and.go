package pipeline

import (
	"context"
	"fmt"
)

// AndTransform merges one Xy per predecessor, in predecessor order, into a
// single Xy.
type AndTransform interface {
	Transform(ctx context.Context, xys []Xy) (Xy, error)
}

// AndTransformFunc adapts a plain function to the AndTransform interface.
type AndTransformFunc func(ctx context.Context, xys []Xy) (Xy, error)

func (f AndTransformFunc) Transform(ctx context.Context, xys []Xy) (Xy, error) {
	return f(ctx, xys)
}

// AndNode is a merge node. It is stateless, so clones share the transform.
type AndNode struct {
	baseNode
	fn AndTransform
}

// NewAndNode returns an AND / ANY / STATELESS node around fn.
func NewAndNode(name string, fn AndTransform, opts ...NodeOption) (*AndNode, error) {
	if isNil(fn) {
		return nil, fmt.Errorf("%w: and node %q has a nil transform", ErrInvalidCapability, name)
	}
	return &AndNode{
		baseNode: newBaseNode(name, KindAnd, InputAND, FiringAny, StateStateless, opts),
		fn:       fn,
	}, nil
}

// AndFunc returns the wrapped merge transform.
func (n *AndNode) AndFunc() AndTransform { return n.fn }

// Clone returns a node with a new identity sharing the merge transform.
func (n *AndNode) Clone() Node {
	return &AndNode{
		baseNode: n.cloneBase(),
		fn:       n.fn,
	}
}
