package pipeline

import (
	"context"
	"fmt"
	"reflect"
)

// Estimator is the capability wrapped by an EstimatorNode: a single-input,
// single-output transform that can be fitted.
//
// Fit trains the receiver in place. Clone returns a fresh, unfitted copy
// whose tunable parameters are independent of the receiver's.
type Estimator interface {
	Fit(ctx context.Context, xy Xy) error
	Transform(ctx context.Context, x any) (any, error)
	Clone() Estimator
}

// Params holds an estimator's tunable parameters.
type Params map[string]any

// Clone deep-copies nested maps and slices so the copy shares no mutable
// state with p.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Params:
		return t.Clone()
	case map[string]any:
		return map[string]any(Params(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []float64:
		return append([]float64(nil), t...)
	case []int:
		return append([]int(nil), t...)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Float returns the parameter as a float64, or def when it is absent or not numeric.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// EstimatorNode is an OR node wrapping an Estimator. It consumes one Xy per
// invocation and produces one Xy.
type EstimatorNode struct {
	baseNode
	estimator Estimator
}

// NewEstimatorNode returns an OR / ANY / IMMUTABLE node around est.
func NewEstimatorNode(name string, est Estimator, opts ...NodeOption) (*EstimatorNode, error) {
	if isNil(est) {
		return nil, fmt.Errorf("%w: estimator node %q has a nil estimator", ErrInvalidCapability, name)
	}
	return &EstimatorNode{
		baseNode:  newBaseNode(name, KindEstimator, InputOR, FiringAny, StateImmutable, opts),
		estimator: est,
	}, nil
}

// Estimator returns the wrapped estimator.
func (n *EstimatorNode) Estimator() Estimator { return n.estimator }

// Clone returns a node with a new identity wrapping an independent copy
// of the estimator, so clones can be fitted without cross-talk.
func (n *EstimatorNode) Clone() Node {
	return &EstimatorNode{
		baseNode:  n.cloneBase(),
		estimator: n.estimator.Clone(),
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
