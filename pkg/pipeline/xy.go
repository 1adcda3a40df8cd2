package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Xy is a fully materialized pair of features (X) and labels (Y). Y may be nil.
type Xy struct {
	x any
	y any
}

// NewXy returns an immutable Xy holder.
func NewXy(x, y any) Xy {
	return Xy{x: x, y: y}
}

func (xy Xy) X() any { return xy.x }
func (xy Xy) Y() any { return xy.y }

// Ref is a reference to a value that may still be in flight. Resolve blocks
// until the value is available or ctx is done.
type Ref interface {
	Resolve(ctx context.Context) (any, error)
	IsReady() bool
}

// Value returns a Ref that is already resolved to v.
func Value(v any) Ref {
	return valueRef{v: v}
}

type valueRef struct {
	v any
}

func (r valueRef) Resolve(context.Context) (any, error) { return r.v, nil }
func (r valueRef) IsReady() bool                        { return true }

// Future is a Ref settled exactly once by its producer, either with a value
// (Fulfill) or an error (Fail). A failed future never resolves to a value.
type Future struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

// NewFuture returns an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Fulfill settles the future with v. It reports false if the future was
// already settled, in which case v is discarded.
func (f *Future) Fulfill(v any) bool {
	return f.settle(v, nil)
}

// Fail settles the future with err. It reports false if the future was
// already settled.
func (f *Future) Fail(err error) bool {
	if err == nil {
		err = fmt.Errorf("future failed with nil error")
	}
	return f.settle(nil, err)
}

func (f *Future) settle(v any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Resolve waits for the future to settle.
func (f *Future) Resolve(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// XYRef references a (possibly unresolved) X and Y together with the
// provenance of the value: the predecessor node whose output was consumed,
// the node that produced this value, and the refs consumed to produce it.
// Provenance fields are nil for refs accepted at the pipeline boundary.
//
// An XYRef never owns the referenced value; several XYRefs may share one Ref.
type XYRef struct {
	xRef     Ref
	yRef     Ref
	prevNode Node
	currNode Node
	prev     []*XYRef
}

// XYRefOption sets provenance on an XYRef.
type XYRefOption func(*XYRef)

// WithPrevNode records the predecessor node whose output was consumed.
func WithPrevNode(n Node) XYRefOption {
	return func(r *XYRef) { r.prevNode = n }
}

// WithCurrNode records the node that produced the value.
func WithCurrNode(n Node) XYRefOption {
	return func(r *XYRef) { r.currNode = n }
}

// WithPrevXYRefs records the refs consumed to produce the value, in order.
func WithPrevXYRefs(refs ...*XYRef) XYRefOption {
	return func(r *XYRef) {
		r.prev = append([]*XYRef(nil), refs...)
	}
}

// NewXYRef wraps x and y references. yRef may be nil when there are no labels.
func NewXYRef(xRef, yRef Ref, opts ...XYRefOption) *XYRef {
	r := &XYRef{xRef: xRef, yRef: yRef}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// XYRefOf wraps an already materialized Xy, as accepted at the pipeline boundary.
func XYRefOf(xy Xy, opts ...XYRefOption) *XYRef {
	return NewXYRef(Value(xy.X()), Value(xy.Y()), opts...)
}

func (r *XYRef) XRef() Ref      { return r.xRef }
func (r *XYRef) YRef() Ref      { return r.yRef }
func (r *XYRef) PrevNode() Node { return r.prevNode }
func (r *XYRef) CurrNode() Node { return r.currNode }

// PrevXYRefs returns a copy of the consumed refs.
func (r *XYRef) PrevXYRefs() []*XYRef {
	return append([]*XYRef(nil), r.prev...)
}

// IsReady reports whether both references are resolved.
func (r *XYRef) IsReady() bool {
	if r.xRef != nil && !r.xRef.IsReady() {
		return false
	}
	return r.yRef == nil || r.yRef.IsReady()
}

// Resolve blocks until X and Y are both available.
func (r *XYRef) Resolve(ctx context.Context) (Xy, error) {
	var x, y any
	var err error
	if r.xRef != nil {
		if x, err = r.xRef.Resolve(ctx); err != nil {
			return Xy{}, fmt.Errorf("resolve X: %w", err)
		}
	}
	if r.yRef != nil {
		if y, err = r.yRef.Resolve(ctx); err != nil {
			return Xy{}, fmt.Errorf("resolve y: %w", err)
		}
	}
	return NewXy(x, y), nil
}

// Ancestors returns every ref reachable through PrevXYRefs, nearest first.
// Shared ancestors are listed once.
func (r *XYRef) Ancestors() []*XYRef {
	seen := map[*XYRef]bool{r: true}
	var out []*XYRef
	queue := append([]*XYRef(nil), r.prev...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == nil || seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, cur.prev...)
	}
	return out
}

// Lineage returns the distinct producing nodes from this ref back to the
// pipeline boundary, nearest first.
func (r *XYRef) Lineage() []Node {
	seen := make(map[NodeKey]bool)
	var out []Node
	add := func(n Node) {
		if n == nil || seen[n.Key()] {
			return
		}
		seen[n.Key()] = true
		out = append(out, n)
	}
	add(r.currNode)
	for _, a := range r.Ancestors() {
		add(a.currNode)
	}
	return out
}

// KeyedObjectRef is a reference to a single deferred object annotated with
// an opaque key, used to pick one of several sibling outputs.
type KeyedObjectRef struct {
	key any
	ref Ref
}

// NewKeyedObjectRef wraps ref under key.
func NewKeyedObjectRef(ref Ref, key any) KeyedObjectRef {
	return KeyedObjectRef{key: key, ref: ref}
}

func (k KeyedObjectRef) Key() any       { return k.key }
func (k KeyedObjectRef) ObjectRef() Ref { return k.ref }

// SelectKeyed returns the first ref whose key equals key. Keys are
// compared with ==; a non-comparable key matches nothing.
func SelectKeyed(refs []KeyedObjectRef, key any) (Ref, bool) {
	for _, r := range refs {
		if keyEqual(r.key, key) {
			return r.ref, true
		}
	}
	return nil, false
}

// keyEqual is a == b, false where == would panic on a non-comparable
// dynamic type (including one nested in a struct or array).
func keyEqual(a, b any) (eq bool) {
	if a != nil && !reflect.TypeOf(a).Comparable() {
		return false
	}
	if b != nil && !reflect.TypeOf(b).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
