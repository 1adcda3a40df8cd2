// Package executor runs a pipeline in-process. It walks the level plan
// produced by pipeline.NodesByLevel, wiring every invocation's output as a
// pair of futures at dispatch time so that downstream nodes can be
// scheduled before upstream values exist.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Bobbins228/codeflare/internal/logging"
	"github.com/Bobbins228/codeflare/pkg/pipeline"
)

var (
	// ErrMissingInput is returned when a source node has no input refs, or
	// when input is supplied for a node that is not a source.
	ErrMissingInput = errors.New("executor: missing input")

	// ErrInvocation wraps a failure raised by a node's capability.
	ErrInvocation = errors.New("executor: invocation failed")

	// ErrUpstream is returned by an invocation whose input refs failed.
	ErrUpstream = errors.New("executor: upstream failed")

	// ErrNotDispatched is returned when resolving a node that the run never
	// reached because it stopped early.
	ErrNotDispatched = errors.New("executor: node not dispatched")
)

// Mode selects what estimator nodes do when invoked.
type Mode int

const (
	// ModeFit fits each estimator on its input and then transforms it.
	ModeFit Mode = iota
	// ModeTransform transforms with the node's estimator as-is.
	ModeTransform
)

func (m Mode) String() string {
	switch m {
	case ModeFit:
		return "fit"
	case ModeTransform:
		return "transform"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "fit" or "transform", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "fit":
		return ModeFit, nil
	case "transform":
		return ModeTransform, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want fit or transform)", s)
}

// Option configures an Executor.
type Option func(*Executor)

// WithParallelism bounds the number of invocations in flight. n <= 0
// removes the bound.
func WithParallelism(n int) Option {
	return func(e *Executor) { e.parallelism = n }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithObserver attaches an observer for run events.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithTracerProvider sets where run and invocation spans go. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracer = tp.Tracer(tracerName) }
}

// WithMode sets the estimator mode. Defaults to ModeFit.
func WithMode(m Mode) Option {
	return func(e *Executor) { e.mode = m }
}

// Executor runs a pipeline. The pipeline must not be mutated while a run
// is in progress.
type Executor struct {
	p           *pipeline.Pipeline
	parallelism int
	logger      *slog.Logger
	observer    Observer
	mode        Mode
	tracer      trace.Tracer
}

// New returns an Executor for p.
func New(p *pipeline.Pipeline, opts ...Option) *Executor {
	e := &Executor{
		p:           p,
		parallelism: runtime.GOMAXPROCS(0),
		logger:      logging.New("executor"),
		mode:        ModeFit,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.New("executor")
	}
	return e
}

// invocation is one call of a node's capability over a group of input refs.
type invocation struct {
	node  pipeline.Node
	level int
	index int
	in    []*pipeline.XYRef
	outX  *pipeline.Future
	outY  *pipeline.Future
	out   *pipeline.XYRef

	gate func(context.Context) error
	turn <-chan struct{}
	done chan struct{}
}

// Run executes the pipeline over in. The returned Output is non-nil
// whenever the plan was valid, even if the run failed; refs of failed or
// cancelled invocations resolve to an error. Run returns the first error.
func (e *Executor) Run(ctx context.Context, in *Input) (*Output, error) {
	if in == nil {
		in = NewInput()
	}
	levels, err := e.p.NodesByLevel()
	if err != nil {
		return nil, err
	}
	if err := e.checkInput(in); err != nil {
		return nil, err
	}

	runID := uuid.NewString()[:12]
	ctx, span := e.tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("nodes", e.p.Len()),
			attribute.Int("levels", len(levels)),
			attribute.String("mode", e.mode.String()),
		),
	)
	defer span.End()

	start := time.Now()
	logger := e.logger.With(slog.String("run_id", runID))
	logger.Info("pipeline run started",
		slog.Int("nodes", e.p.Len()),
		slog.Int("levels", len(levels)),
		slog.String("mode", e.mode.String()),
	)
	emitEvent(e.observer, Event{Type: EventRunStart, RunID: runID})

	out := newOutput(runID, e.p.Terminals())
	g, gctx := errgroup.WithContext(ctx)
	if e.parallelism > 0 {
		g.SetLimit(e.parallelism)
	}

	dispatched := 0
dispatch:
	for lvl, bucket := range levels {
		emitEvent(e.observer, Event{
			Type:     EventLevelDispatch,
			RunID:    runID,
			Level:    lvl,
			Metadata: map[string]any{"nodes": len(bucket)},
		})
		for _, n := range bucket {
			if gctx.Err() != nil {
				break dispatch
			}
			groups, err := e.gather(n, in, out)
			if err != nil {
				// Only reachable if the pipeline changed under us.
				g.Go(func() error { return err })
				break dispatch
			}
			if len(groups) == 0 {
				logger.Warn("node has no invocations", slog.String("node", n.Name()))
			}
			invs := e.plan(n, lvl, groups)
			refs := make([]*pipeline.XYRef, len(invs))
			for i, inv := range invs {
				refs[i] = inv.out
			}
			out.refs[n.Key()] = refs
			for _, inv := range invs {
				inflightInvocations.Inc()
				g.Go(func() error { return e.invoke(gctx, runID, inv, out) })
				dispatched++
			}
		}
	}

	err = g.Wait()
	if err == nil && ctx.Err() != nil {
		// Cancelled between dispatches with nothing in flight.
		err = ctx.Err()
	}
	elapsed := time.Since(start)
	runsTotal.WithLabelValues(outcome(err)).Inc()
	emitEvent(e.observer, Event{
		Type:     EventRunComplete,
		RunID:    runID,
		Elapsed:  elapsed,
		Error:    err,
		Metadata: map[string]any{"invocations": dispatched},
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("pipeline run failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed),
		)
		return out, err
	}
	span.SetStatus(codes.Ok, "")
	logger.Info("pipeline run completed",
		slog.Int("invocations", dispatched),
		slog.Duration("elapsed", elapsed),
	)
	return out, nil
}

// checkInput requires input for every source and only for sources.
func (e *Executor) checkInput(in *Input) error {
	for _, n := range in.Nodes() {
		if !e.p.Contains(n) {
			return fmt.Errorf("%w: %q is not in the pipeline", ErrMissingInput, n.Name())
		}
		pre, err := e.p.PreImage(n)
		if err != nil {
			return err
		}
		if len(pre) > 0 {
			return fmt.Errorf("%w: %q is not a source node", ErrMissingInput, n.Name())
		}
	}
	for _, n := range e.p.Sources() {
		if len(in.refs[n.Key()]) == 0 {
			return fmt.Errorf("%w: source node %q has no input", ErrMissingInput, n.Name())
		}
	}
	return nil
}

// gather groups the refs feeding n into per-invocation inputs. OR nodes get
// one group per ref. AND nodes get the cartesian product of their
// predecessors' refs, in predecessor order.
func (e *Executor) gather(n pipeline.Node, in *Input, out *Output) ([][]*pipeline.XYRef, error) {
	pre, err := e.p.PreImage(n)
	if err != nil {
		return nil, err
	}

	var lists [][]*pipeline.XYRef
	if len(pre) == 0 {
		refs := in.refs[n.Key()]
		if n.InputType() == pipeline.InputAND {
			return [][]*pipeline.XYRef{refs}, nil
		}
		lists = [][]*pipeline.XYRef{refs}
	} else {
		for _, p := range pre {
			lists = append(lists, out.refs[p.Key()])
		}
	}

	if n.InputType() == pipeline.InputOR {
		var groups [][]*pipeline.XYRef
		for _, refs := range lists {
			for _, ref := range refs {
				groups = append(groups, []*pipeline.XYRef{ref})
			}
		}
		return groups, nil
	}
	return cartesian(lists), nil
}

// cartesian returns every combination picking one ref from each list. The
// last list varies fastest. An empty list yields no combinations.
func cartesian(lists [][]*pipeline.XYRef) [][]*pipeline.XYRef {
	if len(lists) == 0 {
		return nil
	}
	combos := [][]*pipeline.XYRef{{}}
	for _, list := range lists {
		next := make([][]*pipeline.XYRef, 0, len(combos)*len(list))
		for _, prefix := range combos {
			for _, ref := range list {
				combo := make([]*pipeline.XYRef, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, ref))
			}
		}
		combos = next
	}
	return combos
}

// plan creates n's invocations and their output futures, and wires the
// firing barrier and state ordering between them.
func (e *Executor) plan(n pipeline.Node, level int, groups [][]*pipeline.XYRef) []*invocation {
	var gate func(context.Context) error
	if n.FiringType() == pipeline.FiringAll {
		var all []*pipeline.XYRef
		for _, g := range groups {
			all = append(all, g...)
		}
		gate = barrier(all)
	}

	invs := make([]*invocation, len(groups))
	var prevDone <-chan struct{}
	for i, group := range groups {
		outX, outY := pipeline.NewFuture(), pipeline.NewFuture()
		opts := []pipeline.XYRefOption{
			pipeline.WithCurrNode(n),
			pipeline.WithPrevXYRefs(group...),
		}
		if len(group) == 1 {
			opts = append(opts, pipeline.WithPrevNode(group[0].CurrNode()))
		}
		inv := &invocation{
			node:  n,
			level: level,
			index: i,
			in:    group,
			outX:  outX,
			outY:  outY,
			out:   pipeline.NewXYRef(outX, outY, opts...),
			gate:  gate,
		}
		if n.StateType().Mutable() {
			inv.turn = prevDone
			inv.done = make(chan struct{})
			prevDone = inv.done
		}
		invs[i] = inv
	}
	return invs
}

// barrier returns a gate that blocks until every ref is resolved. Once all
// refs resolved for one caller, later callers pass without waiting. A
// cancelled wait is not remembered.
func barrier(refs []*pipeline.XYRef) func(context.Context) error {
	var ready atomic.Bool
	return func(ctx context.Context) error {
		if ready.Load() {
			return nil
		}
		for _, ref := range refs {
			if _, err := ref.Resolve(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%w: %w", ErrUpstream, err)
			}
		}
		ready.Store(true)
		return nil
	}
}

func (e *Executor) invoke(ctx context.Context, runID string, inv *invocation, out *Output) (err error) {
	name := inv.node.Name()
	ctx, span := e.tracer.Start(ctx, "pipeline.Invoke",
		trace.WithAttributes(
			attribute.String("node", name),
			attribute.String("node.id", inv.node.ID().String()),
			attribute.Int("level", inv.level),
			attribute.Int("invocation", inv.index),
			attribute.Int("inputs", len(inv.in)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		inflightInvocations.Dec()
		invocationsTotal.WithLabelValues(name, outcome(err)).Inc()
		invocationDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		if inv.done != nil {
			close(inv.done)
		}
		ev := Event{
			Type:       EventInvokeDone,
			RunID:      runID,
			Node:       name,
			Level:      inv.level,
			Invocation: inv.index,
			Elapsed:    elapsed,
		}
		if err != nil {
			inv.outX.Fail(err)
			inv.outY.Fail(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			ev.Type, ev.Error = EventInvokeError, err
		} else {
			span.SetStatus(codes.Ok, "")
		}
		emitEvent(e.observer, ev)
	}()

	if inv.gate != nil {
		if err := inv.gate(ctx); err != nil {
			return fmt.Errorf("node %q: %w", name, err)
		}
	}
	xys, err := resolveAll(ctx, inv.in)
	if err != nil {
		return fmt.Errorf("node %q: %w", name, err)
	}
	if inv.turn != nil {
		select {
		case <-inv.turn:
		case <-ctx.Done():
			return fmt.Errorf("node %q: %w", name, ctx.Err())
		}
	}

	emitEvent(e.observer, Event{
		Type:       EventInvokeStart,
		RunID:      runID,
		Node:       name,
		Level:      inv.level,
		Invocation: inv.index,
	})

	result, err := e.call(ctx, inv, xys, out)
	if err != nil {
		return fmt.Errorf("%w: node %q invocation %d: %w", ErrInvocation, name, inv.index, err)
	}
	inv.outX.Fulfill(result.X())
	inv.outY.Fulfill(result.Y())
	return nil
}

func resolveAll(ctx context.Context, refs []*pipeline.XYRef) ([]pipeline.Xy, error) {
	xys := make([]pipeline.Xy, len(refs))
	for i, ref := range refs {
		xy, err := ref.Resolve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: input %d: %w", ErrUpstream, i, err)
		}
		xys[i] = xy
	}
	return xys, nil
}

// call applies the node's capability. In ModeFit, estimator nodes with
// mutable aggregate state fit their own estimator so state accumulates
// across invocations; all others fit a fresh clone.
func (e *Executor) call(ctx context.Context, inv *invocation, xys []pipeline.Xy, out *Output) (pipeline.Xy, error) {
	switch n := inv.node.(type) {
	case *pipeline.AndNode:
		return n.AndFunc().Transform(ctx, xys)

	case *pipeline.EstimatorNode:
		if len(xys) != 1 {
			return pipeline.Xy{}, fmt.Errorf("estimator node expects one input, got %d", len(xys))
		}
		xy := xys[0]
		est := n.Estimator()
		if e.mode == ModeFit {
			if n.StateType() != pipeline.StateMutableAggregate {
				est = est.Clone()
			}
			if err := est.Fit(ctx, xy); err != nil {
				return pipeline.Xy{}, fmt.Errorf("fit: %w", err)
			}
		}
		x, err := est.Transform(ctx, xy.X())
		if err != nil {
			return pipeline.Xy{}, fmt.Errorf("transform: %w", err)
		}
		if e.mode == ModeFit {
			out.addModel(FittedModel{Node: n, Estimator: est, Output: inv.out})
		}
		return pipeline.NewXy(x, xy.Y()), nil

	default:
		return pipeline.Xy{}, fmt.Errorf("unsupported node type %T", inv.node)
	}
}
