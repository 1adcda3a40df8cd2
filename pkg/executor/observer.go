package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType classifies run events for filtering and routing.
type EventType string

const (
	EventRunStart      EventType = "run_start"
	EventLevelDispatch EventType = "level_dispatch"
	EventInvokeStart   EventType = "invoke_start"
	EventInvokeDone    EventType = "invoke_done"
	EventInvokeError   EventType = "invoke_error"
	EventRunComplete   EventType = "run_complete"
)

// Event is a single observation from a pipeline run. Invocation is the
// index of the invocation within its node, in dispatch order.
type Event struct {
	Type       EventType
	RunID      string
	Node       string
	Level      int
	Invocation int
	Elapsed    time.Duration
	Error      error
	Metadata   map[string]any
}

// Observer receives events during a run. Events for different nodes are
// delivered from different goroutines, so implementations must be safe for
// concurrent use.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// MultiObserver fans out events to multiple observers.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(e Event) {
	for _, obs := range m {
		obs.OnEvent(e)
	}
}

// LogObserver writes run events as structured slog lines. Invocation
// starts are logged at debug level.
type LogObserver struct {
	Logger *slog.Logger
}

func (o *LogObserver) OnEvent(e Event) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
	}
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run_id", e.RunID))
	}
	if e.Node != "" {
		attrs = append(attrs, slog.String("node", e.Node), slog.Int("invocation", e.Invocation))
	}
	if e.Type == EventLevelDispatch {
		attrs = append(attrs, slog.Int("level", e.Level))
	}
	if e.Elapsed > 0 {
		attrs = append(attrs, slog.Duration("elapsed", e.Elapsed))
	}
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}

	level := slog.LevelInfo
	switch {
	case e.Error != nil:
		level = slog.LevelWarn
	case e.Type == EventInvokeStart:
		level = slog.LevelDebug
	}
	logger.LogAttrs(context.Background(), level, "pipeline", attrs...)
}

// TraceCollector accumulates run events in memory for post-run analysis.
// Safe for concurrent use.
type TraceCollector struct {
	mu     sync.Mutex
	events []Event
}

func (t *TraceCollector) OnEvent(e Event) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

// Events returns a copy of all collected events.
func (t *TraceCollector) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Reset clears collected events.
func (t *TraceCollector) Reset() {
	t.mu.Lock()
	t.events = nil
	t.mu.Unlock()
}

// EventsOfType returns only events matching the given type.
func (t *TraceCollector) EventsOfType(typ EventType) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Event
	for _, e := range t.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// emitEvent is a helper to safely emit an event to a possibly-nil observer.
func emitEvent(obs Observer, e Event) {
	if obs != nil {
		obs.OnEvent(e)
	}
}
