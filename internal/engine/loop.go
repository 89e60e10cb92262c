package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"coin_swap/internal/domain"
	"coin_swap/internal/event"
	"coin_swap/internal/infra"
)

// Handler processes non-command events on the loop goroutine
type Handler interface {
	HandleEvent(ev event.Event)
}

// StateDumper is implemented by handlers that can describe their state for a post-mortem dump
type StateDumper interface {
	DumpState() any
}

// Loop is the single-threaded event processor owning one widget's state.
// Network workers post events; commands run synchronously on the loop goroutine.
type Loop struct {
	inbox    chan event.Event
	handler  Handler
	metrics  *infra.Metrics
	dumpPath string

	done     chan struct{}
	doneOnce sync.Once
	runOnce  sync.Once
}

// NewLoop creates a new loop instance. metrics may be nil.
func NewLoop(inboxSize int, handler Handler, metrics *infra.Metrics) *Loop {
	if inboxSize < 1 {
		inboxSize = 1
	}
	return &Loop{
		inbox:    make(chan event.Event, inboxSize),
		handler:  handler,
		metrics:  metrics,
		dumpPath: "panic_dump.json",
		done:     make(chan struct{}),
	}
}

// SetDumpPath sets the file written when a handler panics. Empty disables dumps.
func (l *Loop) SetDumpPath(path string) {
	l.dumpPath = path
}

// Run starts the main event loop. This MUST be run in a single goroutine, and only once.
func (l *Loop) Run(ctx context.Context) {
	first := false
	l.runOnce.Do(func() { first = true })
	if !first {
		slog.Warn("Event loop already running")
		return
	}
	slog.Debug("Event loop started")

	// Pending events are settled before Done so the owner may take over its state afterwards
	defer l.doneOnce.Do(func() { close(l.done) })
	defer l.drain()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Event loop stopping")
			return
		case ev := <-l.inbox:
			l.processEvent(ev)
		}
	}
}

// Done is closed once Run has returned
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post enqueues ev, blocking while the inbox is full.
func (l *Loop) Post(ctx context.Context, ev event.Event) error {
	select {
	case <-l.done:
		return domain.ErrNotMounted
	default:
	}

	select {
	case l.inbox <- ev:
		return nil
	case <-l.done:
		return domain.ErrNotMounted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPost enqueues ev without blocking. It reports false when the inbox is full or the loop has stopped.
func (l *Loop) TryPost(ev event.Event) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.inbox <- ev:
		return true
	default:
		return false
	}
}

// Execute runs fn on the loop goroutine and waits for its result.
// It must not be called from the loop goroutine itself.
func (l *Loop) Execute(ctx context.Context, name string, fn func() error) error {
	cmd := event.NewCommandEvent(name, fn)
	if err := l.Post(ctx, cmd); err != nil {
		return err
	}

	select {
	case err := <-cmd.Done:
		return err
	case <-l.done:
		// The command may have run just before shutdown
		select {
		case err := <-cmd.Done:
			return err
		default:
			return domain.ErrNotMounted
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) processEvent(ev event.Event) {
	defer func() {
		if tick, ok := ev.(*event.TickEvent); ok {
			event.ReleaseTickEvent(tick)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("EVENT_LOOP_PANIC",
				slog.Any("panic", r),
				slog.String("event", ev.GetType().String()),
			)
			if l.metrics != nil {
				l.metrics.RecordPanic()
			}
			l.DumpState()
			if cmd, ok := ev.(*event.CommandEvent); ok {
				cmd.Done <- fmt.Errorf("command %s panicked: %v", cmd.Name, r)
			}
		}
	}()

	switch e := ev.(type) {
	case *event.CommandEvent:
		e.Done <- e.Fn()
	default:
		if l.handler != nil {
			l.handler.HandleEvent(ev)
		}
	}
}

// drain settles events still queued after shutdown so no caller waits forever
func (l *Loop) drain() {
	for {
		select {
		case ev := <-l.inbox:
			switch e := ev.(type) {
			case *event.CommandEvent:
				e.Done <- domain.ErrNotMounted
			case *event.TickEvent:
				event.ReleaseTickEvent(e)
			}
		default:
			return
		}
	}
}

// DumpState writes the handler state to the dump file (for post-mortem).
func (l *Loop) DumpState() {
	if l.dumpPath == "" {
		return
	}
	dumper, ok := l.handler.(StateDumper)
	if !ok {
		return
	}

	slog.Info("Dumping internal state...", slog.String("file", l.dumpPath))

	b, err := json.MarshalIndent(dumper.DumpState(), "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(l.dumpPath, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
