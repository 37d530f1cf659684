// Package trigger is a typed dispatch table for record lifecycle events.
// Handlers are registered once at startup; Before* handlers can veto the write,
// After* handlers run after it has committed and can only log.
package trigger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Event lifecycle point a handler is attached to
type Event int

const (
	BeforeCreate Event = iota
	AfterCreated
	BeforeEdit
	AfterEdited
	eventCount
)

func (e Event) String() string {
	switch e {
	case BeforeCreate:
		return "BEFORE_CREATE"
	case AfterCreated:
		return "AFTER_CREATED"
	case BeforeEdit:
		return "BEFORE_EDIT"
	case AfterEdited:
		return "AFTER_EDITED"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Vetoing reports whether an error from a handler of e aborts the operation
func (e Event) Vetoing() bool {
	return e == BeforeCreate || e == BeforeEdit
}

// Args what a handler sees. Original is nil on create, New is nil before the write.
type Args[V any, U any] struct {
	Event    Event
	Original *V
	Update   U
	New      *V
}

// HandlerFunc a lifecycle handler
type HandlerFunc[V any, U any] func(ctx context.Context, args Args[V, U]) error

type namedHandler[V any, U any] struct {
	name string
	fn   HandlerFunc[V, U]
}

// Registry handlers of one record type, V the record and U its update shape
type Registry[V any, U any] struct {
	entity   string
	handlers [eventCount][]namedHandler[V, U]
	logger   *zap.Logger
}

func NewRegistry[V any, U any](entity string, logger *zap.Logger) *Registry[V, U] {
	return &Registry[V, U]{entity: entity, logger: logger}
}

// On appends a handler; handlers of one event run in registration order
func (r *Registry[V, U]) On(ev Event, name string, fn HandlerFunc[V, U]) {
	if ev < 0 || ev >= eventCount {
		panic(fmt.Sprintf("trigger: unknown event %d", int(ev)))
	}
	r.handlers[ev] = append(r.handlers[ev], namedHandler[V, U]{name: name, fn: fn})
}

// Fire runs the handlers of args.Event. For vetoing events the first error is
// returned and later handlers are skipped. For After* events every handler runs,
// failures are logged and Fire returns nil.
func (r *Registry[V, U]) Fire(ctx context.Context, args Args[V, U]) error {
	ev := args.Event
	if ev < 0 || ev >= eventCount {
		return fmt.Errorf("unknown trigger event %d", int(ev))
	}

	for _, h := range r.handlers[ev] {
		err := h.fn(ctx, args)
		if err == nil {
			continue
		}
		if ev.Vetoing() {
			return err
		}
		r.logger.Error("After-trigger failed",
			zap.String("entity", r.entity),
			zap.String("event", ev.String()),
			zap.String("handler", h.name),
			zap.Error(err),
		)
	}
	return nil
}

// Handlers names registered for ev, in order
func (r *Registry[V, U]) Handlers(ev Event) []string {
	if ev < 0 || ev >= eventCount {
		return nil
	}
	names := make([]string, 0, len(r.handlers[ev]))
	for _, h := range r.handlers[ev] {
		names = append(names, h.name)
	}
	return names
}
