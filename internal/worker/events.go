package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyResponded is returned when RespondWith is called twice on the
// same fetch event.
var ErrAlreadyResponded = errors.New("fetch event already responded")

// ExtendableEvent lets a handler hold a lifecycle step open until the
// operations passed to WaitUntil settle.
type ExtendableEvent struct {
	mu      sync.Mutex
	pending []func(ctx context.Context) error
}

// WaitUntil registers an operation that must settle before the lifecycle
// step completes.
func (e *ExtendableEvent) WaitUntil(fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.pending = append(e.pending, fn)
	e.mu.Unlock()
}

// Settle runs every registered operation in order and returns the first error.
// Hosts call this after dispatching the event.
func (e *ExtendableEvent) Settle(ctx context.Context) error {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	var firstErr error
	for _, fn := range pending {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InstallEvent is dispatched once when a worker version is installed.
type InstallEvent struct {
	ExtendableEvent
}

// ActivateEvent is dispatched once when a worker version becomes active.
type ActivateEvent struct {
	ExtendableEvent
}

// FetchEvent carries one intercepted request.
type FetchEvent struct {
	Request *Request

	responder func(ctx context.Context) (*Response, error)
}

// NewFetchEvent wraps req in a fetch event.
func NewFetchEvent(req *Request) *FetchEvent {
	return &FetchEvent{Request: req}
}

// RespondWith takes over the request. Without it the host uses the default
// network path.
func (e *FetchEvent) RespondWith(fn func(ctx context.Context) (*Response, error)) error {
	if e.responder != nil {
		return ErrAlreadyResponded
	}
	e.responder = fn
	return nil
}

// Responded reports whether the handler called RespondWith.
func (e *FetchEvent) Responded() bool {
	return e.responder != nil
}

// Response resolves the handler's response. It must only be called when
// Responded is true.
func (e *FetchEvent) Response(ctx context.Context) (*Response, error) {
	if e.responder == nil {
		return nil, errors.New("fetch event has no response")
	}
	return e.responder(ctx)
}
