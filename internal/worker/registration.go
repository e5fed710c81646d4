package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is a registration's lifecycle position.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// ErrNotActivated is returned when an operation needs an active worker.
var ErrNotActivated = errors.New("worker not activated")

// Client is a page within the registration's scope.
type Client struct {
	ID         string
	controlled bool
}

// Controlled reports whether the worker has claimed this client.
func (c *Client) Controlled() bool {
	return c.controlled
}

// Registration is the host side of a worker: it runs the lifecycle hooks and
// tracks which clients the active worker controls.
type Registration struct {
	mu          sync.RWMutex
	state       State
	skipWaiting bool
	clients     map[string]*Client
	active      *Worker
}

// NewRegistration returns a registration in the parsed state.
func NewRegistration() *Registration {
	return &Registration{state: StateParsed, clients: map[string]*Client{}}
}

// SkipWaiting implements Scope.
func (r *Registration) SkipWaiting() {
	r.mu.Lock()
	r.skipWaiting = true
	r.mu.Unlock()
}

// ClaimClients implements Scope.
func (r *Registration) ClaimClients(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateActivating && r.state != StateActivated {
		return fmt.Errorf("claim clients in state %s: %w", r.state, ErrNotActivated)
	}
	for _, c := range r.clients {
		c.controlled = true
	}
	return nil
}

// Attach adds a client to the scope. A client attached after activation is
// controlled from the start.
func (r *Registration) Attach(id string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		c = &Client{ID: id}
		r.clients[id] = c
	}
	if r.state == StateActivated {
		c.controlled = true
	}
	return c
}

// Detach removes a client from the scope.
func (r *Registration) Detach(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

// Register installs and activates w. It returns once activation has settled.
// If the worker did not skip waiting and clients of an earlier version are
// still attached, the registration stops in the installed state.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	r.state = StateInstalling
	r.skipWaiting = false
	r.mu.Unlock()

	install := &InstallEvent{}
	w.OnInstall(install)
	if err := install.Settle(ctx); err != nil {
		r.setState(StateRedundant)
		return fmt.Errorf("install: %w", err)
	}
	r.setState(StateInstalled)

	r.mu.RLock()
	waiting := !r.skipWaiting && r.active != nil && len(r.clients) > 0
	r.mu.RUnlock()
	if waiting {
		return nil
	}

	r.setState(StateActivating)
	activate := &ActivateEvent{}
	w.OnActivate(activate)
	if err := activate.Settle(ctx); err != nil {
		r.setState(StateRedundant)
		return fmt.Errorf("activate: %w", err)
	}

	r.mu.Lock()
	r.active = w
	r.state = StateActivated
	r.mu.Unlock()
	return nil
}

// Controller returns the active worker or nil before activation.
func (r *Registration) Controller() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// State returns the current lifecycle state.
func (r *Registration) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Registration) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
