// Package host simulates the game server the webstore delivers into: a
// single main loop that owns every player and inventory mutation, a console
// that runs commands on that loop, and the sessions of connected players.
package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/buildtall-systems/storebridge/internal/commands"
	"github.com/buildtall-systems/storebridge/internal/db"
	"github.com/buildtall-systems/storebridge/internal/materials"
)

// ErrStopped indicates the main loop is not accepting work.
var ErrStopped = errors.New("host main loop stopped")

// ErrPlayerOffline is returned by Grant and Message for players not online.
var ErrPlayerOffline = commands.ErrPlayerOffline

// Sink receives messages addressed to a player session.
type Sink interface {
	Send(msg string)
}

// JoinListener runs on the main loop after a player joins.
type JoinListener func(ctx context.Context, player string)

type task struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

type player struct {
	name     string
	gameMode string
	sink     Sink
}

// Runtime is the host main loop.
type Runtime struct {
	name      string
	db        *db.DB
	materials *materials.Catalog
	log       *slog.Logger

	tasks    chan task
	stopping chan struct{}

	closing sync.RWMutex
	closed  bool

	mu        sync.RWMutex
	players   map[string]*player
	listeners []JoinListener
}

// NewRuntime creates a runtime named name. Call Run to start the loop.
func NewRuntime(name string, database *db.DB, catalog *materials.Catalog, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		name:      name,
		db:        database,
		materials: catalog,
		log:       logger,
		tasks:     make(chan task, 64),
		stopping:  make(chan struct{}),
		players:   make(map[string]*player),
	}
}

// Name returns the server name.
func (r *Runtime) Name() string { return r.name }

// Run processes submitted work one unit at a time until ctx is cancelled.
// Work already accepted when ctx is cancelled is drained first.
func (r *Runtime) Run(ctx context.Context) error {
	r.log.Info("host main loop started", "server", r.name)

	for {
		select {
		case <-ctx.Done():
			r.stop(ctx)
			r.log.Info("host main loop stopped")
			return nil
		case t := <-r.tasks:
			r.runTask(ctx, t)
		}
	}
}

func (r *Runtime) stop(ctx context.Context) {
	close(r.stopping)

	// Wait out Submit calls already past the closed check.
	r.closing.Lock()
	r.closed = true
	r.closing.Unlock()

	for {
		select {
		case t := <-r.tasks:
			r.runTask(ctx, t)
		default:
			return
		}
	}
}

func (r *Runtime) runTask(ctx context.Context, t task) {
	defer close(t.done)
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in main loop task", "panic", p)
		}
	}()
	t.fn(context.WithoutCancel(ctx))
}

// Submit posts fn to the main loop and returns a channel closed once fn
// has run. Once accepted, fn runs to completion even if ctx is cancelled.
func (r *Runtime) Submit(ctx context.Context, fn func(ctx context.Context)) (<-chan struct{}, error) {
	t := task{fn: fn, done: make(chan struct{})}

	r.closing.RLock()
	defer r.closing.RUnlock()
	if r.closed {
		return nil, ErrStopped
	}

	select {
	case r.tasks <- t:
		return t.done, nil
	case <-r.stopping:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do runs fn on the main loop and waits for it to finish. If ctx ends first
// Do returns ctx.Err() while fn still runs to completion.
func (r *Runtime) Do(ctx context.Context, fn func(ctx context.Context)) error {
	done, err := r.Submit(ctx, fn)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Later posts fn to the main loop after d. It is dropped if the loop has
// stopped by then.
func (r *Runtime) Later(d time.Duration, fn func(ctx context.Context)) {
	time.AfterFunc(d, func() {
		if _, err := r.Submit(context.Background(), fn); err != nil {
			r.log.Debug("dropping delayed task", "error", err)
		}
	})
}

// OnJoin registers l to run after every join.
func (r *Runtime) OnJoin(l JoinListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}
