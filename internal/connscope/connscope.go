// Package connscope keeps one client per sync worker. Storage SDK clients
// are built lazily for the worker id carried in the context and can be
// discarded so the next call on that worker gets a fresh one.
package connscope

import (
	"context"
	"sync"
)

type workerKey struct{}

// NoWorker is the id used outside a worker pool.
const NoWorker = -1

// WithWorker tags ctx with a worker id.
func WithWorker(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}

// WorkerID returns the worker id carried by ctx, or NoWorker.
func WorkerID(ctx context.Context) int {
	if id, ok := ctx.Value(workerKey{}).(int); ok {
		return id
	}
	return NoWorker
}

// Scope holds one lazily built value per worker.
type Scope[T any] struct {
	mu      sync.Mutex
	build   func(ctx context.Context) (T, error)
	clients map[int]T
}

func New[T any](build func(ctx context.Context) (T, error)) *Scope[T] {
	return &Scope[T]{
		build:   build,
		clients: make(map[int]T),
	}
}

// Get returns the calling worker's value, building it on first use.
func (s *Scope[T]) Get(ctx context.Context) (T, error) {
	id := WorkerID(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		return c, nil
	}
	c, err := s.build(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.clients[id] = c
	return c, nil
}

// Reset drops the calling worker's value.
func (s *Scope[T]) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, WorkerID(ctx))
}

func (s *Scope[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
