// Package background runs work that must outlive the request that scheduled
// it, such as cache write-back and version bumps.
package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// taskTimeout bounds each background task so a stuck KV write cannot hold
// the drain forever.
const taskTimeout = 2 * time.Minute

type ctxKey int

const executorKey ctxKey = iota

var ErrDrainTimeout = errors.New("background executor drain timed out")

// Executor runs detached tasks and supports draining on shutdown. Tasks get
// a context independent of the request: a client disconnect must not cancel
// a store the executor has already accepted.
type Executor struct {
	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewExecutor creates an executor ready to accept tasks.
func NewExecutor() *Executor {
	return &Executor{}
}

// Go schedules fn on its own goroutine. Panics are recovered and logged so a
// failing background task cannot take the process down. Returns false when
// the executor is already draining.
func (e *Executor) Go(name string, fn func(ctx context.Context)) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("background task panicked",
					"task", name,
					"panic", rec,
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}

// Drain stops accepting tasks and waits for in-flight ones until ctx expires.
func (e *Executor) Drain(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrDrainTimeout
	}
}

// WithExecutor attaches the executor to a request context.
func WithExecutor(ctx context.Context, e *Executor) context.Context {
	return context.WithValue(ctx, executorKey, e)
}

// FromContext retrieves the executor attached to ctx, if any.
func FromContext(ctx context.Context) (*Executor, bool) {
	e, ok := ctx.Value(executorKey).(*Executor)
	return e, ok
}

// Schedule runs fn through the context's executor when one is present, and
// synchronously otherwise so tests and one-shot tools observe completed
// writes without extra machinery.
func Schedule(ctx context.Context, name string, fn func(ctx context.Context)) {
	if e, ok := FromContext(ctx); ok {
		if e.Go(name, fn) {
			return
		}
	}
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), taskTimeout)
	defer cancel()
	fn(taskCtx)
}
