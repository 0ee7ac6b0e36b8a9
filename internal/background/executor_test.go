package background

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutor_RunsTasks(t *testing.T) {
	e := NewExecutor()

	var ran atomic.Bool
	if !e.Go("test", func(ctx context.Context) { ran.Store(true) }) {
		t.Fatal("Go returned false on open executor")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if !ran.Load() {
		t.Error("task did not run")
	}
}

func TestExecutor_RejectsAfterDrain(t *testing.T) {
	e := NewExecutor()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if e.Go("late", func(ctx context.Context) {}) {
		t.Error("Go must refuse tasks after drain")
	}
}

func TestExecutor_DrainTimeout(t *testing.T) {
	e := NewExecutor()

	release := make(chan struct{})
	e.Go("slow", func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := e.Drain(ctx); err == nil {
		t.Error("expected drain timeout")
	}
	close(release)
}

func TestExecutor_RecoversPanic(t *testing.T) {
	e := NewExecutor()

	e.Go("boom", func(ctx context.Context) { panic("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Drain(ctx); err != nil {
		t.Fatalf("Drain failed after panic: %v", err)
	}
}

func TestSchedule_SynchronousWithoutExecutor(t *testing.T) {
	var ran bool
	Schedule(context.Background(), "sync", func(ctx context.Context) { ran = true })
	if !ran {
		t.Error("Schedule must run synchronously without an executor in context")
	}
}

func TestSchedule_UsesContextExecutor(t *testing.T) {
	e := NewExecutor()
	ctx := WithExecutor(context.Background(), e)

	started := make(chan struct{})
	Schedule(ctx, "async", func(ctx context.Context) { close(started) })

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("scheduled task never ran")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Drain(drainCtx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
}

func TestSchedule_TaskContextSurvivesRequestCancel(t *testing.T) {
	reqCtx, cancel := context.WithCancel(context.Background())
	cancel() // request already gone

	var ctxErr error
	Schedule(reqCtx, "detached", func(ctx context.Context) { ctxErr = ctx.Err() })
	if ctxErr != nil {
		t.Errorf("task context canceled with request: %v", ctxErr)
	}
}
