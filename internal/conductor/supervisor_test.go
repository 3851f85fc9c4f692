package conductor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coda-et/etransport/internal/logging"
)

func TestSuperviseRecoversPanicAndRetries(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	fn := func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			panic("boom")
		}
		<-ctx.Done()
		return nil
	}

	err := Supervise(ctx, logging.NewDefault(), "test", fn)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Supervise must return the context error once canceled, got %v", err)
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("a panicking run must be retried at least once, got %d calls", calls)
	}
}

func TestSuperviseStopsImmediatelyOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Supervise(ctx, logging.NewDefault(), "test", func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Fatal("Supervise must not invoke fn at all once ctx is already canceled")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Supervise must return context.Canceled, got %v", err)
	}
}

func TestRunOnceRecoversPanicIntoError(t *testing.T) {
	err := runOnce(context.Background(), logging.NewDefault(), "test", func(context.Context) error {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("runOnce must convert a panic into a returned error, not propagate it")
	}
}

func TestRunOncePropagatesRealError(t *testing.T) {
	want := errors.New("boom")
	err := runOnce(context.Background(), logging.NewDefault(), "test", func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("runOnce must propagate a non-panic error unchanged, got %v", err)
	}
}
