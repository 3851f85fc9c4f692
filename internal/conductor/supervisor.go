package conductor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coda-et/etransport/internal/logging"
)

// Supervise runs fn repeatedly, recovering panics and restarting with
// exponential backoff (capped), until ctx is canceled. It returns the
// context's error once canceled. Adapts the teacher's circuit-breaker
// state machine (infrastructure/resilience/breaker.go) into a simpler
// running/backoff restart loop: a conductor either drains normally or is
// recovering from a panic, with no half-open probe count to track.
func Supervise(ctx context.Context, log *logging.Logger, name string, fn func(context.Context) error) error {
	backoff := 50 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := runOnce(ctx, log, name, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			backoff = 50 * time.Millisecond
			continue
		}

		log.Warn("conductor restarting after error", zap.String("conductor", name), zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func runOnce(ctx context.Context, log *logging.Logger, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("conductor panic recovered", zap.String("conductor", name), zap.Any("panic", r))
			err = errPanic{value: r}
		}
	}()
	return fn(ctx)
}

type errPanic struct{ value interface{} }

func (e errPanic) Error() string { return "conductor panicked" }
