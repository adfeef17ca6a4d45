package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// EnforcementLoop drives a single periodic background check — used for
// both enforce_wal_limit and enforce_mem_limit (spec §5) — on an
// injectable clockwork.Clock so tests can advance time deterministically
// instead of sleeping. Modeled directly on the teacher's revdist view
// refresh loop: an initial synchronous run, then a clockwork ticker, with
// every tick recovered so a panic in Fn cannot take down the process.
type EnforcementLoop struct {
	Name     string
	Clock    clockwork.Clock
	Interval time.Duration
	Logger   *slog.Logger
	Fn       func(ctx context.Context) error
}

// Start runs Fn once synchronously, then launches a goroutine that reruns
// it on every tick until ctx is cancelled.
func (l *EnforcementLoop) Start(ctx context.Context) {
	l.Logger.Info("scheduler: starting enforcement loop", "loop", l.Name, "interval", l.Interval)

	l.safeRun(ctx)

	go func() {
		ticker := l.Clock.NewTicker(l.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				l.safeRun(ctx)
			}
		}
	}()
}

func (l *EnforcementLoop) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.Logger.Error("scheduler: enforcement loop panicked", "loop", l.Name, "panic", r)
		}
	}()

	if err := l.Fn(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		l.Logger.Error("scheduler: enforcement loop failed", "loop", l.Name, "error", err)
	}
}
