// Package scheduler implements the cooperative multi-stage execution
// model of spec §5: a FIFO worker pool guarded by a condition variable, a
// bounded flush/compaction pool, and the two background enforcement loops
// (wal-size and mem-limit), modeled on the teacher's clockwork-driven
// refresh loop and errgroup-bounded concurrency idiom.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config bundles the scheduler's tunables, drawn from spec §6's
// configuration table.
type Config struct {
	Threads                   int
	WALFlushCompactionThreads int
	WALCheckInterval          time.Duration
	MemCheckInterval          time.Duration
	Clock                     clockwork.Clock
	Logger                    *slog.Logger
}

// Scheduler wires the worker pool, the bounded flush/compaction pool, and
// the two enforcement loops into a single start/stop unit for the DB
// facade. Tasks passed to Submit run on the worker pool; jobs passed to
// RunFlushJobs run through the FlushPool, whose concurrency is capped
// independently of the worker count.
type Scheduler struct {
	cfg     Config
	pool    *WorkerPool
	flush   *FlushPool
	walLoop *EnforcementLoop
	memLoop *EnforcementLoop
	cancel  context.CancelFunc
}

// New builds a Scheduler and starts its worker pool. The enforcement loops
// are not started until StartEnforcementLoops is called with the functions they enforce,
// since those depend on DB state the scheduler package doesn't own.
func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}
	s := &Scheduler{
		cfg:   cfg,
		pool:  NewWorkerPool(threads, func(err error) { cfg.Logger.Error("scheduler: task failed", "error", err) }),
		flush: NewFlushPool(cfg.WALFlushCompactionThreads),
	}
	return s
}

// Submit enqueues a task onto the worker pool.
func (s *Scheduler) Submit(t Task) { s.pool.Submit(t) }

// RunFlushJobs runs flush/compaction jobs through the bounded flush pool.
func (s *Scheduler) RunFlushJobs(ctx context.Context, jobs []func(context.Context) error) error {
	return s.flush.Run(ctx, jobs)
}

// StartEnforcementLoops launches enforce_wal_limit and enforce_mem_limit
// as background loops driven by the scheduler's clock. Call once, after
// the DB has a coherent WAL/buffer/cache state to enforce against.
func (s *Scheduler) StartEnforcementLoops(ctx context.Context, enforceWAL, enforceMem func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.walLoop = &EnforcementLoop{
		Name:     "enforce_wal_limit",
		Clock:    s.cfg.Clock,
		Interval: s.cfg.WALCheckInterval,
		Logger:   s.cfg.Logger,
		Fn:       enforceWAL,
	}
	s.memLoop = &EnforcementLoop{
		Name:     "enforce_mem_limit",
		Clock:    s.cfg.Clock,
		Interval: s.cfg.MemCheckInterval,
		Logger:   s.cfg.Logger,
		Fn:       enforceMem,
	}
	s.walLoop.Start(ctx)
	s.memLoop.Start(ctx)
}

// Stop fences the worker pool — no more dispatch, in-flight tasks run to
// completion — cancels the enforcement loops, and waits for every worker
// goroutine to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.pool.Stop()
}

// DropPendingTasks clears queued-but-undispatched worker tasks, leaving
// whatever is currently executing untouched.
func (s *Scheduler) DropPendingTasks() { s.pool.DropPendingTasks() }

// QueueLen reports the number of tasks waiting to be dispatched.
func (s *Scheduler) QueueLen() int { return s.pool.QueueLen() }
