package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FlushPool bounds concurrent flush/compaction jobs to a fixed limit
// (wal_flush_compaction_threads, spec §6), grounded directly on the
// teacher's status-cache refresh loop: an errgroup.Group with SetLimit
// rather than a hand-rolled semaphore.
type FlushPool struct {
	limit int
}

func NewFlushPool(limit int) *FlushPool {
	if limit <= 0 {
		limit = 1
	}
	return &FlushPool{limit: limit}
}

// Run submits every job and waits for all to finish or the first error,
// matching errgroup's fail-fast semantics. Jobs still in flight when one
// fails are allowed to finish; ctx is cancelled so cooperative jobs can
// exit early.
func (p *FlushPool) Run(ctx context.Context, jobs []func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for _, job := range jobs {
		job := job
		g.Go(func() error { return job(gctx) })
	}
	return g.Wait()
}
