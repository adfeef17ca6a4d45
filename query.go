package coredb

import (
	"context"
	"fmt"

	"github.com/malbeclabs/coredb/internal/merge"
	"github.com/malbeclabs/coredb/internal/querytask"
	"github.com/malbeclabs/coredb/internal/rawval"
	"github.com/malbeclabs/coredb/pkg/coreerr"
	"github.com/malbeclabs/coredb/pkg/metrics"
)

// RunQuery executes plan against tableName's sealed partitions, per spec
// §4.3/§4.4: every partition is run independently (loading any column the
// plan touches that isn't already resident, via the disk-read scheduler),
// and the per-partition BatchResults are folded pairwise into one. Rows
// still sitting in the table's open buffer are not visible to queries
// until the next flush — see DESIGN.md.
func (db *DB) RunQuery(ctx context.Context, tableName string, plan *querytask.Plan) (result *querytask.BatchResult, err error) {
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.QueryTotal.WithLabelValues(status).Inc()
	}()

	t, ok := db.getTable(tableName)
	if !ok {
		return nil, coreerr.NewFatal(fmt.Sprintf("coredb: unknown table %q", tableName))
	}

	if plan.BatchSize <= 0 {
		plan.BatchSize = db.cfg.BatchSize
	}

	needed := queryColumns(plan)
	partitions := t.Partitions()
	if len(partitions) == 0 {
		return emptyResult(plan), nil
	}

	results := make([]*querytask.BatchResult, 0, len(partitions))
	for _, part := range partitions {
		for _, name := range needed {
			if part.Column(name) != nil {
				continue
			}
			if _, err := db.disk.LoadColumn(ctx, tableName, part, name, t.LRU()); err != nil {
				return nil, err
			}
		}
		r, err := plan.Run(part)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return querytask.CombineAll(results, plan.Limit)
}

func queryColumns(plan *querytask.Plan) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, n := range plan.GroupBy {
		add(n)
	}
	for _, a := range plan.Aggregations {
		add(a.Column)
	}
	for _, n := range plan.Select {
		add(n)
	}
	return out
}

// emptyResult is the zero-partition case's shaped-but-empty BatchResult, so
// callers never have to special-case "table exists but has no data yet".
func emptyResult(plan *querytask.Plan) *querytask.BatchResult {
	if len(plan.GroupBy) > 0 {
		groupBy := make([][]rawval.Val, len(plan.GroupBy))
		aggSelect := make([][]int64, len(plan.Aggregations))
		aggregators := make([]merge.Aggregator, len(plan.Aggregations))
		for i, a := range plan.Aggregations {
			aggregators[i] = a.Agg
		}
		return &querytask.BatchResult{GroupBy: groupBy, AggSelect: aggSelect, Aggregators: aggregators, SortByIndex: -1}
	}
	sortIdx := -1
	if plan.OrderBy != nil {
		sortIdx = plan.OrderBy.ColumnIndex
	}
	return &querytask.BatchResult{Select: make([][]rawval.Val, len(plan.Select)), SortByIndex: sortIdx, Desc: plan.OrderBy != nil && plan.OrderBy.Desc}
}
