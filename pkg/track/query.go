package track

import (
	"context"
	"errors"

	"github.com/tasktrail/tasktrail/pkg/store"
)

// QueryOption tunes status queries.
type QueryOption func(*queryOptions)

type queryOptions struct {
	useCaseID   string
	limit       int
	newestFirst bool
	autoRefresh bool
}

// WithQueryUseCase overrides the configured use case id for the query.
func WithQueryUseCase(useCaseID string) QueryOption {
	return func(o *queryOptions) { o.useCaseID = useCaseID }
}

// WithLimit caps how many items each shard contributes. Default 10.
func WithLimit(limit int) QueryOption {
	return func(o *queryOptions) { o.limit = limit }
}

// WithNewestFirst returns each shard's items in descending update-time
// order instead of ascending.
func WithNewestFirst() QueryOption {
	return func(o *queryOptions) { o.newestFirst = true }
}

// WithAutoRefresh re-reads each item from the base table, trading one Get
// per item for a full, current view instead of the index's projected
// attributes. Items deleted between the query and the re-read are skipped.
func WithAutoRefresh() QueryOption {
	return func(o *queryOptions) { o.autoRefresh = true }
}

// Iter yields tasks from a status query, one shard at a time. Shards are
// fetched lazily; ordering holds within a shard but not across shards.
//
//	it, err := tracker.QueryByStatus([]int{cfg.FailedStatus()})
//	...
//	for it.Next(ctx) {
//		task := it.Task()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
type Iter struct {
	tracker *Tracker
	opts    queryOptions

	// remaining index values to fetch, one per (status, shard) pair.
	values []string

	buf []*Task
	cur *Task
	err error
}

// QueryByStatus returns an iterator over every task in the given statuses,
// fanning out across each status's configured shards. Unknown statuses
// fail fast with UnknownStatusError.
func (t *Tracker) QueryByStatus(statuses []int, opts ...QueryOption) (*Iter, error) {
	o := queryOptions{useCaseID: t.cfg.useCaseID, limit: 10}
	for _, opt := range opts {
		opt(&o)
	}
	var values []string
	for _, status := range statuses {
		n, ok := t.cfg.ShardCount(status)
		if !ok {
			return nil, &UnknownStatusError{Status: status}
		}
		for shard := 1; shard <= n; shard++ {
			value, err := t.cfg.ValueFor(o.useCaseID, status, shard)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}
	}
	return &Iter{tracker: t, opts: o, values: values}, nil
}

// QueryForUnfinished iterates tasks still awaiting a successful run, that
// is pending or failed ones.
func (t *Tracker) QueryForUnfinished(opts ...QueryOption) (*Iter, error) {
	return t.QueryByStatus([]int{t.cfg.pending, t.cfg.failed}, opts...)
}

// Next advances to the next task. It returns false when the query is
// exhausted or an error occurred; check Err afterwards.
func (it *Iter) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for len(it.buf) == 0 {
		if len(it.values) == 0 {
			it.cur = nil
			return false
		}
		value := it.values[0]
		it.values = it.values[1:]
		if err := it.fetch(ctx, value); err != nil {
			it.err = err
			return false
		}
	}
	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

// Task returns the task positioned by the last successful Next.
func (it *Iter) Task() *Task { return it.cur }

// Err returns the first error the iterator hit, if any.
func (it *Iter) Err() error { return it.err }

func (it *Iter) fetch(ctx context.Context, value string) error {
	items, err := it.tracker.store.QueryIndex(ctx, value, store.QueryOptions{
		Limit:     it.opts.limit,
		Ascending: !it.opts.newestFirst,
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		if it.opts.autoRefresh {
			full, err := it.tracker.store.Get(ctx, item.Key, store.GetOptions{})
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			item = full
		}
		it.buf = append(it.buf, it.tracker.wrap(item))
	}
	return nil
}
