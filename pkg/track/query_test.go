package track

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func collectTasks(t *testing.T, it *Iter) []*Task {
	t.Helper()
	var out []*Task
	for it.Next(context.Background()) {
		out = append(out, it.Task())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iter: %v", err)
	}
	return out
}

func TestQueryByStatusSpansShards(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		if _, err := tr.MakeAndSave(ctx, fmt.Sprintf("t-%d", i), nil); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	it, err := tr.QueryByStatus([]int{tr.Config().PendingStatus()})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	tasks := collectTasks(t, it)
	if len(tasks) != 8 {
		t.Fatalf("count: %d", len(tasks))
	}
	seen := map[string]bool{}
	for _, task := range tasks {
		seen[task.TaskID()] = true
	}
	if len(seen) != 8 {
		t.Fatalf("duplicates: %v", seen)
	}
}

func TestQueryByStatusUnknown(t *testing.T) {
	tr, _ := newTestTracker(t)
	_, err := tr.QueryByStatus([]int{42})
	var unknown *UnknownStatusError
	if !errors.As(err, &unknown) {
		t.Fatalf("want UnknownStatusError, got %v", err)
	}
}

func TestQueryForUnfinished(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := tr.MakeAndSave(ctx, fmt.Sprintf("t-%d", i), nil); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	// t-0 succeeds, t-1 fails once, the rest stay pending
	if err := tr.Start(ctx, "t-0", func(*Execution) error { return nil }); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = tr.Start(ctx, "t-1", func(*Execution) error { return errors.New("boom") })

	it, err := tr.QueryForUnfinished()
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	tasks := collectTasks(t, it)
	if len(tasks) != 3 {
		t.Fatalf("count: %d", len(tasks))
	}
	for _, task := range tasks {
		if task.TaskID() == "t-0" {
			t.Fatalf("succeeded task in unfinished set")
		}
	}
}

func TestQueryLimitPerShard(t *testing.T) {
	cfg, err := NewConfig(Params{
		UseCaseID:        "test",
		PendingStatus:    0,
		InProgressStatus: 3,
		FailedStatus:     6,
		SucceededStatus:  9,
		IgnoredStatus:    10,
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	tr := New(cfg, openTestStore(t))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := tr.MakeAndSave(ctx, fmt.Sprintf("t-%d", i), nil); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	it, err := tr.QueryByStatus([]int{cfg.PendingStatus()}, WithLimit(2))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if tasks := collectTasks(t, it); len(tasks) != 2 {
		t.Fatalf("count: %d", len(tasks))
	}
}

func TestQueryAutoRefresh(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	if _, err := tr.MakeAndSave(ctx, "t-1", map[string]any{"payload": "full"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// projected view omits the data payload
	it, err := tr.QueryByStatus([]int{tr.Config().PendingStatus()})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	tasks := collectTasks(t, it)
	if len(tasks) != 1 || tasks[0].Data != nil {
		t.Fatalf("projected view: %+v", tasks)
	}

	it, err = tr.QueryByStatus([]int{tr.Config().PendingStatus()}, WithAutoRefresh())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	tasks = collectTasks(t, it)
	if len(tasks) != 1 || tasks[0].Data["payload"] != "full" {
		t.Fatalf("refreshed view: %+v", tasks)
	}
}

func TestQueryNewestFirst(t *testing.T) {
	cfg, err := NewConfig(Params{
		UseCaseID:        "test",
		PendingStatus:    0,
		InProgressStatus: 3,
		FailedStatus:     6,
		SucceededStatus:  9,
		IgnoredStatus:    10,
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	clock := &testClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	tr := New(cfg, openTestStore(t), WithClock(clock.Now))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := tr.MakeAndSave(ctx, fmt.Sprintf("t-%d", i), nil); err != nil {
			t.Fatalf("save: %v", err)
		}
		clock.Advance(time.Second)
	}

	it, err := tr.QueryByStatus([]int{cfg.PendingStatus()}, WithNewestFirst())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	tasks := collectTasks(t, it)
	if len(tasks) != 3 {
		t.Fatalf("count: %d", len(tasks))
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i-1].UpdateTime < tasks[i].UpdateTime {
			t.Fatalf("order: %d before %d", tasks[i-1].UpdateTime, tasks[i].UpdateTime)
		}
	}
}
