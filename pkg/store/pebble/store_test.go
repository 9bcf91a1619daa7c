package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tasktrail/tasktrail/pkg/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{DataDir: t.TempDir(), Fsync: FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testItem(key, value string, updateTime int64) *store.Item {
	return &store.Item{
		Key:        key,
		Value:      value,
		Status:     0,
		CreateTime: updateTime,
		UpdateTime: updateTime,
		Lock:       "__not_locked__",
		Data:       map[string]any{"k": "v"},
		Errors:     &store.ErrorLog{History: []store.ErrorEntry{}},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := testItem("uc____a", "uc____000____001", 1000)
	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "uc____a", store.GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Value != want.Value || got.UpdateTime != want.UpdateTime || got.Data["k"] != "v" {
		t.Fatalf("round trip: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope", store.GetOptions{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestConditionalUpdateApplies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, testItem("uc____a", "uc____000____001", 1000)); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.ConditionalUpdate(ctx, "uc____a",
		store.Update{
			store.Set(store.FieldStatus, 3),
			store.Set(store.FieldLock, "tok-1"),
			store.Add(store.FieldRetry, 1),
		},
		store.Eq(store.FieldLock, "__not_locked__"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != 3 || got.Lock != "tok-1" || got.Retry != 1 {
		t.Fatalf("post state: %+v", got)
	}
}

func TestConditionalUpdateRejects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, testItem("uc____a", "uc____000____001", 1000)); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err := s.ConditionalUpdate(ctx, "uc____a",
		store.Update{store.Set(store.FieldStatus, 3)},
		store.Eq(store.FieldLock, "someone-else"))
	if !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("want ErrConditionFailed, got %v", err)
	}
	got, _ := s.Get(ctx, "uc____a", store.GetOptions{})
	if got.Status != 0 {
		t.Fatalf("rejected update mutated item: %+v", got)
	}
}

func TestConditionalUpdateMissingItem(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ConditionalUpdate(context.Background(), "nope",
		store.Update{store.Set(store.FieldStatus, 3)}, nil)
	if !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("want ErrConditionFailed, got %v", err)
	}
}

func TestConditionalUpdateGroups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	it := testItem("uc____a", "uc____000____001", 1000)
	it.LockTime = 5000
	if err := s.Put(ctx, it); err != nil {
		t.Fatalf("put: %v", err)
	}

	// expired-lease shape: (lock match fails) OR (lock_time old enough)
	cond := store.And(
		store.Or(
			store.Eq(store.FieldLock, "other"),
			store.Lt(store.FieldLockTime, 6000),
		),
		store.Or(
			store.Eq(store.FieldStatus, 0),
			store.Eq(store.FieldStatus, 6),
		),
	)
	if _, err := s.ConditionalUpdate(ctx, "uc____a",
		store.Update{store.Set(store.FieldLock, "tok")}, cond); err != nil {
		t.Fatalf("update: %v", err)
	}

	// now the lock is held and lock_time unchanged, same condition fails
	// on the status clause after a status change
	if _, err := s.ConditionalUpdate(ctx, "uc____a",
		store.Update{store.Set(store.FieldStatus, 3)}, nil); err != nil {
		t.Fatalf("set status: %v", err)
	}
	_, err := s.ConditionalUpdate(ctx, "uc____a",
		store.Update{store.Set(store.FieldLock, "tok2")}, cond)
	if !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("want ErrConditionFailed, got %v", err)
	}
}

func TestConditionalUpdateOnlyOneWinner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, testItem("uc____a", "uc____000____001", 1000)); err != nil {
		t.Fatalf("put: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.ConditionalUpdate(ctx, "uc____a",
				store.Update{store.Set(store.FieldLock, fmt.Sprintf("tok-%d", n))},
				store.Eq(store.FieldLock, "__not_locked__"))
			if err == nil {
				wins <- n
			} else if !errors.Is(err, store.ErrConditionFailed) {
				t.Errorf("worker %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	if len(wins) != 1 {
		t.Fatalf("winners: %d", len(wins))
	}
}

func TestIndexFollowsValue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, testItem("uc____a", "uc____000____001", 1000)); err != nil {
		t.Fatalf("put: %v", err)
	}

	items, err := s.QueryIndex(ctx, "uc____000____001", store.QueryOptions{Ascending: true})
	if err != nil || len(items) != 1 {
		t.Fatalf("before move: %d %v", len(items), err)
	}

	if _, err := s.ConditionalUpdate(ctx, "uc____a", store.Update{
		store.Set(store.FieldValue, "uc____009____001"),
		store.Set(store.FieldStatus, 9),
	}, nil); err != nil {
		t.Fatalf("move: %v", err)
	}

	items, _ = s.QueryIndex(ctx, "uc____000____001", store.QueryOptions{Ascending: true})
	if len(items) != 0 {
		t.Fatalf("stale entry in old partition: %d", len(items))
	}
	items, _ = s.QueryIndex(ctx, "uc____009____001", store.QueryOptions{Ascending: true})
	if len(items) != 1 || items[0].Key != "uc____a" {
		t.Fatalf("new partition: %+v", items)
	}
	// projection carries index attributes only
	if items[0].Data != nil || items[0].Lock != "" {
		t.Fatalf("projection leaked attributes: %+v", items[0])
	}
}

func TestQueryIndexOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		it := testItem(fmt.Sprintf("uc____t-%d", i), "uc____000____001", int64(1000+i))
		if err := s.Put(ctx, it); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	asc, err := s.QueryIndex(ctx, "uc____000____001", store.QueryOptions{Limit: 3, Ascending: true})
	if err != nil || len(asc) != 3 {
		t.Fatalf("asc: %d %v", len(asc), err)
	}
	if asc[0].UpdateTime != 1000 || asc[2].UpdateTime != 1002 {
		t.Fatalf("asc order: %d %d", asc[0].UpdateTime, asc[2].UpdateTime)
	}

	desc, err := s.QueryIndex(ctx, "uc____000____001", store.QueryOptions{Limit: 3})
	if err != nil || len(desc) != 3 {
		t.Fatalf("desc: %d %v", len(desc), err)
	}
	if desc[0].UpdateTime != 1004 {
		t.Fatalf("desc order: %d", desc[0].UpdateTime)
	}
}

func TestScanFiltersByPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"uc1____a", "uc1____b", "uc2____a"} {
		if err := s.Put(ctx, testItem(key, "uc____000____001", 1000)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	var keys []string
	if err := s.Scan(ctx, "uc1____", func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys: %v", keys)
	}
}

func TestBatchDeleteRemovesIndexEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		it := testItem(fmt.Sprintf("uc____t-%d", i), "uc____000____001", int64(1000+i))
		if err := s.Put(ctx, it); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	if err := s.BatchDelete(ctx, []string{"uc____t-0", "uc____t-2", "uc____missing"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "uc____t-0", store.GetOptions{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("t-0 survived: %v", err)
	}
	items, _ := s.QueryIndex(ctx, "uc____000____001", store.QueryOptions{Ascending: true})
	if len(items) != 1 || items[0].Key != "uc____t-1" {
		t.Fatalf("index after delete: %+v", items)
	}
}
