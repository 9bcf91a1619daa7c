package track

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tasktrail/tasktrail/pkg/store"
)

// Execution is the staging area for one leased run of a task. Field updates
// accumulate in memory while the body runs and are committed with a single
// conditional write guarded by lease ownership; nothing touches the store
// until Update.
type Execution struct {
	tracker *Tracker
	task    *Task
	token   string
	updates map[string]store.FieldUpdate
}

func newExecution(tracker *Tracker, task *Task, token string) *Execution {
	return &Execution{
		tracker: tracker,
		task:    task,
		token:   token,
		updates: map[string]store.FieldUpdate{},
	}
}

// Task returns the current in-memory view of the task. It reflects the
// store's authoritative state as of acquisition and after each Update.
func (e *Execution) Task() *Task { return e.task }

// SetData stages a full replacement of the data payload. The payload is
// replaced, never merged; stage a complete copy rather than mutating the
// task's current map in place.
func (e *Execution) SetData(data map[string]any) {
	e.updates[store.FieldData] = store.Set(store.FieldData, data)
}

func (e *Execution) setStatus(status int) error {
	value, err := e.task.cfg.valueIn(e.task.UseCaseID(), status, e.task.TaskID())
	if err != nil {
		return err
	}
	// value and status always move together; staging them as one pair keeps
	// the index in agreement with the status field.
	e.updates[store.FieldValue] = store.Set(store.FieldValue, value)
	e.updates[store.FieldStatus] = store.Set(store.FieldStatus, status)
	return nil
}

func (e *Execution) setUpdateTime(ms int64) {
	e.updates[store.FieldUpdateTime] = store.Set(store.FieldUpdateTime, ms)
}

func (e *Execution) setUnlock() {
	e.updates[store.FieldLock] = store.Set(store.FieldLock, NotLocked)
}

func (e *Execution) setRetryZero() {
	e.updates[store.FieldRetry] = store.Set(store.FieldRetry, 0)
}

func (e *Execution) setRetryPlusOne() {
	e.updates[store.FieldRetry] = store.Add(store.FieldRetry, 1)
}

func (e *Execution) setErrors(log *store.ErrorLog) {
	e.updates[store.FieldErrors] = store.Set(store.FieldErrors, log)
}

// BeginUpdate runs fn inside a rollback checkpoint: updates staged before
// the call are preserved no matter what; updates staged by fn are kept only
// if fn returns nil and does not panic.
func (e *Execution) BeginUpdate(fn func() error) error {
	snapshot := make(map[string]store.FieldUpdate, len(e.updates))
	for k, v := range e.updates {
		snapshot[k] = v
	}
	committed := false
	defer func() {
		if !committed {
			e.updates = snapshot
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	committed = true
	return nil
}

// staged returns the pending updates ordered by field name, so compiled
// update expressions are deterministic.
func (e *Execution) staged() store.Update {
	fields := make([]string, 0, len(e.updates))
	for f := range e.updates {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	out := make(store.Update, 0, len(fields))
	for _, f := range fields {
		out = append(out, e.updates[f])
	}
	return out
}

// Update flushes all staged field updates as one conditional write guarded
// by lease ownership, then replaces the in-memory task with the store's
// post-write state. The guard rejects commits after the lease has been
// reclaimed by another worker; a late commit whose lease expired but was
// never reclaimed is still accepted (liveness over strictness).
func (e *Execution) Update(ctx context.Context) error {
	if e.token == "" {
		return errors.New("track: execution has no lease token")
	}
	if len(e.updates) == 0 {
		return nil
	}
	item, err := e.tracker.store.ConditionalUpdate(ctx, e.task.Key, e.staged(),
		store.Eq(store.FieldLock, e.token))
	if err != nil {
		return fmt.Errorf("track: commit staged updates for %q: %w", e.task.Key, err)
	}
	e.task.Item = *item
	e.updates = map[string]store.FieldUpdate{}
	return nil
}
