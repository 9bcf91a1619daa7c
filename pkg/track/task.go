package track

import (
	"time"

	"github.com/tasktrail/tasktrail/pkg/store"
)

// Task is one tracked unit of work: the persisted item plus its type's
// configuration. Mutate it only through Tracker.Start / Execution; direct
// field assignment bypasses the conditional-write protocol.
type Task struct {
	store.Item

	cfg *Config
}

// Config returns the task type's configuration.
func (t *Task) Config() *Config { return t.cfg }

// UseCaseID returns the use case component of the primary key.
func (t *Task) UseCaseID() string {
	uc, _ := t.cfg.ParseKey(t.Key)
	return uc
}

// TaskID returns the task component of the primary key. Unique within a use
// case, not necessarily across use cases.
func (t *Task) TaskID() string {
	_, id := t.cfg.ParseKey(t.Key)
	return id
}

// ShardID returns the shard component of the status-index value.
func (t *Task) ShardID() int {
	_, _, shard, _ := t.cfg.ParseValue(t.Value)
	return shard
}

// StatusName returns the human-readable status name.
func (t *Task) StatusName() string { return t.cfg.StatusName(t.Status) }

func (t *Task) IsPending() bool    { return t.Status == t.cfg.pending }
func (t *Task) IsInProgress() bool { return t.Status == t.cfg.inProgress }
func (t *Task) IsFailed() bool     { return t.Status == t.cfg.failed }
func (t *Task) IsSucceeded() bool  { return t.Status == t.cfg.succeeded }
func (t *Task) IsIgnored() bool    { return t.Status == t.cfg.ignored }

// IsLocked reports whether the task is held by a live lease as of now.
// When expectedLock is non-empty, a matching server-side token counts as
// not locked (the caller owns it).
func (t *Task) IsLocked(expectedLock string, now time.Time) bool {
	if t.Lock == NotLocked {
		return false
	}
	if expectedLock != "" {
		return t.Lock != expectedLock
	}
	elapsed := now.UnixMilli() - t.LockTime
	return elapsed < t.cfg.lockExpire.Milliseconds()
}
