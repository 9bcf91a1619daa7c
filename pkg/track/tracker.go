package track

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tasktrail/tasktrail/pkg/log"
	"github.com/tasktrail/tasktrail/pkg/store"
)

// Tracker binds one task type's Config to a store backend. It is safe for
// concurrent use; all coordination happens through the store's conditional
// writes, never in process.
type Tracker struct {
	cfg      *Config
	store    store.Store
	log      log.Logger
	now      func() time.Time
	newToken func() string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger attaches a logger. Default is a no-op logger.
func WithLogger(l log.Logger) Option {
	return func(t *Tracker) { t.log = l.WithComponent("track") }
}

// WithClock overrides the time source. Intended for tests exercising lease
// expiry.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker.
func New(cfg *Config, st store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:   cfg,
		store: st,
		log:   log.Nop(),
		now:   time.Now,
		newToken: func() string {
			u := uuid.New()
			return hex.EncodeToString(u[:])
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the tracker's configuration.
func (t *Tracker) Config() *Config { return t.cfg }

func (t *Tracker) wrap(item *store.Item) *Task {
	return &Task{Item: *item, cfg: t.cfg}
}

// MakeOption tunes Make and MakeAndSave.
type MakeOption func(*makeOptions)

type makeOptions struct {
	useCaseID string
	status    int
	hasStatus bool
	shardID   int
	hasShard  bool
}

// WithUseCase overrides the configured use case id for this item.
func WithUseCase(useCaseID string) MakeOption {
	return func(o *makeOptions) { o.useCaseID = useCaseID }
}

// WithStatus creates the item in a status other than pending.
func WithStatus(status int) MakeOption {
	return func(o *makeOptions) { o.status = status; o.hasStatus = true }
}

// WithShard pins the shard id instead of deriving it from the task id.
func WithShard(shardID int) MakeOption {
	return func(o *makeOptions) { o.shardID = shardID; o.hasShard = true }
}

// Make constructs a task in memory only. Status defaults to pending, the
// lease to unlocked, retry to zero.
func (t *Tracker) Make(taskID string, data map[string]any, opts ...MakeOption) (*Task, error) {
	o := makeOptions{useCaseID: t.cfg.useCaseID, status: t.cfg.pending}
	for _, opt := range opts {
		opt(&o)
	}
	var (
		value string
		err   error
	)
	if o.hasShard {
		value, err = t.cfg.ValueFor(o.useCaseID, o.status, o.shardID)
	} else {
		value, err = t.cfg.valueIn(o.useCaseID, o.status, taskID)
	}
	if err != nil {
		return nil, err
	}
	nowMs := t.now().UnixMilli()
	if data == nil {
		data = map[string]any{}
	}
	return t.wrap(&store.Item{
		Key:        t.cfg.KeyFor(o.useCaseID, taskID),
		Value:      value,
		Status:     o.status,
		CreateTime: nowMs,
		UpdateTime: nowMs,
		Retry:      0,
		Lock:       NotLocked,
		LockTime:   0,
		Data:       data,
		Errors:     &store.ErrorLog{History: []store.ErrorEntry{}},
	}), nil
}

// MakeAndSave constructs the task and persists it.
func (t *Tracker) MakeAndSave(ctx context.Context, taskID string, data map[string]any, opts ...MakeOption) (*Task, error) {
	task, err := t.Make(taskID, data, opts...)
	if err != nil {
		return nil, err
	}
	if err := t.store.Put(ctx, &task.Item); err != nil {
		return nil, err
	}
	return task, nil
}

// GetOption tunes GetOneOrNone.
type GetOption func(*getOptions)

type getOptions struct {
	useCaseID  string
	consistent bool
	attributes []string
}

// WithGetUseCase overrides the configured use case id for the lookup.
func WithGetUseCase(useCaseID string) GetOption {
	return func(o *getOptions) { o.useCaseID = useCaseID }
}

// WithConsistentRead requests a strongly consistent read.
func WithConsistentRead() GetOption {
	return func(o *getOptions) { o.consistent = true }
}

// WithAttributes limits the returned attributes.
func WithAttributes(attrs ...string) GetOption {
	return func(o *getOptions) { o.attributes = attrs }
}

// GetOneOrNone fetches a task by id, returning (nil, nil) when no record
// exists.
func (t *Tracker) GetOneOrNone(ctx context.Context, taskID string, opts ...GetOption) (*Task, error) {
	o := getOptions{useCaseID: t.cfg.useCaseID}
	for _, opt := range opts {
		opt(&o)
	}
	item, err := t.store.Get(ctx, t.cfg.KeyFor(o.useCaseID, taskID), store.GetOptions{
		ConsistentRead: o.consistent,
		Attributes:     o.attributes,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t.wrap(item), nil
}

// StartOption tunes Start.
type StartOption func(*startOptions)

type startOptions struct {
	morePending    []int
	hasMorePending bool
	detailedError  bool
}

// WithMorePending overrides the configured pending-equivalent set for this
// call only.
func WithMorePending(statuses ...int) StartOption {
	return func(o *startOptions) { o.morePending = statuses; o.hasMorePending = true }
}

// WithDetailedError enables the classification read after a failed
// acquisition, trading one extra Get for a precise typed error. Off the hot
// path this is usually worth it.
func WithDetailedError() StartOption {
	return func(o *startOptions) { o.detailedError = true }
}

// Start acquires an exclusive lease on the task, runs body, and commits a
// terminal state transition on every exit path:
//
//   - body returns nil: status→succeeded, retry→0, lease released.
//   - body returns an error (or panics): the error is appended to the
//     task's failure history, retry incremented, lease released, and status
//     set to failed — or ignored once retry reaches the configured limit.
//     The body's own error is returned (a panic is re-raised) after the
//     commit, never swallowed.
//
// Acquisition failures surface as the typed errors in this package;
// anything else from the store propagates unchanged.
func (t *Tracker) Start(ctx context.Context, taskID string, body func(*Execution) error, opts ...StartOption) error {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}
	morePending := t.cfg.morePending
	if o.hasMorePending {
		morePending = o.morePending
	}

	token := t.newToken()
	now := t.now()

	task, err := t.acquire(ctx, taskID, token, now, morePending)
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return t.classifyStartFailure(ctx, taskID, token, now, morePending, o.detailedError)
		}
		return err
	}
	t.log.Debug("lease acquired",
		log.Str("task_id", taskID),
		log.Str("token", token),
		log.Int("retry", task.Retry))

	exec := newExecution(t, task, token)
	bodyErr := runBody(exec, body)
	if bodyErr == nil {
		return t.commitSuccess(ctx, exec)
	}
	return t.commitFailure(ctx, exec, bodyErr)
}

// acquire issues the single conditional write that transitions the task to
// in_progress and stamps the lease, guarded by: (unlocked OR our own token
// OR lease expired) AND status in the ready-to-start set.
func (t *Tracker) acquire(ctx context.Context, taskID, token string, now time.Time, morePending []int) (*Task, error) {
	inProgressValue, err := t.cfg.MakeValue(t.cfg.inProgress, taskID)
	if err != nil {
		return nil, err
	}
	nowMs := now.UnixMilli()

	eligible := []store.Cond{
		store.Eq(store.FieldStatus, t.cfg.pending),
		store.Eq(store.FieldStatus, t.cfg.failed),
	}
	for _, status := range morePending {
		eligible = append(eligible, store.Eq(store.FieldStatus, status))
	}
	cond := store.And(
		store.Or(
			store.Eq(store.FieldLock, NotLocked),
			store.Eq(store.FieldLock, token),
			store.Lt(store.FieldLockTime, nowMs-t.cfg.lockExpire.Milliseconds()),
		),
		store.Or(eligible...),
	)
	upd := store.Update{
		store.Set(store.FieldValue, inProgressValue),
		store.Set(store.FieldStatus, t.cfg.inProgress),
		store.Set(store.FieldLock, token),
		store.Set(store.FieldLockTime, nowMs),
	}
	item, err := t.store.ConditionalUpdate(ctx, t.cfg.MakeKey(taskID), upd, cond)
	if err != nil {
		return nil, err
	}
	return t.wrap(item), nil
}

// classifyStartFailure turns a failed acquisition into a typed error. The
// extra read only happens in detailed mode and is best-effort: if it fails,
// the generic not-ready error stands.
func (t *Tracker) classifyStartFailure(ctx context.Context, taskID, token string, now time.Time, morePending []int, detailed bool) error {
	generic := &NotReadyToStartError{UseCaseID: t.cfg.useCaseID, TaskID: taskID}
	if !detailed {
		return generic
	}
	task, err := t.GetOneOrNone(ctx, taskID)
	if err != nil {
		return generic
	}
	switch {
	case task == nil:
		return &NotInitializedError{UseCaseID: t.cfg.useCaseID, TaskID: taskID}
	case task.IsLocked(token, now):
		return &LockedError{UseCaseID: t.cfg.useCaseID, TaskID: taskID}
	case task.IsSucceeded():
		return &AlreadySucceededError{UseCaseID: t.cfg.useCaseID, TaskID: taskID}
	case task.IsIgnored():
		return &IgnoredError{UseCaseID: t.cfg.useCaseID, TaskID: taskID}
	default:
		return &NotReadyToStartError{
			UseCaseID: t.cfg.useCaseID,
			TaskID:    taskID,
			Status:    task.Status,
			HasStatus: true,
			Eligible:  append([]int{t.cfg.pending, t.cfg.failed}, morePending...),
		}
	}
}

// runBody executes the caller's body inside a rollback checkpoint: updates
// it staged are discarded if it fails, so the failure path commits a clean
// transition. Panics are converted to errors here and re-raised after the
// failure commit.
func runBody(exec *Execution, body func(*Execution) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: captureStack(3, exec.task.cfg.stackLimit)}
		}
	}()
	return exec.BeginUpdate(func() error { return body(exec) })
}

func (t *Tracker) commitSuccess(ctx context.Context, exec *Execution) error {
	if err := exec.setStatus(t.cfg.succeeded); err != nil {
		return err
	}
	exec.setUpdateTime(t.now().UnixMilli())
	exec.setUnlock()
	exec.setRetryZero()
	if err := exec.Update(ctx); err != nil {
		return err
	}
	t.log.Debug("task succeeded",
		log.Str("task_id", exec.task.TaskID()),
		log.Str("status", exec.task.StatusName()))
	return nil
}

func (t *Tracker) commitFailure(ctx context.Context, exec *Execution, bodyErr error) error {
	task := exec.task
	now := t.now()

	trace := captureStack(4, t.cfg.stackLimit)
	if p, ok := bodyErr.(*panicError); ok {
		trace = p.stack
	}
	history := task.Errors.Clone()
	history.History = append(history.History, store.ErrorEntry{
		NthRetry:   task.Retry + 1,
		UpdateTime: now.UTC().Format(time.RFC3339),
		Error:      bodyErr.Error(),
		Traceback:  trace,
	})

	exec.setUpdateTime(now.UnixMilli())
	exec.setUnlock()
	exec.setRetryPlusOne()
	exec.setErrors(history)

	nextStatus := t.cfg.failed
	if task.Retry+1 >= t.cfg.maxRetry {
		nextStatus = t.cfg.ignored
	}
	if err := exec.setStatus(nextStatus); err != nil {
		return errors.Join(err, bodyErr)
	}
	if err := exec.Update(ctx); err != nil {
		// Both failures matter: the transition did not commit and the body
		// error must still reach the caller.
		return errors.Join(err, bodyErr)
	}
	t.log.Warn("task failed",
		log.Str("task_id", task.TaskID()),
		log.Str("status", t.cfg.StatusName(nextStatus)),
		log.Int("retry", exec.task.Retry),
		log.Err(bodyErr))

	if p, ok := bodyErr.(*panicError); ok {
		panic(p.value)
	}
	return bodyErr
}

// CountTasksByUseCaseID counts items belonging to a use case with a full
// table scan. Expensive; keep it off the hot path.
func (t *Tracker) CountTasksByUseCaseID(ctx context.Context, useCaseID string) (int, error) {
	if useCaseID == "" {
		useCaseID = t.cfg.useCaseID
	}
	n := 0
	err := t.store.Scan(ctx, useCaseID+t.cfg.sep, func(string) error {
		n++
		return nil
	})
	return n, err
}

// DeleteTasksByUseCaseID deletes every item belonging to a use case with a
// full table scan followed by batched deletes. Expensive; meant for
// teardown and tests.
func (t *Tracker) DeleteTasksByUseCaseID(ctx context.Context, useCaseID string) (int, error) {
	if useCaseID == "" {
		useCaseID = t.cfg.useCaseID
	}
	var keys []string
	if err := t.store.Scan(ctx, useCaseID+t.cfg.sep, func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := t.store.BatchDelete(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// captureStack formats up to limit frames of the current goroutine's stack,
// skipping the capture machinery itself.
func captureStack(skip, limit int) string {
	pc := make([]uintptr, limit)
	n := runtime.Callers(skip, pc)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pc[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
