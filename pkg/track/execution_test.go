package track

import (
	"errors"
	"testing"

	"github.com/tasktrail/tasktrail/pkg/store"
)

func newTestExecution(t *testing.T) *Execution {
	t.Helper()
	tr, _ := newTestTracker(t)
	task, err := tr.Make("t-1", nil)
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	return newExecution(tr, task, "token-1")
}

func TestBeginUpdateKeepsOnSuccess(t *testing.T) {
	e := newTestExecution(t)
	err := e.BeginUpdate(func() error {
		e.SetData(map[string]any{"a": 1})
		return nil
	})
	if err != nil {
		t.Fatalf("begin update: %v", err)
	}
	if len(e.updates) != 1 {
		t.Fatalf("staged: %d", len(e.updates))
	}
}

func TestBeginUpdateRollsBackOnError(t *testing.T) {
	e := newTestExecution(t)
	e.setUpdateTime(1000)

	boom := errors.New("boom")
	err := e.BeginUpdate(func() error {
		e.SetData(map[string]any{"a": 1})
		e.setRetryZero()
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	// only the pre-checkpoint update survives
	if len(e.updates) != 1 {
		t.Fatalf("staged: %d", len(e.updates))
	}
	if _, ok := e.updates[store.FieldUpdateTime]; !ok {
		t.Fatalf("pre-checkpoint update lost")
	}
}

func TestBeginUpdateRollsBackOnPanic(t *testing.T) {
	e := newTestExecution(t)

	func() {
		defer func() { _ = recover() }()
		_ = e.BeginUpdate(func() error {
			e.SetData(map[string]any{"a": 1})
			panic("kaboom")
		})
	}()
	if len(e.updates) != 0 {
		t.Fatalf("staged after panic: %d", len(e.updates))
	}
}

func TestBeginUpdateNests(t *testing.T) {
	e := newTestExecution(t)
	err := e.BeginUpdate(func() error {
		e.setUpdateTime(1000)
		inner := e.BeginUpdate(func() error {
			e.SetData(map[string]any{"a": 1})
			return errors.New("inner")
		})
		if inner == nil {
			t.Fatalf("inner should fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer: %v", err)
	}
	if _, ok := e.updates[store.FieldData]; ok {
		t.Fatalf("inner staging survived rollback")
	}
	if _, ok := e.updates[store.FieldUpdateTime]; !ok {
		t.Fatalf("outer staging lost")
	}
}

func TestStagedIsSorted(t *testing.T) {
	e := newTestExecution(t)
	e.setUnlock()
	e.setUpdateTime(1000)
	e.setRetryZero()

	upd := e.staged()
	for i := 1; i < len(upd); i++ {
		if upd[i-1].Field >= upd[i].Field {
			t.Fatalf("not sorted: %q before %q", upd[i-1].Field, upd[i].Field)
		}
	}
}

func TestUpdateRequiresToken(t *testing.T) {
	e := newTestExecution(t)
	e.token = ""
	e.setUnlock()
	if err := e.Update(nil); err == nil {
		t.Fatalf("want error without token")
	}
}
