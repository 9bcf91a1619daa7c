package dynamo

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tasktrail/tasktrail/pkg/store"
)

func TestCompileUpdateSetAndAdd(t *testing.T) {
	b := newExprBuilder()
	expr, err := compileUpdate(store.Update{
		store.Set(store.FieldLock, "tok"),
		store.Add(store.FieldRetry, 1),
	}, b)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if expr != "SET #n0 = :v0, #n1 = #n1 + :v1" {
		t.Fatalf("expr: %q", expr)
	}
	if b.names["#n0"] != store.FieldLock || b.names["#n1"] != store.FieldRetry {
		t.Fatalf("names: %v", b.names)
	}
	if _, ok := b.values[":v0"].(*types.AttributeValueMemberS); !ok {
		t.Fatalf("lock value type: %T", b.values[":v0"])
	}
	if _, ok := b.values[":v1"].(*types.AttributeValueMemberN); !ok {
		t.Fatalf("retry value type: %T", b.values[":v1"])
	}
}

func TestCompileCondNested(t *testing.T) {
	b := newExprBuilder()
	cond := store.And(
		store.Or(
			store.Eq(store.FieldLock, "__not_locked__"),
			store.Eq(store.FieldLock, "tok"),
			store.Lt(store.FieldLockTime, int64(12345)),
		),
		store.Or(
			store.Eq(store.FieldStatus, 0),
			store.Eq(store.FieldStatus, 6),
		),
	)
	expr, err := compileCond(cond, b)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := "((#n0 = :v0) OR (#n0 = :v1) OR (#n1 < :v2)) AND ((#n2 = :v3) OR (#n2 = :v4))"
	if expr != want {
		t.Fatalf("expr: %q", expr)
	}
	if len(b.names) != 3 {
		t.Fatalf("names not deduped: %v", b.names)
	}
}

func TestCompileCondComparisons(t *testing.T) {
	for _, tc := range []struct {
		cond store.Cond
		op   string
	}{
		{store.Eq(store.FieldStatus, 0), "="},
		{store.Ne(store.FieldLock, "x"), "<>"},
		{store.Lt(store.FieldLockTime, int64(1)), "<"},
		{store.Gt(store.FieldRetry, 2), ">"},
	} {
		expr, err := compileCond(tc.cond, newExprBuilder())
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		if !strings.Contains(expr, " "+tc.op+" ") {
			t.Fatalf("expr %q missing %q", expr, tc.op)
		}
	}
}

func TestCompileCondEmptyGroup(t *testing.T) {
	if _, err := compileCond(store.And(), newExprBuilder()); err == nil {
		t.Fatalf("want error for empty group")
	}
}
