package store

// Cond is a server-side predicate over the current item. Backends either
// compile it (DynamoDB condition expressions) or evaluate it in memory
// under a per-key critical section (Pebble).
type Cond interface {
	cond()
}

// CmpOp is a comparison operator.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpGt
)

// Compare tests one attribute against a literal value.
type Compare struct {
	Field string
	Op    CmpOp
	Value any
}

func (Compare) cond() {}

// Group combines sub-conditions with AND or OR.
type Group struct {
	Or    bool
	Conds []Cond
}

func (Group) cond() {}

// Eq builds field == value.
func Eq(field string, value any) Cond { return Compare{Field: field, Op: CmpEq, Value: value} }

// Ne builds field != value.
func Ne(field string, value any) Cond { return Compare{Field: field, Op: CmpNe, Value: value} }

// Lt builds field < value.
func Lt(field string, value any) Cond { return Compare{Field: field, Op: CmpLt, Value: value} }

// Gt builds field > value.
func Gt(field string, value any) Cond { return Compare{Field: field, Op: CmpGt, Value: value} }

// And combines conditions conjunctively.
func And(conds ...Cond) Cond { return Group{Conds: conds} }

// Or combines conditions disjunctively.
func Or(conds ...Cond) Cond { return Group{Or: true, Conds: conds} }
