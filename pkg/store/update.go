package store

// UpdateOp is the kind of a field update.
type UpdateOp int

const (
	// OpSet assigns the field to Value.
	OpSet UpdateOp = iota
	// OpAdd increments a numeric field by Value (server-side arithmetic, so
	// concurrent writers do not clobber each other's increments).
	OpAdd
)

// FieldUpdate is one staged mutation of a named attribute.
type FieldUpdate struct {
	Field string
	Op    UpdateOp
	Value any
}

// Update is an ordered list of field updates applied in one write.
type Update []FieldUpdate

// Set builds an assignment update.
func Set(field string, value any) FieldUpdate {
	return FieldUpdate{Field: field, Op: OpSet, Value: value}
}

// Add builds an increment update for a numeric field.
func Add(field string, delta int) FieldUpdate {
	return FieldUpdate{Field: field, Op: OpAdd, Value: delta}
}
