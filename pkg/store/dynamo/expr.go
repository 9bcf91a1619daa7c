package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tasktrail/tasktrail/pkg/store"
)

// exprBuilder accumulates expression attribute names and values while
// compiling updates and conditions. Attribute names are always aliased, so
// reserved words like "status", "value" and "data" are safe.
type exprBuilder struct {
	names  map[string]string
	values map[string]types.AttributeValue
	nextN  int
	nextV  int
}

func newExprBuilder() *exprBuilder {
	return &exprBuilder{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
}

func (b *exprBuilder) name(field string) string {
	alias := "#n" + fmt.Sprint(b.nextN)
	for k, v := range b.names {
		if v == field {
			return k
		}
	}
	b.nextN++
	b.names[alias] = field
	return alias
}

func (b *exprBuilder) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("dynamo: marshal expression value: %w", err)
	}
	alias := ":v" + fmt.Sprint(b.nextV)
	b.nextV++
	b.values[alias] = av
	return alias, nil
}

// compileUpdate renders a SET expression. OpAdd becomes server-side
// arithmetic (SET #f = #f + :v) matching the tracker's retry increment.
func compileUpdate(u store.Update, b *exprBuilder) (string, error) {
	parts := make([]string, 0, len(u))
	for _, fu := range u {
		n := b.name(fu.Field)
		v, err := b.value(fu.Value)
		if err != nil {
			return "", err
		}
		switch fu.Op {
		case store.OpSet:
			parts = append(parts, fmt.Sprintf("%s = %s", n, v))
		case store.OpAdd:
			parts = append(parts, fmt.Sprintf("%s = %s + %s", n, n, v))
		default:
			return "", fmt.Errorf("dynamo: unsupported update op %d", fu.Op)
		}
	}
	return "SET " + strings.Join(parts, ", "), nil
}

func compileCond(c store.Cond, b *exprBuilder) (string, error) {
	switch v := c.(type) {
	case store.Compare:
		n := b.name(v.Field)
		val, err := b.value(v.Value)
		if err != nil {
			return "", err
		}
		op, err := cmpToken(v.Op)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", n, op, val), nil
	case store.Group:
		if len(v.Conds) == 0 {
			return "", fmt.Errorf("dynamo: empty condition group")
		}
		join := " AND "
		if v.Or {
			join = " OR "
		}
		parts := make([]string, 0, len(v.Conds))
		for _, k := range v.Conds {
			p, err := compileCond(k, b)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+p+")")
		}
		return strings.Join(parts, join), nil
	default:
		return "", fmt.Errorf("dynamo: unsupported condition %T", c)
	}
}

func cmpToken(op store.CmpOp) (string, error) {
	switch op {
	case store.CmpEq:
		return "=", nil
	case store.CmpNe:
		return "<>", nil
	case store.CmpLt:
		return "<", nil
	case store.CmpGt:
		return ">", nil
	default:
		return "", fmt.Errorf("dynamo: unsupported comparison %d", op)
	}
}
