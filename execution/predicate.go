package execution

import (
	"fmt"

	"github.com/relational-go/coredb/common"
	"github.com/relational-go/coredb/storage"
)

// Op is a field comparison operator, grounded in SimpleDB's Predicate.Op
// enum (original_source/src/java/simpledb/Predicate.java). The core's
// filter contract only requires an opaque (tuple) -> bool predicate
// (SPEC_FULL.md §4.4); FieldPredicate is the concrete implementation
// supplementing that contract with the comparisons the original actually
// offers.
type Op int

const (
	Equals Op = iota
	GreaterThan
	LessThan
	LessThanOrEqual
	GreaterThanOrEqual
	NotEquals
	Like
)

func (op Op) String() string {
	switch op {
	case Equals:
		return "="
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case GreaterThanOrEqual:
		return ">="
	case NotEquals:
		return "<>"
	case Like:
		return "LIKE"
	}
	return "?"
}

func (op Op) apply(cmp int, left, right common.Value) bool {
	switch op {
	case Equals:
		return cmp == 0
	case GreaterThan:
		return cmp > 0
	case LessThan:
		return cmp < 0
	case LessThanOrEqual:
		return cmp <= 0
	case GreaterThanOrEqual:
		return cmp >= 0
	case NotEquals:
		return cmp != 0
	case Like:
		return containsSubstring(left.StringValue(), right.StringValue())
	}
	return false
}

func containsSubstring(haystack, needle string) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// FieldPredicate compares one field of a tuple against a fixed value.
type FieldPredicate struct {
	fieldIndex int
	op         Op
	operand    common.Value
}

// NewFieldPredicate builds a predicate comparing field fieldIndex with op
// against operand.
func NewFieldPredicate(fieldIndex int, op Op, operand common.Value) *FieldPredicate {
	return &FieldPredicate{fieldIndex: fieldIndex, op: op, operand: operand}
}

// Eval implements the (tuple) -> bool contract operators consume.
func (p *FieldPredicate) Eval(t storage.Tuple) bool {
	field := t.GetValue(p.fieldIndex)
	return p.op.apply(field.Compare(p.operand), field, p.operand)
}

func (p *FieldPredicate) String() string {
	return fmt.Sprintf("field[%d] %s %s", p.fieldIndex, p.op, p.operand)
}
