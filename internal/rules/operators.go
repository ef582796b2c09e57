// internal/rules/operators.go
package rules

import (
	"fmt"

	"github.com/meridianhealth/adjudicator/internal/types"
)

/*
 * Comparison operator semantics.
 *
 * Implements the six leaf operators over the closed Value variant. Every
 * operand combination has a defined boolean result; incompatibilities are
 * reported through the trace note, never as errors or panics.
 *
 * Missing fields: absence means "no concrete value", so NOT_EQUALS is true
 * (absent is not equal to anything concrete) and every other operator is
 * false. This is the single documented place where an absent input coerces
 * to a condition result.
 *
 * Why function-based: six operators via switch reads cleaner than six
 * interface implementations with minimal behavior variation, and it keeps
 * the evaluator free of allocation on the hot path.
 */

// compare evaluates one comparison leaf against the context.
// Returns the result plus an optional diagnostic note for the node trace.
func compare(node types.ConditionNode, context map[string]types.Value) (bool, string) {
	have, ok := context[node.Field]
	if !ok || have.IsNull() {
		if node.Op == types.OpNotEquals {
			return true, "field absent from context"
		}
		return false, "field absent from context"
	}

	want := node.Value

	switch node.Op {
	case types.OpEquals:
		return have.Equal(want), ""

	case types.OpNotEquals:
		return !have.Equal(want), ""

	case types.OpGreaterThan:
		cmp, comparable := have.Order(want)
		if !comparable {
			return false, typeMismatchNote(node.Op, have, want)
		}
		return cmp > 0, ""

	case types.OpLessThan:
		cmp, comparable := have.Order(want)
		if !comparable {
			return false, typeMismatchNote(node.Op, have, want)
		}
		return cmp < 0, ""

	case types.OpContains:
		result, applicable := have.Contains(want)
		if !applicable {
			return false, typeMismatchNote(node.Op, have, want)
		}
		return result, ""

	case types.OpIn:
		if want.Kind != types.KindList {
			return false, fmt.Sprintf("in operator requires a list operand, got %s", want.Kind)
		}
		for _, item := range want.Items {
			if have.Equal(item) {
				return true, ""
			}
		}
		return false, ""

	default:
		return false, fmt.Sprintf("unknown operator %q", node.Op)
	}
}

func typeMismatchNote(op types.CompareOp, have, want types.Value) string {
	return fmt.Sprintf("type mismatch: %s not defined for %s vs %s", op, have.Kind, want.Kind)
}
