// internal/rules/validate.go
package rules

import (
	"fmt"

	"github.com/meridianhealth/adjudicator/internal/types"
)

/*
 * Structural validation for condition trees.
 *
 * Validation runs at rule creation and update time so malformed trees are
 * rejected before they are ever persisted or evaluated. The evaluator still
 * carries its own depth guard: rules written before a limit change, or
 * injected through a stale catalog view, must fail safely at evaluation time
 * rather than being trusted.
 *
 * Rules enforced:
 *   - AND/OR nodes have at least one child
 *   - NOT nodes have exactly one child
 *   - COMPARISON leaves have a field, a known operator, and no children
 *   - IN operands are lists of at most MaxInValues elements
 *   - total depth does not exceed MaxConditionDepth
 */

// Validate checks a condition tree for structural soundness.
// All failures wrap types.ErrInvalidCondition.
func Validate(node types.ConditionNode) error {
	return validateNode(node, 1)
}

func validateNode(node types.ConditionNode, depth int) error {
	if depth > types.MaxConditionDepth {
		return fmt.Errorf("%w: tree exceeds maximum depth %d", types.ErrInvalidCondition, types.MaxConditionDepth)
	}

	switch node.Kind {
	case types.NodeAnd, types.NodeOr:
		if len(node.Children) == 0 {
			return fmt.Errorf("%w: %s node has no children", types.ErrInvalidCondition, node.Kind)
		}
		for _, child := range node.Children {
			if err := validateNode(child, depth+1); err != nil {
				return err
			}
		}
		return nil

	case types.NodeNot:
		if len(node.Children) != 1 {
			return fmt.Errorf("%w: not node must have exactly one child, got %d", types.ErrInvalidCondition, len(node.Children))
		}
		return validateNode(node.Children[0], depth+1)

	case types.NodeComparison:
		if len(node.Children) != 0 {
			return fmt.Errorf("%w: comparison node must not have children", types.ErrInvalidCondition)
		}
		if node.Field == "" {
			return fmt.Errorf("%w: comparison node missing field", types.ErrInvalidCondition)
		}
		if !node.Op.Valid() {
			return fmt.Errorf("%w: unknown operator %q", types.ErrInvalidCondition, node.Op)
		}
		if node.Op == types.OpIn {
			if node.Value.Kind != types.KindList {
				return fmt.Errorf("%w: in operator requires a list operand, got %s", types.ErrInvalidCondition, node.Value.Kind)
			}
			if len(node.Value.Items) > types.MaxInValues {
				return fmt.Errorf("%w: in operator has %d values, maximum is %d", types.ErrInvalidCondition, len(node.Value.Items), types.MaxInValues)
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown node kind %q", types.ErrInvalidCondition, node.Kind)
	}
}
