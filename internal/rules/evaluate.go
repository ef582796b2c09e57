// internal/rules/evaluate.go
package rules

import (
	"github.com/meridianhealth/adjudicator/internal/types"
)

/*
 * Condition evaluation.
 *
 * Evaluates a condition tree against a flat claim context, returning the
 * boolean result plus a NodeTrace mirroring the tree with every node's
 * result. Evaluation is a pure function: identical (node, context) inputs
 * always yield identical (matched, trace) outputs, and the context is never
 * mutated.
 *
 * No short-circuiting: AND and OR evaluate every child in declared order
 * even when an early child already determines the parent result. Regulators
 * reading a denial trace need to see what every condition said, not only the
 * prefix that happened to decide the outcome. This trades speed for a
 * complete audit trail.
 *
 * Failure semantics: incomparable operand types at a leaf record a note on
 * that leaf's trace and evaluate to false; they never abort the tree. The
 * only hard failure is DepthExceeded, which protects the host stack from
 * pathological trees that slipped past creation-time validation.
 */

// Evaluate runs one condition tree against one claim context.
// Returns the root trace (whose Matched field is the overall result) or an
// EvaluationError when recursion exceeds types.MaxConditionDepth.
func Evaluate(node types.ConditionNode, context map[string]types.Value) (types.NodeTrace, error) {
	return evalNode(node, context, 1)
}

func evalNode(node types.ConditionNode, context map[string]types.Value, depth int) (types.NodeTrace, error) {
	if depth > types.MaxConditionDepth {
		return types.NodeTrace{}, &types.EvaluationError{Kind: types.DepthExceeded}
	}

	switch node.Kind {
	case types.NodeAnd:
		trace := types.NodeTrace{Kind: types.NodeAnd, Matched: true}
		trace.Children = make([]types.NodeTrace, 0, len(node.Children))
		for _, child := range node.Children {
			ct, err := evalNode(child, context, depth+1)
			if err != nil {
				return types.NodeTrace{}, err
			}
			if !ct.Matched {
				trace.Matched = false
			}
			trace.Children = append(trace.Children, ct)
		}
		if len(node.Children) == 0 {
			// Degenerate tree from a pre-validation era: vacuous AND never matches.
			trace.Matched = false
			trace.Note = "and node has no children"
		}
		return trace, nil

	case types.NodeOr:
		trace := types.NodeTrace{Kind: types.NodeOr}
		trace.Children = make([]types.NodeTrace, 0, len(node.Children))
		for _, child := range node.Children {
			ct, err := evalNode(child, context, depth+1)
			if err != nil {
				return types.NodeTrace{}, err
			}
			if ct.Matched {
				trace.Matched = true
			}
			trace.Children = append(trace.Children, ct)
		}
		if len(node.Children) == 0 {
			trace.Note = "or node has no children"
		}
		return trace, nil

	case types.NodeNot:
		trace := types.NodeTrace{Kind: types.NodeNot}
		if len(node.Children) != 1 {
			trace.Note = "not node requires exactly one child"
			return trace, nil
		}
		ct, err := evalNode(node.Children[0], context, depth+1)
		if err != nil {
			return types.NodeTrace{}, err
		}
		trace.Matched = !ct.Matched
		trace.Children = []types.NodeTrace{ct}
		return trace, nil

	case types.NodeComparison:
		matched, note := compare(node, context)
		return types.NodeTrace{
			Kind:    types.NodeComparison,
			Field:   node.Field,
			Op:      node.Op,
			Matched: matched,
			Note:    note,
		}, nil

	default:
		return types.NodeTrace{
			Kind: node.Kind,
			Note: "unknown node kind",
		}, nil
	}
}
