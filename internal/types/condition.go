package types

/*
 * Condition expression trees.
 *
 * A condition is a recursive boolean expression over flat claim context
 * fields: AND/OR over ordered children, NOT over exactly one child, and
 * COMPARISON leaves binding a field name, an operator, and an operand value.
 *
 * Trees are plain data. Structural validation and evaluation live in
 * internal/rules; persistence serializes trees as JSON in the rule row and in
 * every version snapshot, so a tree attached to a persisted rule version is
 * immutable by construction.
 */

// NodeKind discriminates the condition node variant.
type NodeKind string

const (
	NodeAnd        NodeKind = "and"
	NodeOr         NodeKind = "or"
	NodeNot        NodeKind = "not"
	NodeComparison NodeKind = "comparison"
)

// CompareOp is a comparison leaf operator.
type CompareOp string

const (
	OpEquals      CompareOp = "equals"
	OpNotEquals   CompareOp = "not_equals"
	OpGreaterThan CompareOp = "greater_than"
	OpLessThan    CompareOp = "less_than"
	OpContains    CompareOp = "contains"
	OpIn          CompareOp = "in"
)

// Valid reports whether the operator is one of the known comparison operators.
func (o CompareOp) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpIn:
		return true
	}
	return false
}

// ConditionNode is one node of a condition expression tree.
// AND/OR use Children (non-empty, ordered); NOT uses exactly one child;
// COMPARISON uses Field, Op, and Value and must have no children.
type ConditionNode struct {
	Kind     NodeKind        `json:"kind"`
	Children []ConditionNode `json:"children,omitempty"`
	Field    string          `json:"field,omitempty"`
	Op       CompareOp       `json:"op,omitempty"`
	Value    Value           `json:"value"`
}

// Comparison constructs a comparison leaf.
func Comparison(field string, op CompareOp, value Value) ConditionNode {
	return ConditionNode{Kind: NodeComparison, Field: field, Op: op, Value: value}
}

// And constructs an AND node over the given children.
func And(children ...ConditionNode) ConditionNode {
	return ConditionNode{Kind: NodeAnd, Children: children}
}

// Or constructs an OR node over the given children.
func Or(children ...ConditionNode) ConditionNode {
	return ConditionNode{Kind: NodeOr, Children: children}
}

// Not constructs a NOT node over a single child.
func Not(child ConditionNode) ConditionNode {
	return ConditionNode{Kind: NodeNot, Children: []ConditionNode{child}}
}
