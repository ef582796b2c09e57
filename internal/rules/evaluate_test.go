// internal/rules/evaluate_test.go
package rules

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/meridianhealth/adjudicator/internal/types"
)

func TestEvaluate_SimpleComparison(t *testing.T) {
	node := types.Comparison("claim_amount", types.OpGreaterThan, types.Number(1000))

	trace, err := Evaluate(node, map[string]types.Value{
		"claim_amount": types.Number(2500),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}

	if !trace.Matched {
		t.Errorf("Matched = false, want true")
	}
	if trace.Kind != types.NodeComparison {
		t.Errorf("Kind = %v, want comparison", trace.Kind)
	}
	if trace.Field != "claim_amount" {
		t.Errorf("Field = %q, want claim_amount", trace.Field)
	}
	if trace.Op != types.OpGreaterThan {
		t.Errorf("Op = %v, want greater_than", trace.Op)
	}
}

func TestEvaluate_Operators(t *testing.T) {
	claimCtx := map[string]types.Value{
		"procedure_code": types.Text("99213"),
		"claim_amount":   types.Number(150),
		"is_emergency":   types.Boolean(false),
		"diagnosis":      types.Text("acute sinusitis"),
		"modifiers":      types.List(types.Text("25"), types.Text("59")),
	}

	tests := []struct {
		name    string
		node    types.ConditionNode
		matched bool
	}{
		{
			name:    "equals text match",
			node:    types.Comparison("procedure_code", types.OpEquals, types.Text("99213")),
			matched: true,
		},
		{
			name:    "equals text mismatch",
			node:    types.Comparison("procedure_code", types.OpEquals, types.Text("99214")),
			matched: false,
		},
		{
			name:    "not_equals",
			node:    types.Comparison("procedure_code", types.OpNotEquals, types.Text("99214")),
			matched: true,
		},
		{
			name:    "greater_than false on equal",
			node:    types.Comparison("claim_amount", types.OpGreaterThan, types.Number(150)),
			matched: false,
		},
		{
			name:    "less_than",
			node:    types.Comparison("claim_amount", types.OpLessThan, types.Number(151)),
			matched: true,
		},
		{
			name:    "contains substring",
			node:    types.Comparison("diagnosis", types.OpContains, types.Text("sinus")),
			matched: true,
		},
		{
			name:    "contains list membership",
			node:    types.Comparison("modifiers", types.OpContains, types.Text("59")),
			matched: true,
		},
		{
			name:    "in hit",
			node:    types.Comparison("procedure_code", types.OpIn, types.List(types.Text("99212"), types.Text("99213"))),
			matched: true,
		},
		{
			name:    "in miss",
			node:    types.Comparison("procedure_code", types.OpIn, types.List(types.Text("99212"), types.Text("99214"))),
			matched: false,
		},
		{
			name:    "equals boolean",
			node:    types.Comparison("is_emergency", types.OpEquals, types.Boolean(false)),
			matched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace, err := Evaluate(tt.node, claimCtx)
			if err != nil {
				t.Fatalf("Evaluate() error = %v, want nil", err)
			}
			if trace.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", trace.Matched, tt.matched)
			}
		})
	}
}

func TestEvaluate_MissingField(t *testing.T) {
	claimCtx := map[string]types.Value{}

	tests := []struct {
		op      types.CompareOp
		matched bool
	}{
		{types.OpEquals, false},
		{types.OpNotEquals, true},
		{types.OpGreaterThan, false},
		{types.OpLessThan, false},
		{types.OpContains, false},
		{types.OpIn, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			operand := types.Text("anything")
			if tt.op == types.OpIn {
				operand = types.List(types.Text("anything"))
			}
			trace, err := Evaluate(types.Comparison("absent_field", tt.op, operand), claimCtx)
			if err != nil {
				t.Fatalf("Evaluate() error = %v, want nil", err)
			}
			if trace.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", trace.Matched, tt.matched)
			}
			if trace.Note == "" {
				t.Errorf("Note empty, want absence note")
			}
		})
	}
}

func TestEvaluate_NullFieldTreatedAsAbsent(t *testing.T) {
	claimCtx := map[string]types.Value{"referral_id": {}}

	trace, err := Evaluate(types.Comparison("referral_id", types.OpNotEquals, types.Text("R-1")), claimCtx)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if !trace.Matched {
		t.Errorf("Matched = false, want true (null is not equal to a concrete value)")
	}
}

func TestEvaluate_TypeMismatchIsNoteNotError(t *testing.T) {
	claimCtx := map[string]types.Value{
		"procedure_code": types.Text("97x"),
	}

	trace, err := Evaluate(types.Comparison("procedure_code", types.OpGreaterThan, types.Number(5)), claimCtx)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil (mismatch must not abort)", err)
	}
	if trace.Matched {
		t.Errorf("Matched = true, want false")
	}
	if trace.Note == "" {
		t.Errorf("Note empty, want type mismatch note")
	}
}

func TestEvaluate_TimestampTextComparable(t *testing.T) {
	claimCtx := map[string]types.Value{
		"service_date": types.Text("2025-03-15T00:00:00Z"),
	}

	node := types.Comparison("service_date", types.OpGreaterThan, types.Text("2025-01-01T00:00:00Z"))
	trace, err := Evaluate(node, claimCtx)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if !trace.Matched {
		t.Errorf("Matched = false, want true (RFC3339 text compares as timestamp)")
	}
}

func TestEvaluate_ANDEvaluatesAllChildren(t *testing.T) {
	// First child fails; both children must still appear in the trace.
	node := types.And(
		types.Comparison("claim_amount", types.OpGreaterThan, types.Number(10000)),
		types.Comparison("procedure_code", types.OpEquals, types.Text("99213")),
	)

	trace, err := Evaluate(node, map[string]types.Value{
		"claim_amount":   types.Number(100),
		"procedure_code": types.Text("99213"),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if trace.Matched {
		t.Errorf("Matched = true, want false")
	}
	if len(trace.Children) != 2 {
		t.Fatalf("Children = %d, want 2 (no short-circuit)", len(trace.Children))
	}
	if trace.Children[0].Matched {
		t.Errorf("Children[0].Matched = true, want false")
	}
	if !trace.Children[1].Matched {
		t.Errorf("Children[1].Matched = false, want true")
	}
}

func TestEvaluate_OREvaluatesAllChildren(t *testing.T) {
	// First child succeeds; the second must still be evaluated and traced.
	node := types.Or(
		types.Comparison("claim_amount", types.OpLessThan, types.Number(10000)),
		types.Comparison("procedure_code", types.OpEquals, types.Text("00000")),
	)

	trace, err := Evaluate(node, map[string]types.Value{
		"claim_amount":   types.Number(100),
		"procedure_code": types.Text("99213"),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if !trace.Matched {
		t.Errorf("Matched = false, want true")
	}
	if len(trace.Children) != 2 {
		t.Fatalf("Children = %d, want 2 (no short-circuit)", len(trace.Children))
	}
	if trace.Children[1].Matched {
		t.Errorf("Children[1].Matched = true, want false")
	}
}

func TestEvaluate_NotInverts(t *testing.T) {
	node := types.Not(types.Comparison("is_emergency", types.OpEquals, types.Boolean(true)))

	trace, err := Evaluate(node, map[string]types.Value{
		"is_emergency": types.Boolean(false),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if !trace.Matched {
		t.Errorf("Matched = false, want true")
	}
	if len(trace.Children) != 1 {
		t.Fatalf("Children = %d, want 1", len(trace.Children))
	}
	if trace.Children[0].Matched {
		t.Errorf("child Matched = true, want false")
	}
}

func TestEvaluate_NestedTree(t *testing.T) {
	// (amount > 1000 AND (code IN (A, B) OR NOT emergency))
	node := types.And(
		types.Comparison("claim_amount", types.OpGreaterThan, types.Number(1000)),
		types.Or(
			types.Comparison("procedure_code", types.OpIn, types.List(types.Text("A"), types.Text("B"))),
			types.Not(types.Comparison("is_emergency", types.OpEquals, types.Boolean(true))),
		),
	)

	trace, err := Evaluate(node, map[string]types.Value{
		"claim_amount":   types.Number(5000),
		"procedure_code": types.Text("C"),
		"is_emergency":   types.Boolean(false),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if !trace.Matched {
		t.Errorf("Matched = false, want true")
	}

	or := trace.Children[1]
	if len(or.Children) != 2 {
		t.Fatalf("OR Children = %d, want 2", len(or.Children))
	}
	if or.Children[0].Matched {
		t.Errorf("IN leaf Matched = true, want false")
	}
	if !or.Children[1].Matched {
		t.Errorf("NOT node Matched = false, want true")
	}
}

func TestEvaluate_EmptyANDNeverMatches(t *testing.T) {
	trace, err := Evaluate(types.ConditionNode{Kind: types.NodeAnd}, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if trace.Matched {
		t.Errorf("Matched = true, want false for empty AND")
	}
	if trace.Note == "" {
		t.Errorf("Note empty, want degenerate-node note")
	}
}

func TestEvaluate_DepthExceeded(t *testing.T) {
	node := types.Comparison("f", types.OpEquals, types.Number(1))
	for i := 0; i < types.MaxConditionDepth; i++ {
		node = types.Not(node)
	}

	_, err := Evaluate(node, map[string]types.Value{"f": types.Number(1)})
	if err == nil {
		t.Fatalf("Evaluate() error = nil, want depth error")
	}
	var evalErr *types.EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("error type = %T, want *types.EvaluationError", err)
	}
	if evalErr.Kind != types.DepthExceeded {
		t.Errorf("Kind = %v, want DepthExceeded", evalErr.Kind)
	}
}

func TestEvaluate_MaxDepthExactlyAllowed(t *testing.T) {
	// Depth MaxConditionDepth is legal; only deeper trees fail.
	node := types.Comparison("f", types.OpEquals, types.Number(1))
	for i := 0; i < types.MaxConditionDepth-1; i++ {
		node = types.Not(node)
	}

	if _, err := Evaluate(node, map[string]types.Value{"f": types.Number(1)}); err != nil {
		t.Fatalf("Evaluate() error = %v, want nil at exactly max depth", err)
	}
}

func TestEvaluate_UnknownNodeKind(t *testing.T) {
	trace, err := Evaluate(types.ConditionNode{Kind: "xor"}, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if trace.Matched {
		t.Errorf("Matched = true, want false")
	}
	if trace.Note != "unknown node kind" {
		t.Errorf("Note = %q, want unknown node kind", trace.Note)
	}
}

// Property-based test: evaluation is deterministic and never mutates context.
func TestEvaluate_PropertyDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("same inputs yield same result and context is untouched", prop.ForAll(
		func(amount float64, code string, useAnd bool) bool {
			claimCtx := map[string]types.Value{
				"claim_amount":   types.Number(amount),
				"procedure_code": types.Text(code),
			}

			leafA := types.Comparison("claim_amount", types.OpGreaterThan, types.Number(500))
			leafB := types.Comparison("procedure_code", types.OpEquals, types.Text("99213"))
			var node types.ConditionNode
			if useAnd {
				node = types.And(leafA, leafB)
			} else {
				node = types.Or(leafA, types.Not(leafB))
			}

			first, err1 := Evaluate(node, claimCtx)
			second, err2 := Evaluate(node, claimCtx)
			if err1 != nil || err2 != nil {
				return false
			}
			if first.Matched != second.Matched {
				return false
			}
			if len(claimCtx) != 2 {
				return false
			}
			return claimCtx["claim_amount"].Num == amount && claimCtx["procedure_code"].Str == code
		},
		gen.Float64Range(-1e6, 1e6),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: NOT is an involution over any leaf result.
func TestEvaluate_PropertyDoubleNegation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("NOT(NOT(x)) == x", prop.ForAll(
		func(amount float64, threshold float64) bool {
			claimCtx := map[string]types.Value{"claim_amount": types.Number(amount)}
			leaf := types.Comparison("claim_amount", types.OpLessThan, types.Number(threshold))

			plain, err1 := Evaluate(leaf, claimCtx)
			doubled, err2 := Evaluate(types.Not(types.Not(leaf)), claimCtx)
			if err1 != nil || err2 != nil {
				return false
			}
			return plain.Matched == doubled.Matched
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}
