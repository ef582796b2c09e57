// Package types provides domain models shared across adjudicator components:
// condition trees, rules and version snapshots, execution traces, context
// values, typed IDs, and the error taxonomy. It carries no persistence or
// transport dependencies so the evaluator stays embeddable.
package types

// RuleType categorizes what stage of claim processing a rule participates in.
type RuleType string

const (
	RuleTypeValidation   RuleType = "validation"
	RuleTypeAdjudication RuleType = "adjudication"
	RuleTypeCalculation  RuleType = "calculation"
	RuleTypeNotification RuleType = "notification"
)

// Valid reports whether the rule type is one of the known categories.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeValidation, RuleTypeAdjudication, RuleTypeCalculation, RuleTypeNotification:
		return true
	}
	return false
}

// ActionType is the action a rule takes when its condition matches.
type ActionType string

const (
	ActionApprove   ActionType = "approve"
	ActionDeny      ActionType = "deny"
	ActionFlag      ActionType = "flag"
	ActionCalculate ActionType = "calculate"
	ActionNotify    ActionType = "notify"
	ActionTransform ActionType = "transform"
)

// Valid reports whether the action type is one of the known actions.
func (a ActionType) Valid() bool {
	switch a {
	case ActionApprove, ActionDeny, ActionFlag, ActionCalculate, ActionNotify, ActionTransform:
		return true
	}
	return false
}

// Outcome is the final automated decision for one pipeline run.
// The zero value means no automated decision was reached (manual review).
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeApprove Outcome = "approve"
	OutcomeDeny    Outcome = "deny"
	OutcomeFlag    Outcome = "flag"
)

// Resource limits enforced by the engine to keep evaluation bounded.
const (
	// MaxConditionDepth bounds condition tree recursion. Trees deeper than
	// this fail evaluation with an EvaluationError rather than exhausting
	// the stack on malformed or malicious input.
	MaxConditionDepth = 32

	// MaxInValues limits IN operator list size to keep membership checks
	// from degrading to quadratic cost across a rule set.
	MaxInValues = 256

	// DefaultPriority is assigned to rules created without an explicit
	// priority. Lower numbers evaluate first.
	DefaultPriority = 100
)
