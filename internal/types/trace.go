package types

import "time"

// NodeTrace mirrors a ConditionNode with each node's boolean result.
// AND/OR traces carry one child trace per declared child even when an early
// child already determines the parent result; completeness of the trace is
// the point, not speed.
type NodeTrace struct {
	Kind     NodeKind    `json:"kind"`
	Field    string      `json:"field,omitempty"`
	Op       CompareOp   `json:"op,omitempty"`
	Matched  bool        `json:"matched"`
	Note     string      `json:"note,omitempty"`
	Children []NodeTrace `json:"children,omitempty"`
}

// RuleEvaluation records one rule's outcome within a pipeline run.
// Error is set when evaluation of this rule failed (e.g. depth exceeded);
// the rest of the run is unaffected.
type RuleEvaluation struct {
	RuleID      RuleID     `json:"rule_id"`
	RuleCode    string     `json:"rule_code"`
	RuleVersion int        `json:"rule_version"`
	Matched     bool       `json:"matched"`
	ActionTaken ActionType `json:"action_taken,omitempty"`
	Message     string     `json:"message,omitempty"`
	Nodes       *NodeTrace `json:"nodes,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationUS  int64      `json:"duration_us"`
}

// ExecutionTrace is the complete, ordered record of one adjudication run.
// The engine hands it to the audit emitter and then forgets it; durable
// storage belongs to the emitter.
type ExecutionTrace struct {
	TraceID      TraceID          `json:"trace_id"`
	ClaimRef     string           `json:"claim_ref"`
	AsOf         time.Time        `json:"as_of"`
	RuleType     RuleType         `json:"rule_type,omitempty"`
	Evaluations  []RuleEvaluation `json:"evaluations"`
	MatchedCount int              `json:"rules_matched_count"`
	FinalOutcome Outcome          `json:"final_outcome,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	DurationUS   int64            `json:"total_duration_us"`
}

// MatchedEvaluations returns the evaluations whose rule matched, in
// execution order.
func (t *ExecutionTrace) MatchedEvaluations() []RuleEvaluation {
	var matched []RuleEvaluation
	for _, ev := range t.Evaluations {
		if ev.Matched {
			matched = append(matched, ev)
		}
	}
	return matched
}
