// Package pipeline runs a claim through the active rule set and produces a
// final outcome plus a complete execution trace.
//
// One Execute call is one adjudication run. The pipeline evaluates every
// active rule in catalog order, collects matches, and derives the final
// outcome by action precedence (DENY > FLAG > APPROVE), not by rule
// priority: a low-priority DENY still denies. No automated decision is
// reached when nothing matches; the claim defers to manual review.
//
// Failure semantics: a single rule's evaluation error is recorded on that
// rule's trace entry and the run continues. Only a catalog fetch failure
// aborts the run, and then no trace is emitted at all: audit records are
// all-or-nothing.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhealth/adjudicator/internal/catalog"
	"github.com/meridianhealth/adjudicator/internal/rules"
	"github.com/meridianhealth/adjudicator/internal/types"
)

// ClaimContextProvider supplies the flat field view of a claim. How claim
// fields are loaded or decrypted is the provider's business.
type ClaimContextProvider interface {
	ClaimContext(ctx context.Context, claimRef string) (map[string]types.Value, error)
}

// AuditEmitter receives one structured record per completed pipeline run.
// Fire-and-forget from the pipeline's perspective: delivery and durability
// are the emitter's responsibility.
type AuditEmitter interface {
	Record(trace *types.ExecutionTrace)
}

// Pipeline orchestrates catalog, evaluator, and audit emission for one claim.
// Safe for concurrent use: executions share no mutable state.
type Pipeline struct {
	catalog  catalog.Catalog
	provider ClaimContextProvider
	emitter  AuditEmitter
	log      *zap.Logger
	now      func() time.Time
}

// New creates a pipeline. provider and emitter may be nil: a nil provider
// limits callers to Execute with an explicit context, a nil emitter skips
// audit emission.
func New(cat catalog.Catalog, provider ClaimContextProvider, emitter AuditEmitter, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		catalog:  cat,
		provider: provider,
		emitter:  emitter,
		log:      log,
		now:      time.Now,
	}
}

// ExecuteClaim loads the claim context through the injected provider and
// runs Execute.
func (p *Pipeline) ExecuteClaim(ctx context.Context, claimRef string, asOf time.Time, ruleType *types.RuleType) (*types.ExecutionTrace, error) {
	claimCtx, err := p.provider.ClaimContext(ctx, claimRef)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, claimRef, claimCtx, asOf, ruleType)
}

// Execute runs one claim context through the active rule set as of the
// given instant. On success the returned trace is complete, one entry per
// evaluated rule even for zero-match runs, and has been handed to the
// audit emitter. On catalog failure or cancellation no trace exists anywhere.
func (p *Pipeline) Execute(ctx context.Context, claimRef string, claimCtx map[string]types.Value, asOf time.Time, ruleType *types.RuleType) (*types.ExecutionTrace, error) {
	activeRules, err := p.catalog.ActiveRules(ctx, asOf, ruleType)
	if err != nil {
		// No partial trace: the claim is "not adjudicated", not "adjudicated against nothing".
		return nil, err
	}

	started := p.now()
	trace := &types.ExecutionTrace{
		TraceID:     types.NewTraceID(),
		ClaimRef:    claimRef,
		AsOf:        asOf,
		StartedAt:   started,
		Evaluations: make([]types.RuleEvaluation, 0, len(activeRules)),
	}
	if ruleType != nil {
		trace.RuleType = *ruleType
	}

	for _, rule := range activeRules {
		// Abandoned executions emit nothing; audit records are all-or-nothing.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trace.Evaluations = append(trace.Evaluations, p.evaluateRule(rule, claimCtx))
	}

	for _, ev := range trace.Evaluations {
		if ev.Matched {
			trace.MatchedCount++
		}
	}
	trace.FinalOutcome = resolveOutcome(trace.Evaluations)
	trace.DurationUS = p.now().Sub(started).Microseconds()

	if p.emitter != nil {
		p.emitter.Record(trace)
	}

	p.log.Debug("claim executed",
		zap.String("claim_ref", claimRef),
		zap.String("trace_id", string(trace.TraceID)),
		zap.Int("rules_evaluated", len(trace.Evaluations)),
		zap.Int("rules_matched", trace.MatchedCount),
		zap.String("final_outcome", string(trace.FinalOutcome)),
	)
	return trace, nil
}

// evaluateRule runs one rule's condition and builds its trace entry.
// Evaluation errors are absorbed here: they mark this entry and nothing else.
func (p *Pipeline) evaluateRule(rule *types.Rule, claimCtx map[string]types.Value) types.RuleEvaluation {
	entry := types.RuleEvaluation{
		RuleID:      rule.ID,
		RuleCode:    rule.Code,
		RuleVersion: rule.CurrentVersion,
	}

	started := p.now()
	nodeTrace, err := rules.Evaluate(rule.Condition, claimCtx)
	entry.DurationUS = p.now().Sub(started).Microseconds()

	if err != nil {
		entry.Error = err.Error()
		return entry
	}

	entry.Nodes = &nodeTrace
	entry.Matched = nodeTrace.Matched
	if entry.Matched {
		entry.ActionTaken = rule.Action
		switch rule.Action {
		case types.ActionDeny:
			entry.Message = rule.DenialMessage
		case types.ActionFlag:
			entry.Message = rule.FlagMessage
		}
	}
	return entry
}

// resolveOutcome derives the final outcome from matched actions by strict
// precedence DENY > FLAG > APPROVE. The order rules happened to run in
// never weakens a denial. Non-decision actions (calculate, notify,
// transform) contribute no outcome.
func resolveOutcome(evaluations []types.RuleEvaluation) types.Outcome {
	outcome := types.OutcomeNone
	for _, ev := range evaluations {
		if !ev.Matched {
			continue
		}
		switch ev.ActionTaken {
		case types.ActionDeny:
			return types.OutcomeDeny
		case types.ActionFlag:
			outcome = types.OutcomeFlag
		case types.ActionApprove:
			if outcome != types.OutcomeFlag {
				outcome = types.OutcomeApprove
			}
		}
	}
	return outcome
}
