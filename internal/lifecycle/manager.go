// Package lifecycle manages rule creation, versioned mutation, rollback, and
// retirement.
//
// Every content mutation appends an immutable RuleVersion snapshot of the
// post-mutation state; history is never edited in place. Mutations are
// optimistic read-modify-writes: when two writers race on the same rule, one
// wins and the other gets ErrConcurrentModification to retry against the new
// state. Version numbers therefore stay gapless and unique per rule.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhealth/adjudicator/internal/rules"
	"github.com/meridianhealth/adjudicator/internal/store"
	"github.com/meridianhealth/adjudicator/internal/types"
)

// Invalidator drops cached rule sets after a mutation. The catalog cache
// implements it; a nil invalidator is a no-op for cacheless deployments.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Manager owns rule lifecycle operations on top of a RuleStore.
type Manager struct {
	store store.RuleStore
	cache Invalidator
	log   *zap.Logger
	now   func() time.Time
}

// NewManager creates a lifecycle manager. cache may be nil; log may be nil.
func NewManager(st store.RuleStore, cache Invalidator, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store: st,
		cache: cache,
		log:   log,
		now:   time.Now,
	}
}

// CreateInput defines a new rule. Code is optional: when empty, a unique
// code is generated from the rule type prefix (VAL-0001, ADJ-0002, ...).
type CreateInput struct {
	Code          string
	Name          string
	Description   string
	Type          types.RuleType
	Action        types.ActionType
	Condition     types.ConditionNode
	Priority      *int
	Active        *bool
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	DenialMessage string
	FlagMessage   string
	Category      string
	Tags          []string
}

// UpdateInput is a partial patch: nil fields are left unchanged.
// Rule code is immutable and deliberately absent. The active flag is also
// absent: activation is a lifecycle transition owned by SetActive, and
// letting content updates carry it would allow a stale read to silently
// revert a concurrent deactivation.
type UpdateInput struct {
	Name          *string
	Description   *string
	Type          *types.RuleType
	Action        *types.ActionType
	Condition     *types.ConditionNode
	Priority      *int
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	DenialMessage *string
	FlagMessage   *string
	Category      *string
	Tags          []string
}

// Create validates and persists a new rule at version 1 together with its
// initial version snapshot. Returns ErrDuplicateCode when the code is taken.
func (m *Manager) Create(ctx context.Context, in CreateInput, createdBy string) (*types.Rule, error) {
	if in.Name == "" {
		return nil, errors.New("rule name required")
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("invalid rule type %q", in.Type)
	}
	if !in.Action.Valid() {
		return nil, fmt.Errorf("invalid action type %q", in.Action)
	}
	if err := rules.Validate(in.Condition); err != nil {
		return nil, err
	}

	code := in.Code
	if code == "" {
		generated, err := m.generateCode(ctx, in.Type)
		if err != nil {
			return nil, err
		}
		code = generated
	} else if _, err := m.store.GetByCode(ctx, code); err == nil {
		return nil, types.ErrDuplicateCode
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	now := m.now()
	priority := types.DefaultPriority
	if in.Priority != nil {
		priority = *in.Priority
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	rule := &types.Rule{
		ID:             types.NewRuleID(),
		Code:           code,
		Name:           in.Name,
		Description:    in.Description,
		Type:           in.Type,
		Action:         in.Action,
		Condition:      in.Condition,
		Priority:       priority,
		Active:         active,
		EffectiveFrom:  in.EffectiveFrom,
		EffectiveTo:    in.EffectiveTo,
		DenialMessage:  in.DenialMessage,
		FlagMessage:    in.FlagMessage,
		Category:       in.Category,
		Tags:           in.Tags,
		CurrentVersion: 1,
		CreatedBy:      createdBy,
		LastModifiedBy: createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	initial := rule.Snapshot("Initial version", createdBy)
	initial.VersionNumber = 1
	initial.CreatedAt = now

	if err := m.store.Create(ctx, rule, initial); err != nil {
		return nil, err
	}
	m.invalidate(ctx)

	m.log.Info("rule created",
		zap.String("rule_id", string(rule.ID)),
		zap.String("code", rule.Code),
		zap.String("type", string(rule.Type)),
		zap.String("created_by", createdBy),
	)
	return rule, nil
}

// Update applies a partial patch, bumps the version, and snapshots the
// post-update state. Returns ErrNotFound for unknown rules and
// ErrConcurrentModification when another writer got there first; the caller
// may re-read and retry.
func (m *Manager) Update(ctx context.Context, id types.RuleID, patch UpdateInput, changeDescription, modifiedBy string) (*types.Rule, error) {
	rule, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := rule.CurrentVersion

	applyPatch(rule, patch)
	if err := rules.Validate(rule.Condition); err != nil {
		return nil, err
	}
	if !rule.Type.Valid() {
		return nil, fmt.Errorf("invalid rule type %q", rule.Type)
	}
	if !rule.Action.Valid() {
		return nil, fmt.Errorf("invalid action type %q", rule.Action)
	}

	if changeDescription == "" {
		changeDescription = "Rule updated"
	}
	return m.commit(ctx, rule, expected, changeDescription, modifiedBy)
}

// Rollback restores a rule's mutable fields from a historical version and
// records the restoration as a new forward version. History is append-only:
// rolling back never rewinds or deletes anything. Every snapshotted field is
// restored wholesale, including fields the target had unset: a sunset window
// or tag added later must not survive a rollback to a version without it.
func (m *Manager) Rollback(ctx context.Context, id types.RuleID, targetVersion int, requestedBy string) (*types.Rule, error) {
	rule, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	target, err := m.store.Version(ctx, id, targetVersion)
	if err != nil {
		return nil, err
	}
	expected := rule.CurrentVersion

	rule.Name = target.Name
	rule.Description = target.Description
	rule.Type = target.Type
	rule.Action = target.Action
	rule.Condition = target.Condition
	rule.Priority = target.Priority
	rule.EffectiveFrom = target.EffectiveFrom
	rule.EffectiveTo = target.EffectiveTo
	rule.DenialMessage = target.DenialMessage
	rule.FlagMessage = target.FlagMessage
	rule.Category = target.Category
	rule.Tags = target.Tags

	return m.commit(ctx, rule, expected, fmt.Sprintf("rollback to v%d", targetVersion), requestedBy)
}

// commit bumps the version, snapshots the post-mutation state, and persists
// both under the optimistic version check.
func (m *Manager) commit(ctx context.Context, rule *types.Rule, expected int, changeDescription, modifiedBy string) (*types.Rule, error) {
	now := m.now()
	rule.CurrentVersion = expected + 1
	rule.LastModifiedBy = modifiedBy
	rule.UpdatedAt = now

	snapshot := rule.Snapshot(changeDescription, modifiedBy)
	snapshot.VersionNumber = rule.CurrentVersion
	snapshot.CreatedAt = now

	if err := m.store.Update(ctx, rule, expected, snapshot); err != nil {
		return nil, err
	}
	m.invalidate(ctx)

	m.log.Info("rule updated",
		zap.String("rule_id", string(rule.ID)),
		zap.String("code", rule.Code),
		zap.Int("version", rule.CurrentVersion),
		zap.String("change", changeDescription),
		zap.String("modified_by", modifiedBy),
	)
	// Re-read so the returned rule reflects fields this write does not own,
	// such as the active flag.
	return m.store.Get(ctx, rule.ID)
}

// SetActive toggles execution eligibility. This is a lifecycle transition,
// not a content edit: the rule's condition, priority, and history are
// untouched, so no version snapshot is written. The change is still logged
// for the audit trail.
func (m *Manager) SetActive(ctx context.Context, id types.RuleID, active bool, modifiedBy string) (*types.Rule, error) {
	if err := m.store.SetActive(ctx, id, active, modifiedBy, m.now()); err != nil {
		return nil, err
	}
	m.invalidate(ctx)

	m.log.Info("rule active flag changed",
		zap.String("rule_id", string(id)),
		zap.Bool("active", active),
		zap.String("modified_by", modifiedBy),
	)
	return m.store.Get(ctx, id)
}

// Get returns one rule by ID.
func (m *Manager) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	return m.store.Get(ctx, id)
}

// GetByCode returns one rule by its unique code.
func (m *Manager) GetByCode(ctx context.Context, code string) (*types.Rule, error) {
	return m.store.GetByCode(ctx, code)
}

// List returns a filtered, paginated rule listing plus the total count.
func (m *Manager) List(ctx context.Context, filter store.ListFilter) ([]*types.Rule, int, error) {
	return m.store.List(ctx, filter)
}

// Versions returns a rule's full version history, newest first.
func (m *Manager) Versions(ctx context.Context, id types.RuleID) ([]*types.RuleVersion, error) {
	return m.store.Versions(ctx, id)
}

// generateCode derives a unique human-readable code from the rule type.
func (m *Manager) generateCode(ctx context.Context, t types.RuleType) (string, error) {
	prefix := codePrefix(t)
	count, err := m.store.CountByCodePrefix(ctx, prefix+"-")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}

func codePrefix(t types.RuleType) string {
	switch t {
	case types.RuleTypeValidation:
		return "VAL"
	case types.RuleTypeAdjudication:
		return "ADJ"
	case types.RuleTypeCalculation:
		return "CAL"
	case types.RuleTypeNotification:
		return "NOT"
	default:
		return "RUL"
	}
}

func (m *Manager) invalidate(ctx context.Context) {
	if m.cache != nil {
		m.cache.Invalidate(ctx)
	}
}

func applyPatch(rule *types.Rule, patch UpdateInput) {
	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Description != nil {
		rule.Description = *patch.Description
	}
	if patch.Type != nil {
		rule.Type = *patch.Type
	}
	if patch.Action != nil {
		rule.Action = *patch.Action
	}
	if patch.Condition != nil {
		rule.Condition = *patch.Condition
	}
	if patch.Priority != nil {
		rule.Priority = *patch.Priority
	}
	if patch.EffectiveFrom != nil {
		rule.EffectiveFrom = patch.EffectiveFrom
	}
	if patch.EffectiveTo != nil {
		rule.EffectiveTo = patch.EffectiveTo
	}
	if patch.DenialMessage != nil {
		rule.DenialMessage = *patch.DenialMessage
	}
	if patch.FlagMessage != nil {
		rule.FlagMessage = *patch.FlagMessage
	}
	if patch.Category != nil {
		rule.Category = *patch.Category
	}
	if patch.Tags != nil {
		rule.Tags = patch.Tags
	}
}
