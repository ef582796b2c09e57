package types

import "time"

// Rule is a named, typed, prioritized condition plus the action taken when
// it matches. The ID is stable across versions; Code is unique and immutable
// after creation. Rules are never hard-deleted: Active=false retires a rule
// from execution while its row and full version history persist for audit.
type Rule struct {
	ID             RuleID        `json:"id"`
	Code           string        `json:"code"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Type           RuleType      `json:"type"`
	Action         ActionType    `json:"action"`
	Condition      ConditionNode `json:"condition"`
	Priority       int           `json:"priority"`
	Active         bool          `json:"active"`
	EffectiveFrom  *time.Time    `json:"effective_from,omitempty"`
	EffectiveTo    *time.Time    `json:"effective_to,omitempty"`
	DenialMessage  string        `json:"denial_message,omitempty"`
	FlagMessage    string        `json:"flag_message,omitempty"`
	Category       string        `json:"category,omitempty"`
	Tags           []string      `json:"tags,omitempty"`
	CurrentVersion int           `json:"current_version"`
	CreatedBy      string        `json:"created_by,omitempty"`
	LastModifiedBy string        `json:"last_modified_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// EffectiveAt reports whether the rule participates in execution at the
// given instant: active and inside the optional effective window.
func (r *Rule) EffectiveAt(asOf time.Time) bool {
	if !r.Active {
		return false
	}
	if r.EffectiveFrom != nil && r.EffectiveFrom.After(asOf) {
		return false
	}
	if r.EffectiveTo != nil && r.EffectiveTo.Before(asOf) {
		return false
	}
	return true
}

// RuleVersion is an immutable snapshot of a rule's defining fields at the
// time of one mutation. Version numbers are gapless and strictly increasing
// per rule; no version is ever edited or removed.
type RuleVersion struct {
	ID                VersionID     `json:"id"`
	RuleID            RuleID        `json:"rule_id"`
	VersionNumber     int           `json:"version_number"`
	Name              string        `json:"name"`
	Description       string        `json:"description,omitempty"`
	Type              RuleType      `json:"type"`
	Action            ActionType    `json:"action"`
	Condition         ConditionNode `json:"condition"`
	Priority          int           `json:"priority"`
	EffectiveFrom     *time.Time    `json:"effective_from,omitempty"`
	EffectiveTo       *time.Time    `json:"effective_to,omitempty"`
	DenialMessage     string        `json:"denial_message,omitempty"`
	FlagMessage       string        `json:"flag_message,omitempty"`
	Category          string        `json:"category,omitempty"`
	Tags              []string      `json:"tags,omitempty"`
	ChangeDescription string        `json:"change_description,omitempty"`
	CreatedBy         string        `json:"created_by,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Snapshot captures the rule's current defining fields as a version record.
// The caller assigns VersionNumber and CreatedAt.
func (r *Rule) Snapshot(changeDescription, createdBy string) *RuleVersion {
	return &RuleVersion{
		ID:                NewVersionID(),
		RuleID:            r.ID,
		Name:              r.Name,
		Description:       r.Description,
		Type:              r.Type,
		Action:            r.Action,
		Condition:         r.Condition,
		Priority:          r.Priority,
		EffectiveFrom:     r.EffectiveFrom,
		EffectiveTo:       r.EffectiveTo,
		DenialMessage:     r.DenialMessage,
		FlagMessage:       r.FlagMessage,
		Category:          r.Category,
		Tags:              r.Tags,
		ChangeDescription: changeDescription,
		CreatedBy:         createdBy,
	}
}
