// Package store persists rules and their append-only version history.
//
// Two implementations: a SQL store (sqlite for development, postgres for
// production) and an in-memory store used by tests and embedded callers.
// Both enforce the same contract: rule codes are unique, version numbers are
// gapless and strictly increasing per rule, and mutations are optimistic
// read-modify-writes that fail with ErrConcurrentModification instead of
// silently overwriting a concurrent writer.
package store

import (
	"context"
	"time"

	"github.com/meridianhealth/adjudicator/internal/types"
)

// ListFilter narrows and pages List results. Nil pointer fields mean
// "no filter". Page is 1-based.
type ListFilter struct {
	Type     *types.RuleType
	Active   *bool
	Category string
	Page     int
	PageSize int
}

// RuleStore is the persistence contract consumed by the lifecycle manager
// and the rule catalog.
type RuleStore interface {
	// Create inserts a rule together with its initial version snapshot in
	// one atomic write. Returns ErrDuplicateCode if the code is taken.
	Create(ctx context.Context, rule *types.Rule, initial *types.RuleVersion) error

	// Get returns the rule by ID, or ErrNotFound.
	Get(ctx context.Context, id types.RuleID) (*types.Rule, error)

	// GetByCode returns the rule by its unique code, or ErrNotFound.
	GetByCode(ctx context.Context, code string) (*types.Rule, error)

	// List returns a filtered, paginated page of rules plus the total count
	// matching the filter. Ordered by (priority, code) for determinism.
	List(ctx context.Context, filter ListFilter) ([]*types.Rule, int, error)

	// Update writes the rule's new content and appends the version snapshot
	// atomically. expectedVersion is the CurrentVersion the caller read;
	// if another writer got there first the update fails with
	// ErrConcurrentModification and no state changes. The active flag is
	// not written: SetActive owns it, so a content update working from a
	// stale read cannot revert a concurrent deactivation.
	Update(ctx context.Context, rule *types.Rule, expectedVersion int, snapshot *types.RuleVersion) error

	// SetActive toggles execution eligibility without touching rule content
	// or version history.
	SetActive(ctx context.Context, id types.RuleID, active bool, modifiedBy string, now time.Time) error

	// Versions returns all version snapshots for a rule, newest first.
	Versions(ctx context.Context, id types.RuleID) ([]*types.RuleVersion, error)

	// Version returns one snapshot by number, or ErrVersionNotFound.
	Version(ctx context.Context, id types.RuleID, versionNumber int) (*types.RuleVersion, error)

	// ActiveRules returns rules eligible for execution at asOf, optionally
	// filtered by type, ordered ascending by (priority, code). This ordering
	// is the sole source of execution order.
	ActiveRules(ctx context.Context, asOf time.Time, ruleType *types.RuleType) ([]*types.Rule, error)

	// CountByCodePrefix counts rules whose code starts with prefix.
	// Used for auto-generated rule codes.
	CountByCodePrefix(ctx context.Context, prefix string) (int, error)
}
