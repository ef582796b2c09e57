// Package catalog answers "which rules participate in execution at time T".
//
// The catalog is the execution pipeline's only view of the rule set. It
// filters to active rules inside their effective window and returns them
// ordered ascending by (priority, code); the pipeline never re-sorts.
// A store failure here is fatal to a pipeline run, so it surfaces as
// ErrCatalogUnavailable rather than a bare driver error.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianhealth/adjudicator/internal/store"
	"github.com/meridianhealth/adjudicator/internal/types"
)

// Catalog supplies the ordered active rule set for one execution.
type Catalog interface {
	ActiveRules(ctx context.Context, asOf time.Time, ruleType *types.RuleType) ([]*types.Rule, error)
}

// StoreCatalog reads directly from the rule store.
type StoreCatalog struct {
	store store.RuleStore
}

// NewStoreCatalog creates a catalog over the given store.
func NewStoreCatalog(st store.RuleStore) *StoreCatalog {
	return &StoreCatalog{store: st}
}

// ActiveRules returns rules with active=true whose effective window contains
// asOf, optionally filtered by type, ordered by (priority, code).
func (c *StoreCatalog) ActiveRules(ctx context.Context, asOf time.Time, ruleType *types.RuleType) ([]*types.Rule, error) {
	rules, err := c.store.ActiveRules(ctx, asOf, ruleType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCatalogUnavailable, err)
	}
	return rules, nil
}
