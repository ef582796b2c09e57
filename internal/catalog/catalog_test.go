package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhealth/adjudicator/internal/store"
	"github.com/meridianhealth/adjudicator/internal/types"
)

func seedActiveRule(t *testing.T, st *store.MemoryStore, code string, ruleType types.RuleType, priority int) *types.Rule {
	t.Helper()
	rule := &types.Rule{
		ID:             types.NewRuleID(),
		Code:           code,
		Name:           "rule " + code,
		Type:           ruleType,
		Action:         types.ActionDeny,
		Condition:      types.Comparison("claim_amount", types.OpGreaterThan, types.Number(100)),
		Priority:       priority,
		Active:         true,
		CurrentVersion: 1,
	}
	initial := rule.Snapshot("Initial version", "seed")
	initial.VersionNumber = 1
	require.NoError(t, st.Create(context.Background(), rule, initial))
	return rule
}

func TestStoreCatalog_OrderedByPriorityThenCode(t *testing.T) {
	st := store.NewMemoryStore()
	seedActiveRule(t, st, "ADJ-0002", types.RuleTypeAdjudication, 10)
	seedActiveRule(t, st, "ADJ-0001", types.RuleTypeAdjudication, 10)
	seedActiveRule(t, st, "VAL-0001", types.RuleTypeValidation, 5)

	cat := NewStoreCatalog(st)
	rules, err := cat.ActiveRules(context.Background(), time.Now(), nil)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "VAL-0001", rules[0].Code)
	assert.Equal(t, "ADJ-0001", rules[1].Code)
	assert.Equal(t, "ADJ-0002", rules[2].Code)
}

type failingStore struct {
	store.RuleStore
}

func (f *failingStore) ActiveRules(ctx context.Context, asOf time.Time, ruleType *types.RuleType) ([]*types.Rule, error) {
	return nil, errors.New("connection refused")
}

func TestStoreCatalog_FailureWrapsCatalogUnavailable(t *testing.T) {
	cat := NewStoreCatalog(&failingStore{})

	_, err := cat.ActiveRules(context.Background(), time.Now(), nil)
	assert.ErrorIs(t, err, types.ErrCatalogUnavailable)
}
