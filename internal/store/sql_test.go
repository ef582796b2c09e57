package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhealth/adjudicator/internal/core/db"
	"github.com/meridianhealth/adjudicator/internal/types"
)

// newSQLiteStore migrates a throwaway sqlite database and returns a store
// over it. Exercises the same embedded migrations and named queries that
// production runs.
func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rules.db")
	conn, err := db.Open("sqlite://" + path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.MigrateUp(conn))

	queries, err := db.LoadQueries(conn)
	require.NoError(t, err)
	return NewSQLStore(queries)
}

func sqlSeedRule(code string, ruleType types.RuleType, priority int) (*types.Rule, *types.RuleVersion) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rule := &types.Rule{
		ID:             types.NewRuleID(),
		Code:           code,
		Name:           "rule " + code,
		Description:    "seeded for tests",
		Type:           ruleType,
		Action:         types.ActionDeny,
		Condition: types.And(
			types.Comparison("claim_amount", types.OpGreaterThan, types.Number(100)),
			types.Comparison("procedure_code", types.OpIn, types.List(types.Text("99213"), types.Text("99214"))),
		),
		Priority:       priority,
		Active:         true,
		DenialMessage:  "exceeds limit",
		Category:       "financial",
		Tags:           []string{"seed"},
		CurrentVersion: 1,
		CreatedBy:      "seed",
		LastModifiedBy: "seed",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	initial := rule.Snapshot("Initial version", "seed")
	initial.VersionNumber = 1
	initial.CreatedAt = now
	return rule, initial
}

func TestSQLStore_CreateGetRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	rule, initial := sqlSeedRule("ADJ-0001", types.RuleTypeAdjudication, 10)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rule.EffectiveFrom = &from
	initial.EffectiveFrom = &from
	require.NoError(t, s.Create(ctx, rule, initial))

	got, err := s.Get(ctx, rule.ID)
	require.NoError(t, err)

	assert.Equal(t, rule.Code, got.Code)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, rule.Type, got.Type)
	assert.Equal(t, rule.Action, got.Action)
	assert.Equal(t, rule.Condition, got.Condition)
	assert.Equal(t, rule.Priority, got.Priority)
	assert.True(t, got.Active)
	require.NotNil(t, got.EffectiveFrom)
	assert.True(t, got.EffectiveFrom.Equal(from))
	assert.Nil(t, got.EffectiveTo)
	assert.Equal(t, rule.Tags, got.Tags)
	assert.Equal(t, 1, got.CurrentVersion)
	assert.True(t, got.CreatedAt.Equal(rule.CreatedAt))

	byCode, err := s.GetByCode(ctx, "ADJ-0001")
	require.NoError(t, err)
	assert.Equal(t, rule.ID, byCode.ID)

	_, err = s.Get(ctx, types.NewRuleID())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSQLStore_DuplicateCode(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	rule, initial := sqlSeedRule("ADJ-0001", types.RuleTypeAdjudication, 10)
	require.NoError(t, s.Create(ctx, rule, initial))

	dup, dupInitial := sqlSeedRule("ADJ-0001", types.RuleTypeAdjudication, 20)
	assert.ErrorIs(t, s.Create(ctx, dup, dupInitial), types.ErrDuplicateCode)
}

func TestSQLStore_UpdateOptimisticLock(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	rule, initial := sqlSeedRule("ADJ-0001", types.RuleTypeAdjudication, 10)
	require.NoError(t, s.Create(ctx, rule, initial))

	next := *rule
	next.Name = "updated"
	next.CurrentVersion = 2
	snap := next.Snapshot("update", "writer")
	snap.VersionNumber = 2
	snap.CreatedAt = time.Now()
	require.NoError(t, s.Update(ctx, &next, 1, snap))

	// The same expected version again: another writer already advanced it.
	again := next
	again.CurrentVersion = 2
	againSnap := again.Snapshot("stale", "writer")
	againSnap.VersionNumber = 2
	againSnap.CreatedAt = time.Now()
	assert.ErrorIs(t, s.Update(ctx, &again, 1, againSnap), types.ErrConcurrentModification)

	missing, _ := sqlSeedRule("ADJ-0002", types.RuleTypeAdjudication, 10)
	missingSnap := missing.Snapshot("x", "w")
	missingSnap.VersionNumber = 2
	missingSnap.CreatedAt = time.Now()
	assert.ErrorIs(t, s.Update(ctx, missing, 1, missingSnap), types.ErrNotFound)

	got, err := s.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Name)
	assert.Equal(t, 2, got.CurrentVersion)
}

func TestSQLStore_UpdatePreservesActiveFlag(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	rule, initial := sqlSeedRule("ADJ-0001", types.RuleTypeAdjudication, 10)
	require.NoError(t, s.Create(ctx, rule, initial))
	require.NoError(t, s.SetActive(ctx, rule.ID, false, "compliance", time.Now()))

	// An update prepared from a read taken before the deactivation still
	// carries Active=true; the store must not write it back.
	next := *rule
	next.Name = "updated"
	next.CurrentVersion = 2
	snap := next.Snapshot("update", "writer")
	snap.VersionNumber = 2
	snap.CreatedAt = time.Now()
	require.NoError(t, s.Update(ctx, &next, 1, snap))

	got, err := s.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Name)
	assert.False(t, got.Active)
}

func TestSQLStore_VersionHistory(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	rule, initial := sqlSeedRule("ADJ-0001", types.RuleTypeAdjudication, 10)
	require.NoError(t, s.Create(ctx, rule, initial))

	next := *rule
	next.Name = "v2"
	next.CurrentVersion = 2
	snap := next.Snapshot("second", "writer")
	snap.VersionNumber = 2
	snap.CreatedAt = time.Now()
	require.NoError(t, s.Update(ctx, &next, 1, snap))

	versions, err := s.Versions(ctx, rule.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].VersionNumber)
	assert.Equal(t, "v2", versions[0].Name)
	assert.Equal(t, "second", versions[0].ChangeDescription)
	assert.Equal(t, 1, versions[1].VersionNumber)

	v1, err := s.Version(ctx, rule.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "rule ADJ-0001", v1.Name)
	assert.Equal(t, rule.Condition, v1.Condition)

	_, err = s.Version(ctx, rule.ID, 42)
	assert.ErrorIs(t, err, types.ErrVersionNotFound)

	_, err = s.Versions(ctx, types.NewRuleID())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSQLStore_SetActive(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	rule, initial := sqlSeedRule("ADJ-0001", types.RuleTypeAdjudication, 10)
	require.NoError(t, s.Create(ctx, rule, initial))

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetActive(ctx, rule.ID, false, "auditor", now))

	got, err := s.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "auditor", got.LastModifiedBy)
	assert.Equal(t, 1, got.CurrentVersion)

	versions, err := s.Versions(ctx, rule.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1, "toggles must not snapshot")

	assert.ErrorIs(t, s.SetActive(ctx, types.NewRuleID(), false, "auditor", now), types.ErrNotFound)
}

func TestSQLStore_ActiveRulesWindowAndOrder(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	current, currentInitial := sqlSeedRule("ADJ-0002", types.RuleTypeAdjudication, 10)
	current.EffectiveFrom = &past
	require.NoError(t, s.Create(ctx, current, currentInitial))

	samePriority, samePriorityInitial := sqlSeedRule("ADJ-0001", types.RuleTypeAdjudication, 10)
	require.NoError(t, s.Create(ctx, samePriority, samePriorityInitial))

	expired, expiredInitial := sqlSeedRule("ADJ-0003", types.RuleTypeAdjudication, 1)
	expired.EffectiveTo = &past
	require.NoError(t, s.Create(ctx, expired, expiredInitial))

	notYet, notYetInitial := sqlSeedRule("ADJ-0004", types.RuleTypeAdjudication, 1)
	notYet.EffectiveFrom = &future
	require.NoError(t, s.Create(ctx, notYet, notYetInitial))

	validation, validationInitial := sqlSeedRule("VAL-0001", types.RuleTypeValidation, 1)
	require.NoError(t, s.Create(ctx, validation, validationInitial))

	all, err := s.ActiveRules(ctx, asOf, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "VAL-0001", all[0].Code)
	assert.Equal(t, "ADJ-0001", all[1].Code)
	assert.Equal(t, "ADJ-0002", all[2].Code)

	adjType := types.RuleTypeAdjudication
	onlyAdj, err := s.ActiveRules(ctx, asOf, &adjType)
	require.NoError(t, err)
	require.Len(t, onlyAdj, 2)
	assert.Equal(t, "ADJ-0001", onlyAdj[0].Code)
}

func TestSQLStore_ListFiltersAndPagination(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	adjActive, i1 := sqlSeedRule("ADJ-0001", types.RuleTypeAdjudication, 30)
	require.NoError(t, s.Create(ctx, adjActive, i1))

	adjInactive, i2 := sqlSeedRule("ADJ-0002", types.RuleTypeAdjudication, 10)
	adjInactive.Active = false
	require.NoError(t, s.Create(ctx, adjInactive, i2))

	val, i3 := sqlSeedRule("VAL-0001", types.RuleTypeValidation, 20)
	val.Category = "eligibility"
	require.NoError(t, s.Create(ctx, val, i3))

	all, total, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "ADJ-0002", all[0].Code)

	active := true
	adjType := types.RuleTypeAdjudication
	filtered, total, err := s.List(ctx, ListFilter{Type: &adjType, Active: &active})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "ADJ-0001", filtered[0].Code)

	byCategory, total, err := s.List(ctx, ListFilter{Category: "eligibility"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "VAL-0001", byCategory[0].Code)

	page, total, err := s.List(ctx, ListFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "ADJ-0001", page[0].Code)
}

func TestSQLStore_CountByCodePrefix(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for _, code := range []string{"ADJ-0001", "ADJ-0002", "VAL-0001"} {
		rule, initial := sqlSeedRule(code, types.RuleTypeAdjudication, 10)
		require.NoError(t, s.Create(ctx, rule, initial))
	}

	n, err := s.CountByCodePrefix(ctx, "ADJ-")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
