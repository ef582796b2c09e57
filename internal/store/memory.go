package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meridianhealth/adjudicator/internal/types"
)

// MemoryStore implements RuleStore with an in-process map. Used by tests and
// by embedded callers that load a fixed rule set at startup. Implements the
// same optimistic concurrency contract as the SQL store so lifecycle
// properties can be verified without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	rules    map[types.RuleID]*types.Rule
	byCode   map[string]types.RuleID
	versions map[types.RuleID][]*types.RuleVersion
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:    make(map[types.RuleID]*types.Rule),
		byCode:   make(map[string]types.RuleID),
		versions: make(map[types.RuleID][]*types.RuleVersion),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rule *types.Rule, initial *types.RuleVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[rule.Code]; exists {
		return types.ErrDuplicateCode
	}

	stored := cloneRule(rule)
	s.rules[rule.ID] = stored
	s.byCode[rule.Code] = rule.ID
	s.versions[rule.ID] = []*types.RuleVersion{cloneVersion(initial)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cloneRule(rule), nil
}

func (s *MemoryStore) GetByCode(ctx context.Context, code string) (*types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cloneRule(s.rules[id]), nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*types.Rule, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*types.Rule
	for _, rule := range s.rules {
		if filter.Type != nil && rule.Type != *filter.Type {
			continue
		}
		if filter.Active != nil && rule.Active != *filter.Active {
			continue
		}
		if filter.Category != "" && rule.Category != filter.Category {
			continue
		}
		matched = append(matched, cloneRule(rule))
	}
	sortRules(matched)

	total := len(matched)
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		return matched, total, nil
	}
	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) Update(ctx context.Context, rule *types.Rule, expectedVersion int, snapshot *types.RuleVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[rule.ID]
	if !ok {
		return types.ErrNotFound
	}
	if existing.CurrentVersion != expectedVersion {
		return types.ErrConcurrentModification
	}

	stored := cloneRule(rule)
	// Code never changes after creation and SetActive owns the active flag;
	// neither is writable through Update.
	stored.Code = existing.Code
	stored.Active = existing.Active
	s.rules[rule.ID] = stored
	s.versions[rule.ID] = append(s.versions[rule.ID], cloneVersion(snapshot))
	return nil
}

func (s *MemoryStore) SetActive(ctx context.Context, id types.RuleID, active bool, modifiedBy string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return types.ErrNotFound
	}
	rule.Active = active
	rule.LastModifiedBy = modifiedBy
	rule.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Versions(ctx context.Context, id types.RuleID) ([]*types.RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rules[id]; !ok {
		return nil, types.ErrNotFound
	}
	versions := s.versions[id]
	out := make([]*types.RuleVersion, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		out = append(out, cloneVersion(versions[i]))
	}
	return out, nil
}

func (s *MemoryStore) Version(ctx context.Context, id types.RuleID, versionNumber int) (*types.RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versions[id] {
		if v.VersionNumber == versionNumber {
			return cloneVersion(v), nil
		}
	}
	return nil, types.ErrVersionNotFound
}

func (s *MemoryStore) ActiveRules(ctx context.Context, asOf time.Time, ruleType *types.RuleType) ([]*types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*types.Rule
	for _, rule := range s.rules {
		if !rule.EffectiveAt(asOf) {
			continue
		}
		if ruleType != nil && rule.Type != *ruleType {
			continue
		}
		active = append(active, cloneRule(rule))
	}
	sortRules(active)
	return active, nil
}

func (s *MemoryStore) CountByCodePrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for code := range s.byCode {
		if strings.HasPrefix(code, prefix) {
			count++
		}
	}
	return count, nil
}

// sortRules orders by (priority asc, code asc), the execution order contract.
func sortRules(rules []*types.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].Code < rules[j].Code
	})
}

// cloneRule copies a rule so callers can never mutate stored state.
// Condition trees are value types; only slices and pointers need copying.
func cloneRule(r *types.Rule) *types.Rule {
	c := *r
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	if r.EffectiveFrom != nil {
		t := *r.EffectiveFrom
		c.EffectiveFrom = &t
	}
	if r.EffectiveTo != nil {
		t := *r.EffectiveTo
		c.EffectiveTo = &t
	}
	c.Condition = cloneNode(r.Condition)
	return &c
}

func cloneVersion(v *types.RuleVersion) *types.RuleVersion {
	c := *v
	if v.Tags != nil {
		c.Tags = append([]string(nil), v.Tags...)
	}
	if v.EffectiveFrom != nil {
		t := *v.EffectiveFrom
		c.EffectiveFrom = &t
	}
	if v.EffectiveTo != nil {
		t := *v.EffectiveTo
		c.EffectiveTo = &t
	}
	c.Condition = cloneNode(v.Condition)
	return &c
}

func cloneNode(n types.ConditionNode) types.ConditionNode {
	c := n
	if n.Children != nil {
		c.Children = make([]types.ConditionNode, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = cloneNode(child)
		}
	}
	if n.Value.Items != nil {
		c.Value.Items = append([]types.Value(nil), n.Value.Items...)
	}
	return c
}
