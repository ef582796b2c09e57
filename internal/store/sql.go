package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/meridianhealth/adjudicator/internal/core/db"
	"github.com/meridianhealth/adjudicator/internal/types"
)

/*
 * SQL-backed rule store.
 *
 * Named statements live in internal/core/db/queries/rules.sql; this file owns
 * row mapping and transaction boundaries. Timestamps are stored as RFC3339
 * UTC text in both sqlite and postgres so effective-window comparisons are
 * plain lexicographic string comparisons in SQL.
 *
 * Optimistic concurrency: update-rule carries `AND current_version = ?`.
 * Zero rows affected means another writer won; the (rule_id, version_number)
 * unique constraint on rule_versions backstops the same invariant at the
 * version table. Both paths surface ErrConcurrentModification.
 */

const timeLayout = time.RFC3339

// SQLStore implements RuleStore over sqlite or postgres.
type SQLStore struct {
	q *db.Queries
}

// NewSQLStore creates a store bound to loaded queries.
func NewSQLStore(q *db.Queries) *SQLStore {
	return &SQLStore{q: q}
}

// ruleRow mirrors the rules table.
type ruleRow struct {
	ID             string  `db:"id"`
	Code           string  `db:"code"`
	Name           string  `db:"name"`
	Description    string  `db:"description"`
	RuleType       string  `db:"rule_type"`
	ActionType     string  `db:"action_type"`
	Condition      string  `db:"condition"`
	Priority       int     `db:"priority"`
	IsActive       bool    `db:"is_active"`
	EffectiveFrom  *string `db:"effective_from"`
	EffectiveTo    *string `db:"effective_to"`
	DenialMessage  string  `db:"denial_message"`
	FlagMessage    string  `db:"flag_message"`
	Category       string  `db:"category"`
	Tags           string  `db:"tags"`
	CurrentVersion int     `db:"current_version"`
	CreatedBy      string  `db:"created_by"`
	LastModifiedBy string  `db:"last_modified_by"`
	CreatedAt      string  `db:"created_at"`
	UpdatedAt      string  `db:"updated_at"`
}

// versionRow mirrors the rule_versions table.
type versionRow struct {
	ID                string  `db:"id"`
	RuleID            string  `db:"rule_id"`
	VersionNumber     int     `db:"version_number"`
	Name              string  `db:"name"`
	Description       string  `db:"description"`
	RuleType          string  `db:"rule_type"`
	ActionType        string  `db:"action_type"`
	Condition         string  `db:"condition"`
	Priority          int     `db:"priority"`
	EffectiveFrom     *string `db:"effective_from"`
	EffectiveTo       *string `db:"effective_to"`
	DenialMessage     string  `db:"denial_message"`
	FlagMessage       string  `db:"flag_message"`
	Category          string  `db:"category"`
	Tags              string  `db:"tags"`
	ChangeDescription string  `db:"change_description"`
	CreatedBy         string  `db:"created_by"`
	CreatedAt         string  `db:"created_at"`
}

func (s *SQLStore) Create(ctx context.Context, rule *types.Rule, initial *types.RuleVersion) error {
	tx, err := s.q.DB().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	condition, tags, err := encodeRulePayload(rule.Condition, rule.Tags)
	if err != nil {
		return err
	}

	_, err = s.q.ExecTx(ctx, tx, "insert-rule",
		string(rule.ID), rule.Code, rule.Name, rule.Description,
		string(rule.Type), string(rule.Action), condition,
		rule.Priority, rule.Active,
		encodeTimePtr(rule.EffectiveFrom), encodeTimePtr(rule.EffectiveTo),
		rule.DenialMessage, rule.FlagMessage, rule.Category, tags,
		rule.CurrentVersion, rule.CreatedBy, rule.LastModifiedBy,
		encodeTime(rule.CreatedAt), encodeTime(rule.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrDuplicateCode
		}
		return fmt.Errorf("insert rule: %w", err)
	}

	if err := s.insertVersion(ctx, tx, initial); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var row ruleRow
	if err := s.q.Get(ctx, "get-rule", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return decodeRule(&row)
}

func (s *SQLStore) GetByCode(ctx context.Context, code string) (*types.Rule, error) {
	var row ruleRow
	if err := s.q.Get(ctx, "get-rule-by-code", &row, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("get rule by code: %w", err)
	}
	return decodeRule(&row)
}

// List builds its statement inline: optional filters compose poorly with
// fixed named queries, and the alternative is one query per filter combination.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]*types.Rule, int, error) {
	var where []string
	var args []any

	if filter.Type != nil {
		where = append(where, "rule_type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.Active)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := s.q.DB()
	var total int
	countQuery := conn.Rebind("SELECT COUNT(*) FROM rules" + clause)
	if err := conn.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count rules: %w", err)
	}

	query := "SELECT id, code, name, description, rule_type, action_type, condition," +
		" priority, is_active, effective_from, effective_to," +
		" denial_message, flag_message, category, tags," +
		" current_version, created_by, last_modified_by, created_at, updated_at" +
		" FROM rules" + clause + " ORDER BY priority ASC, code ASC"

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}

	var rows []ruleRow
	if err := conn.SelectContext(ctx, &rows, conn.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list rules: %w", err)
	}

	rules := make([]*types.Rule, 0, len(rows))
	for i := range rows {
		rule, err := decodeRule(&rows[i])
		if err != nil {
			return nil, 0, err
		}
		rules = append(rules, rule)
	}
	return rules, total, nil
}

func (s *SQLStore) Update(ctx context.Context, rule *types.Rule, expectedVersion int, snapshot *types.RuleVersion) error {
	tx, err := s.q.DB().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	condition, tags, err := encodeRulePayload(rule.Condition, rule.Tags)
	if err != nil {
		return err
	}

	res, err := s.q.ExecTx(ctx, tx, "update-rule",
		rule.Name, rule.Description, string(rule.Type), string(rule.Action), condition,
		rule.Priority,
		encodeTimePtr(rule.EffectiveFrom), encodeTimePtr(rule.EffectiveTo),
		rule.DenialMessage, rule.FlagMessage, rule.Category, tags,
		rule.CurrentVersion, rule.LastModifiedBy, encodeTime(rule.UpdatedAt),
		string(rule.ID), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if affected == 0 {
		// Either the rule vanished or another writer advanced the version.
		var row ruleRow
		if err := s.q.GetTx(ctx, tx, "get-rule", &row, string(rule.ID)); errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotFound
		}
		return types.ErrConcurrentModification
	}

	if err := s.insertVersion(ctx, tx, snapshot); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) SetActive(ctx context.Context, id types.RuleID, active bool, modifiedBy string, now time.Time) error {
	res, err := s.q.Exec(ctx, "set-rule-active", active, modifiedBy, encodeTime(now), string(id))
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	if affected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *SQLStore) Versions(ctx context.Context, id types.RuleID) ([]*types.RuleVersion, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	var rows []versionRow
	if err := s.q.Select(ctx, "list-rule-versions", &rows, string(id)); err != nil {
		return nil, fmt.Errorf("list rule versions: %w", err)
	}
	versions := make([]*types.RuleVersion, 0, len(rows))
	for i := range rows {
		v, err := decodeVersion(&rows[i])
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

func (s *SQLStore) Version(ctx context.Context, id types.RuleID, versionNumber int) (*types.RuleVersion, error) {
	var row versionRow
	if err := s.q.Get(ctx, "get-rule-version", &row, string(id), versionNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrVersionNotFound
		}
		return nil, fmt.Errorf("get rule version: %w", err)
	}
	return decodeVersion(&row)
}

func (s *SQLStore) ActiveRules(ctx context.Context, asOf time.Time, ruleType *types.RuleType) ([]*types.Rule, error) {
	at := encodeTime(asOf)
	var rows []ruleRow
	var err error
	if ruleType != nil {
		err = s.q.Select(ctx, "active-rules-by-type", &rows, true, string(*ruleType), at, at)
	} else {
		err = s.q.Select(ctx, "active-rules", &rows, true, at, at)
	}
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}

	rules := make([]*types.Rule, 0, len(rows))
	for i := range rows {
		rule, err := decodeRule(&rows[i])
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *SQLStore) CountByCodePrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	if err := s.q.Get(ctx, "count-rules-by-code-prefix", &count, prefix+"%"); err != nil {
		return 0, fmt.Errorf("count rules by prefix: %w", err)
	}
	return count, nil
}

func (s *SQLStore) insertVersion(ctx context.Context, tx *sqlx.Tx, v *types.RuleVersion) error {
	condition, tags, err := encodeRulePayload(v.Condition, v.Tags)
	if err != nil {
		return err
	}
	_, err = s.q.ExecTx(ctx, tx, "insert-rule-version",
		string(v.ID), string(v.RuleID), v.VersionNumber,
		v.Name, v.Description, string(v.Type), string(v.Action), condition,
		v.Priority, encodeTimePtr(v.EffectiveFrom), encodeTimePtr(v.EffectiveTo),
		v.DenialMessage, v.FlagMessage, v.Category, tags,
		v.ChangeDescription, v.CreatedBy, encodeTime(v.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrConcurrentModification
		}
		return fmt.Errorf("insert rule version: %w", err)
	}
	return nil
}

// isUniqueViolation detects unique constraint errors across both drivers.
// lib/pq exposes a typed error; go-sqlite3's requires cgo type assertions, so
// its stable message prefix is matched instead.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func encodeRulePayload(condition types.ConditionNode, tags []string) (string, string, error) {
	condBytes, err := json.Marshal(condition)
	if err != nil {
		return "", "", fmt.Errorf("encode condition: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	tagBytes, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("encode tags: %w", err)
	}
	return string(condBytes), string(tagBytes), nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func encodeTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := encodeTime(*t)
	return &s
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func decodeTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := decodeTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeRule(row *ruleRow) (*types.Rule, error) {
	var condition types.ConditionNode
	if err := json.Unmarshal([]byte(row.Condition), &condition); err != nil {
		return nil, fmt.Errorf("decode condition for rule %s: %w", row.ID, err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return nil, fmt.Errorf("decode tags for rule %s: %w", row.ID, err)
	}
	createdAt, err := decodeTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode created_at for rule %s: %w", row.ID, err)
	}
	updatedAt, err := decodeTime(row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode updated_at for rule %s: %w", row.ID, err)
	}
	from, err := decodeTimePtr(row.EffectiveFrom)
	if err != nil {
		return nil, fmt.Errorf("decode effective_from for rule %s: %w", row.ID, err)
	}
	to, err := decodeTimePtr(row.EffectiveTo)
	if err != nil {
		return nil, fmt.Errorf("decode effective_to for rule %s: %w", row.ID, err)
	}

	return &types.Rule{
		ID:             types.RuleID(row.ID),
		Code:           row.Code,
		Name:           row.Name,
		Description:    row.Description,
		Type:           types.RuleType(row.RuleType),
		Action:         types.ActionType(row.ActionType),
		Condition:      condition,
		Priority:       row.Priority,
		Active:         row.IsActive,
		EffectiveFrom:  from,
		EffectiveTo:    to,
		DenialMessage:  row.DenialMessage,
		FlagMessage:    row.FlagMessage,
		Category:       row.Category,
		Tags:           tags,
		CurrentVersion: row.CurrentVersion,
		CreatedBy:      row.CreatedBy,
		LastModifiedBy: row.LastModifiedBy,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func decodeVersion(row *versionRow) (*types.RuleVersion, error) {
	var condition types.ConditionNode
	if err := json.Unmarshal([]byte(row.Condition), &condition); err != nil {
		return nil, fmt.Errorf("decode condition for version %s: %w", row.ID, err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return nil, fmt.Errorf("decode tags for version %s: %w", row.ID, err)
	}
	createdAt, err := decodeTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode created_at for version %s: %w", row.ID, err)
	}
	from, err := decodeTimePtr(row.EffectiveFrom)
	if err != nil {
		return nil, fmt.Errorf("decode effective_from for version %s: %w", row.ID, err)
	}
	to, err := decodeTimePtr(row.EffectiveTo)
	if err != nil {
		return nil, fmt.Errorf("decode effective_to for version %s: %w", row.ID, err)
	}

	return &types.RuleVersion{
		ID:                types.VersionID(row.ID),
		RuleID:            types.RuleID(row.RuleID),
		VersionNumber:     row.VersionNumber,
		Name:              row.Name,
		Description:       row.Description,
		Type:              types.RuleType(row.RuleType),
		Action:            types.ActionType(row.ActionType),
		Condition:         condition,
		Priority:          row.Priority,
		EffectiveFrom:     from,
		EffectiveTo:       to,
		DenialMessage:     row.DenialMessage,
		FlagMessage:       row.FlagMessage,
		Category:          row.Category,
		Tags:              tags,
		ChangeDescription: row.ChangeDescription,
		CreatedBy:         row.CreatedBy,
		CreatedAt:         createdAt,
	}, nil
}
