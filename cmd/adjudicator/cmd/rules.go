package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianhealth/adjudicator/internal/lifecycle"
	"github.com/meridianhealth/adjudicator/internal/store"
	"github.com/meridianhealth/adjudicator/internal/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage adjudication rules",
}

var rulesCreateCmd = &cobra.Command{
	Use:   "create <rule.json>",
	Short: "Create a rule from a JSON definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesCreate,
}

var rulesGetCmd = &cobra.Command{
	Use:   "get <rule-id-or-code>",
	Short: "Show one rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesGet,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	RunE:  runRulesList,
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <rule-id> <patch.json>",
	Short: "Update a rule, recording a new version",
	Args:  cobra.ExactArgs(2),
	RunE:  runRulesUpdate,
}

var rulesActivateCmd = &cobra.Command{
	Use:   "activate <rule-id>",
	Short: "Activate a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  makeSetActive(true),
}

var rulesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <rule-id>",
	Short: "Deactivate a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  makeSetActive(false),
}

var rulesVersionsCmd = &cobra.Command{
	Use:   "versions <rule-id>",
	Short: "Show a rule's version history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesVersions,
}

var rulesRollbackCmd = &cobra.Command{
	Use:   "rollback <rule-id> <version>",
	Short: "Restore a prior version's definition as a new version",
	Args:  cobra.ExactArgs(2),
	RunE:  runRulesRollback,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCreateCmd, rulesGetCmd, rulesListCmd, rulesUpdateCmd,
		rulesActivateCmd, rulesDeactivateCmd, rulesVersionsCmd, rulesRollbackCmd)

	rulesCmd.PersistentFlags().String("actor", "cli", "identity recorded as created_by / last_modified_by")
	rulesUpdateCmd.Flags().String("reason", "", "change description recorded in the version history")
	rulesListCmd.Flags().String("type", "", "filter by rule type")
	rulesListCmd.Flags().String("category", "", "filter by category")
	rulesListCmd.Flags().Bool("active", false, "only active rules")
	rulesListCmd.Flags().Int("page", 1, "page number")
	rulesListCmd.Flags().Int("page-size", 0, "page size (default from config)")
}

// ruleDefinition is the JSON shape accepted by create and update. Pointer
// fields distinguish "absent" from "zero" for partial updates.
type ruleDefinition struct {
	Code          string               `json:"code,omitempty"`
	Name          *string              `json:"name,omitempty"`
	Description   *string              `json:"description,omitempty"`
	Type          *types.RuleType      `json:"rule_type,omitempty"`
	Action        *types.ActionType    `json:"action,omitempty"`
	Condition     *types.ConditionNode `json:"condition,omitempty"`
	Priority      *int                 `json:"priority,omitempty"`
	Active        *bool                `json:"is_active,omitempty"`
	EffectiveFrom *time.Time           `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time           `json:"effective_to,omitempty"`
	DenialMessage *string              `json:"denial_message,omitempty"`
	FlagMessage   *string              `json:"flag_message,omitempty"`
	Category      *string              `json:"category,omitempty"`
	Tags          []string             `json:"tags,omitempty"`
}

func readRuleDefinition(path string) (*ruleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule definition: %w", err)
	}
	var def ruleDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid rule definition: %w", err)
	}
	return &def, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runRulesCreate(cmd *cobra.Command, args []string) error {
	env, err := setupEnv(cmd, true)
	if err != nil {
		return err
	}
	defer env.Close()

	def, err := readRuleDefinition(args[0])
	if err != nil {
		return err
	}
	if def.Condition == nil {
		return fmt.Errorf("rule definition must include a condition")
	}

	actor, _ := cmd.Flags().GetString("actor")
	rule, err := env.manager.Create(context.Background(), lifecycle.CreateInput{
		Code:          def.Code,
		Name:          deref(def.Name),
		Description:   deref(def.Description),
		Type:          deref(def.Type),
		Action:        deref(def.Action),
		Condition:     *def.Condition,
		Priority:      def.Priority,
		Active:        def.Active,
		EffectiveFrom: def.EffectiveFrom,
		EffectiveTo:   def.EffectiveTo,
		DenialMessage: deref(def.DenialMessage),
		FlagMessage:   deref(def.FlagMessage),
		Category:      deref(def.Category),
		Tags:          def.Tags,
	}, actor)
	if err != nil {
		return err
	}
	return printJSON(rule)
}

func runRulesGet(cmd *cobra.Command, args []string) error {
	env, err := setupEnv(cmd, true)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	rule, err := env.manager.Get(ctx, types.RuleID(args[0]))
	if err != nil {
		rule, err = env.manager.GetByCode(ctx, args[0])
		if err != nil {
			return err
		}
	}
	return printJSON(rule)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	env, err := setupEnv(cmd, true)
	if err != nil {
		return err
	}
	defer env.Close()

	filter := store.ListFilter{Page: 1, PageSize: env.cfg.DefaultPageSize}
	if s, _ := cmd.Flags().GetString("type"); s != "" {
		rt := types.RuleType(s)
		if !rt.Valid() {
			return fmt.Errorf("invalid rule type %q", s)
		}
		filter.Type = &rt
	}
	if cmd.Flags().Changed("active") {
		active, _ := cmd.Flags().GetBool("active")
		filter.Active = &active
	}
	filter.Category, _ = cmd.Flags().GetString("category")
	if p, _ := cmd.Flags().GetInt("page"); p > 0 {
		filter.Page = p
	}
	if ps, _ := cmd.Flags().GetInt("page-size"); ps > 0 {
		if ps > env.cfg.MaxPageSize {
			ps = env.cfg.MaxPageSize
		}
		filter.PageSize = ps
	}

	rules, total, err := env.manager.List(context.Background(), filter)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"rules": rules,
		"total": total,
		"page":  filter.Page,
	})
}

func runRulesUpdate(cmd *cobra.Command, args []string) error {
	env, err := setupEnv(cmd, true)
	if err != nil {
		return err
	}
	defer env.Close()

	def, err := readRuleDefinition(args[1])
	if err != nil {
		return err
	}
	if def.Code != "" {
		return fmt.Errorf("rule code is immutable")
	}
	if def.Active != nil {
		return fmt.Errorf("is_active cannot be set by update, use activate/deactivate")
	}

	actor, _ := cmd.Flags().GetString("actor")
	reason, _ := cmd.Flags().GetString("reason")
	rule, err := env.manager.Update(context.Background(), types.RuleID(args[0]), lifecycle.UpdateInput{
		Name:          def.Name,
		Description:   def.Description,
		Type:          def.Type,
		Action:        def.Action,
		Condition:     def.Condition,
		Priority:      def.Priority,
		EffectiveFrom: def.EffectiveFrom,
		EffectiveTo:   def.EffectiveTo,
		DenialMessage: def.DenialMessage,
		FlagMessage:   def.FlagMessage,
		Category:      def.Category,
		Tags:          def.Tags,
	}, reason, actor)
	if err != nil {
		return err
	}
	return printJSON(rule)
}

func makeSetActive(active bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := setupEnv(cmd, true)
		if err != nil {
			return err
		}
		defer env.Close()

		actor, _ := cmd.Flags().GetString("actor")
		rule, err := env.manager.SetActive(context.Background(), types.RuleID(args[0]), active, actor)
		if err != nil {
			return err
		}
		return printJSON(rule)
	}
}

func runRulesVersions(cmd *cobra.Command, args []string) error {
	env, err := setupEnv(cmd, true)
	if err != nil {
		return err
	}
	defer env.Close()

	versions, err := env.manager.Versions(context.Background(), types.RuleID(args[0]))
	if err != nil {
		return err
	}
	return printJSON(versions)
}

func runRulesRollback(cmd *cobra.Command, args []string) error {
	env, err := setupEnv(cmd, true)
	if err != nil {
		return err
	}
	defer env.Close()

	target, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[1])
	}

	actor, _ := cmd.Flags().GetString("actor")
	rule, err := env.manager.Rollback(context.Background(), types.RuleID(args[0]), target, actor)
	if err != nil {
		return err
	}
	return printJSON(rule)
}
