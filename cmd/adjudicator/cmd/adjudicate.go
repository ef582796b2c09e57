package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianhealth/adjudicator/internal/types"
)

var adjudicateCmd = &cobra.Command{
	Use:   "adjudicate <claim-context.json>",
	Short: "Run a claim context through the active rule set",
	Long: `Adjudicate reads a flat JSON object of claim fields, evaluates it against
every active rule (ordered by priority), and prints the full execution trace.
The run is appended to the audit log.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdjudicate,
}

func init() {
	rootCmd.AddCommand(adjudicateCmd)
	adjudicateCmd.Flags().String("claim-ref", "", "external claim reference recorded in the trace")
	adjudicateCmd.Flags().String("rule-type", "", "restrict to one rule type (validation, adjudication, calculation, notification)")
	adjudicateCmd.Flags().String("as-of", "", "evaluate rules effective at this RFC3339 instant (default: now)")
}

func runAdjudicate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, err := setupEnv(cmd, true)
	if err != nil {
		return err
	}
	defer env.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read claim context: %w", err)
	}
	claimCtx, err := types.ContextFromJSON(data)
	if err != nil {
		return err
	}

	claimRef, _ := cmd.Flags().GetString("claim-ref")
	if claimRef == "" {
		claimRef = args[0]
	}

	asOf := time.Now().UTC()
	if s, _ := cmd.Flags().GetString("as-of"); s != "" {
		asOf, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid --as-of %q: %w", s, err)
		}
	}

	var ruleType *types.RuleType
	if s, _ := cmd.Flags().GetString("rule-type"); s != "" {
		rt := types.RuleType(s)
		if !rt.Valid() {
			return fmt.Errorf("invalid rule type %q", s)
		}
		ruleType = &rt
	}

	trace, err := env.pipeline.Execute(ctx, claimRef, claimCtx, asOf, ruleType)
	if err != nil {
		return fmt.Errorf("adjudication failed: %w", err)
	}

	out, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
