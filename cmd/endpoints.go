package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"nemoferry/internal/endpoint"
	"nemoferry/internal/manifest"
	"nemoferry/pkg/utils"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "Show which endpoint would be tried first for each manifest entry",
	Long: `Endpoints resolves every manifest entry to its prioritized candidate
list without transferring anything. Use it to check scheme priorities and
URL rewrite rules before starting a run.`,
	Example: `  # Inspect endpoint selection for a manifest
  nemoferry endpoints -m manifest.tsv

  # With a custom rewrite rule table
  nemoferry endpoints -m manifest.tsv --rules rules.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runEndpoints(cmd); err != nil {
			utils.PrintError(err, "endpoints")
			return err
		}
		return nil
	},
}

type entryEndpoints struct {
	EntryID    string   `json:"entry_id"`
	Candidates []string `json:"candidates"`
}

func runEndpoints(cmd *cobra.Command) error {
	manifestPath, _ := cmd.Flags().GetString("manifest")

	entries, err := manifest.ParseFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	rules := endpoint.DefaultRules()
	rulesPath, _ := cmd.Flags().GetString("rules")
	if rulesPath == "" {
		rulesPath = cfg.RewriteRulesPath
	}
	if rulesPath != "" {
		rules, err = endpoint.LoadRules(rulesPath)
		if err != nil {
			return fmt.Errorf("load rewrite rules: %w", err)
		}
	}

	resolved := make([]entryEndpoints, 0, len(entries))
	for _, entry := range entries {
		ee := entryEndpoints{EntryID: entry.ID}
		for _, c := range endpoint.Select(entry.URLs, cfg.SchemePriorities, rules) {
			ee.Candidates = append(ee.Candidates, c.URL)
		}
		resolved = append(resolved, ee)
	}

	return utils.PrintJSON(resolved)
}

func init() {
	endpointsCmd.Flags().StringP("manifest", "m", "", "Path to the tab-delimited manifest file (required)")
	endpointsCmd.Flags().String("rules", "", "YAML file of endpoint URL rewrite rules")
	endpointsCmd.MarkFlagRequired("manifest")
}
