package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CanopyHQ/xylem/internal/coordinator"
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search memories by similarity",
	Long: `Search memories by semantic similarity, optionally restricted to a
scope and its child scopes.

Examples:
  xylem recall "database migration"
  xylem recall "meeting schedule" --scope work --children
  xylem recall "api keys" --scope work/infra --limit 3 --threshold 0.5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		children, _ := cmd.Flags().GetBool("children")
		limit, _ := cmd.Flags().GetInt("limit")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		return runRecall(args[0], scope, children, limit, threshold)
	},
}

func init() {
	recallCmd.Flags().String("scope", "", "Restrict results to this scope (empty searches everywhere)")
	recallCmd.Flags().Bool("children", false, "Also match memories in descendant scopes")
	recallCmd.Flags().Int("limit", 10, "Maximum number of results")
	recallCmd.Flags().Float64("threshold", 0, "Drop results scoring below this value, in [0,1]")
}

func runRecall(query, scope string, children bool, limit int, threshold float64) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := app.coor.Search(context.Background(), coordinator.SearchRequest{
		Query:               query,
		Scope:               scope,
		IncludeChildScopes:  children,
		Limit:               limit,
		SimilarityThreshold: threshold,
	})
	if err != nil {
		return fmt.Errorf("recall failed: %w", err)
	}

	if resp.Degraded {
		fmt.Println("⚠️  vector search unavailable, showing keyword matches")
	}
	if len(resp.Results) == 0 {
		fmt.Println("No memories found.")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. [%.2f] (%s) %s\n", i+1, r.Score, r.Record.Scope, r.Record.Content)
		fmt.Printf("   id: %s\n", r.Record.ID)
	}
	return nil
}
