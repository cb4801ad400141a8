package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CanopyHQ/xylem/internal/coordinator"
)

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Store a memory",
	Long: `Store a memory under a scope with optional tags.

Identical content stored twice in the same scope returns the existing
record instead of creating a duplicate.

Examples:
  xylem remember "always use snake_case for Go test names" --scope work/style
  xylem remember "standup moved to 9am" --scope work/meetings --tags "schedule,team"
  xylem remember "staging db endpoint" --scope work/infra --meta env=staging --meta owner=platform`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		tagsStr, _ := cmd.Flags().GetString("tags")
		category, _ := cmd.Flags().GetString("category")
		metadata, _ := cmd.Flags().GetStringToString("meta")
		allowDup, _ := cmd.Flags().GetBool("allow-duplicates")
		return runRemember(args[0], scope, tagsStr, category, metadata, allowDup)
	},
}

func init() {
	rememberCmd.Flags().String("scope", "default", "Scope path for the memory")
	rememberCmd.Flags().String("tags", "", "Comma-separated tags")
	rememberCmd.Flags().String("category", "", "Category label")
	rememberCmd.Flags().StringToString("meta", nil, "Metadata key=value pairs (repeatable)")
	rememberCmd.Flags().Bool("allow-duplicates", false, "Store even when identical content already exists in the scope")
}

func runRemember(content, scope, tagsStr, category string, metadata map[string]string, allowDup bool) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	var tags []string
	if tagsStr != "" {
		for _, t := range strings.Split(tagsStr, ",") {
			if s := strings.TrimSpace(t); s != "" {
				tags = append(tags, s)
			}
		}
	}

	rec, err := app.coor.Store(context.Background(), coordinator.StoreRequest{
		Content:         content,
		Scope:           scope,
		Tags:            tags,
		Category:        category,
		Metadata:        metadata,
		AllowDuplicates: allowDup,
	})
	if err != nil {
		return fmt.Errorf("remember failed: %w", err)
	}

	fmt.Printf("✅ Remembered %s in %s\n", rec.ID, rec.Scope)
	if rec.State == coordinator.StateMetadataOnly {
		fmt.Println("   (embedding unavailable; run 'xylem reconcile' to index it later)")
	}
	return nil
}
