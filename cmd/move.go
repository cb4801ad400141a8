package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var moveCmd = &cobra.Command{
	Use:   "move <id>... --to <scope>",
	Short: "Move memories to a different scope",
	Long: `Move one or more memories to a different scope. Each memory is moved
independently; failures are reported per memory.

Examples:
  xylem move 4f1c... --to archive
  xylem move 4f1c... 9a2e... --to work/history`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("to")
		return runMove(args, target)
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a memory",
	Long: `Delete a memory from every backing store.

Examples:
  xylem forget 4f1c...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForget(args[0])
	},
}

func init() {
	moveCmd.Flags().String("to", "", "Destination scope path")
	moveCmd.MarkFlagRequired("to")
}

func runMove(ids []string, target string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.coor.Move(context.Background(), ids, target)
	if err != nil {
		return fmt.Errorf("move failed: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("❌ %s: %v\n", r.ID, r.Err)
			continue
		}
		fmt.Printf("✅ %s → %s\n", r.ID, target)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d moves failed", failed, len(results))
	}
	return nil
}

func runForget(id string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.coor.Delete(context.Background(), id); err != nil {
		return fmt.Errorf("forget failed: %w", err)
	}
	fmt.Printf("✅ Forgot %s\n", id)
	return nil
}
