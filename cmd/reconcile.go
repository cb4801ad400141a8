package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair divergence between the backing stores",
	Long: `Detect and repair divergence between the metadata store and the
vector index. Records missing their vector are re-embedded and inserted;
vectors without a record are removed.

Safe to run at any time, including while the server is busy.

Examples:
  xylem reconcile`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile()
	},
}

func runReconcile() error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.coor.Reconcile(context.Background())
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	fmt.Printf("Reconciliation complete:\n")
	fmt.Printf("  Metadata-only records found: %d\n", report.MetadataOnly)
	fmt.Printf("  Orphan vectors found: %d\n", report.OrphanVectors)
	fmt.Printf("  Repaired: %d\n", report.Repaired)
	fmt.Printf("  Orphans removed: %d\n", report.OrphansRemoved)
	fmt.Printf("  Still divergent: %d\n", report.StillDivergent)
	return nil
}
