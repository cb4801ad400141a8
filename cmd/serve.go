package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CanopyHQ/xylem/internal/mcptool"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"mcp"},
	Short:   "Start MCP server (default)",
	Long: `Start the MCP server using stdio transport.

The server communicates via JSON-RPC over stdin/stdout and is designed
to be connected to by an MCP client such as Claude Code, Cursor, etc.

Examples:
  xylem serve
  xylem mcp`,
	RunE: func(cmd *cobra.Command, args []string) error { return runServe() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xylem %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory statistics",
	Long: `Show record counts per state and divergence between the backing stores.

Examples:
  xylem status`,
	RunE: func(cmd *cobra.Command, args []string) error { return runStatus() },
}

func runServe() error {
	fmt.Fprintln(os.Stderr, "Xylem - memory coordination layer")
	fmt.Fprintln(os.Stderr, "Starting MCP server (stdio transport)...")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "This server communicates via JSON-RPC over stdin/stdout.")
	fmt.Fprintln(os.Stderr, "It is not an interactive CLI — connect an MCP client.")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop. Run 'xylem help' for available commands.")
	fmt.Fprintln(os.Stderr, "")

	app, err := openApp()
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer app.Close()

	return mcptool.NewServer(app.coor, Version).ServeStdio()
}

func runStatus() error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	stats, err := app.coor.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Xylem Memory Status:\n")
	fmt.Printf("  Data Directory: %s\n", app.cfg.DataDir)
	fmt.Printf("  Total Records: %d\n", stats.Total)
	fmt.Printf("  Committed: %d\n", stats.Committed)
	fmt.Printf("  Metadata Only: %d\n", stats.MetadataOnly)
	fmt.Printf("  Pending Embed: %d\n", stats.PendingEmbed)
	fmt.Printf("  Indexed Vectors: %d\n", stats.IndexedVectors)
	return nil
}
