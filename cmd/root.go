package cmd

import (
	"github.com/spf13/cobra"
)

// Build-time variables
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// SetVersion sets the version info from main
func SetVersion(v, c, d string) {
	Version = v
	Commit = c
	Date = d
}

var rootCmd = &cobra.Command{
	Use:   "xylem",
	Short: "Xylem - memory coordination for AI agents",
	Long:  "Coordinates agent memories across a vector index, a metadata store and an association graph.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the xylem command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// serve, version, status (defined in serve.go)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)

	// remember (defined in remember.go)
	rootCmd.AddCommand(rememberCmd)

	// recall (defined in recall.go)
	rootCmd.AddCommand(recallCmd)

	// move, forget (defined in move.go)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(forgetCmd)

	// reconcile (defined in reconcile.go)
	rootCmd.AddCommand(reconcileCmd)
}
