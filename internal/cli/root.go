package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sqlpool",
	Short: "Health-checked, self-healing SQL connection pool",
	Long: asciiLogo + `

sqlpool keeps one pool of connections per distinct set of connection
parameters. Idle connections are validated before they are handed out,
failed connects are retried with exponential backoff and a statement that
loses its connection is retried once on a fresh one.

The commands below drive the pool against MySQL or PostgreSQL: check
connectivity, run statements, inspect fingerprints, manage databases and
load-test the pool while exporting Prometheus metrics.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or parameters
  11 - Database connection failed or lost
  12 - Authentication failed
  13 - SQL execution failed
  14 - Integrity constraint violated
  15 - Connection pool exhausted
  16 - Destructive operation not approved`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo(os.Stdout, os.Stderr)
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("help", false, "Help for sqlpool")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	rootCmd.PersistentFlags().String("config-dir", ".", "Directory holding sqlpool.yaml and .env")
}

// getVerboseFlag safely retrieves the verbose flag value.
// cmd.Flag also finds the persistent flags of parent commands before parsing.
func getVerboseFlag(cmd *cobra.Command) bool {
	f := cmd.Flag("verbose")
	if f == nil {
		return false
	}
	verbose, err := strconv.ParseBool(f.Value.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}

// getConfigDir returns the directory sqlpool.yaml is read from.
func getConfigDir(cmd *cobra.Command) string {
	f := cmd.Flag("config-dir")
	if f == nil || f.Value.String() == "" {
		return "."
	}
	return f.Value.String()
}
