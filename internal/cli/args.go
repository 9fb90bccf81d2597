package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RequireStatement validates that a statement argument is present. Further
// arguments are bind values.
func RequireStatement(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf(`missing required argument: <statement>

Usage: %s

Example:
  %s "SELECT id, name FROM users WHERE id = ?" 42`, cmd.UseLine(), cmd.CommandPath())
	}
	return nil
}

// RequireDatabaseName validates that exactly one database name argument is provided.
// Returns a helpful error message with usage and examples if missing or too many.
func RequireDatabaseName(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf(`missing required argument: <database>

Usage: %s

Example:
  %s app_test --connection "mysql://root@localhost:3306/"`, cmd.UseLine(), cmd.CommandPath())
	}
	if len(args) > 1 {
		return fmt.Errorf("accepts 1 arg(s), received %d", len(args))
	}
	if args[0] == "" {
		return fmt.Errorf("invalid argument: database name is empty")
	}
	return nil
}
