package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vvka-141/sqlpool/internal/db"
	"github.com/vvka-141/sqlpool/internal/db/manager"
	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/internal/ui"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

var databaseFlags connectionFlags

var (
	maintenanceDB string
	databaseForce bool
)

// approvalCountdown is how long --force waits. Tests shorten it.
var approvalCountdown = sqlpool.DefaultForceApprovalCountdown

var databaseCmd = &cobra.Command{
	Use:   "db",
	Short: "Create, drop and inspect databases through the pool",
	Long: `Manage databases over an administrative pooled connection.

The administrative connection uses the resolved connection parameters with the
database replaced by --maintenance-db (default: postgres for PostgreSQL, none
for MySQL). Dropping a database first terminates the other sessions attached
to it and then closes every pooled connection to it.

drop and recreate ask you to type the database name first. In scripts and CI
pass --force, which waits a few seconds before going ahead instead.`,
}

// newDatabaseSubcommand builds a db subcommand. A non-empty action marks the
// command destructive: it must be approved before any connection is made.
func newDatabaseSubcommand(use, short, action string, run func(ctx context.Context, cmd *cobra.Command, m *manager.Manager, admin sqlpool.ConnectionParameters, name string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <database>",
		Short: short,
		Args:  RequireDatabaseName,
		RunE: func(cmd *cobra.Command, args []string) error {
			if action != "" {
				if err := confirmDestructive(cmd, action, args[0]); err != nil {
					return err
				}
			}

			stack, err := openStack(cmd, &databaseFlags)
			if err != nil {
				return err
			}
			defer stack.Close(context.Background())

			m, err := manager.New(stack.service, stack.conn.Driver, stack.logger)
			if err != nil {
				return err
			}
			return run(commandContext(cmd), cmd, m, adminParams(cmd, stack.conn), args[0])
		},
	}
}

var (
	databaseCreateCmd = newDatabaseSubcommand("create", "Create a database", "", func(ctx context.Context, cmd *cobra.Command, m *manager.Manager, admin sqlpool.ConnectionParameters, name string) error {
		if err := m.Create(ctx, admin, name); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Success("Created database %s", name))
		return nil
	})

	databaseDropCmd = newDatabaseSubcommand("drop", "Drop a database if it exists", "DROP", func(ctx context.Context, cmd *cobra.Command, m *manager.Manager, admin sqlpool.ConnectionParameters, name string) error {
		if err := m.Drop(ctx, admin, name); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Success("Dropped database %s", name))
		return nil
	})

	databaseRecreateCmd = newDatabaseSubcommand("recreate", "Drop and create a database", "RECREATE", func(ctx context.Context, cmd *cobra.Command, m *manager.Manager, admin sqlpool.ConnectionParameters, name string) error {
		if err := m.Recreate(ctx, admin, name); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Success("Recreated database %s", name))
		return nil
	})

	databaseExistsCmd = newDatabaseSubcommand("exists", "Report whether a database exists", "", func(ctx context.Context, cmd *cobra.Command, m *manager.Manager, admin sqlpool.ConnectionParameters, name string) error {
		ok, err := m.Exists(ctx, admin, name)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), tui.Warning("Database %s does not exist", name))
			return fmt.Errorf("database %q does not exist", name)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Success("Database %s exists", name))
		return nil
	})
)

func init() {
	databaseFlags.registerPersistent(databaseCmd)
	databaseCmd.PersistentFlags().StringVar(&maintenanceDB, "maintenance-db", "", "Database the administrative connection attaches to")
	for _, c := range []*cobra.Command{databaseDropCmd, databaseRecreateCmd} {
		c.Flags().BoolVarP(&databaseForce, "force", "f", false, "Skip the typed confirmation (a short countdown still runs)")
	}

	databaseCmd.AddCommand(databaseCreateCmd, databaseDropCmd, databaseRecreateCmd, databaseExistsCmd)
	rootCmd.AddCommand(databaseCmd)
}

// adminParams swaps the target database for the maintenance database.
func adminParams(cmd *cobra.Command, rc *resolvedConnection) sqlpool.ConnectionParameters {
	p := rc.Params
	switch {
	case flagChanged(cmd, "maintenance-db"):
		p.Database = maintenanceDB
	case rc.Driver == db.DriverPostgres:
		p.Database = "postgres"
	default:
		p.Database = ""
	}
	return p
}

// confirmDestructive obtains approval for action on name.
func confirmDestructive(cmd *cobra.Command, action, name string) error {
	var approver sqlpool.Approver
	switch {
	case databaseForce:
		approver = ui.NewForcedApprover(approvalCountdown, cmd.ErrOrStderr())
	case interactive():
		approver = ui.NewTypedNameApprover(cmd.InOrStdin(), cmd.ErrOrStderr())
	default:
		return fmt.Errorf("refusing to %s database %q without --force in a non-interactive session: %w",
			strings.ToLower(action), name, sqlpool.ErrUsage)
	}

	ok, err := approver.RequestApproval(commandContext(cmd), action, name)
	if err != nil {
		return fmt.Errorf("approval for %s of %q: %w", action, name, err)
	}
	if !ok {
		return fmt.Errorf("%s of %q was not confirmed: %w", action, name, sqlpool.ErrApprovalDenied)
	}
	return nil
}
