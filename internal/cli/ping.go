package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

var pingFlags connectionFlags

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the database accepts connections",
	Long: `Check out a connection from the pool and run the health check statement on it.

With --count greater than one the connection is checked back in between
rounds, so later rounds show the pool reusing (and health checking) the same
connection.

Examples:
  sqlpool ping --connection "mysql://app@localhost:3306/app"
  sqlpool ping -h db.internal -u app -d app --driver postgres -c 3`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	pingFlags.register(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 1, "Number of rounds")
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1: %w", sqlpool.ErrUsage)
	}

	stack, err := openStack(cmd, &pingFlags)
	if err != nil {
		return err
	}
	defer stack.Close(context.Background())

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	params := stack.conn.Params

	for i := 0; i < pingCount; i++ {
		start := time.Now()
		h, err := stack.service.GetConnection(ctx, params)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), tui.Failure("%s unreachable", params.Address()))
			return err
		}
		_, err = h.Cursor().Query(ctx, stack.conn.Options.HealthCheckStatement)
		id := h.Conn().ID().String()[:8]
		stack.service.ReleaseConnection(h)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), tui.Failure("%s health check failed", params.Address()))
			return err
		}
		fmt.Fprintln(out, tui.Success("%s (%s) answered in %s on connection %s",
			params.Address(), stack.conn.Driver, time.Since(start).Round(time.Microsecond), id))
	}

	if st, ok := stack.pool.Stats(params.Fingerprint()); ok {
		fmt.Fprintln(out, tui.KeyValues(
			[2]string{"Fingerprint", st.Fingerprint.Short()},
			[2]string{"Open", strconv.Itoa(st.Open)},
			[2]string{"Idle", strconv.Itoa(st.Idle)},
			[2]string{"Max", strconv.Itoa(st.Max)},
		))
	}
	return nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
