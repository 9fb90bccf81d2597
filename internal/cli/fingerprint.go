package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

var fingerprintFlags connectionFlags

var fingerprintOutput string

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Show the pool key of the resolved connection parameters",
	Long: `Resolve the connection parameters exactly as the other commands do and print
their fingerprint. Connections with equal fingerprints share one sub-pool.

The password takes part in the fingerprint but is never printed. Nothing is
opened: the command works without a reachable database.`,
	Args: cobra.NoArgs,
	RunE: runFingerprint,
}

func init() {
	fingerprintFlags.register(fingerprintCmd)
	fingerprintCmd.Flags().StringVarP(&fingerprintOutput, "output", "o", "text", "Output format: text or json")
	rootCmd.AddCommand(fingerprintCmd)
}

type fingerprintJSON struct {
	Driver      string `json:"driver"`
	Fingerprint string `json:"fingerprint"`
	Short       string `json:"short"`
	Address     string `json:"address"`
	Database    string `json:"database"`
	Username    string `json:"username"`
	AuthMethod  string `json:"auth_method"`
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	rc, err := resolveConnection(cmd, &fingerprintFlags)
	if err != nil {
		return err
	}
	p := rc.Params
	fp := p.Fingerprint()
	out := cmd.OutOrStdout()

	switch fingerprintOutput {
	case "json":
		data, err := json.MarshalIndent(fingerprintJSON{
			Driver:      rc.Driver,
			Fingerprint: fp.String(),
			Short:       fp.Short(),
			Address:     p.Address(),
			Database:    p.Database,
			Username:    p.Username,
			AuthMethod:  p.AuthMethod.String(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode fingerprint: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "text":
		fmt.Fprintln(out, fp.String())
		if getVerboseFlag(cmd) {
			fmt.Fprintln(cmd.ErrOrStderr(), tui.KeyValues(
				[2]string{"Driver", rc.Driver},
				[2]string{"Address", p.Address()},
				[2]string{"Database", p.Database},
				[2]string{"User", p.Username},
				[2]string{"Password set", strconv.FormatBool(p.Password != "")},
			))
		}
	default:
		return fmt.Errorf("--output must be text or json, got %q: %w", fingerprintOutput, sqlpool.ErrUsage)
	}
	return nil
}
