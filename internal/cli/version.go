package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const asciiLogo = `          __                   __
  _______/ /___  ____  ____  / /
 / ___/ __/ __ \/ __ \/ __ \/ /
(__  ) /_/ /_/ / /_/ / /_/ / /
/____/\__, .___/\____/\____/_/
        /_/_/`

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersionInfo(cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// resolveVersionInfo prefers ldflags values and falls back to the module
// build info for `go install` builds.
func resolveVersionInfo() (string, string, string) {
	v, c, d := version, commit, date
	if v != "dev" {
		return v, c, d
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v, c, d
	}
	if mv := info.Main.Version; mv != "" && mv != "(devel)" {
		v = strings.TrimPrefix(mv, "v")
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if c == "unknown" && len(s.Value) >= 7 {
				c = s.Value[:7]
			}
		case "vcs.time":
			if d == "unknown" {
				d = s.Value
			}
		}
	}
	return v, c, d
}

// printVersionInfo prints version information.
// Version string goes to stdout for pipeline consumption.
// Decorative content goes to stderr.
func printVersionInfo(stdout, stderr io.Writer) {
	v, c, d := resolveVersionInfo()
	fmt.Fprintln(stderr, asciiLogo)
	fmt.Fprintln(stderr)
	fmt.Fprintf(stdout, "sqlpool %s (%s, %s) %s/%s\n", v, c, d, runtime.GOOS, runtime.GOARCH)
	fmt.Fprintln(stderr, "Managed MySQL/PostgreSQL connection pool")
}
