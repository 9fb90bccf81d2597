package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/vvka-141/sqlpool/internal/db"
)

// sslModes contains the TLS modes both drivers accept, for shell completion.
var sslModes = []string{"disable", "prefer", "require", "verify-ca", "verify-full"}

var authMethods = []string{"password", "certificate", "aws-iam", "google-iam", "azure-entra-id"}

var drivers = []string{db.DriverMySQL, db.DriverPostgres}

// completeSSLModes provides shell completion for TLS mode flag values.
func completeSSLModes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return matchPrefix(sslModes, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeAuthMethods provides shell completion for --auth-method.
func completeAuthMethods(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return matchPrefix(authMethods, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeDrivers provides shell completion for --driver.
func completeDrivers(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return matchPrefix(drivers, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeBatchFiles limits completion of --batch to YAML files.
func completeBatchFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
}

func matchPrefix(values []string, prefix string) []string {
	var matches []string
	for _, v := range values {
		if strings.HasPrefix(v, prefix) {
			matches = append(matches, v)
		}
	}
	return matches
}
