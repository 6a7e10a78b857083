package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// versionCmd is the cobra CLI command for the version subcommand
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "QueryGate binary version information",
		Run:   cmdVersion,
	}
}

// cmdVersion is the handler for the version subcommand
func cmdVersion(cmd *cobra.Command, args []string) {
	fmt.Println(BuildDetails())
}

// BuildDetails returns the build details of the binary
func BuildDetails() string {
	if version == "" {
		return `
QueryGate (unknown version)
For documentation, visit https://github.com/querygate/querygate

To build with version information please use the Makefile
`
	}

	return fmt.Sprintf(`
QueryGate %v
For documentation, visit https://github.com/querygate/querygate

Commit SHA-1          : %v
Commit timestamp      : %v
Go version            : %v
`,
		version,
		commit,
		date,
		runtime.Version())
}
