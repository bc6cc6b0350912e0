package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// VersionCmd returns the version command.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("smartmeter version %s\n", getVersion())
		},
	}
}

// getVersion returns the version string.
// This will be overridden at build time via ldflags.
func getVersion() string {
	return version
}

// version is set at build time via ldflags.
var version = "dev"
