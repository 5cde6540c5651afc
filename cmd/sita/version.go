package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version information",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]string{"version": Version, "go": runtime.Version()})
		}
		_, err := fmt.Fprintf(out, "sita %s (%s)\n", Version, runtime.Version())
		return err
	},
}
