// Command sita runs the SITA OS demo site backend and its headless tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:           "sita <command>",
	Short:         "SITA OS demo engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "demo", Title: "Demo:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Demo
	rootCmd.AddCommand(autoplayCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(verifyCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", colorize(colorRed, "error:"), err)
		os.Exit(1)
	}
}
