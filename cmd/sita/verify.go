package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/sita/pkg/evidence"
)

var verifyBundle string

var verifyCmd = &cobra.Command{
	Use:     "verify",
	Short:   "Verify an exported evidence bundle",
	GroupID: "demo",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyBundle == "" {
			return fmt.Errorf("--bundle is required")
		}
		f, err := os.Open(verifyBundle)
		if err != nil {
			return err
		}
		defer f.Close()

		out := cmd.OutOrStdout()
		m, err := evidence.Verify(f)
		if err != nil {
			if jsonOutput {
				_ = printJSON(out, map[string]any{"bundle": verifyBundle, "valid": false, "error": err.Error()})
			}
			return fmt.Errorf("verification failed: %w", err)
		}
		if jsonOutput {
			return printJSON(out, map[string]any{
				"bundle":      verifyBundle,
				"valid":       true,
				"session_id":  m.SessionID,
				"version":     m.Version,
				"exported_at": m.ExportedAt,
				"receipts":    m.Receipts,
				"file_count":  len(m.FileHashes),
			})
		}
		fmt.Fprintf(out, "%s %s\n", colorize(colorGreen, "Bundle verified:"), verifyBundle)
		fmt.Fprintf(out, "   Session:  %s\n", m.SessionID)
		fmt.Fprintf(out, "   Version:  %s\n", m.Version)
		fmt.Fprintf(out, "   Exported: %s\n", m.ExportedAt)
		fmt.Fprintf(out, "   Receipts: %d\n", m.Receipts)
		fmt.Fprintf(out, "   Files:    %d\n", len(m.FileHashes))
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyBundle, "bundle", "", "path to a .tar.gz evidence bundle")
}
