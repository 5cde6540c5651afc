package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/sita/pkg/logging"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

var useColor = logging.ShouldUseColor(os.Stdout)

func colorize(color, s string) string {
	if !useColor {
		return s
	}
	return color + s + colorReset
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
