package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	okColor     = color.New(color.FgGreen, color.Bold)
	warnColor   = color.New(color.FgYellow, color.Bold)
	errColor    = color.New(color.FgRed, color.Bold)
	dimColor    = color.New(color.Faint)
	accentColor = color.New(color.FgCyan)
)

// setupColor applies --color to fatih/color's global switch.
func setupColor(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color %q (expected auto|on|off)", mode)
	}
	return nil
}

func printStatus(w io.Writer, status string) {
	if status == "" {
		fmt.Fprintf(w, "%s\n", okColor.Sprint("ok"))
		return
	}
	fmt.Fprintf(w, "%s %s\n", warnColor.Sprint("warning:"), status)
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", errColor.Sprint("error:"), err)
}
