package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"unimozer/internal/archive"
	"unimozer/internal/trace"
)

var packCmd = &cobra.Command{
	Use:   "pack [project-dir]",
	Short: "Write the project into its packed archive",
	Long:  "Writes the configured [project].archive, or --out, from the project directory. Build output and IDE folders are left out.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPack,
}

func init() {
	packCmd.Flags().String("out", "", "archive path (default: [project].archive)")
}

func runPack(cmd *cobra.Command, args []string) error {
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}
	cfg, err := loadConfig(cmd, projectDir(args))
	if err != nil {
		return err
	}
	target := cfg.ArchivePath()
	if out != "" {
		if target, err = filepath.Abs(out); err != nil {
			return err
		}
	}
	if target == "" {
		return fmt.Errorf("no archive path: set [project].archive or pass --out")
	}

	q := archive.NewQueue(archive.Options{Tracer: trace.FromContext(cmd.Context())})
	q.Request(cfg.Root, target)
	if err := q.AwaitCompletion(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okColor.Sprint("packed"), target)
	return nil
}
