package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"unimozer/internal/lsp"
	"unimozer/internal/session"
	"unimozer/internal/ui"
	"unimozer/internal/uml"
)

var watchCmd = &cobra.Command{
	Use:   "watch [project-dir]",
	Short: "Keep the class graph and layout in sync with external edits",
	Long:  "Opens the project, then reparses and reconciles the layout whenever Java sources change on disk, until interrupted.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Bool("tui", false, "show a live dashboard instead of a log (terminal only)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	tui, err := cmd.Flags().GetBool("tui")
	if err != nil {
		return fmt.Errorf("failed to get tui flag: %w", err)
	}
	if tui && !isTerminal(os.Stdout) {
		return fmt.Errorf("--tui needs a terminal on stdout")
	}
	if tui {
		return runWatchDashboard(cmd, args)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	s, err := newSession(cmd, projectDir(args), session.Options{
		OnGraph: func(g uml.Graph, status string) {
			fmt.Fprintf(out, "%s %d classes, %d relations\n", accentColor.Sprint("graph"), len(g.Nodes), len(g.Edges))
			if status != "" {
				printStatus(out, status)
			}
		},
		OnDiagnostics: func(path string, diags []lsp.Diagnostic) {
			fmt.Fprintf(out, "%s %s: %d\n", dimColor.Sprint("diagnostics"), path, len(diags))
		},
		OnStatus: func(msg string) {
			if msg != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
		},
	})
	if err != nil {
		return err
	}

	if _, err := s.Open(ctx); err != nil {
		_ = s.Close(context.Background())
		return err
	}
	if err := s.Watch(ctx); err != nil {
		_ = s.Close(context.Background())
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", okColor.Sprint("watching"), s.Config().SrcRoot())
	<-ctx.Done()
	return s.Close(context.Background())
}

func runWatchDashboard(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan ui.Event, 64)
	send := func(ev ui.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	s, err := newSession(cmd, projectDir(args), session.Options{
		OnGraph: func(g uml.Graph, status string) {
			send(ui.Event{Kind: ui.EventGraph, Graph: g, Status: status})
		},
		OnDiagnostics: func(path string, diags []lsp.Diagnostic) {
			send(ui.Event{Kind: ui.EventDiagnostics, Path: path, Count: len(diags)})
		},
		OnStatus: func(msg string) {
			send(ui.Event{Kind: ui.EventStatus, Status: msg})
		},
	})
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	// Open emits the first graph; the dashboard is not reading yet.
	go func() {
		if _, err := s.Open(ctx); err != nil {
			send(ui.Event{Kind: ui.EventStatus, Status: err.Error()})
			return
		}
		send(ui.Event{Kind: ui.EventFiles, Files: s.Drafts().Paths()})
		if err := s.Watch(ctx); err != nil {
			send(ui.Event{Kind: ui.EventStatus, Status: err.Error()})
		}
	}()

	cfg := s.Config()
	model := ui.NewDashboard(filepath.Base(cfg.Root), cfg.SrcRoot(), nil, events, ctx.Done())
	err = ui.Run(ctx, cmd.OutOrStdout(), model)
	stop()
	return err
}
