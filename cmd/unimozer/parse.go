package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"unimozer/internal/observ"
	"unimozer/internal/session"
	"unimozer/internal/uml"
)

var parseCmd = &cobra.Command{
	Use:   "parse [project-dir]",
	Short: "Parse a project and print its class graph",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runParse,
}

func init() {
	parseCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	parseCmd.Flags().Bool("timings", false, "print step timings to stderr")
}

func runParse(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	timings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	timer := observ.NewTimer()
	if timings {
		defer timer.WriteSummary(cmd.ErrOrStderr())
	}

	end := timer.Begin("session")
	s, err := newSession(cmd, projectDir(args), session.Options{})
	if err != nil {
		end("failed")
		return err
	}
	end(s.Config().Root)
	defer s.Close(cmd.Context())

	end = timer.Begin("open")
	g, err := s.Open(cmd.Context())
	if err != nil {
		end("failed")
		return err
	}
	end(fmt.Sprintf("%d nodes, %d edges", len(g.Nodes), len(g.Edges)))
	status := s.Coordinator().Status()
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			uml.Graph
			Status string `json:"status,omitempty"`
		}{g, status})
	}
	renderGraph(cmd.OutOrStdout(), g)
	printStatus(cmd.ErrOrStderr(), status)
	return nil
}

func renderGraph(w io.Writer, g uml.Graph) {
	nodes := append([]uml.Node(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	for _, n := range nodes {
		kind := n.Kind
		if n.IsAbstract {
			kind = "abstract " + kind
		}
		line := fmt.Sprintf("%s %s", dimColor.Sprint(kind), accentColor.Sprint(n.ID))
		if n.IsInvalid {
			line += " " + warnColor.Sprint("(invalid)")
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "  %d fields, %d methods\n", len(n.Fields), len(n.Methods))
	}
	edges := append([]uml.Edge(nil), g.Edges...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	for _, e := range edges {
		fmt.Fprintf(w, "%s %s %s\n", e.From, dimColor.Sprintf("-%s->", e.Kind), e.To)
	}
}
