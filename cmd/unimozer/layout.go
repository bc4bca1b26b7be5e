package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"unimozer/internal/diagram"
	"unimozer/internal/session"
)

var layoutCmd = &cobra.Command{
	Use:   "layout [project-dir]",
	Short: "Reconcile and print the diagram layout",
	Long:  "Parses the project, reconciles the stored diagram layout with the class graph and prints node positions. --move sets positions before printing.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLayout,
}

func init() {
	layoutCmd.Flags().StringArray("move", nil, "set a node position, ID=X,Y (repeatable)")
}

type move struct {
	id   string
	x, y float64
}

func parseMove(s string) (move, error) {
	id, coords, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(id) == "" {
		return move{}, fmt.Errorf("invalid --move %q (expected ID=X,Y)", s)
	}
	xs, ys, ok := strings.Cut(coords, ",")
	if !ok {
		return move{}, fmt.Errorf("invalid --move %q (expected ID=X,Y)", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return move{}, fmt.Errorf("invalid x in --move %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return move{}, fmt.Errorf("invalid y in --move %q: %w", s, err)
	}
	return move{id: strings.TrimSpace(id), x: x, y: y}, nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	rawMoves, err := cmd.Flags().GetStringArray("move")
	if err != nil {
		return fmt.Errorf("failed to get move flag: %w", err)
	}
	moves := make([]move, 0, len(rawMoves))
	for _, raw := range rawMoves {
		m, err := parseMove(raw)
		if err != nil {
			return err
		}
		moves = append(moves, m)
	}

	s, err := newSession(cmd, projectDir(args), session.Options{})
	if err != nil {
		return err
	}
	defer s.Close(cmd.Context())

	if _, err := s.Open(cmd.Context()); err != nil {
		return err
	}
	for _, m := range moves {
		if err := s.MoveNode(m.id, m.x, m.y); err != nil {
			return err
		}
	}
	if err := s.Archive().AwaitCompletion(cmd.Context()); err != nil {
		return err
	}
	renderLayout(cmd.OutOrStdout(), s.Layout().State())
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", dimColor.Sprint("layout:"), s.Layout().Path())
	return nil
}

func renderLayout(w io.Writer, st diagram.State) {
	ids := make([]string, 0, len(st.Nodes))
	for id := range st.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := st.Nodes[id]
		fmt.Fprintf(w, "%s\t%g\t%g\n", accentColor.Sprint(id), p.X, p.Y)
	}
}
