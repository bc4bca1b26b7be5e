package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"unimozer/internal/trace"
	"unimozer/internal/uml"
	"unimozer/internal/workspace"
)

// File is the layout file name inside the project meta directory.
const File = "diagram.json"

// FS is the filesystem the store persists through.
type FS interface {
	ReadFile(path string) (string, error)
	WriteFile(path, text string) error
}

// Store owns the diagram state of one project. It is the only writer of
// the layout file.
type Store struct {
	mu     sync.Mutex
	fs     FS
	root   string
	state  State
	exists bool // a current-format file is on disk
	loaded bool
	logger *slog.Logger
	tracer trace.Tracer
}

type Options struct {
	FS     FS
	Logger *slog.Logger
	Tracer trace.Tracer
}

func NewStore(root string, opts Options) *Store {
	if opts.FS == nil {
		opts.FS = workspace.Disk{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	return &Store{
		fs:     opts.FS,
		root:   root,
		state:  NewState(),
		logger: opts.Logger.With(slog.String("component", "diagram")),
		tracer: opts.Tracer,
	}
}

// Path returns the layout file location for the current project.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pathLocked()
}

func (s *Store) pathLocked() string {
	return filepath.Join(s.root, workspace.MetaDir, File)
}

// State returns a snapshot of the positions.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// loadLocked reads the layout file once. A missing file leaves the state
// empty; a corrupt one is logged and treated as missing.
func (s *Store) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	text, err := s.fs.ReadFile(s.pathLocked())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("read diagram layout", slog.Any("error", err))
		}
		return
	}
	var st State
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		s.logger.Warn("decode diagram layout", slog.String("path", s.pathLocked()), slog.Any("error", err))
		return
	}
	if st.Nodes == nil {
		st.Nodes = make(map[string]Position)
	}
	s.state = st
	s.exists = true
}

func (s *Store) legacyLocked(ids []string) State {
	text, err := s.fs.ReadFile(filepath.Join(s.root, LegacyFile))
	if err != nil {
		return NewState()
	}
	seeded := seedFromLegacy(parseLegacy(text), ids)
	if len(seeded.Nodes) > 0 {
		s.logger.Info("imported legacy layout", slog.Int("nodes", len(seeded.Nodes)))
	}
	return seeded
}

// Reconcile merges the layout with the node ids of g, keeping positions of
// invalid nodes. The file is written only when the id set changed or no
// layout file existed yet. On write failure the in-memory state is left
// untouched and the error is returned.
func (s *Store) Reconcile(ctx context.Context, g uml.Graph) (State, bool, error) {
	_, span := trace.Start(trace.WithTracer(ctx, s.tracer), trace.ScopeComponent, "diagram.reconcile")
	defer span.End("")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	ids := g.NodeIDs()
	base := s.state
	if !s.exists && len(base.Nodes) == 0 {
		base = s.legacyLocked(ids)
	}
	merged, changed := Merge(base, ids, g.InvalidIDs())
	if !changed && s.exists {
		return s.state.Clone(), false, nil
	}
	if err := s.writeLocked(merged); err != nil {
		return s.state.Clone(), changed, err
	}
	s.state = merged
	s.exists = true
	span.WithExtra("nodes", strconv.Itoa(len(merged.Nodes)))
	return merged.Clone(), changed, nil
}

// Move sets the position of a known node and persists it.
func (s *Store) Move(id string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	if _, ok := s.state.Nodes[id]; !ok {
		return errors.New("unknown diagram node " + id)
	}
	next := s.state.Clone()
	next.Nodes[id] = Position{X: x, Y: y}
	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.state = next
	s.exists = true
	return nil
}

func (s *Store) writeLocked(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return s.fs.WriteFile(s.pathLocked(), string(data)+"\n")
}

// Reset switches to another project and forgets the in-memory state.
func (s *Store) Reset(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
	s.state = NewState()
	s.exists = false
	s.loaded = false
}
