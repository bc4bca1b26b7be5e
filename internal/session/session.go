// Package session wires the engine components for one open project: drafts
// feed the debounced reparse and the language server mirror, new graphs
// reconcile the diagram layout, and saves and layout changes feed the
// archive queue when the project is stored packed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"unimozer/internal/archive"
	"unimozer/internal/config"
	"unimozer/internal/diagram"
	"unimozer/internal/draft"
	"unimozer/internal/lsp"
	"unimozer/internal/mirror"
	"unimozer/internal/parse"
	"unimozer/internal/parserbridge"
	"unimozer/internal/trace"
	"unimozer/internal/uml"
	"unimozer/internal/workspace"
)

// ErrClosed is returned by operations started after Close.
var ErrClosed = errors.New("session closed")

// readConcurrency bounds parallel file reads while opening a project.
const readConcurrency = 8

// FS is the filesystem the session reads and saves through.
type FS interface {
	ReadFile(path string) (string, error)
	WriteFile(path, text string) error
	Remove(path string) error
	ListTree(root string) (*workspace.FileNode, error)
}

// LanguageServer is the mirror backend plus lifecycle control.
type LanguageServer interface {
	mirror.Backend
	Stop(ctx context.Context) error
}

type Options struct {
	Config *config.Config
	FS     FS
	// Parser defaults to a parser bridge running Config.Parser.Command.
	Parser parse.Parser
	// LanguageServer defaults to an lsp.Client when Config names a command.
	// The session routes its events through HandleServerEvent.
	LanguageServer LanguageServer
	ArchiveWriter  archive.Writer

	OnGraph       parse.GraphListener
	OnLayout      func(diagram.State)
	OnDiagnostics mirror.DiagnosticsListener
	OnBuffer      func(path, text string)
	// OnStatus receives status-line messages: parse status, I/O failures.
	OnStatus func(string)

	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.MeterProvider
}

// Session is one open project.
type Session struct {
	id     string
	opts   Options
	logger *slog.Logger
	fs     FS

	drafts  *draft.Store
	coord   *parse.Coordinator
	layout  *diagram.Store
	mirror  *mirror.Mirror
	archive *archive.Queue
	server  LanguageServer
	bridge  *parserbridge.Bridge

	mu      sync.Mutex
	cfg     *config.Config
	ctx     context.Context
	cancel  context.CancelFunc
	watcher *workspace.Watcher
	closed  bool
}

// New builds the components for opts.Config without touching the disk.
func New(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.New("session: nil config")
	}
	if opts.FS == nil {
		opts.FS = workspace.Disk{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	cfg := opts.Config
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	s := &Session{
		id:     id,
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "session"), slog.String("session", id)),
		fs:     opts.FS,
		drafts: draft.NewStore(),
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	parser := opts.Parser
	if parser == nil {
		s.bridge = parserbridge.New(parserbridge.Options{
			Command: cfg.Parser.Command,
			Args:    cfg.Parser.Args,
			Dir:     cfg.Root,
			Logger:  opts.Logger,
		})
		parser = s.bridge
	}
	s.coord = parse.New(parse.Options{
		Root:     cfg.Root,
		SrcRoot:  cfg.SrcRoot(),
		Debounce: cfg.Parser.Debounce.Duration,
		Drafts:   s.drafts,
		Parser:   parser,
		Files:    s.sourceFiles,
		Cache:    uml.OpenCache(filepath.Join(cfg.Root, workspace.MetaDir)),
		Logger:   opts.Logger,
		Tracer:   opts.Tracer,
		Meter:    opts.Meter,
	})
	s.layout = diagram.NewStore(cfg.Root, diagram.Options{FS: opts.FS, Logger: opts.Logger, Tracer: opts.Tracer})
	s.archive = archive.NewQueue(archive.Options{
		Writer: opts.ArchiveWriter,
		Logger: opts.Logger,
		Tracer: opts.Tracer,
		Meter:  opts.Meter,
	})

	s.server = opts.LanguageServer
	if s.server == nil && cfg.LanguageServer.Command != "" {
		s.server = lsp.NewClient(lsp.Options{
			Command: cfg.LanguageServer.Command,
			Args:    cfg.LanguageServer.Args,
			Logger:  opts.Logger,
			OnEvent: s.HandleServerEvent,
		})
	}
	var backend mirror.Backend
	if s.server != nil {
		backend = s.server
	}
	s.mirror = mirror.New(mirror.Options{
		Root:         cfg.Root,
		LanguageID:   cfg.LanguageServer.LanguageID,
		Debounce:     cfg.LanguageServer.ChangeDebounce.Duration,
		Backend:      backend,
		Drafts:       s.drafts,
		TabSize:      cfg.Editor.TabSize,
		InsertSpaces: cfg.Editor.InsertSpaces,
		OnBuffer:     opts.OnBuffer,
		Logger:       opts.Logger,
		Tracer:       opts.Tracer,
		Meter:        opts.Meter,
	})
	if opts.OnDiagnostics != nil {
		s.mirror.Subscribe(opts.OnDiagnostics)
	}
	s.coord.Subscribe(s.onGraph)
	return s, nil
}

func (s *Session) sourceFiles(srcRoot string) ([]string, error) {
	tree, err := s.fs.ListTree(srcRoot)
	if err != nil && !errors.Is(err, workspace.ErrNoSources) {
		return nil, err
	}
	return tree.SourceFiles(), nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Config returns the active project settings.
func (s *Session) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Session) Drafts() *draft.Store { return s.drafts }
func (s *Session) Coordinator() *parse.Coordinator { return s.coord }
func (s *Session) Layout() *diagram.Store { return s.layout }
func (s *Session) Mirror() *mirror.Mirror { return s.mirror }
func (s *Session) Archive() *archive.Queue { return s.archive }

func (s *Session) status(msg string) {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(msg)
	}
}

func (s *Session) ioFailure(err error) error {
	s.status(workspace.StatusMessage(err, workspace.StatusWidth))
	return err
}

// Open loads every source file into the draft store, restores the cached
// graph, starts the language server and runs the first parse.
func (s *Session) Open(ctx context.Context) (uml.Graph, error) {
	cfg := s.Config()
	if err := s.loadSources(ctx, cfg.SrcRoot()); err != nil {
		return uml.Graph{}, s.ioFailure(err)
	}
	if s.coord.Restore() {
		s.logger.Debug("restored cached graph", slog.String("root", cfg.Root))
	}
	if s.server != nil {
		if err := s.server.Start(ctx, cfg.Root); err != nil {
			// parsing and layout keep working without a server
			s.logger.Warn("language server unavailable", slog.Any("error", err))
		}
	}
	g, _ := s.coord.ParseNow(ctx)
	s.logger.Info("project opened",
		slog.String("root", cfg.Root),
		slog.Int("files", len(s.drafts.Paths())),
		slog.Int("classes", len(g.Nodes)),
	)
	return g, nil
}

func (s *Session) loadSources(ctx context.Context, srcRoot string) error {
	files, err := s.sourceFiles(srcRoot)
	if err != nil {
		return &workspace.IOError{Op: "list", Path: srcRoot, Err: err}
	}
	contents := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := s.fs.ReadFile(path)
			if err != nil {
				return err
			}
			contents[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, path := range files {
		s.drafts.Load(path, contents[i])
	}
	return nil
}

func (s *Session) onGraph(g uml.Graph, status string) {
	if s.opts.OnGraph != nil {
		s.opts.OnGraph(g, status)
	}
	s.status(status)
	st, changed, err := s.layout.Reconcile(s.ctx, g)
	if err != nil {
		s.ioFailure(err)
		return
	}
	if s.opts.OnLayout != nil {
		s.opts.OnLayout(st)
	}
	if changed {
		s.requestArchive()
	}
}

func (s *Session) requestArchive() {
	cfg := s.Config()
	if !cfg.Packed() {
		return
	}
	s.archive.Request(cfg.Root, cfg.ArchivePath())
}

// OpenFile returns the current text of path and makes it the displayed
// document.
func (s *Session) OpenFile(path string) (string, error) {
	text, err := s.readDraft(path)
	if err != nil {
		return "", s.ioFailure(err)
	}
	if err := s.mirror.SetActive(path, text); err != nil {
		s.logger.Debug("mirror open", slog.String("path", path), slog.Any("error", err))
	}
	return text, nil
}

func (s *Session) readDraft(path string) (string, error) {
	if d, ok := s.drafts.Get(path); ok {
		return d.Content, nil
	}
	text, err := s.fs.ReadFile(path)
	if err != nil {
		return "", err
	}
	s.drafts.Load(path, text)
	d, _ := s.drafts.Get(path)
	return d.Content, nil
}

// Edit records a keystroke-level change of path.
func (s *Session) Edit(path, text string) {
	s.drafts.Update(path, text)
	if err := s.mirror.Change(path, text); err != nil {
		s.logger.Debug("mirror change", slog.String("path", path), slog.Any("error", err))
	}
	s.coord.Schedule()
}

// Save writes the draft of path to disk, formatting it first when the
// project asks for it. A failed write leaves the draft dirty.
func (s *Session) Save(ctx context.Context, path string) error {
	if err := s.save(ctx, path); err != nil {
		return s.ioFailure(err)
	}
	s.requestArchive()
	return nil
}

func (s *Session) save(ctx context.Context, path string) error {
	cfg := s.Config()
	before, ok := s.drafts.Get(path)
	if !ok {
		return fmt.Errorf("save %s: not loaded", path)
	}
	formatted := false
	if cfg.Editor.FormatOnSave {
		text, err := s.mirror.Format(ctx, path)
		if err != nil {
			s.logger.Info("format on save skipped", slog.String("path", path), slog.Any("error", err))
		} else if text != before.Content {
			formatted = true
			s.coord.Schedule()
		}
	}
	d, ok := s.drafts.Get(path)
	if !ok {
		return fmt.Errorf("save %s: not loaded", path)
	}
	if err := s.fs.WriteFile(d.Path, d.Content); err != nil {
		if formatted {
			s.undoFormat(d.Path, d.Content, before.Content)
		}
		return err
	}
	// edits made during the write keep the draft dirty
	s.drafts.MarkSaved(d.Path, d.Content)
	return nil
}

// undoFormat puts the pre-format text back unless the draft was edited
// after formatting.
func (s *Session) undoFormat(path, formatted, original string) {
	if cur, ok := s.drafts.Get(path); !ok || cur.Content != formatted {
		return
	}
	s.drafts.Update(path, original)
	if err := s.mirror.Change(path, original); err != nil {
		s.logger.Debug("mirror change", slog.String("path", path), slog.Any("error", err))
	}
	if s.opts.OnBuffer != nil && s.mirror.Active() == draft.Key(path) {
		s.opts.OnBuffer(path, original)
	}
	s.coord.Schedule()
}

// SaveAll writes every dirty draft. Writes run in parallel; all failures
// are reported together.
func (s *Session) SaveAll(ctx context.Context) error {
	paths := s.drafts.DirtyPaths()
	if len(paths) == 0 {
		return nil
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(readConcurrency)
	for _, path := range paths {
		g.Go(func() error {
			if err := s.save(ctx, path); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return s.ioFailure(err)
	}
	s.requestArchive()
	return nil
}

// Format formats path through the language server.
func (s *Session) Format(ctx context.Context, path string) (string, error) {
	text, err := s.mirror.Format(ctx, path)
	if err != nil {
		s.status(err.Error())
		return "", err
	}
	s.coord.Schedule()
	return text, nil
}

// Delete removes path from disk and forgets its draft.
func (s *Session) Delete(path string) error {
	if err := s.fs.Remove(path); err != nil {
		return s.ioFailure(err)
	}
	if err := s.mirror.Close(path); err != nil {
		s.logger.Debug("mirror close", slog.String("path", path), slog.Any("error", err))
	}
	s.drafts.Remove(path)
	s.coord.Schedule()
	s.requestArchive()
	return nil
}

// MoveNode stores a new diagram position for id.
func (s *Session) MoveNode(id string, x, y float64) error {
	if err := s.layout.Move(id, x, y); err != nil {
		return s.ioFailure(err)
	}
	s.requestArchive()
	return nil
}

// HandleChanges applies external file changes. Clean drafts follow the
// disk; dirty drafts keep the user's text.
func (s *Session) HandleChanges(changes []workspace.Change) {
	reparse := false
	for _, ch := range changes {
		switch ch.Op {
		case workspace.OpRemove, workspace.OpRename:
			if s.drafts.IsPathDirty(ch.Path) {
				continue
			}
			if _, ok := s.drafts.Get(ch.Path); ok {
				_ = s.mirror.Close(ch.Path)
				s.drafts.Remove(ch.Path)
				reparse = true
			}
		default:
			if s.drafts.IsPathDirty(ch.Path) {
				continue
			}
			text, err := s.fs.ReadFile(ch.Path)
			if err != nil {
				s.logger.Debug("reload changed file", slog.String("path", ch.Path), slog.Any("error", err))
				continue
			}
			if d, ok := s.drafts.Get(ch.Path); ok && d.Content == text {
				continue
			}
			s.drafts.UpdateWithBaseline(ch.Path, text, text)
			if s.mirror.IsOpen(ch.Path) {
				_ = s.mirror.Change(ch.Path, text)
			}
			reparse = true
		}
	}
	if reparse {
		s.coord.Schedule()
	}
}

// Watch starts reporting external changes under the source root until
// Close or ctx is done.
func (s *Session) Watch(ctx context.Context) error {
	cfg := s.Config()
	w, err := workspace.NewWatcher(cfg.SrcRoot(), s.HandleChanges, workspace.WatcherOptions{Logger: s.opts.Logger})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		w.Stop()
		return ErrClosed
	}
	old := s.watcher
	s.watcher = w
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	return nil
}

// HandleServerEvent routes language server events to the mirror.
func (s *Session) HandleServerEvent(ev lsp.Event) {
	switch ev.Kind {
	case lsp.EventReady:
		if err := s.mirror.HandleReady(); err != nil {
			s.logger.Debug("reopen active document", slog.Any("error", err))
		}
	case lsp.EventCrashed:
		go func() {
			if _, err := s.mirror.HandleCrash(s.ctx, ev.Root); err != nil {
				s.status(err.Error())
			}
		}()
	case lsp.EventDiagnostics:
		s.mirror.ApplyDiagnostics(ev.URI, ev.Diagnostics)
	case lsp.EventError:
		s.logger.Warn("language server error", slog.Any("error", ev.Err))
	}
}

// Switch closes the current project state and opens cfg. Leaving packed
// storage drains and resets the archive queue.
func (s *Session) Switch(ctx context.Context, cfg *config.Config) (uml.Graph, error) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}

	if prev.Packed() {
		if err := s.archive.AwaitCompletion(ctx); err != nil {
			s.logger.Warn("archive sync before switch", slog.Any("error", err))
		}
		if !cfg.Packed() {
			if err := s.archive.Reset(ctx); err != nil {
				return uml.Graph{}, err
			}
		}
	}
	if s.server != nil {
		_ = s.server.Stop(ctx)
	}
	if s.bridge != nil {
		s.bridge.Reset(cfg.Root)
	}
	s.drafts.Reset()
	s.coord.Reset(cfg.Root, cfg.SrcRoot(), uml.OpenCache(filepath.Join(cfg.Root, workspace.MetaDir)))
	s.layout.Reset(cfg.Root)
	s.mirror.Reset(cfg.Root)
	return s.Open(ctx)
}

// Close stops timers and processes after waiting for a pending archive
// write.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	s.coord.Close()
	archiveErr := s.archive.AwaitCompletion(ctx)
	var errs []error
	if archiveErr != nil {
		errs = append(errs, archiveErr)
	}
	if s.server != nil {
		if err := s.server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.cancel()
	return errors.Join(errs...)
}
