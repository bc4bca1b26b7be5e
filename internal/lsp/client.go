// Package lsp is a client for an external language server process: it
// spawns the server for a project, keeps the JSON-RPC session, forwards
// diagnostics and reports crashes.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"fortio.org/safecast"
)

// EventKind names a lifecycle or diagnostics event.
type EventKind int

const (
	EventReady EventKind = iota + 1
	EventError
	EventCrashed
	EventDiagnostics
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventError:
		return "error"
	case EventCrashed:
		return "crashed"
	case EventDiagnostics:
		return "diagnostics"
	default:
		return "unknown"
	}
}

// Event is delivered to Options.OnEvent from client goroutines.
type Event struct {
	Kind        EventKind
	Root        string
	URI         string
	Diagnostics []Diagnostic
	ExitCode    int
	Err         error
}

type Options struct {
	Command        string
	Args           []string
	Env            []string
	RequestTimeout time.Duration
	StopTimeout    time.Duration
	// Stderr receives the server log. Defaults to discarding it.
	Stderr  io.Writer
	Logger  *slog.Logger
	OnEvent func(Event)
}

// Client manages one language server process at a time. Each Start opens a
// new run; events from an older run are never delivered.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	runID uint64
	proc  *process
}

type process struct {
	runID    uint64
	root     string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	conn     *conn
	readDone chan struct{}
	exited   chan struct{}
}

func NewClient(opts Options) *Client {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{opts: opts, logger: opts.Logger.With(slog.String("component", "lsp"))}
}

func (c *Client) emit(ev Event) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}

// Start launches the server in root and performs the initialize handshake.
// A running server is stopped first. Ready or error is also reported as an
// event.
func (c *Client) Start(ctx context.Context, root string) error {
	if c.opts.Command == "" {
		return fmt.Errorf("%w: no command configured", ErrServerNotRunning)
	}
	c.mu.Lock()
	c.runID++
	runID := c.runID
	old := c.proc
	c.proc = nil
	c.mu.Unlock()
	if old != nil {
		c.stopProcess(ctx, old)
	}

	p, err := c.spawn(runID, root)
	if err != nil {
		c.emit(Event{Kind: EventError, Root: root, Err: err})
		return err
	}
	c.mu.Lock()
	if c.runID != runID {
		c.mu.Unlock()
		c.kill(p)
		return ErrServerNotRunning
	}
	c.proc = p
	c.mu.Unlock()

	if err := c.initialize(ctx, p); err != nil {
		err = fmt.Errorf("%w: %v", ErrInitializeFailed, err)
		c.mu.Lock()
		if c.proc == p {
			c.proc = nil
			c.runID++
		}
		c.mu.Unlock()
		c.stopProcess(ctx, p)
		c.emit(Event{Kind: EventError, Root: root, Err: err})
		return err
	}
	c.logger.Info("language server ready", slog.String("root", root), slog.Uint64("run", runID))
	c.emit(Event{Kind: EventReady, Root: root})
	return nil
}

func (c *Client) spawn(runID uint64, root string) (*process, error) {
	cmd := exec.Command(c.opts.Command, c.opts.Args...)
	cmd.Dir = root
	cmd.Stderr = c.opts.Stderr
	if len(c.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), c.opts.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start language server: %w", err)
	}
	p := &process{
		runID:    runID,
		root:     root,
		cmd:      cmd,
		stdin:    stdin,
		readDone: make(chan struct{}),
		exited:   make(chan struct{}),
	}
	p.conn = newConn(stdout, stdin, c.opts.RequestTimeout, func(method string, params json.RawMessage) {
		c.handleNotification(p, method, params)
	})
	go func() {
		defer close(p.readDone)
		p.conn.readLoop()
	}()
	go c.wait(p)
	c.logger.Debug("language server spawned", slog.Int("pid", cmd.Process.Pid), slog.Uint64("run", runID))
	return p, nil
}

// wait reaps the process and reports a crash if its run is still current.
func (c *Client) wait(p *process) {
	<-p.readDone
	err := p.cmd.Wait()
	close(p.exited)
	p.conn.close(ErrServerCrashed)

	c.mu.Lock()
	current := c.proc == p && c.runID == p.runID
	if current {
		c.proc = nil
	}
	c.mu.Unlock()
	if !current {
		return
	}
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	c.logger.Warn("language server exited", slog.String("root", p.root), slog.Int("code", code), slog.Any("error", err))
	c.emit(Event{Kind: EventCrashed, Root: p.root, ExitCode: code, Err: ErrServerCrashed})
}

func (c *Client) initialize(ctx context.Context, p *process) error {
	rootURI := PathToURI(p.root)
	name := filepath.Base(p.root)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "project"
	}
	params := initializeParams{
		ProcessID: os.Getpid(),
		RootURI:   rootURI,
		Capabilities: clientCaps{TextDocument: textDocumentCaps{
			Synchronization: syncCaps{DidSave: true},
		}},
		WorkspaceFolders: []workspaceFolder{{URI: rootURI, Name: name}},
	}
	if err := p.conn.call(ctx, "initialize", params, nil); err != nil {
		return err
	}
	return p.conn.notifyServer("initialized", struct{}{})
}

func (c *Client) handleNotification(p *process, method string, params json.RawMessage) {
	if method != "textDocument/publishDiagnostics" {
		return
	}
	c.mu.Lock()
	current := c.proc == p
	c.mu.Unlock()
	if !current {
		return
	}
	var pd publishDiagnosticsParams
	if err := json.Unmarshal(params, &pd); err != nil {
		c.logger.Debug("malformed diagnostics", slog.Any("error", err))
		return
	}
	if pd.Diagnostics == nil {
		pd.Diagnostics = []Diagnostic{}
	}
	c.emit(Event{Kind: EventDiagnostics, Root: p.root, URI: pd.URI, Diagnostics: pd.Diagnostics})
}

// Stop shuts the server down: shutdown request, exit notification, then a
// kill if it has not exited within the stop timeout.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.runID++
	p := c.proc
	c.proc = nil
	c.mu.Unlock()
	if p != nil {
		c.stopProcess(ctx, p)
	}
	return nil
}

func (c *Client) stopProcess(ctx context.Context, p *process) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.StopTimeout)
	defer cancel()
	_ = p.conn.call(stopCtx, "shutdown", nil, nil)
	_ = p.conn.notifyServer("exit", nil)
	_ = p.stdin.Close()
	select {
	case <-p.exited:
	case <-stopCtx.Done():
		c.kill(p)
	}
	p.conn.close(ErrServerNotRunning)
}

func (c *Client) kill(p *process) {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.exited
}

// Running reports whether a server process is up for root.
func (c *Client) Running(root string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil && c.proc.root == root
}

func (c *Client) current() (*process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil {
		return nil, ErrServerNotRunning
	}
	return c.proc, nil
}

// DidOpen announces an opened document. Version is always 1.
func (c *Client) DidOpen(uri, text, languageID string) error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.conn.notifyServer("textDocument/didOpen", didOpenParams{
		TextDocument: textDocumentItem{URI: uri, LanguageID: languageID, Version: 1, Text: text},
	})
}

// DidChange sends the full new text of a document.
func (c *Client) DidChange(uri string, version int, text string) error {
	p, err := c.current()
	if err != nil {
		return err
	}
	v, err := safecast.Conv[int32](version)
	if err != nil {
		return fmt.Errorf("document version: %w", err)
	}
	return p.conn.notifyServer("textDocument/didChange", didChangeParams{
		TextDocument:   versionedTextDocumentIdentifier{URI: uri, Version: v},
		ContentChanges: []contentChange{{Text: text}},
	})
}

func (c *Client) DidClose(uri string) error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.conn.notifyServer("textDocument/didClose", didCloseParams{
		TextDocument: textDocumentIdentifier{URI: uri},
	})
}

// FormatDocument asks the server to format the document as it knows it.
func (c *Client) FormatDocument(ctx context.Context, uri string, tabSize int, insertSpaces bool) ([]TextEdit, error) {
	p, err := c.current()
	if err != nil {
		return nil, err
	}
	size, err := safecast.Conv[uint32](tabSize)
	if err != nil {
		return nil, fmt.Errorf("tab size: %w", err)
	}
	var edits []TextEdit
	err = p.conn.call(ctx, "textDocument/formatting", documentFormattingParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Options:      formattingOptions{TabSize: size, InsertSpaces: insertSpaces},
	}, &edits)
	if err != nil {
		return nil, err
	}
	return edits, nil
}
