// Package mirror keeps the language server's view of open documents in step
// with the editor drafts: one didOpen per open, debounced full-text
// didChange notifications, and a flush before every didClose.
package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"unimozer/internal/draft"
	"unimozer/internal/lsp"
	"unimozer/internal/trace"
)

// DefaultDebounce is the quiet period before buffered edits are sent.
const DefaultDebounce = 200 * time.Millisecond

var ErrFormatFailed = errors.New("format failed")

// Backend is the language server as seen by the mirror. *lsp.Client
// implements it.
type Backend interface {
	Start(ctx context.Context, root string) error
	DidOpen(uri, text, languageID string) error
	DidChange(uri string, version int, text string) error
	DidClose(uri string) error
	FormatDocument(ctx context.Context, uri string, tabSize int, insertSpaces bool) ([]lsp.TextEdit, error)
}

// DiagnosticsListener receives a changed diagnostics set for a path.
type DiagnosticsListener func(path string, diags []lsp.Diagnostic)

type Options struct {
	Root         string
	LanguageID   string
	Debounce     time.Duration
	Backend      Backend
	Drafts       *draft.Store
	TabSize      int
	InsertSpaces bool
	// OnBuffer replaces the text of the displayed editor after formatting.
	OnBuffer func(path, text string)
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Meter    metric.MeterProvider
}

type doc struct {
	path    string
	uri     string
	version int
	sent    string
	pending *string
	timer   *time.Timer
	// gen invalidates timers that fired after being replaced.
	gen uint64
}

// Mirror tracks which documents the language server has open.
type Mirror struct {
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics

	// mu guards docs and orders every notification sent for a path.
	mu         sync.Mutex
	root       string
	docs       map[string]*doc
	active     string
	activeText string

	diagMu       sync.Mutex
	diagnostics  map[string][]lsp.Diagnostic
	fingerprints map[string]string
	listeners    []DiagnosticsListener
}

func New(opts Options) *Mirror {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.LanguageID == "" {
		opts.LanguageID = "java"
	}
	if opts.TabSize <= 0 {
		opts.TabSize = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	return &Mirror{
		opts:         opts,
		logger:       opts.Logger.With(slog.String("component", "mirror")),
		tracer:       opts.Tracer,
		metrics:      newMetrics(opts.Meter),
		root:         opts.Root,
		docs:         make(map[string]*doc),
		diagnostics:  make(map[string][]lsp.Diagnostic),
		fingerprints: make(map[string]string),
	}
}

// Open announces path with version 1. Already open paths are left alone.
func (m *Mirror) Open(path, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(draft.Key(path), text)
}

func (m *Mirror) openLocked(key, text string) error {
	if _, ok := m.docs[key]; ok {
		return nil
	}
	d := &doc{path: key, uri: lsp.PathToURI(key), version: 1, sent: text}
	if err := m.send("didOpen", func(b Backend) error { return b.DidOpen(d.uri, text, m.opts.LanguageID) }); err != nil {
		return err
	}
	m.docs[key] = d
	if key == m.active {
		m.activeText = text
	}
	return nil
}

// Change records new text for path. A closed path is opened with it; an
// open one buffers it until the debounce fires.
func (m *Mirror) Change(path, text string) error {
	key := draft.Key(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == m.active {
		m.activeText = text
	}
	d, ok := m.docs[key]
	if !ok {
		return m.openLocked(key, text)
	}
	d.pending = &text
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(m.opts.Debounce, func() {
		m.flushTimer(key, gen)
	})
	return nil
}

func (m *Mirror) flushTimer(key string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[key]
	if !ok || d.gen != gen {
		return
	}
	if err := m.flushLocked(d); err != nil {
		m.logger.Warn("send buffered change", slog.String("path", key), slog.Any("error", err))
	}
}

// Flush sends the buffered change for path now, if any.
func (m *Mirror) Flush(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[draft.Key(path)]
	if !ok {
		return nil
	}
	return m.flushLocked(d)
}

func (m *Mirror) flushLocked(d *doc) error {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.pending == nil {
		return nil
	}
	text := *d.pending
	d.pending = nil
	span := trace.Begin(m.tracer, trace.ScopeFile, "mirror.flush", 0)
	span.WithExtra("path", d.path)
	next := d.version + 1
	err := m.send("didChange", func(b Backend) error { return b.DidChange(d.uri, next, text) })
	if err != nil {
		span.End("error")
		return err
	}
	d.version = next
	d.sent = text
	span.WithExtra("version", strconv.Itoa(next))
	span.End("")
	return nil
}

// Close flushes any buffered change and closes path. Its diagnostics are
// cleared.
func (m *Mirror) Close(path string) error {
	key := draft.Key(path)
	m.mu.Lock()
	err := m.closeLocked(key)
	m.mu.Unlock()
	m.clearDiagnostics(key)
	return err
}

func (m *Mirror) closeLocked(key string) error {
	d, ok := m.docs[key]
	if !ok {
		return nil
	}
	flushErr := m.flushLocked(d)
	d.gen++
	delete(m.docs, key)
	closeErr := m.send("didClose", func(b Backend) error { return b.DidClose(d.uri) })
	return errors.Join(flushErr, closeErr)
}

// SetActive makes path the displayed document: the previous one is
// flushed and closed, then path is opened.
func (m *Mirror) SetActive(path, text string) error {
	key := draft.Key(path)
	m.mu.Lock()
	prev := m.active
	var closeErr error
	if prev != "" && prev != key {
		closeErr = m.closeLocked(prev)
	}
	m.active = key
	m.activeText = text
	openErr := m.openLocked(key, text)
	m.mu.Unlock()
	if prev != "" && prev != key {
		m.clearDiagnostics(prev)
	}
	return errors.Join(closeErr, openErr)
}

// Active returns the displayed path.
func (m *Mirror) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// IsOpen reports whether path is open on the server side.
func (m *Mirror) IsOpen(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[draft.Key(path)]
	return ok
}

// Version returns the last version sent for path, 0 when closed.
func (m *Mirror) Version(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[draft.Key(path)]; ok {
		return d.version
	}
	return 0
}

// HandleCrash forgets every open document after the server for root died
// and restarts the backend. Crashes of other roots are ignored.
func (m *Mirror) HandleCrash(ctx context.Context, root string) (bool, error) {
	m.mu.Lock()
	if root != m.root {
		m.mu.Unlock()
		m.logger.Debug("ignoring crash of another project", slog.String("root", root))
		return false, nil
	}
	m.dropDocsLocked()
	m.mu.Unlock()
	m.resetDiagnostics()

	m.logger.Warn("language server crashed, restarting", slog.String("root", root))
	if m.opts.Backend == nil {
		return true, nil
	}
	if err := m.opts.Backend.Start(ctx, root); err != nil {
		return true, fmt.Errorf("restart language server: %w", err)
	}
	return true, nil
}

// HandleReady reopens the active document after the server (re)started.
// Other documents reopen when they are next edited or activated.
func (m *Mirror) HandleReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return nil
	}
	text := m.activeText
	if m.opts.Drafts != nil {
		if d, ok := m.opts.Drafts.Get(m.active); ok {
			text = d.Content
		}
	}
	return m.openLocked(m.active, text)
}

// Reset switches to another project without notifying the old server.
func (m *Mirror) Reset(root string) {
	m.mu.Lock()
	m.dropDocsLocked()
	m.root = root
	m.active = ""
	m.activeText = ""
	m.mu.Unlock()
	m.resetDiagnostics()
}

func (m *Mirror) dropDocsLocked() {
	for _, d := range m.docs {
		if d.timer != nil {
			d.timer.Stop()
		}
		d.gen++
	}
	m.docs = make(map[string]*doc)
}

func (m *Mirror) send(method string, fn func(Backend) error) error {
	if m.opts.Backend == nil {
		return lsp.ErrServerNotRunning
	}
	if err := fn(m.opts.Backend); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	m.metrics.sent(method)
	return nil
}

// Subscribe registers fn for diagnostics changes.
func (m *Mirror) Subscribe(fn DiagnosticsListener) {
	if fn == nil {
		return
	}
	m.diagMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.diagMu.Unlock()
}

// ApplyDiagnostics stores a published diagnostics set. A set identical to
// the last one applied for the same path is dropped; it reports whether
// listeners were notified.
func (m *Mirror) ApplyDiagnostics(uri string, diags []lsp.Diagnostic) bool {
	path := lsp.URIToPath(uri)
	if path == "" {
		return false
	}
	key := draft.Key(path)
	if diags == nil {
		diags = []lsp.Diagnostic{}
	}
	fp, err := fingerprint(diags)
	if err != nil {
		m.logger.Debug("fingerprint diagnostics", slog.Any("error", err))
	}

	m.diagMu.Lock()
	if err == nil && m.fingerprints[key] == fp {
		m.diagMu.Unlock()
		m.metrics.duplicate()
		return false
	}
	m.fingerprints[key] = fp
	stored := append([]lsp.Diagnostic(nil), diags...)
	m.diagnostics[key] = stored
	listeners := append([]DiagnosticsListener(nil), m.listeners...)
	m.diagMu.Unlock()

	for _, fn := range listeners {
		fn(key, append([]lsp.Diagnostic(nil), stored...))
	}
	return true
}

// Diagnostics returns the last applied set for path.
func (m *Mirror) Diagnostics(path string) []lsp.Diagnostic {
	m.diagMu.Lock()
	defer m.diagMu.Unlock()
	return append([]lsp.Diagnostic(nil), m.diagnostics[draft.Key(path)]...)
}

func (m *Mirror) clearDiagnostics(key string) {
	m.diagMu.Lock()
	defer m.diagMu.Unlock()
	delete(m.diagnostics, key)
	delete(m.fingerprints, key)
}

func (m *Mirror) resetDiagnostics() {
	m.diagMu.Lock()
	defer m.diagMu.Unlock()
	m.diagnostics = make(map[string][]lsp.Diagnostic)
	m.fingerprints = make(map[string]string)
}

func fingerprint(diags []lsp.Diagnostic) (string, error) {
	data, err := json.Marshal(diags)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Format asks the server to format the committed draft of path and stores
// the result as the new draft content. On any failure the draft is left as
// it was.
func (m *Mirror) Format(ctx context.Context, path string) (string, error) {
	key := draft.Key(path)
	if m.opts.Drafts == nil {
		return "", fmt.Errorf("%w: no draft store", ErrFormatFailed)
	}
	current, ok := m.opts.Drafts.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s is not loaded", ErrFormatFailed, key)
	}

	// the server must see exactly the text being formatted
	m.mu.Lock()
	var syncErr error
	if d, open := m.docs[key]; open {
		if d.pending != nil || d.sent != current.Content {
			text := current.Content
			d.pending = &text
		}
		syncErr = m.flushLocked(d)
	} else {
		syncErr = m.openLocked(key, current.Content)
	}
	m.mu.Unlock()
	if syncErr != nil {
		return "", fmt.Errorf("%w: %v", ErrFormatFailed, syncErr)
	}

	edits, err := m.opts.Backend.FormatDocument(ctx, lsp.PathToURI(key), m.opts.TabSize, m.opts.InsertSpaces)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormatFailed, err)
	}
	formatted, err := lsp.ApplyEdits(current.Content, edits)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormatFailed, err)
	}
	if after, ok := m.opts.Drafts.Get(key); !ok || after.Content != current.Content {
		return "", fmt.Errorf("%w: %s changed while formatting", ErrFormatFailed, key)
	}
	if formatted == current.Content {
		return formatted, nil
	}

	m.opts.Drafts.Update(key, formatted)
	if err := m.Change(key, formatted); err != nil {
		m.logger.Warn("mirror formatted text", slog.String("path", key), slog.Any("error", err))
	}
	if m.opts.OnBuffer != nil && m.Active() == key {
		m.opts.OnBuffer(key, formatted)
	}
	return formatted, nil
}
