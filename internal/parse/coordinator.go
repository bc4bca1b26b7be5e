package parse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"unimozer/internal/draft"
	"unimozer/internal/trace"
	"unimozer/internal/uml"
	"unimozer/internal/workspace"
)

// DefaultDebounce is the pause in editing after which a reparse starts.
const DefaultDebounce = 350 * time.Millisecond

// Options configures a Coordinator.
type Options struct {
	Root     string
	SrcRoot  string
	Debounce time.Duration
	Drafts   *draft.Store
	Parser   Parser
	// Files lists source files for the tree fallback. Defaults to walking
	// SrcRoot.
	Files  func(srcRoot string) ([]string, error)
	Cache  *uml.Cache
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.MeterProvider
}

// GraphListener receives every newly visible graph.
type GraphListener func(g uml.Graph, status string)

// Coordinator owns the visible class graph. Reparses are debounced and
// sequenced: a result is applied only if no newer request was issued while
// it ran, so completion order never decides what is shown.
type Coordinator struct {
	mu        sync.Mutex
	root      string
	srcRoot   string
	debounce  time.Duration
	drafts    *draft.Store
	parser    Parser
	files     func(string) ([]string, error)
	cache     *uml.Cache
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics
	timer     *time.Timer
	timerGen  uint64
	seq       uint64
	visible   *uml.Graph
	lastGood  *uml.Graph
	status    string
	version   uint64
	closed    bool
	listeners []GraphListener

	notifyMu sync.Mutex
	notified uint64
}

// New creates a coordinator. Drafts and Parser are required.
func New(opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	if opts.Files == nil {
		opts.Files = listSourceFiles
	}
	return &Coordinator{
		root:     opts.Root,
		srcRoot:  opts.SrcRoot,
		debounce: opts.Debounce,
		drafts:   opts.Drafts,
		parser:   opts.Parser,
		files:    opts.Files,
		cache:    opts.Cache,
		logger:   opts.Logger.With(slog.String("component", "parse")),
		tracer:   opts.Tracer,
		metrics:  newMetrics(opts.Meter),
	}
}

func listSourceFiles(srcRoot string) ([]string, error) {
	tree, err := workspace.ListTree(srcRoot)
	if err != nil && !errors.Is(err, workspace.ErrNoSources) {
		return nil, err
	}
	return tree.SourceFiles(), nil
}

// Schedule restarts the debounce timer. When it fires, a parse runs with
// the dirty drafts as overrides.
func (c *Coordinator) Schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++
	gen := c.timerGen
	c.timer = time.AfterFunc(c.debounce, func() {
		c.fire(gen)
	})
}

// fire runs the parse for timer generation gen at most once. A callback
// whose timer was already replaced or stopped does nothing.
func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.closed {
		c.mu.Unlock()
		return
	}
	c.timerGen++
	c.timer = nil
	c.mu.Unlock()
	c.run(context.Background())
}

// ParseNow cancels a pending debounce, parses immediately and returns the
// graph visible afterwards.
func (c *Coordinator) ParseNow(ctx context.Context) (uml.Graph, string) {
	c.stopTimer()
	c.run(ctx)
	return c.Graph(), c.Status()
}

func (c *Coordinator) stopTimer() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
}

func (c *Coordinator) stopTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// run issues one sequenced parse and applies its outcome.
func (c *Coordinator) run(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.parser == nil {
		c.mu.Unlock()
		return
	}
	c.seq++
	token := c.seq
	req := Request{Root: c.root, SrcRoot: c.srcRoot}
	c.mu.Unlock()

	if c.drafts != nil {
		req.Overrides = c.drafts.Overrides()
	}

	ctx = trace.WithTracer(ctx, c.tracer)
	ctx, span := trace.Start(ctx, trace.ScopeComponent, "parse.run")
	span.WithExtra("seq", strconv.FormatUint(token, 10))
	started := time.Now()

	result, err := c.parser.Parse(ctx, req)

	var fallback *uml.Graph
	if err != nil {
		fallback = c.treeFallback(req.SrcRoot)
	}
	outcome := c.apply(token, req, result, err, fallback)
	c.metrics.record(ctx, outcome, time.Since(started))
	span.End(outcome)
}

func (c *Coordinator) treeFallback(srcRoot string) *uml.Graph {
	c.mu.Lock()
	hasLastGood := c.lastGood != nil
	c.mu.Unlock()
	if hasLastGood {
		return nil
	}
	files, err := c.files(srcRoot)
	if err != nil {
		c.logger.Warn("list sources for fallback graph", slog.Any("error", err))
	}
	g := uml.FromFiles(srcRoot, files)
	return &g
}

// apply commits a parse outcome in one locked step. Results whose token is
// no longer current are dropped.
func (c *Coordinator) apply(token uint64, req Request, result Result, parseErr error, fallback *uml.Graph) string {
	c.mu.Lock()
	if c.closed || token != c.seq || req.Root != c.root {
		c.mu.Unlock()
		c.logger.Debug("discarding superseded parse result", slog.Uint64("seq", token))
		return outcomeDiscarded
	}

	var (
		published uml.Graph
		conflicts []uml.KindConflict
		toCache   *uml.Graph
		outcome   string
	)
	if parseErr != nil {
		outcome = outcomeFailed
		c.status = fmt.Sprintf("%v: %v", ErrParseFailed, parseErr)
		switch {
		case c.lastGood != nil:
			published = c.lastGood.Clone()
		case fallback != nil:
			published = *fallback
		default:
			published = uml.Graph{}
		}
	} else {
		outcome = outcomeApplied
		merged, kc := uml.MergeWithLastGood(c.lastGood, result.Graph, req.SrcRoot)
		conflicts = kc
		c.lastGood = &merged
		published = merged.Clone()
		cached := merged.Clone()
		toCache = &cached
		c.status = failedStatus(merged.FailedFiles)
	}
	c.visible = &published
	c.version++
	version := c.version
	status := c.status
	root := c.root
	cache := c.cache
	c.mu.Unlock()

	if parseErr != nil {
		c.logger.Warn("parse failed", slog.Uint64("seq", token), slog.Any("error", parseErr))
	}
	for _, kc := range conflicts {
		c.logger.Warn("edge kind mismatch between carried and fresh edge",
			slog.String("from", kc.From),
			slog.String("to", kc.To),
			slog.String("carried", string(kc.Carried)),
			slog.String("fresh", string(kc.FreshKind)),
		)
	}
	if toCache != nil && cache != nil {
		if err := cache.Put(root, *toCache); err != nil {
			c.logger.Warn("write graph cache", slog.Any("error", err))
		}
	}
	c.notify(version, published, status)
	return outcome
}

func failedStatus(failed []string) string {
	switch len(failed) {
	case 0:
		return ""
	case 1:
		return "1 file failed to parse"
	default:
		return fmt.Sprintf("%d files failed to parse", len(failed))
	}
}

// notify delivers a published graph unless a newer one was already
// delivered.
func (c *Coordinator) notify(version uint64, g uml.Graph, status string) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if version <= c.notified {
		return
	}
	c.notified = version
	c.mu.Lock()
	listeners := append([]GraphListener(nil), c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(g.Clone(), status)
	}
}

// Restore seeds the last-good graph from the cache so the first failed
// parse after a restart still has real structure to fall back to. It
// reports whether a cached graph was found.
func (c *Coordinator) Restore() bool {
	c.mu.Lock()
	root := c.root
	cache := c.cache
	c.mu.Unlock()
	if cache == nil {
		return false
	}
	g, ok, err := cache.Get(root)
	if err != nil {
		c.logger.Warn("read graph cache", slog.Any("error", err))
		return false
	}
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastGood != nil || c.root != root {
		return false
	}
	c.lastGood = &g
	return true
}

// Graph returns a snapshot of the visible graph.
func (c *Coordinator) Graph() uml.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible.Clone()
}

// LastGood returns the last accepted graph, if any.
func (c *Coordinator) LastGood() (uml.Graph, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastGood == nil {
		return uml.Graph{}, false
	}
	return c.lastGood.Clone(), true
}

// Status is the last parse status line; empty when the last parse was clean.
func (c *Coordinator) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Seq returns the latest issued sequence token.
func (c *Coordinator) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Subscribe registers fn for newly visible graphs.
func (c *Coordinator) Subscribe(fn GraphListener) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Reset switches the coordinator to another project and its graph cache.
// Pending timers are cancelled and in-flight results are invalidated.
func (c *Coordinator) Reset(root, srcRoot string, cache *uml.Cache) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.seq++
	c.root = root
	c.srcRoot = srcRoot
	c.cache = cache
	c.visible = nil
	c.lastGood = nil
	c.status = ""
}

// Close stops the debounce timer; later results are discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}
