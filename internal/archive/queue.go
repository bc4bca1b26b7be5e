// Package archive keeps a packed project archive in sync with its unpacked
// working copy. Sync requests coalesce so at most one write runs at a time
// and a burst of requests costs at most one extra write.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"unimozer/internal/trace"
)

var ErrSyncFailed = errors.New("archive sync failed")

// Writer performs one physical archive write.
type Writer interface {
	WritePacked(ctx context.Context, root, archivePath string) error
}

type WriterFunc func(ctx context.Context, root, archivePath string) error

func (f WriterFunc) WritePacked(ctx context.Context, root, archivePath string) error {
	return f(ctx, root, archivePath)
}

// Snapshot is what the next write will pack.
type Snapshot struct {
	Root        string
	ArchivePath string
}

type Options struct {
	// Writer defaults to WritePacked.
	Writer Writer
	// Delay holds a request back before flushing it. Zero flushes
	// immediately.
	Delay  time.Duration
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.MeterProvider
}

type Queue struct {
	writer  Writer
	delay   time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics

	mu       sync.Mutex
	pending  bool
	inFlight bool
	snapshot Snapshot
	timer    *time.Timer
	done     chan struct{}
	failed   bool
	lastErr  error
	flushes  int
}

func NewQueue(opts Options) *Queue {
	if opts.Writer == nil {
		opts.Writer = WriterFunc(WritePacked)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	return &Queue{
		writer:  opts.Writer,
		delay:   opts.Delay,
		logger:  opts.Logger.With(slog.String("component", "archive")),
		tracer:  opts.Tracer,
		metrics: newMetrics(opts.Meter),
	}
}

// Request records root/archivePath as the latest snapshot and starts a
// flush unless one is already running.
func (q *Queue) Request(root, archivePath string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.snapshot = Snapshot{Root: root, ArchivePath: archivePath}
	q.pending = true
	if q.inFlight {
		return
	}
	if q.delay <= 0 {
		q.startLocked()
		return
	}
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.timer = nil
		if q.pending && !q.inFlight {
			q.startLocked()
		}
	})
}

func (q *Queue) startLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.inFlight = true
	q.done = make(chan struct{})
	go q.loop(q.done)
}

func (q *Queue) loop(done chan struct{}) {
	for {
		q.mu.Lock()
		if !q.pending {
			q.inFlight = false
			q.mu.Unlock()
			close(done)
			return
		}
		q.pending = false
		snap := q.snapshot
		q.flushes++
		q.mu.Unlock()

		err := q.flush(snap)

		q.mu.Lock()
		if err != nil {
			q.failed = true
			q.lastErr = fmt.Errorf("%w: %v", ErrSyncFailed, err)
		} else {
			q.failed = false
			q.lastErr = nil
		}
		q.mu.Unlock()
	}
}

func (q *Queue) flush(snap Snapshot) error {
	ctx := trace.WithTracer(context.Background(), q.tracer)
	ctx, span := trace.Start(ctx, trace.ScopeComponent, "archive.flush")
	span.WithExtra("archive", snap.ArchivePath)
	err := q.writer.WritePacked(ctx, snap.Root, snap.ArchivePath)
	if err != nil {
		q.logger.Warn("archive write failed", slog.String("archive", snap.ArchivePath), slog.Any("error", err))
		q.metrics.record(ctx, "failed")
		span.End("failed")
		return err
	}
	q.logger.Debug("archive written", slog.String("archive", snap.ArchivePath))
	q.metrics.record(ctx, "ok")
	span.End("ok")
	return nil
}

// AwaitCompletion waits until no write is pending or running. A request
// still held back by Delay is flushed now. It returns the sticky error of
// the last write, if any.
func (q *Queue) AwaitCompletion(ctx context.Context) error {
	q.mu.Lock()
	if !q.inFlight && q.pending {
		q.startLocked()
	}
	if !q.inFlight {
		err := q.lastErr
		q.mu.Unlock()
		return err
	}
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return q.LastError()
}

// Reset drops all queue state after the running write, if any, finishes.
// Used when the project stops being stored packed.
func (q *Queue) Reset(ctx context.Context) error {
	q.mu.Lock()
	q.pending = false
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	var done chan struct{}
	if q.inFlight {
		done = q.done
	}
	q.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.snapshot = Snapshot{}
	q.failed = false
	q.lastErr = nil
	return nil
}

// Failed reports whether the last write failed. It stays set until a later
// write succeeds.
func (q *Queue) Failed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failed
}

func (q *Queue) LastError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

// Pending reports whether a request is waiting for a write.
func (q *Queue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Flushes counts physical writes started since the queue was created.
func (q *Queue) Flushes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushes
}
