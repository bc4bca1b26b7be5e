// Package parserbridge runs the external Java parser as a long-lived
// subprocess speaking one JSON document per line over stdio.
package parserbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"unimozer/internal/draft"
	"unimozer/internal/parse"
	"unimozer/internal/uml"
)

const (
	maxAttempts        = 2
	defaultStderrLines = 64
)

// ErrClosed is returned when the bridge process ends without answering.
var ErrClosed = errors.New("parser bridge closed unexpectedly")

// Options configures a Bridge.
type Options struct {
	Command     string
	Args        []string
	Dir         string
	Env         []string // appended to the current environment
	StderrLines int
	Logger      *slog.Logger
}

// Bridge is a parse.Parser backed by the bridge process. A broken session is
// discarded and respawned on the next attempt.
type Bridge struct {
	opts Options

	mu      sync.Mutex
	session *session
}

func New(opts Options) *Bridge {
	if opts.StderrLines <= 0 {
		opts.StderrLines = defaultStderrLines
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With(slog.String("component", "parserbridge"))
	return &Bridge{opts: opts}
}

type wireRequest struct {
	Action string `json:"action"`
	parse.Request
}

type failure struct {
	OK    *bool  `json:"ok"`
	Error string `json:"error"`
}

// Parse sends req to the bridge and decodes the graph it returns.
func (b *Bridge) Parse(ctx context.Context, req parse.Request) (parse.Result, error) {
	if req.Overrides == nil {
		req.Overrides = []draft.Override{}
	}
	payload, err := json.Marshal(wireRequest{Action: "parseGraph", Request: req})
	if err != nil {
		return parse.Result{}, err
	}
	raw, err := b.send(ctx, payload)
	if err != nil {
		return parse.Result{}, err
	}
	var f failure
	if json.Unmarshal([]byte(raw), &f) == nil && f.OK != nil && !*f.OK {
		return parse.Result{}, fmt.Errorf("parser bridge failed: %s", f.Error)
	}
	var g uml.Graph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return parse.Result{}, fmt.Errorf("decode parser response: %w", err)
	}
	g.Normalize()
	return parse.Result{Graph: g, Raw: raw}, nil
}

func (b *Bridge) send(ctx context.Context, payload []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if b.session == nil {
			s, err := b.spawn()
			if err != nil {
				return "", err
			}
			b.session = s
		}
		raw, err := b.session.roundTrip(ctx, payload)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		b.opts.Logger.Warn("parser bridge session failed",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
		b.session.kill()
		b.session = nil
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (b *Bridge) spawn() (*session, error) {
	if b.opts.Command == "" {
		return nil, errors.New("parser bridge command not configured")
	}
	cmd := exec.Command(b.opts.Command, b.opts.Args...)
	cmd.Dir = b.opts.Dir
	if len(b.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), b.opts.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start parser bridge: %w", err)
	}
	s := &session{
		cmd:        cmd,
		stdin:      stdin,
		stdout:     bufio.NewReader(stdout),
		stderr:     newTail(b.opts.StderrLines),
		stderrDone: make(chan struct{}),
	}
	go func() {
		defer close(s.stderrDone)
		s.stderr.consume(stderr)
	}()
	b.opts.Logger.Debug("parser bridge started", slog.Int("pid", cmd.Process.Pid))
	return s, nil
}

// Reset points the bridge at another project directory. The running
// process is stopped; the next Parse spawns one in dir.
func (b *Bridge) Reset(dir string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts.Dir = dir
	if b.session != nil {
		b.session.kill()
		b.session = nil
	}
}

// Close terminates the bridge process.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.kill()
		b.session = nil
	}
	return nil
}

type session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *tail

	stderrDone chan struct{}
	killOnce   sync.Once
}

type lineResult struct {
	line string
	err  error
}

func (s *session) roundTrip(ctx context.Context, payload []byte) (string, error) {
	if _, err := s.stdin.Write(append(payload, '\n')); err != nil {
		return "", s.wrap(err)
	}
	done := make(chan lineResult, 1)
	go func() {
		line, err := s.stdout.ReadString('\n')
		done <- lineResult{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		s.kill()
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				// let the stderr reader drain so the tail explains the exit
				select {
				case <-s.stderrDone:
				case <-time.After(200 * time.Millisecond):
				}
				return "", s.wrap(ErrClosed)
			}
			return "", s.wrap(res.err)
		}
		return strings.TrimRight(res.line, "\r\n"), nil
	}
}

// wrap appends the captured stderr tail to err.
func (s *session) wrap(err error) error {
	if snap := s.stderr.String(); snap != "" {
		return fmt.Errorf("%w\n%s", err, snap)
	}
	return err
}

func (s *session) kill() {
	s.killOnce.Do(func() {
		_ = s.stdin.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
	})
}

// tail keeps the last n lines written by the bridge to stderr.
type tail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		t.add(scanner.Text())
	}
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) >= t.max {
		t.lines = t.lines[1:]
	}
	t.lines = append(t.lines, strings.TrimRight(line, "\r"))
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
