// Package observ records wall-clock timings of the steps a command runs
// through (config load, source read, parse, layout reconcile).
package observ

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Step is one timed step.
type Step struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
	done  bool
}

// Timer collects steps in the order they were begun.
type Timer struct {
	mu    sync.Mutex
	now   func() time.Time
	steps []Step
}

func NewTimer() *Timer {
	return &Timer{now: time.Now, steps: make([]Step, 0, 8)}
}

// Begin starts a step and returns a function that ends it.
func (t *Timer) Begin(name string) func(note string) {
	t.mu.Lock()
	t.steps = append(t.steps, Step{Name: name, Start: t.now()})
	idx := len(t.steps) - 1
	t.mu.Unlock()
	return func(note string) { t.end(idx, note) }
}

func (t *Timer) end(idx int, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &t.steps[idx]
	if s.done {
		return
	}
	s.done = true
	s.Dur = t.now().Sub(s.Start)
	s.Note = note
}

// StepReport is the serialized form of a finished step.
type StepReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

type Report struct {
	TotalMS float64      `json:"total_ms"`
	Steps   []StepReport `json:"steps"`
}

// Report lists finished steps; unfinished ones are left out.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	var (
		report Report
		total  time.Duration
	)
	for _, s := range t.steps {
		if !s.done {
			continue
		}
		total += s.Dur
		report.Steps = append(report.Steps, StepReport{
			Name:       s.Name,
			DurationMS: millis(s.Dur),
			Note:       s.Note,
		})
	}
	report.TotalMS = millis(total)
	return report
}

// WriteSummary prints the report as an aligned table.
func (t *Timer) WriteSummary(w io.Writer) {
	report := t.Report()
	fmt.Fprintln(w, "timings:")
	for _, s := range report.Steps {
		line := fmt.Sprintf("  %-20s %8.2f ms", s.Name, s.DurationMS)
		if s.Note != "" {
			line += "  " + s.Note
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  %-20s %8.2f ms\n", "total", report.TotalMS)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
