package observ

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(t *Timer, step time.Duration) {
	cur := time.Unix(0, 0)
	t.now = func() time.Time {
		cur = cur.Add(step)
		return cur
	}
}

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	fakeClock(tm, 10*time.Millisecond)

	endLoad := tm.Begin("load")
	endLoad("3 files")
	endLoad("ignored")
	_ = tm.Begin("unfinished")
	endParse := tm.Begin("parse")
	endParse("")

	r := tm.Report()
	require.Len(t, r.Steps, 2)
	assert.Equal(t, StepReport{Name: "load", DurationMS: 10, Note: "3 files"}, r.Steps[0])
	assert.Equal(t, "parse", r.Steps[1].Name)
	assert.InDelta(t, 20.0, r.TotalMS, 0.001)
}

func TestWriteSummary(t *testing.T) {
	tm := NewTimer()
	fakeClock(tm, time.Millisecond)
	tm.Begin("open")("ok")

	var buf bytes.Buffer
	tm.WriteSummary(&buf)
	out := buf.String()
	assert.Contains(t, out, "timings:")
	assert.Contains(t, out, "open")
	assert.Contains(t, out, "1.00 ms  ok")
	assert.Contains(t, out, "total")
}

func TestEmptyTimer(t *testing.T) {
	r := NewTimer().Report()
	assert.Empty(t, r.Steps)
	assert.Zero(t, r.TotalMS)
}
