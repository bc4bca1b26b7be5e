package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"off", "error", "phase", "detail", "debug"} {
		level, err := ParseLevel(strings.ToUpper(name))
		require.NoError(t, err)
		assert.Equal(t, name, level.String())
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelFiltersScopes(t *testing.T) {
	assert.True(t, LevelPhase.ShouldEmit(ScopeComponent))
	assert.False(t, LevelPhase.ShouldEmit(ScopeFile))
	assert.True(t, LevelDetail.ShouldEmit(ScopeFile))
	assert.False(t, LevelOff.ShouldEmit(ScopeSession))
}

func TestStreamTracerWritesNestedSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := New(Config{Level: LevelPhase, Mode: ModeStream, Format: FormatNDJSON, Output: &buf})
	require.NoError(t, err)

	ctx := WithTracer(context.Background(), tracer)
	ctx, outer := Start(ctx, ScopeSession, "session.open")
	_, inner := Start(ctx, ScopeComponent, "parse.run")
	inner.WithExtra("seq", "3").End("applied")
	_, skipped := Start(ctx, ScopeFile, "parse.file")
	skipped.End("")
	outer.End("")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4, "file scope is filtered at phase level")

	var events []jsonEvent
	for _, line := range lines {
		var ev jsonEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}
	assert.Equal(t, "session.open", events[0].Name)
	assert.Equal(t, "parse.run", events[1].Name)
	assert.Equal(t, events[0].SpanID, events[1].ParentID)
	assert.Equal(t, "end", events[2].Kind)
	assert.Equal(t, "applied", events[2].Detail)
	assert.Equal(t, map[string]string{"seq": "3"}, events[2].Extra)
	assert.Less(t, events[0].Seq, events[3].Seq)
}

func TestRingTracerKeepsLatest(t *testing.T) {
	ring := NewRingTracer(2, LevelError)
	for _, name := range []string{"a", "b", "c"} {
		Point(ring, ScopeFile, name, "")
	}
	snap := ring.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Name)
	assert.Equal(t, "c", snap[1].Name)

	var buf bytes.Buffer
	require.NoError(t, ring.Dump(&buf, FormatText))
	assert.Contains(t, buf.String(), "• c")
}

func TestNopByDefault(t *testing.T) {
	assert.Equal(t, Nop, FromContext(context.Background()))
	span := Begin(Nop, ScopeSession, "x", 0)
	assert.Zero(t, span.End(""))

	tracer, err := New(Config{Level: LevelOff})
	require.NoError(t, err)
	assert.False(t, tracer.Enabled())
}

func TestHeartbeatEmits(t *testing.T) {
	ring := NewRingTracer(16, LevelPhase)
	hb := StartHeartbeat(ring, 5*time.Millisecond)
	require.NotNil(t, hb)
	require.Eventually(t, func() bool { return len(ring.Snapshot()) > 0 }, time.Second, 5*time.Millisecond)
	hb.Stop()
	hb.Stop()
	assert.Equal(t, KindHeartbeat, ring.Snapshot()[0].Kind)
}
