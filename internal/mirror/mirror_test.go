package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unimozer/internal/draft"
	"unimozer/internal/lsp"
)

type call struct {
	Method  string
	URI     string
	Version int
	Text    string
}

type fakeBackend struct {
	mu      sync.Mutex
	calls   []call
	starts  []string
	edits   []lsp.TextEdit
	fmtErr  error
	down    bool
	onStart func()
}

func (f *fakeBackend) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return lsp.ErrServerNotRunning
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeBackend) Start(_ context.Context, root string) error {
	f.mu.Lock()
	f.starts = append(f.starts, root)
	f.down = false
	fn := f.onStart
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (f *fakeBackend) DidOpen(uri, text, _ string) error {
	return f.record(call{Method: "didOpen", URI: uri, Version: 1, Text: text})
}

func (f *fakeBackend) DidChange(uri string, version int, text string) error {
	return f.record(call{Method: "didChange", URI: uri, Version: version, Text: text})
}

func (f *fakeBackend) DidClose(uri string) error {
	return f.record(call{Method: "didClose", URI: uri})
}

func (f *fakeBackend) FormatDocument(_ context.Context, uri string, _ int, _ bool) ([]lsp.TextEdit, error) {
	if err := f.record(call{Method: "formatting", URI: uri}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits, f.fmtErr
}

func (f *fakeBackend) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeBackend) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newMirror(t *testing.T, backend *fakeBackend, drafts *draft.Store) *Mirror {
	t.Helper()
	return New(Options{Root: "/p", Backend: backend, Drafts: drafts, Debounce: time.Hour})
}

func TestOpenIsIdempotent(t *testing.T) {
	b := &fakeBackend{}
	m := newMirror(t, b, nil)

	require.NoError(t, m.Open("/p/src/A.java", "class A {}"))
	require.NoError(t, m.Open("/p/src/A.java", "class A { }"))

	assert.Equal(t, []string{"didOpen"}, b.methods())
	assert.Equal(t, 1, m.Version("/p/src/A.java"))
	assert.True(t, m.IsOpen("/p/src/A.java"))
}

func TestChangeOnClosedPathOpens(t *testing.T) {
	b := &fakeBackend{}
	m := newMirror(t, b, nil)

	require.NoError(t, m.Change("/p/src/A.java", "class A {}"))
	calls := b.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "didOpen", calls[0].Method)
	assert.Equal(t, "class A {}", calls[0].Text)
}

func TestQuickEditsThenCloseSendOneChange(t *testing.T) {
	b := &fakeBackend{}
	m := newMirror(t, b, nil)
	path := "/p/src/A.java"

	require.NoError(t, m.Open(path, "v0"))
	require.NoError(t, m.Change(path, "v1"))
	require.NoError(t, m.Change(path, "v2"))
	require.NoError(t, m.Change(path, "v3"))
	require.NoError(t, m.Close(path))

	calls := b.snapshot()
	require.Equal(t, []string{"didOpen", "didChange", "didClose"}, b.methods())
	assert.Equal(t, "v3", calls[1].Text)
	assert.Equal(t, 2, calls[1].Version)
	assert.False(t, m.IsOpen(path))
}

func TestDebounceFiresOnce(t *testing.T) {
	b := &fakeBackend{}
	m := New(Options{Root: "/p", Backend: b, Debounce: 20 * time.Millisecond})
	path := "/p/src/A.java"

	require.NoError(t, m.Open(path, "v0"))
	require.NoError(t, m.Change(path, "v1"))
	require.NoError(t, m.Change(path, "v2"))

	require.Eventually(t, func() bool {
		return len(b.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	calls := b.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, call{Method: "didChange", URI: lsp.PathToURI(path), Version: 2, Text: "v2"}, calls[1])

	require.NoError(t, m.Close(path))
	assert.Equal(t, []string{"didOpen", "didChange", "didClose"}, b.methods())
}

func TestVersionsIncreasePerFlush(t *testing.T) {
	b := &fakeBackend{}
	m := newMirror(t, b, nil)
	path := "/p/src/A.java"

	require.NoError(t, m.Open(path, "v0"))
	for _, text := range []string{"v1", "v2", "v3"} {
		require.NoError(t, m.Change(path, text))
		require.NoError(t, m.Flush(path))
	}
	// nothing buffered
	require.NoError(t, m.Flush(path))

	var versions []int
	for _, c := range b.snapshot() {
		versions = append(versions, c.Version)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, versions)
}

func TestSetActiveClosesPrevious(t *testing.T) {
	b := &fakeBackend{}
	m := newMirror(t, b, nil)

	require.NoError(t, m.SetActive("/p/src/A.java", "a"))
	require.NoError(t, m.Change("/p/src/A.java", "a2"))
	require.NoError(t, m.SetActive("/p/src/B.java", "b"))

	calls := b.snapshot()
	require.Equal(t, []string{"didOpen", "didChange", "didClose", "didOpen"}, b.methods())
	assert.Equal(t, lsp.PathToURI("/p/src/A.java"), calls[2].URI)
	assert.Equal(t, lsp.PathToURI("/p/src/B.java"), calls[3].URI)
	assert.Equal(t, draft.Key("/p/src/B.java"), m.Active())
	assert.False(t, m.IsOpen("/p/src/A.java"))
}

func TestHandleCrashIgnoresOtherRoots(t *testing.T) {
	b := &fakeBackend{}
	m := newMirror(t, b, nil)
	require.NoError(t, m.Open("/p/src/A.java", "a"))

	handled, err := m.HandleCrash(context.Background(), "/other")
	require.NoError(t, err)
	assert.False(t, handled)
	assert.True(t, m.IsOpen("/p/src/A.java"))
	assert.Empty(t, b.starts)
}

func TestCrashThenReadyReopensActiveOnly(t *testing.T) {
	b := &fakeBackend{}
	drafts := draft.NewStore()
	m := newMirror(t, b, drafts)
	b.onStart = func() { require.NoError(t, m.HandleReady()) }

	drafts.Load("/p/src/A.java", "a")
	require.NoError(t, m.Open("/p/src/B.java", "b"))
	require.NoError(t, m.SetActive("/p/src/A.java", "a"))
	drafts.Update("/p/src/A.java", "a edited")

	handled, err := m.HandleCrash(context.Background(), "/p")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"/p"}, b.starts)

	calls := b.snapshot()
	last := calls[len(calls)-1]
	assert.Equal(t, "didOpen", last.Method)
	assert.Equal(t, lsp.PathToURI("/p/src/A.java"), last.URI)
	assert.Equal(t, "a edited", last.Text)
	assert.Equal(t, 1, m.Version("/p/src/A.java"))
	assert.False(t, m.IsOpen("/p/src/B.java"))
}

func TestOpenFailureLeavesPathClosed(t *testing.T) {
	b := &fakeBackend{down: true}
	m := newMirror(t, b, nil)

	err := m.Open("/p/src/A.java", "a")
	require.ErrorIs(t, err, lsp.ErrServerNotRunning)
	assert.False(t, m.IsOpen("/p/src/A.java"))
}

func TestApplyDiagnosticsDropsDuplicates(t *testing.T) {
	m := newMirror(t, &fakeBackend{}, nil)
	var got [][]lsp.Diagnostic
	m.Subscribe(func(_ string, diags []lsp.Diagnostic) { got = append(got, diags) })

	uri := lsp.PathToURI("/p/src/A.java")
	diags := []lsp.Diagnostic{{Message: "';' expected", Severity: 1}}
	assert.True(t, m.ApplyDiagnostics(uri, diags))
	assert.False(t, m.ApplyDiagnostics(uri, []lsp.Diagnostic{{Message: "';' expected", Severity: 1}}))
	assert.True(t, m.ApplyDiagnostics(uri, nil))
	assert.False(t, m.ApplyDiagnostics(uri, []lsp.Diagnostic{}))

	require.Len(t, got, 2)
	assert.Empty(t, got[1])
	assert.Empty(t, m.Diagnostics("/p/src/A.java"))
}

func TestCloseClearsFingerprint(t *testing.T) {
	m := newMirror(t, &fakeBackend{}, nil)
	path := "/p/src/A.java"
	uri := lsp.PathToURI(path)
	diags := []lsp.Diagnostic{{Message: "x"}}

	require.NoError(t, m.Open(path, "a"))
	assert.True(t, m.ApplyDiagnostics(uri, diags))
	require.NoError(t, m.Close(path))
	assert.Empty(t, m.Diagnostics(path))
	assert.True(t, m.ApplyDiagnostics(uri, diags))
}

func TestFormatUpdatesDraftAndBuffer(t *testing.T) {
	b := &fakeBackend{edits: []lsp.TextEdit{
		{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 7}, End: lsp.Position{Line: 0, Character: 7}}, NewText: " "},
		{Range: lsp.Range{Start: lsp.Position{Line: 1, Character: 0}, End: lsp.Position{Line: 1, Character: 0}}, NewText: "    "},
	}}
	drafts := draft.NewStore()
	var buffer string
	m := New(Options{Root: "/p", Backend: b, Drafts: drafts, Debounce: time.Hour, OnBuffer: func(_, text string) { buffer = text }})
	path := "/p/src/A.java"
	drafts.Load(path, "class A{\nint x;\n}")
	require.NoError(t, m.SetActive(path, "class A{\nint x;\n}"))

	got, err := m.Format(context.Background(), path)
	require.NoError(t, err)
	want := "class A {\n    int x;\n}"
	assert.Equal(t, want, got)
	d, _ := drafts.Get(path)
	assert.Equal(t, want, d.Content)
	assert.True(t, d.Dirty())
	assert.Equal(t, want, buffer)

	require.NoError(t, m.Flush(path))
	calls := b.snapshot()
	assert.Equal(t, "didChange", calls[len(calls)-1].Method)
	assert.Equal(t, want, calls[len(calls)-1].Text)
}

func TestFormatSendsPendingTextFirst(t *testing.T) {
	b := &fakeBackend{}
	drafts := draft.NewStore()
	m := newMirror(t, b, drafts)
	path := "/p/src/A.java"
	drafts.Load(path, "a")
	require.NoError(t, m.Open(path, "a"))
	drafts.Update(path, "a2")
	require.NoError(t, m.Change(path, "a2"))

	_, err := m.Format(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"didOpen", "didChange", "formatting"}, b.methods())
	assert.Equal(t, "a2", b.snapshot()[1].Text)
}

func TestFormatFailureKeepsDraft(t *testing.T) {
	b := &fakeBackend{fmtErr: errors.New("boom")}
	drafts := draft.NewStore()
	m := newMirror(t, b, drafts)
	path := "/p/src/A.java"
	drafts.Load(path, "class A{}")

	_, err := m.Format(context.Background(), path)
	require.ErrorIs(t, err, ErrFormatFailed)
	d, _ := drafts.Get(path)
	assert.Equal(t, "class A{}", d.Content)
	assert.False(t, d.Dirty())

	_, err = m.Format(context.Background(), "/p/src/Missing.java")
	assert.ErrorIs(t, err, ErrFormatFailed)
}

func TestFormatRejectsOverlappingEdits(t *testing.T) {
	b := &fakeBackend{edits: []lsp.TextEdit{
		{Range: lsp.Range{Start: lsp.Position{Character: 0}, End: lsp.Position{Character: 3}}, NewText: "x"},
		{Range: lsp.Range{Start: lsp.Position{Character: 2}, End: lsp.Position{Character: 4}}, NewText: "y"},
	}}
	drafts := draft.NewStore()
	m := newMirror(t, b, drafts)
	drafts.Load("/p/A.java", "abcdef")

	_, err := m.Format(context.Background(), "/p/A.java")
	require.ErrorIs(t, err, ErrFormatFailed)
	d, _ := drafts.Get("/p/A.java")
	assert.Equal(t, "abcdef", d.Content)
}

func TestResetDropsState(t *testing.T) {
	b := &fakeBackend{}
	m := newMirror(t, b, nil)
	require.NoError(t, m.SetActive("/p/src/A.java", "a"))
	m.ApplyDiagnostics(lsp.PathToURI("/p/src/A.java"), []lsp.Diagnostic{{Message: "x"}})

	m.Reset("/q")
	assert.Empty(t, m.Active())
	assert.False(t, m.IsOpen("/p/src/A.java"))
	assert.Empty(t, m.Diagnostics("/p/src/A.java"))
	assert.Equal(t, []string{"didOpen"}, b.methods())
}
