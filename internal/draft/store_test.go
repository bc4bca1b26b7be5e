package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaselineControlsDirtiness(t *testing.T) {
	s := NewStore()
	s.UpdateWithBaseline("/p/src/A.java", "class A {}", "class A {}")
	assert.False(t, s.IsDirty())
	assert.False(t, s.IsPathDirty("/p/src/A.java"))

	s.Update("/p/src/A.java", "class A { int x; }")
	assert.True(t, s.IsDirty())
	assert.True(t, s.IsPathDirty("/p/src/A.java"))

	d, ok := s.Get("/p/src/A.java")
	require.True(t, ok)
	assert.Equal(t, "class A {}", d.LastSavedContent, "ordinary edits keep the baseline")

	s.Update("/p/src/A.java", "class A {}")
	assert.False(t, s.IsDirty(), "reverting to the baseline is clean again")
}

func TestNewDraftWithoutBaselineIsDirty(t *testing.T) {
	s := NewStore()
	s.Update("/p/src/New.java", "class New {}")
	assert.True(t, s.IsPathDirty("/p/src/New.java"))
}

func TestLoadDoesNotOverwriteDraft(t *testing.T) {
	s := NewStore()
	require.True(t, s.Load("/p/A.java", "disk"))
	assert.False(t, s.IsDirty())

	s.Update("/p/A.java", "edited")
	require.False(t, s.Load("/p/A.java", "disk again"))

	d, _ := s.Get("/p/A.java")
	assert.Equal(t, "edited", d.Content)
	assert.Equal(t, "disk", d.LastSavedContent)
}

func TestOverridesAreSortedDirtyDrafts(t *testing.T) {
	s := NewStore()
	s.Load("/p/C.java", "c")
	s.Update("/p/B.java", "b")
	s.Update("/p/A.java", "a")

	assert.Equal(t, []Override{
		{Path: "/p/A.java", Content: "a"},
		{Path: "/p/B.java", Content: "b"},
	}, s.Overrides())
	assert.Equal(t, []string{"/p/A.java", "/p/B.java", "/p/C.java"}, s.Paths())
}

func TestKeyNormalizesUnicodeAndSeparators(t *testing.T) {
	s := NewStore()
	decomposed := "/p/Cafe\u0301.java"
	composed := "/p/Caf\u00e9.java"
	s.Update(decomposed, "x")

	_, ok := s.Get(composed)
	assert.True(t, ok)
	assert.Equal(t, Key("/p/./src/../A.java"), Key("/p/A.java"))
}

func TestRemoveAndReset(t *testing.T) {
	s := NewStore()
	var events []string
	s.Subscribe(func(path string) { events = append(events, path) })

	s.Update("/p/src/a/A.java", "a")
	s.Update("/p/src/a/B.java", "b")
	s.Update("/p/src/C.java", "c")
	assert.Equal(t, 2, s.RemoveUnder("/p/src/a"))
	assert.Equal(t, []string{"/p/src/C.java"}, s.Paths())

	s.Remove("/p/src/C.java")
	s.Remove("/p/src/C.java")
	s.Update("/p/D.java", "d")
	s.Reset()
	assert.Empty(t, s.Paths())

	assert.Equal(t, []string{
		"/p/src/a/A.java", "/p/src/a/B.java", "/p/src/C.java",
		"/p/src/a/A.java", "/p/src/a/B.java",
		"/p/src/C.java",
		"/p/D.java",
		"",
	}, events)
}

func TestMarkSavedKeepsLaterEdits(t *testing.T) {
	s := NewStore()
	s.Update("/p/src/A.java", "class A { int x; }")
	s.Update("/p/src/A.java", "class A { int x; int y; }")

	require.True(t, s.MarkSaved("/p/src/A.java", "class A { int x; }"))
	d, ok := s.Get("/p/src/A.java")
	require.True(t, ok)
	assert.Equal(t, "class A { int x; int y; }", d.Content)
	assert.Equal(t, "class A { int x; }", d.LastSavedContent)
	assert.True(t, s.IsPathDirty("/p/src/A.java"))

	require.True(t, s.MarkSaved("/p/src/A.java", "class A { int x; int y; }"))
	assert.False(t, s.IsDirty())

	assert.False(t, s.MarkSaved("/p/src/Missing.java", "x"))
	_, ok = s.Get("/p/src/Missing.java")
	assert.False(t, ok)
}
