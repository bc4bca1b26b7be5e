package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edit(sl, sc, el, ec int, text string) TextEdit {
	return TextEdit{Range: Range{Start: Position{Line: sl, Character: sc}, End: Position{Line: el, Character: ec}}, NewText: text}
}

func TestOffsetForPosition(t *testing.T) {
	text := "ab\r\nc😀d\n"
	assert.Equal(t, 0, OffsetForPosition(text, Position{}))
	assert.Equal(t, 2, OffsetForPosition(text, Position{Line: 0, Character: 9}))
	assert.Equal(t, 5, OffsetForPosition(text, Position{Line: 1, Character: 1}))
	// the emoji is two UTF-16 units; a column inside it stays before it
	assert.Equal(t, 5, OffsetForPosition(text, Position{Line: 1, Character: 2}))
	assert.Equal(t, 9, OffsetForPosition(text, Position{Line: 1, Character: 3}))
	assert.Equal(t, len(text), OffsetForPosition(text, Position{Line: 5}))
	assert.Equal(t, 0, OffsetForPosition(text, Position{Line: -1}))
}

func TestApplyEditsDescendingOrder(t *testing.T) {
	text := "class A{\nint x;\n}\n"
	got, err := ApplyEdits(text, []TextEdit{
		edit(0, 7, 0, 7, " "),
		edit(1, 0, 1, 0, "    "),
		edit(0, 0, 0, 0, "public "),
	})
	require.NoError(t, err)
	assert.Equal(t, "public class A {\n    int x;\n}\n", got)
}

func TestApplyEditsSameStartKeepsArrayOrder(t *testing.T) {
	got, err := ApplyEdits("x", []TextEdit{edit(0, 0, 0, 0, "a"), edit(0, 0, 0, 0, "b")})
	require.NoError(t, err)
	assert.Equal(t, "abx", got)
}

func TestApplyEditsUTF16Columns(t *testing.T) {
	got, err := ApplyEdits("s = \"😀\";", []TextEdit{edit(0, 8, 0, 9, "")})
	require.NoError(t, err)
	assert.Equal(t, "s = \"😀\"", got)
}

func TestApplyEditsRejectsOverlap(t *testing.T) {
	text := "abcdef"
	_, err := ApplyEdits(text, []TextEdit{edit(0, 0, 0, 3, "x"), edit(0, 2, 0, 4, "y")})
	assert.Error(t, err)

	_, err = ApplyEdits(text, []TextEdit{edit(0, 4, 0, 1, "")})
	assert.Error(t, err)
}

func TestApplyEditsEmpty(t *testing.T) {
	got, err := ApplyEdits("same", nil)
	require.NoError(t, err)
	assert.Equal(t, "same", got)
}
