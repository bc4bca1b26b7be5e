package lsp

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// ApplyEdits applies edits to text. Positions use UTF-16 columns; edits are
// applied from the highest offset down so earlier offsets stay valid, and
// edits sharing a start keep their array order in the result.
func ApplyEdits(text string, edits []TextEdit) (string, error) {
	if len(edits) == 0 {
		return text, nil
	}
	type span struct {
		start, end int
		index      int
		text       string
	}
	spans := make([]span, len(edits))
	for i, edit := range edits {
		start := OffsetForPosition(text, edit.Range.Start)
		end := OffsetForPosition(text, edit.Range.End)
		if end < start {
			return text, fmt.Errorf("edit %d: range end before start", i)
		}
		spans[i] = span{start: start, end: end, index: i, text: edit.NewText}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start > spans[j].start
		}
		return spans[i].index > spans[j].index
	})
	for i := 1; i < len(spans); i++ {
		if spans[i].end > spans[i-1].start {
			return text, fmt.Errorf("edits %d and %d overlap", spans[i].index, spans[i-1].index)
		}
	}
	for _, s := range spans {
		text = text[:s.start] + s.text + text[s.end:]
	}
	return text, nil
}

// OffsetForPosition converts a line/UTF-16 column position to a byte
// offset, clamping to the end of the line or text.
func OffsetForPosition(text string, pos Position) int {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	line := 0
	i := 0
	for i < len(text) && line < pos.Line {
		if text[i] == '\n' {
			line++
		}
		i++
	}
	if line < pos.Line {
		return len(text)
	}
	units := 0
	for i < len(text) && units < pos.Character {
		if text[i] == '\n' || (text[i] == '\r' && i+1 < len(text) && text[i+1] == '\n') {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			break
		}
		units += need
		i += size
	}
	return i
}
