package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeAddsAndDrops(t *testing.T) {
	base := State{Nodes: map[string]Position{
		"A":    {X: 40, Y: 40},
		"Gone": {X: 300, Y: 40},
	}}
	merged, changed := Merge(base, []string{"A", "B"}, nil)

	assert.True(t, changed)
	assert.Equal(t, Position{X: 40, Y: 40}, merged.Nodes["A"])
	assert.NotContains(t, merged.Nodes, "Gone")
	assert.Equal(t, Position{X: 300, Y: 40}, merged.Nodes["B"], "B takes the first free slot")
}

func TestMergeSameIDsTwiceIsUnchanged(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E"}
	first, changed := Merge(NewState(), ids, nil)
	assert.True(t, changed)
	assert.Len(t, first.Nodes, 5)
	assert.Equal(t, Position{X: 40, Y: 240}, first.Nodes["E"], "fifth node wraps to the next row")

	second, changed := Merge(first, ids, nil)
	assert.False(t, changed)
	assert.Equal(t, first, second)
}

func TestMergeKeepsInvalidNodes(t *testing.T) {
	base := State{Nodes: map[string]Position{"A": {X: 500, Y: 500}}}
	merged, changed := Merge(base, []string{}, map[string]bool{"A": true})
	assert.False(t, changed)
	assert.Equal(t, Position{X: 500, Y: 500}, merged.Nodes["A"])
}

func TestParseLegacy(t *testing.T) {
	got := parseLegacy("# layout\nMain,10,20\n\nbroken line\nmodel.Person, 30.5 ,40\nBad,x,1\n")
	assert.Equal(t, map[string]Position{
		"Main":         {X: 10, Y: 20},
		"model.Person": {X: 30.5, Y: 40},
	}, got)

	seeded := seedFromLegacy(map[string]Position{"Person": {X: 1, Y: 2}, "Main": {X: 3, Y: 4}}, []string{"model.Person", "Main", "New"})
	assert.Equal(t, map[string]Position{
		"model.Person": {X: 1, Y: 2},
		"Main":         {X: 3, Y: 4},
	}, seeded.Nodes)
}
