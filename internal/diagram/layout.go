// Package diagram keeps the 2-D position of every class node, persisted
// next to the project and reconciled against each newly visible graph.
package diagram

import "math"

// Grid used to place nodes that have no position yet.
const (
	GridOriginX = 40
	GridOriginY = 40
	GridStepX   = 260
	GridStepY   = 200
	GridColumns = 4
)

// Position is the top-left corner of a node box.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State maps node ids to positions.
type State struct {
	Nodes map[string]Position `json:"nodes"`
}

// NewState returns an empty state.
func NewState() State {
	return State{Nodes: make(map[string]Position)}
}

// Clone returns an independent copy.
func (s State) Clone() State {
	out := State{Nodes: make(map[string]Position, len(s.Nodes))}
	for id, p := range s.Nodes {
		out.Nodes[id] = p
	}
	return out
}

// Merge reconciles base with the current node ids. New ids get the next
// free grid slot in the order given; ids missing from ids are dropped unless
// keep holds them. changed reports whether any id was added or removed.
func Merge(base State, ids []string, keep map[string]bool) (State, bool) {
	current := make(map[string]bool, len(ids))
	for _, id := range ids {
		current[id] = true
	}

	out := NewState()
	changed := false
	for id, p := range base.Nodes {
		if current[id] || keep[id] {
			out.Nodes[id] = p
			continue
		}
		changed = true
	}

	occupied := occupiedSlots(out)
	slot := 0
	for _, id := range ids {
		if _, ok := out.Nodes[id]; ok {
			continue
		}
		for occupied[slot] {
			slot++
		}
		occupied[slot] = true
		out.Nodes[id] = slotPosition(slot)
		changed = true
	}
	return out, changed
}

func slotPosition(slot int) Position {
	return Position{
		X: float64(GridOriginX + (slot%GridColumns)*GridStepX),
		Y: float64(GridOriginY + (slot/GridColumns)*GridStepY),
	}
}

// occupiedSlots marks every grid cell that already holds a node.
func occupiedSlots(s State) map[int]bool {
	out := make(map[int]bool, len(s.Nodes))
	for _, p := range s.Nodes {
		col := int(math.Floor((p.X - GridOriginX + GridStepX/2) / GridStepX))
		row := int(math.Floor((p.Y - GridOriginY + GridStepY/2) / GridStepY))
		if col < 0 || row < 0 || col >= GridColumns {
			continue
		}
		out[row*GridColumns+col] = true
	}
	return out
}
