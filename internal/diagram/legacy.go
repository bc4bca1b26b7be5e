package diagram

import (
	"bufio"
	"strconv"
	"strings"
)

// LegacyFile is the layout file written by the previous generation of the
// editor, one "Name,x,y" line per class.
const LegacyFile = "unimozer.pck"

// parseLegacy reads "Name,x,y" lines. Blank lines, '#' comments and
// malformed lines are skipped.
func parseLegacy(text string) map[string]Position {
	out := make(map[string]Position)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		x, errX := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if name == "" || errX != nil || errY != nil {
			continue
		}
		out[name] = Position{X: x, Y: y}
	}
	return out
}

// seedFromLegacy maps legacy entries onto node ids, matching the full id
// first and the simple class name second.
func seedFromLegacy(legacy map[string]Position, ids []string) State {
	out := NewState()
	for _, id := range ids {
		if p, ok := legacy[id]; ok {
			out.Nodes[id] = p
			continue
		}
		simple := id
		if i := strings.LastIndexByte(id, '.'); i >= 0 {
			simple = id[i+1:]
		}
		if p, ok := legacy[simple]; ok {
			out.Nodes[id] = p
		}
	}
	return out
}
