package uml

// Placeholder builds the stand-in node for a source file that has never
// parsed successfully.
func Placeholder(srcRoot, path string) Node {
	id, name := IDForPath(srcRoot, path)
	return Node{
		ID:        id,
		Name:      name,
		Kind:      "class",
		Path:      path,
		Fields:    []Field{},
		Methods:   []Method{},
		IsInvalid: true,
	}
}

// FromFiles synthesizes a graph from the source file list alone: one class
// stub per file, no members and no edges. It is shown when the parser fails
// and no earlier graph is available.
func FromFiles(srcRoot string, files []string) Graph {
	g := Graph{Nodes: make([]Node, 0, len(files)), Edges: []Edge{}, FailedFiles: []string{}}
	seen := make(map[string]bool, len(files))
	for _, path := range files {
		id, name := IDForPath(srcRoot, path)
		if seen[id] {
			continue
		}
		seen[id] = true
		g.Nodes = append(g.Nodes, Node{
			ID:      id,
			Name:    name,
			Kind:    "class",
			Path:    path,
			Fields:  []Field{},
			Methods: []Method{},
		})
	}
	return g
}
