// Package uml models the structural class graph produced by the parser and
// reconciles partial parse results with the last accepted graph.
package uml

import (
	"path/filepath"
	"strings"
)

// EdgeKind is the relationship an edge represents.
type EdgeKind string

const (
	EdgeExtends              EdgeKind = "extends"
	EdgeImplements           EdgeKind = "implements"
	EdgeAssociation          EdgeKind = "association"
	EdgeReflexiveAssociation EdgeKind = "reflexive-association"
	EdgeDependency           EdgeKind = "dependency"
)

// SourceRange locates a member in its file (1-based lines and columns).
type SourceRange struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

type Field struct {
	Signature  string       `json:"signature"`
	IsStatic   bool         `json:"isStatic"`
	Visibility string       `json:"visibility"`
	Range      *SourceRange `json:"range,omitempty"`
}

type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Method struct {
	Signature  string       `json:"signature"`
	Name       string       `json:"name"`
	ReturnType string       `json:"returnType"`
	Params     []Param      `json:"params,omitempty"`
	IsAbstract bool         `json:"isAbstract"`
	IsMain     bool         `json:"isMain"`
	IsStatic   bool         `json:"isStatic"`
	Visibility string       `json:"visibility"`
	Range      *SourceRange `json:"range,omitempty"`
}

// Node is one type declaration. ID is the fully-qualified name and is the
// join key shared with the diagram layout and the document mirror.
type Node struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Path       string   `json:"path"`
	IsAbstract bool     `json:"isAbstract"`
	Fields     []Field  `json:"fields"`
	Methods    []Method `json:"methods"`
	IsInvalid  bool     `json:"isInvalid"`
}

type Edge struct {
	ID   string   `json:"id"`
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// EdgeID builds the canonical edge id "from:kind:to".
func EdgeID(from string, kind EdgeKind, to string) string {
	return from + ":" + string(kind) + ":" + to
}

// Graph is a structural model snapshot. Node ids are unique and every edge
// endpoint names a node of the same graph.
type Graph struct {
	Nodes       []Node   `json:"nodes"`
	Edges       []Edge   `json:"edges"`
	FailedFiles []string `json:"failedFiles"`
}

// Empty reports whether the graph holds no nodes.
func (g *Graph) Empty() bool {
	return g == nil || len(g.Nodes) == 0
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs returns node ids in graph order.
func (g *Graph) NodeIDs() []string {
	if g == nil {
		return nil
	}
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// InvalidIDs returns the set of ids of nodes marked invalid.
func (g *Graph) InvalidIDs() map[string]bool {
	out := make(map[string]bool)
	if g == nil {
		return out
	}
	for _, n := range g.Nodes {
		if n.IsInvalid {
			out[n.ID] = true
		}
	}
	return out
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() Graph {
	if g == nil {
		return Graph{}
	}
	out := Graph{
		Nodes:       make([]Node, len(g.Nodes)),
		Edges:       append([]Edge(nil), g.Edges...),
		FailedFiles: append([]string(nil), g.FailedFiles...),
	}
	for i, n := range g.Nodes {
		n.Fields = append([]Field(nil), n.Fields...)
		n.Methods = append([]Method(nil), n.Methods...)
		out.Nodes[i] = n
	}
	return out
}

// Normalize drops duplicate node ids (first wins), duplicate edge ids and
// edges whose endpoints are not in the graph, and fills in missing edge ids.
func (g *Graph) Normalize() {
	if g == nil {
		return
	}
	g.pruneEdges(g.dedupeNodes())
}

func (g *Graph) dedupeNodes() map[string]bool {
	seen := make(map[string]bool, len(g.Nodes))
	nodes := g.Nodes[:0]
	for _, n := range g.Nodes {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		nodes = append(nodes, n)
	}
	g.Nodes = nodes
	return seen
}

func (g *Graph) pruneEdges(known map[string]bool) {
	seen := make(map[string]bool, len(g.Edges))
	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if e.ID == "" {
			e.ID = EdgeID(e.From, e.Kind, e.To)
		}
		if seen[e.ID] || !known[e.From] || !known[e.To] {
			continue
		}
		seen[e.ID] = true
		edges = append(edges, e)
	}
	g.Edges = edges
}

// pathKey compares file paths reported by different parser runs.
func pathKey(path string) string {
	if path == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
}

// IDForPath derives the fully-qualified id and simple name of the class a
// source file is expected to declare: the package comes from the directory
// relative to srcRoot, the name from the file stem.
func IDForPath(srcRoot, path string) (id, name string) {
	base := filepath.Base(filepath.FromSlash(path))
	name = strings.TrimSuffix(base, filepath.Ext(base))
	if srcRoot == "" {
		return name, name
	}
	rel, err := filepath.Rel(filepath.FromSlash(srcRoot), filepath.FromSlash(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return name, name
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return name, name
	}
	pkg := strings.ReplaceAll(filepath.ToSlash(dir), "/", ".")
	return pkg + "." + name, name
}
