package workspace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxTraversalDepth = 128

// NodeKind distinguishes directories from files in a FileNode tree.
type NodeKind string

const (
	KindDir  NodeKind = "dir"
	KindFile NodeKind = "file"
)

// FileNode is one entry of the project source tree.
type FileNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Kind     NodeKind    `json:"kind"`
	Children []*FileNode `json:"children,omitempty"`
}

// ErrNoSources is returned by ListTree when root holds no Java files at all.
var ErrNoSources = errors.New("no Java files found")

// ListTree walks root and returns the tree of .java files. Directories
// without Java files (other than root) are pruned; skip directories and
// symlink cycles are ignored.
func ListTree(root string) (*FileNode, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	active := make(map[string]struct{})
	node, err := buildTree(root, true, 0, active)
	if err != nil {
		return nil, err
	}
	if node == nil || len(node.Children) == 0 {
		return node, ErrNoSources
	}
	return node, nil
}

func buildTree(path string, isRoot bool, depth int, active map[string]struct{}) (*FileNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	if !info.IsDir() {
		if !info.Mode().IsRegular() || !IsJavaSource(path) {
			return nil, nil
		}
		return &FileNode{Name: name, Path: path, Kind: KindFile}, nil
	}
	if depth > maxTraversalDepth {
		return nil, nil
	}
	if !isRoot && SkipDir(name) {
		return nil, nil
	}
	key := visitKey(path)
	if _, seen := active[key]; seen {
		return nil, nil
	}
	active[key] = struct{}{}
	defer delete(active, key)

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	children := make([]*FileNode, 0, len(entries))
	for _, entry := range entries {
		child, err := buildTree(filepath.Join(path, entry.Name()), false, depth+1, active)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.Kind != b.Kind {
			return a.Kind == KindDir
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	if !isRoot && len(children) == 0 {
		return nil, nil
	}
	return &FileNode{Name: name, Path: path, Kind: KindDir, Children: children}, nil
}

func visitKey(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// SourceFiles flattens the tree into the list of file paths, in tree order.
func (n *FileNode) SourceFiles() []string {
	if n == nil {
		return nil
	}
	if n.Kind == KindFile {
		return []string{n.Path}
	}
	var out []string
	for _, child := range n.Children {
		out = append(out, child.SourceFiles()...)
	}
	return out
}

// ChangeToken fingerprints the Java files under root by relative path, size
// and modification time. The token changes whenever a source file is added,
// removed or rewritten; "missing" is returned for an absent root.
func ChangeToken(root string) (string, error) {
	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		return "missing", nil
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	type entry struct {
		rel     string
		size    int64
		modTime int64
	}
	var entries []entry
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsJavaSource(path) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), size: fi.Size(), modTime: fi.ModTime().UnixMilli()})
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	h := fnv.New64a()
	var buf [8]byte
	for _, e := range entries {
		_, _ = h.Write([]byte(e.rel))
		binary.LittleEndian.PutUint64(buf[:], uint64(e.size))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(e.modTime))
		_, _ = h.Write(buf[:])
	}
	return fmt.Sprintf("%016x:%d", h.Sum64(), len(entries)), nil
}
