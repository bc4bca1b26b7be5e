package workspace

import (
	"path/filepath"
	"strings"
)

// MetaDir is the per-project directory holding engine state (layout, graph cache).
const MetaDir = ".unimozer-next"

// skipDirs are never listed, watched or packed. Matching is case-insensitive.
var skipDirs = []string{
	"node_modules",
	"target",
	"dist",
	"out",
	".git",
	".idea",
	"bin",
	MetaDir,
}

// SkipDir reports whether a directory name is excluded from the project tree.
func SkipDir(name string) bool {
	for _, skip := range skipDirs {
		if strings.EqualFold(skip, name) {
			return true
		}
	}
	return false
}

// CanonicalPath returns an absolute, cleaned, slash-separated form of path.
func CanonicalPath(path string) string {
	if path == "" {
		return ""
	}
	candidate := filepath.FromSlash(path)
	if abs, err := filepath.Abs(candidate); err == nil {
		candidate = abs
	}
	return filepath.ToSlash(filepath.Clean(candidate))
}

// PathWithinRoot reports whether path lies inside root (or equals it).
func PathWithinRoot(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	root = filepath.Clean(filepath.FromSlash(root))
	path = filepath.Clean(filepath.FromSlash(path))
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." {
		return false
	}
	prefix := ".." + string(filepath.Separator)
	return !strings.HasPrefix(rel, prefix)
}

// IsJavaSource reports whether path names a .java file.
func IsJavaSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".java")
}
