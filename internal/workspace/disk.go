package workspace

import (
	"errors"
	"os"
	"path/filepath"
)

// Disk is the os-backed filesystem collaborator.
type Disk struct{}

// ReadFile returns the text content of path.
func (Disk) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &IOError{Op: "read", Path: path, Err: err}
	}
	return string(data), nil
}

// WriteFile writes text to path, creating parent directories as needed.
func (Disk) WriteFile(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Remove deletes path. A missing file is not an error.
func (Disk) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// ListTree lists the Java source tree under root.
func (Disk) ListTree(root string) (*FileNode, error) {
	node, err := ListTree(root)
	if err != nil {
		return nil, &IOError{Op: "list", Path: root, Err: err}
	}
	return node, nil
}
