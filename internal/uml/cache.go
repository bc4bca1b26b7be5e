package uml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// bump when cachePayload changes shape
const cacheSchemaVersion uint16 = 1

// CacheFile is the last-good graph cache location inside the project meta dir.
const CacheFile = "graph.mp"

// Cache persists the last accepted graph so a failed parse right after a
// restart can still fall back to real structure. Safe for concurrent use.
type Cache struct {
	mu   sync.RWMutex
	path string
}

type cachePayload struct {
	Schema uint16
	Root   string
	Graph  Graph
}

// OpenCache returns a cache stored in metaDir.
func OpenCache(metaDir string) *Cache {
	return &Cache{path: filepath.Join(metaDir, CacheFile)}
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Put writes g atomically via a temp file and rename.
func (c *Cache) Put(root string, g Graph) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(c.path), "graph-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if _, statErr := os.Stat(tmp); statErr == nil {
			_ = os.Remove(tmp)
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(&cachePayload{Schema: cacheSchemaVersion, Root: root, Graph: g}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode graph cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// Get loads the cached graph for root. A missing file, a different schema or
// a different root reports ok=false without error.
func (c *Cache) Get(root string) (Graph, bool, error) {
	if c == nil {
		return Graph{}, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Graph{}, false, nil
		}
		return Graph{}, false, err
	}
	defer f.Close()

	var payload cachePayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return Graph{}, false, fmt.Errorf("decode graph cache: %w", err)
	}
	if payload.Schema != cacheSchemaVersion || payload.Root != root {
		return Graph{}, false, nil
	}
	payload.Graph.Normalize()
	return payload.Graph, true, nil
}

// Drop removes the cache file.
func (c *Cache) Drop() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
