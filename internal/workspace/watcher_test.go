package workspace

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeChangesKeepsLatestPerPath(t *testing.T) {
	now := time.Now()
	got := dedupeChanges([]Change{
		{Path: "A.java", Op: OpCreate, Time: now},
		{Path: "B.java", Op: OpWrite, Time: now},
		{Path: "A.java", Op: OpWrite, Time: now.Add(time.Millisecond)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "A.java", got[0].Path)
	assert.Equal(t, OpWrite, got[0].Op)
	assert.Equal(t, "B.java", got[1].Path)
}

func TestWatcherReportsJavaWrites(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "A.java"), "class A {}")

	var (
		mu   sync.Mutex
		seen []Change
	)
	w, err := NewWatcher(root, func(changes []Change) {
		mu.Lock()
		seen = append(seen, changes...)
		mu.Unlock()
	}, WatcherOptions{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, filepath.Join(root, "src", "A.java"), "class A { int x; }")
	writeFile(t, filepath.Join(root, "src", "notes.txt"), "ignored")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range seen {
			if filepath.Base(c.Path) == "A.java" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, c := range seen {
		assert.NotEqual(t, "notes.txt", filepath.Base(c.Path))
	}
}
