package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	out := map[string]string{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			out[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(data)
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "My_Project", SanitizeName("My Project"))
	assert.Equal(t, "A-B_C", SanitizeName("A-B_C"))
	assert.Equal(t, "project", SanitizeName("   "))
	assert.Equal(t, "Caf", SanitizeName("Café"))
	assert.Equal(t, "Shapes", RootName("/home/ana/Shapes.umz"))
}

func TestWritePackedUsesArchiveStemAndSkipsBuildDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "workspace-1234")
	writeFile(t, filepath.Join(root, "src", "Main.java"), "class Main {}")
	writeFile(t, filepath.Join(root, "target", "Main.class"), "bytes")
	writeFile(t, filepath.Join(root, "src", ".idea", "x.xml"), "<x/>")
	writeFile(t, filepath.Join(root, ".unimozer-next", "diagram.json"), `{"nodes":{}}`)
	archivePath := filepath.Join(t.TempDir(), "My Shapes.umz")

	require.NoError(t, WritePacked(context.Background(), root, archivePath))

	entries := readArchive(t, archivePath)
	assert.Equal(t, []string{
		"My_Shapes/",
		"My_Shapes/.unimozer-next/",
		"My_Shapes/.unimozer-next/diagram.json",
		"My_Shapes/src/",
		"My_Shapes/src/Main.java",
	}, keys(entries))
	assert.Equal(t, "class Main {}", entries["My_Shapes/src/Main.java"])
	assert.NoFileExists(t, archivePath+".tmp")
	assert.NoFileExists(t, archivePath+".bak")
}

func TestWritePackedReplacesExistingArchive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A.java"), "class A {}")
	archivePath := filepath.Join(t.TempDir(), "p.umz")
	require.NoError(t, WritePacked(context.Background(), root, archivePath))

	writeFile(t, filepath.Join(root, "A.java"), "class A { int x; }")
	require.NoError(t, WritePacked(context.Background(), root, archivePath))

	assert.Equal(t, "class A { int x; }", readArchive(t, archivePath)["p/A.java"])
	assert.NoFileExists(t, archivePath+".bak")
}

func TestWritePackedSkipsArchiveInsideRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A.java"), "class A {}")
	archivePath := filepath.Join(root, "p.umz")
	require.NoError(t, WritePacked(context.Background(), root, archivePath))
	require.NoError(t, WritePacked(context.Background(), root, archivePath))

	assert.Equal(t, []string{"p/", "p/A.java"}, keys(readArchive(t, archivePath)))
}

func TestWritePackedMissingRoot(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "p.umz")
	err := WritePacked(context.Background(), filepath.Join(t.TempDir(), "missing"), archivePath)
	require.Error(t, err)
	assert.NoFileExists(t, archivePath)
}

func TestWritePackedCancelledKeepsOldArchive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A.java"), "class A {}")
	archivePath := filepath.Join(t.TempDir(), "p.umz")
	require.NoError(t, WritePacked(context.Background(), root, archivePath))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	writeFile(t, filepath.Join(root, "A.java"), "changed")
	require.ErrorIs(t, WritePacked(ctx, root, archivePath), context.Canceled)

	assert.Equal(t, "class A {}", readArchive(t, archivePath)["p/A.java"])
	assert.NoFileExists(t, archivePath+".tmp")
}
