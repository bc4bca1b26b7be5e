package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// packSkip names are left out of packed archives at any depth below the
// project root. Matching is case-insensitive.
var packSkip = []string{
	"build",
	"dist",
	"target",
	"node_modules",
	".git",
	".idea",
	".vscode",
	"out",
	".DS_Store",
	"Thumbs.db",
}

func skipPacked(name string) bool {
	for _, s := range packSkip {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// SanitizeName keeps ASCII letters, digits, '-' and '_', replaces anything
// else with '_' and trims leading and trailing underscores.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "project"
	}
	return out
}

// RootName is the top-level directory inside the archive: the sanitized
// archive file stem.
func RootName(archivePath string) string {
	base := filepath.Base(archivePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return SanitizeName(stem)
}

type packEntry struct {
	path string
	name string
	dir  bool
}

func collect(root, rootName string, skipFiles map[string]bool) ([]packEntry, error) {
	entries := []packEntry{{path: root, name: rootName + "/", dir: true}}
	var walk func(dir, prefix string) error
	walk = func(dir, prefix string) error {
		items, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })
		for _, item := range items {
			if skipPacked(item.Name()) {
				continue
			}
			path := filepath.Join(dir, item.Name())
			name := prefix + item.Name()
			if item.IsDir() {
				entries = append(entries, packEntry{path: path, name: name + "/", dir: true})
				if err := walk(path, name+"/"); err != nil {
					return err
				}
				continue
			}
			if !item.Type().IsRegular() || skipFiles[filepath.Clean(path)] {
				continue
			}
			entries = append(entries, packEntry{path: path, name: name})
		}
		return nil
	}
	if err := walk(root, rootName+"/"); err != nil {
		return nil, err
	}
	return entries, nil
}

// WritePacked zips root into archivePath. Entries are re-rooted under
// RootName(archivePath). The archive is written to a temp file first and
// an existing archive is kept as a backup until the rename succeeds.
func WritePacked(ctx context.Context, root, archivePath string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("project root %s not found", root)
	}
	tmpPath := archivePath + ".tmp"
	bakPath := archivePath + ".bak"
	skipFiles := map[string]bool{
		filepath.Clean(archivePath): true,
		filepath.Clean(tmpPath):     true,
		filepath.Clean(bakPath):     true,
	}
	entries, err := collect(root, RootName(archivePath), skipFiles)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(tmpPath)

	if err := writeZip(ctx, tmpPath, entries); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	_, statErr := os.Stat(archivePath)
	hadExisting := statErr == nil
	if hadExisting {
		if err := os.Remove(bakPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(tmpPath)
			return err
		}
		if err := os.Rename(archivePath, bakPath); err != nil {
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		_ = os.Remove(tmpPath)
		if hadExisting {
			_ = os.Rename(bakPath, archivePath)
		}
		return err
	}
	if hadExisting {
		_ = os.Remove(bakPath)
	}
	return nil
}

func writeZip(ctx context.Context, path string, entries []packEntry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	zw := zip.NewWriter(f)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return err
		}
		if err := addEntry(zw, e); err != nil {
			_ = zw.Close()
			return fmt.Errorf("pack %s: %w", e.name, err)
		}
	}
	return zw.Close()
}

func addEntry(zw *zip.Writer, e packEntry) error {
	hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
	if e.dir {
		hdr.Method = zip.Store
		hdr.SetMode(os.ModeDir | 0o755)
		_, err := zw.CreateHeader(hdr)
		return err
	}
	hdr.SetMode(0o644)
	if info, err := os.Stat(e.path); err == nil {
		hdr.Modified = info.ModTime()
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	src, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}
