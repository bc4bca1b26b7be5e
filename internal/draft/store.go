// Package draft keeps the in-memory ledger of edited file contents.
package draft

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Draft is the edited content of one file next to its last-saved content.
type Draft struct {
	Path             string
	Content          string
	LastSavedContent string
}

// Dirty reports whether the draft differs from its saved baseline.
func (d Draft) Dirty() bool {
	return d.Content != d.LastSavedContent
}

// Override is a dirty draft handed to the parser in place of the disk copy.
type Override struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Listener is called after each mutation with the affected path. Reset
// reports an empty path.
type Listener func(path string)

// Store is the authoritative record of what the user is editing. It is the
// only writer of drafts; every read returns a copy.
type Store struct {
	mu        sync.RWMutex
	drafts    map[string]*Draft
	listeners []Listener
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{drafts: make(map[string]*Draft)}
}

// Key canonicalizes a path for use as a draft key.
func Key(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
	return norm.NFC.String(cleaned)
}

// Update upserts the draft for path, keeping any existing baseline.
func (s *Store) Update(path, content string) {
	key := Key(path)
	s.mu.Lock()
	d, ok := s.drafts[key]
	if !ok {
		d = &Draft{Path: key}
		s.drafts[key] = d
	}
	changed := !ok || d.Content != content
	d.Content = content
	s.mu.Unlock()
	if changed {
		s.notify(key)
	}
}

// UpdateWithBaseline upserts the draft for path and replaces its baseline,
// typically right after a successful disk write.
func (s *Store) UpdateWithBaseline(path, content, baseline string) {
	key := Key(path)
	s.mu.Lock()
	d, ok := s.drafts[key]
	if !ok {
		d = &Draft{Path: key}
		s.drafts[key] = d
	}
	d.Content = content
	d.LastSavedContent = baseline
	s.mu.Unlock()
	s.notify(key)
}

// MarkSaved records saved as the on-disk content of path without touching
// the edited content, so edits made while the write ran stay dirty. It
// reports whether a draft for path exists.
func (s *Store) MarkSaved(path, saved string) bool {
	key := Key(path)
	s.mu.Lock()
	d, ok := s.drafts[key]
	if ok {
		d.LastSavedContent = saved
	}
	s.mu.Unlock()
	if ok {
		s.notify(key)
	}
	return ok
}

// Load records content read from disk as a clean draft. An existing draft
// wins over the disk copy; Load reports whether a draft was created.
func (s *Store) Load(path, content string) bool {
	key := Key(path)
	s.mu.Lock()
	if _, ok := s.drafts[key]; ok {
		s.mu.Unlock()
		return false
	}
	s.drafts[key] = &Draft{Path: key, Content: content, LastSavedContent: content}
	s.mu.Unlock()
	s.notify(key)
	return true
}

// Get returns a copy of the draft for path.
func (s *Store) Get(path string) (Draft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[Key(path)]
	if !ok {
		return Draft{}, false
	}
	return *d, true
}

// IsDirty reports whether any draft differs from its baseline.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.drafts {
		if d.Dirty() {
			return true
		}
	}
	return false
}

// IsPathDirty reports whether the draft for path differs from its baseline.
// A path without a draft is clean.
func (s *Store) IsPathDirty(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[Key(path)]
	return ok && d.Dirty()
}

// Overrides returns the dirty drafts sorted by path.
func (s *Store) Overrides() []Override {
	s.mu.RLock()
	out := make([]Override, 0, len(s.drafts))
	for _, d := range s.drafts {
		if d.Dirty() {
			out = append(out, Override{Path: d.Path, Content: d.Content})
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// DirtyPaths lists the paths of dirty drafts, sorted.
func (s *Store) DirtyPaths() []string {
	overrides := s.Overrides()
	paths := make([]string, len(overrides))
	for i, o := range overrides {
		paths[i] = o.Path
	}
	return paths
}

// Paths lists every tracked path, sorted.
func (s *Store) Paths() []string {
	s.mu.RLock()
	paths := make([]string, 0, len(s.drafts))
	for key := range s.drafts {
		paths = append(paths, key)
	}
	s.mu.RUnlock()
	sort.Strings(paths)
	return paths
}

// Remove drops the draft for path, e.g. after the file was deleted.
func (s *Store) Remove(path string) {
	key := Key(path)
	s.mu.Lock()
	_, ok := s.drafts[key]
	delete(s.drafts, key)
	s.mu.Unlock()
	if ok {
		s.notify(key)
	}
}

// RemoveUnder drops every draft inside dir (a deleted or renamed folder).
func (s *Store) RemoveUnder(dir string) int {
	prefix := Key(dir)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	s.mu.Lock()
	var removed []string
	for key := range s.drafts {
		if strings.HasPrefix(key, prefix) {
			delete(s.drafts, key)
			removed = append(removed, key)
		}
	}
	s.mu.Unlock()
	sort.Strings(removed)
	for _, key := range removed {
		s.notify(key)
	}
	return len(removed)
}

// Reset drops all drafts. Called when the active project changes.
func (s *Store) Reset() {
	s.mu.Lock()
	s.drafts = make(map[string]*Draft)
	s.mu.Unlock()
	s.notify("")
}

// Subscribe registers fn to be called after every mutation.
func (s *Store) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) notify(path string) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(path)
	}
}
