package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.SrcRoot())
	assert.False(t, cfg.Packed())
	assert.Empty(t, cfg.ArchivePath())
	assert.Equal(t, 350*time.Millisecond, cfg.Parser.Debounce.Duration)
	assert.Equal(t, 4, cfg.Editor.TabSize)
}

func TestLoadFindsFileInParent(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
[project]
src_dir = "java"
storage = "packed"
archive = "../Shapes.umz"

[parser]
command = "/opt/bridge"
args = ["--stdio"]
debounce = "500ms"

[language_server]
command = "jdtls"
change_debounce = "150ms"

[editor]
tab_size = 2
insert_spaces = false
format_on_save = true
`)
	nested := filepath.Join(root, "java", "shapes")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := Load(nested)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, filepath.Join(root, "java"), cfg.SrcRoot())
	assert.True(t, cfg.Packed())
	assert.Equal(t, filepath.Join(filepath.Dir(root), "Shapes.umz"), cfg.ArchivePath())
	assert.Equal(t, "/opt/bridge", cfg.Parser.Command)
	assert.Equal(t, []string{"--stdio"}, cfg.Parser.Args)
	assert.Equal(t, 500*time.Millisecond, cfg.Parser.Debounce.Duration)
	assert.Equal(t, "jdtls", cfg.LanguageServer.Command)
	assert.Equal(t, "java", cfg.LanguageServer.LanguageID)
	assert.Equal(t, 150*time.Millisecond, cfg.LanguageServer.ChangeDebounce.Duration)
	assert.Equal(t, Editor{TabSize: 2, InsertSpaces: false, FormatOnSave: true}, cfg.Editor)
}

func TestLoadFileValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"bad storage", "[project]\nstorage = \"cloud\"\n", ErrInvalidStorage},
		{"packed without archive", "[project]\nstorage = \"packed\"\n", ErrArchiveMissing},
		{"tab size", "[editor]\ntab_size = 0\n", ErrInvalidTabSize},
		{"empty parser command", "[parser]\ncommand = \"\"\n", ErrCommandMissing},
		{"server without command", "[language_server]\nlanguage_id = \"java\"\n", ErrCommandMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tc.body)
			_, err := LoadFile(path)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadFileBadDuration(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[parser]\ndebounce = \"soon\"\n")
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[editor]\ntabsize = 2\n")
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "editor.tabsize")
}

func TestLoadFileSyntaxError(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[project\n")
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse TOML")
}
