// Package config loads unimozer.toml project settings.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the settings file looked up from the project directory upward.
const FileName = "unimozer.toml"

const (
	StorageFolder = "folder"
	StoragePacked = "packed"
)

var (
	ErrInvalidStorage  = errors.New("invalid [project].storage")
	ErrArchiveMissing  = errors.New("packed storage needs [project].archive")
	ErrInvalidTabSize  = errors.New("invalid [editor].tab_size")
	ErrCommandMissing  = errors.New("empty command")
	ErrInvalidDuration = errors.New("invalid duration")
)

// Duration decodes TOML strings such as "350ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidDuration, text, err)
	}
	if v < 0 {
		return fmt.Errorf("%w %q: negative", ErrInvalidDuration, text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Project struct {
	SrcDir  string `toml:"src_dir"`
	Storage string `toml:"storage"`
	Archive string `toml:"archive"`
}

type Parser struct {
	Command  string   `toml:"command"`
	Args     []string `toml:"args"`
	Debounce Duration `toml:"debounce"`
}

type LanguageServer struct {
	// Command is empty when no language server is configured.
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	LanguageID     string   `toml:"language_id"`
	ChangeDebounce Duration `toml:"change_debounce"`
}

type Editor struct {
	TabSize      int  `toml:"tab_size"`
	InsertSpaces bool `toml:"insert_spaces"`
	FormatOnSave bool `toml:"format_on_save"`
}

type Config struct {
	Project        Project        `toml:"project"`
	Parser         Parser         `toml:"parser"`
	LanguageServer LanguageServer `toml:"language_server"`
	Editor         Editor         `toml:"editor"`

	// Path is the file the settings came from, empty for defaults.
	Path string `toml:"-"`
	// Root is the project directory.
	Root string `toml:"-"`
}

// Default returns the settings used when no unimozer.toml exists.
func Default(root string) *Config {
	return &Config{
		Project: Project{SrcDir: "src", Storage: StorageFolder},
		Parser: Parser{
			Command:  "java",
			Args:     []string{"-jar", "parser-bridge.jar", "--stdio"},
			Debounce: Duration{350 * time.Millisecond},
		},
		LanguageServer: LanguageServer{
			LanguageID:     "java",
			ChangeDebounce: Duration{200 * time.Millisecond},
		},
		Editor: Editor{TabSize: 4, InsertSpaces: true},
		Root:   root,
	}
}

// Load finds unimozer.toml from startDir upward and loads it. Without a
// file the defaults apply with startDir as root.
func Load(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		abs, err := filepath.Abs(startDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve start directory: %w", err)
		}
		return Default(abs), nil
	}
	return LoadFile(path)
}

// LoadFile parses path over the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg := Default(filepath.Dir(abs))
	cfg.Path = abs
	meta, err := toml.DecodeFile(abs, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", abs, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", abs, strings.Join(keys, ", "))
	}
	if err := cfg.validate(meta); err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	return cfg, nil
}

func (c *Config) validate(meta toml.MetaData) error {
	c.Project.Storage = strings.ToLower(strings.TrimSpace(c.Project.Storage))
	switch c.Project.Storage {
	case StorageFolder:
	case StoragePacked:
		if strings.TrimSpace(c.Project.Archive) == "" {
			return ErrArchiveMissing
		}
	default:
		return fmt.Errorf("%w %q", ErrInvalidStorage, c.Project.Storage)
	}
	if meta.IsDefined("parser", "command") && strings.TrimSpace(c.Parser.Command) == "" {
		return fmt.Errorf("[parser]: %w", ErrCommandMissing)
	}
	if meta.IsDefined("language_server") && !meta.IsDefined("language_server", "command") {
		return fmt.Errorf("[language_server]: %w", ErrCommandMissing)
	}
	if c.Editor.TabSize < 1 || c.Editor.TabSize > 16 {
		return fmt.Errorf("%w: %d", ErrInvalidTabSize, c.Editor.TabSize)
	}
	if strings.TrimSpace(c.Project.SrcDir) == "" {
		c.Project.SrcDir = "."
	}
	return nil
}

// SrcRoot is the absolute source directory.
func (c *Config) SrcRoot() string {
	return c.resolve(c.Project.SrcDir)
}

// ArchivePath is the absolute archive path, empty for folder storage.
func (c *Config) ArchivePath() string {
	if c.Project.Storage != StoragePacked {
		return ""
	}
	return c.resolve(c.Project.Archive)
}

// Packed reports whether the project is stored as an archive.
func (c *Config) Packed() bool {
	return c.Project.Storage == StoragePacked
}

func (c *Config) resolve(p string) string {
	p = filepath.FromSlash(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, p)
}
