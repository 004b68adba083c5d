// Package definition discovers and loads dashboard definition files and their
// companion query files from a working directory.
package definition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// QuerySuffix identifies companion SQL query files.
const QuerySuffix = ".sql"

// Definition is a dashboard definition loaded from disk.
type Definition struct {
	// Name is the file base name without the definition suffix.
	Name string
	// Content is the raw JSON object as read from the file.
	Content json.RawMessage
	// SourcePath is the path the definition was loaded from.
	SourcePath string
}

// QualifiedName returns the environment-qualified remote display name.
func (d Definition) QualifiedName(environmentID string) string {
	return QualifiedName(d.Name, environmentID)
}

// Serialized returns the content as a compact JSON string suitable for the remote API.
func (d Definition) Serialized() (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, d.Content); err != nil {
		return "", fmt.Errorf("serialize %s: %w", d.SourcePath, err)
	}
	return buf.String(), nil
}

// QualifiedName joins a base name and environment id into {base}_{env}.
func QualifiedName(baseName, environmentID string) string {
	return baseName + "_" + environmentID
}

// Store reads definitions from a single directory.
type Store struct {
	dir    string
	suffix string
}

// NewStore constructs a Store rooted at dir matching files that end in suffix.
func NewStore(dir, suffix string) *Store {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &Store{dir: dir, suffix: suffix}
}

// Dir returns the directory the store reads from.
func (s *Store) Dir() string { return s.dir }

// Suffix returns the definition file suffix.
func (s *Store) Suffix() string { return s.suffix }

// NameFromPath derives the definition name from a file path.
func (s *Store) NameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), s.suffix)
}

// DefinitionFiles lists definition files sorted by name.
func (s *Store) DefinitionFiles() ([]string, error) {
	return s.list(s.suffix)
}

// QueryFiles lists companion query files sorted by name.
func (s *Store) QueryFiles() ([]string, error) {
	return s.list(QuerySuffix)
}

// AllFiles lists every regular file in the directory; used for diagnostics when
// nothing matched.
func (s *Store) AllFiles() ([]string, error) {
	return s.list("")
}

func (s *Store) list(suffix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %q: %w", s.dir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if suffix != "" && (!strings.HasSuffix(name, suffix) || name == suffix) {
			continue
		}
		path := filepath.Join(s.dir, name)
		if !isRegularFile(e, path) {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

// isRegularFile accepts regular files and symlinks that resolve to one.
func isRegularFile(e os.DirEntry, path string) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Load parses a single definition file. The content must be a JSON object.
func (s *Store) Load(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return Definition{}, fmt.Errorf("parse %s: invalid JSON", path)
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Definition{}, fmt.Errorf("parse %s: must be a JSON object", path)
	}
	return Definition{
		Name:       s.NameFromPath(path),
		Content:    json.RawMessage(trimmed),
		SourcePath: path,
	}, nil
}

// LoadError records a definition file that could not be loaded.
type LoadError struct {
	Name string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadAll discovers and loads every definition. Files that fail to load are
// returned separately so callers can decide how to report them.
func (s *Store) LoadAll() ([]Definition, []*LoadError, error) {
	files, err := s.DefinitionFiles()
	if err != nil {
		return nil, nil, err
	}
	var (
		defs   []Definition
		failed []*LoadError
	)
	for _, path := range files {
		def, err := s.Load(path)
		if err != nil {
			failed = append(failed, &LoadError{Name: s.NameFromPath(path), Path: path, Err: err})
			continue
		}
		defs = append(defs, def)
	}
	return defs, failed, nil
}
