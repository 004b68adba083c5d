// Package env contains helpers for loading and merging environment variables from multiple sources.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Vars represents a simple string-to-string map of variables.
type Vars map[string]string

// FromOS builds a Vars map from the current process environment.
func FromOS() Vars {
	out := make(Vars)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}

// Merge merges several Vars maps into one, later maps overriding earlier keys.
func Merge(sets ...Vars) Vars {
	out := make(Vars)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// Lookup returns the trimmed value for key and whether it is non-empty.
func (v Vars) Lookup(key string) (string, bool) {
	if v == nil {
		return "", false
	}
	value := strings.TrimSpace(v[key])
	return value, value != ""
}

// GetOr returns the value for key, or def when the key is unset or blank.
func (v Vars) GetOr(key, def string) string {
	if value, ok := v.Lookup(key); ok {
		return value
	}
	return def
}

// Clone returns an independent copy of v.
func (v Vars) Clone() Vars {
	return Merge(v)
}

// LoadEnvFile loads a single .env-style file into Vars.
func LoadEnvFile(path string) (Vars, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	envMap, err := godotenv.Parse(f)
	if err != nil {
		return nil, err
	}
	return Vars(envMap), nil
}

// LoadEnvFiles loads multiple .env-style files and merges them in order.
// Missing files are an error unless optional is true.
func LoadEnvFiles(baseDir string, files []string, optional bool) (Vars, error) {
	result := make(Vars)
	for _, name := range files {
		if strings.TrimSpace(name) == "" {
			continue
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, name)
		}
		vars, err := LoadEnvFile(path)
		if err != nil {
			if optional && os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
		result = Merge(result, vars)
	}
	return result, nil
}
