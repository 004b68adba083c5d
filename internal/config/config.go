// Package config contains the loader and strongly typed model for lvdash.yaml and
// the remote-service settings read from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is the default location of the project configuration file.
	DefaultPath = "lvdash.yaml"
	// DefaultSuffix is the file suffix identifying dashboard definition files.
	DefaultSuffix = ".lvdash.json"
	// DefaultBackupRoot is the directory that receives environment backups.
	DefaultBackupRoot = "backups"
)

// ErrUnknownEnvironment is returned when an environment has no entry in lvdash.yaml.
var ErrUnknownEnvironment = errors.New("environment not defined")

var validate = validator.New()

// Config describes a dashboard project. Every field is optional; an absent file
// yields the defaults.
type Config struct {
	// Suffix identifies dashboard definition files in WorkDir.
	Suffix string `yaml:"suffix,omitempty"`
	// WorkDir is the directory scanned for definitions and query files.
	WorkDir string `yaml:"workDir,omitempty"`
	// BackupRoot is the directory under which backups/<env>/<timestamp> is created.
	BackupRoot string `yaml:"backupRoot,omitempty"`
	// ParentPath is the workspace folder new dashboards are created in.
	ParentPath string `yaml:"parentPath,omitempty"`
	// EnvFiles lists .env files loaded before reading settings.
	EnvFiles []string `yaml:"envFiles,omitempty"`
	// Environments overrides the built-in warehouse and access-control table.
	Environments map[string]Environment `yaml:"environments,omitempty" validate:"dive"`

	// Dir is the directory containing the loaded file; relative paths resolve against it.
	Dir string `yaml:"-"`
}

// Environment holds per-environment overrides.
type Environment struct {
	// From references another environment to inherit from.
	From string `yaml:"from,omitempty"`
	// WarehouseID replaces the built-in default warehouse literal.
	WarehouseID string `yaml:"warehouseId,omitempty"`
	// AccessControl replaces the built-in default access-control list.
	AccessControl []AccessControl `yaml:"accessControl,omitempty" validate:"dive"`
}

// AccessControl is a single principal grant as written in lvdash.yaml.
type AccessControl struct {
	Principal string `yaml:"principal" validate:"required"`
	Type      string `yaml:"type,omitempty" validate:"omitempty,oneof=group user service_principal"`
	Level     string `yaml:"level" validate:"required,oneof=CAN_READ CAN_RUN CAN_EDIT CAN_MANAGE"`
}

// Default returns the configuration used when no lvdash.yaml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// Load reads and validates the configuration file at path. A missing file is only
// an error when explicit is true; otherwise the defaults are returned.
func Load(path string, explicit bool) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %q: %w", absPath, err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", absPath, err)
	}
	cfg.applyDefaults(filepath.Dir(absPath))
	return cfg, nil
}

// Parse decodes and validates lvdash.yaml content.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and environment inheritance.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := ResolveEnvironment(c, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDefaults(dir string) {
	c.Dir = dir
	if strings.TrimSpace(c.Suffix) == "" {
		c.Suffix = DefaultSuffix
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		c.WorkDir = "."
	}
	if strings.TrimSpace(c.BackupRoot) == "" {
		c.BackupRoot = DefaultBackupRoot
	}
}

// Path resolves p against the directory of the configuration file.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// ResolveEnvironment returns the effective overrides for the given name,
// following optional "from" links. ErrUnknownEnvironment is returned when name
// has no entry.
func ResolveEnvironment(cfg *Config, name string) (Environment, error) {
	if cfg == nil {
		return Environment{}, fmt.Errorf("config is nil")
	}

	visited := make(map[string]struct{})
	var resolve func(current string) (Environment, error)

	resolve = func(current string) (Environment, error) {
		if _, seen := visited[current]; seen {
			return Environment{}, fmt.Errorf("environment inheritance cycle detected at %q", current)
		}
		visited[current] = struct{}{}

		envCfg, ok := cfg.Environments[current]
		if !ok {
			return Environment{}, fmt.Errorf("%w: %q", ErrUnknownEnvironment, current)
		}

		if envCfg.From == "" {
			return envCfg, nil
		}

		base, err := resolve(envCfg.From)
		if err != nil {
			return Environment{}, err
		}

		merged := base
		merged.From = ""
		if envCfg.WarehouseID != "" {
			merged.WarehouseID = envCfg.WarehouseID
		}
		if len(envCfg.AccessControl) > 0 {
			merged.AccessControl = envCfg.AccessControl
		}
		return merged, nil
	}

	return resolve(name)
}
