package cli

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/lvdashctl/internal/config"
	"github.com/codex-k8s/lvdashctl/internal/definition"
	"github.com/codex-k8s/lvdashctl/internal/env"
	"github.com/codex-k8s/lvdashctl/internal/environment"
	"github.com/codex-k8s/lvdashctl/internal/ghoutput"
	"github.com/codex-k8s/lvdashctl/internal/lakeview"
)

// serviceFactory builds the dashboard service for a run.
type serviceFactory func(settings config.Settings, logger *slog.Logger) (lakeview.Service, error)

func newLakeviewService(settings config.Settings, logger *slog.Logger) (lakeview.Service, error) {
	client, err := lakeview.NewClient(lakeview.Options{
		Host:              settings.Host,
		Token:             settings.Token,
		ClientID:          settings.ClientID,
		ClientSecret:      settings.ClientSecret,
		Timeout:           settings.RequestTimeout,
		RequestsPerSecond: settings.RequestsPerSecond,
		PageSize:          settings.PageSize,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// session is the per-command view of configuration and variables.
type session struct {
	opts   *Options
	cfg    *config.Config
	vars   env.Vars
	logger *slog.Logger
}

// loadSession reads lvdash.yaml and merges env files under the process environment.
func loadSession(cmd *cobra.Command, opts *Options) (*session, error) {
	logger := LoggerFromContext(cmd.Context())

	explicit := cmd.Flags().Changed("config") || envPresent(opts.environ(), "LVDASH_CONFIG")
	cfg, err := config.Load(opts.ConfigPath, explicit)
	if err != nil {
		return nil, err
	}

	cfgVars, err := env.LoadEnvFiles(cfg.Dir, cfg.EnvFiles, true)
	if err != nil {
		return nil, err
	}
	flagVars, err := env.LoadEnvFiles("", opts.EnvFiles, false)
	if err != nil {
		return nil, err
	}
	vars := env.Merge(cfgVars, flagVars, opts.environ())

	logger.Debug("configuration loaded", "config", opts.ConfigPath, "env_files", len(cfg.EnvFiles)+len(opts.EnvFiles))
	return &session{opts: opts, cfg: cfg, vars: vars, logger: logger}, nil
}

// store returns the definition store for --dir or the configured workDir.
func (s *session) store() *definition.Store {
	dir := strings.TrimSpace(s.opts.Dir)
	if dir == "" {
		dir = s.cfg.Path(s.cfg.WorkDir)
	}
	return definition.NewStore(dir, s.cfg.Suffix)
}

// allowedEnvironments lists built-in ids plus environments declared in lvdash.yaml.
func (s *session) allowedEnvironments() []string {
	seen := make(map[string]struct{})
	out := environment.Known()
	for _, id := range out {
		seen[id] = struct{}{}
	}
	extra := make([]string, 0, len(s.cfg.Environments))
	for name := range s.cfg.Environments {
		id := environment.Normalize(name)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		extra = append(extra, id)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// environmentID validates --environment against the allowed set.
func (s *session) environmentID() (string, error) {
	id := environment.Normalize(s.opts.Environment)
	allowed := s.allowedEnvironments()
	if id == "" {
		return "", fmt.Errorf("--environment is required (one of: %s)", strings.Join(allowed, ", "))
	}
	for _, a := range allowed {
		if a == id {
			return id, nil
		}
	}
	return "", fmt.Errorf("invalid environment %q (one of: %s)", s.opts.Environment, strings.Join(allowed, ", "))
}

// profile resolves warehouse and access control for id.
func (s *session) profile(id string) (environment.Profile, error) {
	resolver, err := environment.NewResolver(s.vars, s.cfg)
	if err != nil {
		return environment.Profile{}, err
	}
	return resolver.Resolve(id), nil
}

func (s *session) settings() (config.Settings, error) {
	return config.ParseSettings(s.vars)
}

// service parses connection settings and builds the dashboard service.
func (s *session) service() (lakeview.Service, error) {
	settings, err := s.settings()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("connecting to workspace", "host", settings.Host, "oauth", settings.UsesOAuth())
	return s.opts.newService(settings, s.logger)
}

func (s *session) outputs() ghoutput.Writer {
	return ghoutput.FromEnv(s.vars)
}

// publish writes CI outputs, logging instead of failing the command.
func (s *session) publish(values map[string]string, summary string) {
	w := s.outputs()
	if !w.Enabled() {
		return
	}
	if err := w.Write(values); err != nil {
		s.logger.Warn("failed to write GitHub outputs", "error", err)
	}
	if err := w.Summary(summary); err != nil {
		s.logger.Warn("failed to write GitHub step summary", "error", err)
	}
}
