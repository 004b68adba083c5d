package config

import (
	"fmt"
	"strings"
	"time"

	envparse "github.com/caarlos0/env/v11"

	"github.com/codex-k8s/lvdashctl/internal/env"
)

// Settings holds the remote-service connection settings.
type Settings struct {
	// Host is the workspace URL from DATABRICKS_HOST.
	Host string `env:"DATABRICKS_HOST" validate:"required,url"`
	// Token is a personal access token from DATABRICKS_TOKEN.
	Token string `env:"DATABRICKS_TOKEN" validate:"required_without=ClientID"`
	// ClientID is the OAuth client id from DATABRICKS_CLIENT_ID.
	ClientID string `env:"DATABRICKS_CLIENT_ID" validate:"required_with=ClientSecret"`
	// ClientSecret is the OAuth client secret from DATABRICKS_CLIENT_SECRET.
	ClientSecret string `env:"DATABRICKS_CLIENT_SECRET" validate:"required_with=ClientID"`
	// RequestTimeout bounds every remote call, from LVDASH_REQUEST_TIMEOUT.
	RequestTimeout time.Duration `env:"LVDASH_REQUEST_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	// RequestsPerSecond paces remote calls, from LVDASH_REQUESTS_PER_SECOND; 0 disables pacing.
	RequestsPerSecond float64 `env:"LVDASH_REQUESTS_PER_SECOND" envDefault:"10" validate:"gte=0"`
	// PageSize is the list page size, from LVDASH_PAGE_SIZE.
	PageSize int `env:"LVDASH_PAGE_SIZE" envDefault:"100" validate:"gte=1,lte=1000"`
}

// UsesOAuth reports whether machine-to-machine OAuth credentials are configured.
func (s Settings) UsesOAuth() bool {
	return s.Token == "" && s.ClientID != ""
}

// ParseSettings reads Settings from vars and validates them.
func ParseSettings(vars env.Vars) (Settings, error) {
	var s Settings
	if err := envparse.ParseWithOptions(&s, envparse.Options{Environment: vars}); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	s.Host = normalizeHost(s.Host)
	s.Token = strings.TrimSpace(s.Token)
	s.ClientID = strings.TrimSpace(s.ClientID)
	s.ClientSecret = strings.TrimSpace(s.ClientSecret)

	if err := validate.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return strings.TrimRight(host, "/")
}
