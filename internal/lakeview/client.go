package lakeview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/codex-k8s/lvdashctl/internal/logging"
)

const (
	dashboardsPath  = "/api/2.0/lakeview/dashboards"
	permissionsPath = "/api/2.0/permissions/dashboards"
	tokenPath       = "/oidc/v1/token"

	defaultTimeout  = 30 * time.Second
	defaultPageSize = 100
	maxResponseSize = 64 << 20
)

// Options configures a Client.
type Options struct {
	// Host is the workspace base URL, e.g. https://adb-123.azuredatabricks.net.
	Host string
	// Token is a personal access token. It takes precedence over client credentials.
	Token string
	// ClientID and ClientSecret enable OAuth machine-to-machine authentication.
	ClientID     string
	ClientSecret string
	// Timeout bounds each request.
	Timeout time.Duration
	// RequestsPerSecond paces requests; 0 disables pacing.
	RequestsPerSecond float64
	// PageSize is the page size used by List.
	PageSize int
	// HTTPClient is the underlying transport client; nil uses http.DefaultClient.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the Lakeview REST API.
type Client struct {
	base     *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	pageSize int
	logger   *slog.Logger
}

var _ Service = (*Client)(nil)

// NewClient constructs a Client authenticated with either a static token or
// OAuth client credentials.
func NewClient(opts Options) (*Client, error) {
	host := strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if host == "" {
		return nil, fmt.Errorf("lakeview host is empty")
	}
	baseURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse host %q: %w", host, err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid host %q, expected scheme://host", host)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// Token fetches run outside the per-request context, so the base client
	// carries the timeout itself.
	base := &http.Client{Timeout: timeout}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		if copied.Timeout <= 0 {
			copied.Timeout = timeout
		}
		base = &copied
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	var httpClient *http.Client
	switch {
	case opts.Token != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(tokenCtx, ts)
	case opts.ClientID != "" && opts.ClientSecret != "":
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     host + tokenPath,
			Scopes:       []string{"all-apis"},
		}
		httpClient = cc.Client(tokenCtx)
	default:
		return nil, fmt.Errorf("no credentials: set a token or OAuth client id and secret")
	}

	c := &Client{
		base:     baseURL,
		http:     httpClient,
		timeout:  timeout,
		pageSize: opts.PageSize,
		logger:   logging.OrDiscard(opts.Logger),
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// List returns every dashboard, following pagination.
func (c *Client) List(ctx context.Context) ([]Dashboard, error) {
	var (
		out   []Dashboard
		token string
	)
	for {
		q := url.Values{}
		q.Set("page_size", strconv.Itoa(c.pageSize))
		if token != "" {
			q.Set("page_token", token)
		}
		var page listResponse
		if err := c.do(ctx, http.MethodGet, dashboardsPath, q, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Dashboards...)
		if page.NextPageToken == "" || page.NextPageToken == token {
			break
		}
		token = page.NextPageToken
	}
	return out, nil
}

// Get returns a single dashboard by id.
func (c *Client) Get(ctx context.Context, id string) (Dashboard, error) {
	if strings.TrimSpace(id) == "" {
		return Dashboard{}, fmt.Errorf("dashboard id is empty")
	}
	var d Dashboard
	if err := c.do(ctx, http.MethodGet, dashboardsPath+"/"+url.PathEscape(id), nil, nil, &d); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// Create creates a new dashboard.
func (c *Client) Create(ctx context.Context, req CreateRequest) (Dashboard, error) {
	var d Dashboard
	if err := c.do(ctx, http.MethodPost, dashboardsPath, nil, req, &d); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// SetPermissions replaces the direct permissions on a dashboard.
func (c *Client) SetPermissions(ctx context.Context, id string, acl []AccessControl) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("dashboard id is empty")
	}
	body := permissionsRequest{AccessControlList: toAccessControlRequests(acl)}
	return c.do(ctx, http.MethodPut, permissionsPath+"/"+url.PathEscape(id), nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "lvdashctl")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	c.logger.Debug("lakeview request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil {
			apiErr.ErrorCode = er.ErrorCode
			apiErr.Message = er.Message
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
