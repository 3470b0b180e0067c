package news

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finresearch/pkg/errors"
)

// Provider names accepted by NewClient
const (
	ProviderSerpAPI    = "serpapi"
	ProviderGoogleNews = "googlenews"
)

// Article is one news result as returned by a provider
type Article struct {
	Title       string
	Snippet     string
	Link        string
	Source      string
	PublishedAt time.Time
}

// Client queries one news provider.
// Implementations fail with errors.ErrRateLimitExceeded or errors.ErrUnavailable
// when the provider pushes back.
type Client interface {
	Search(ctx context.Context, query string, limit int) ([]Article, error)
	Name() string
}

// Config selects and configures the provider
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Language string
	Country  string
	Timeout  time.Duration
}

// NewClient builds the client named by cfg.Provider
func NewClient(cfg Config) (Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Country == "" {
		cfg.Country = "US"
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderSerpAPI, "":
		if cfg.APIKey == "" {
			return nil, errors.Wrap(errors.ErrInvalidInput, "serpapi API key not configured")
		}
		return NewSerpAPI(cfg, httpClient), nil
	case ProviderGoogleNews:
		return NewGoogleNews(cfg, httpClient), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported news provider: %s", cfg.Provider)
	}
}

// get performs a GET and maps transport failures and non-2xx statuses onto
// the shared sentinels. The caller closes the body.
func get(ctx context.Context, client *http.Client, provider, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: build request", provider)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "finresearch/1.0")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s request: %w", provider, ctx.Err())
		}
		return nil, errors.Wrapf(errors.ErrUnavailable, "%s request: %v", provider, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	detail := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Wrapf(errors.ErrRateLimitExceeded, "%s http %d: %s", provider, resp.StatusCode, detail)
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(errors.ErrUnavailable, "%s http %d: %s", provider, resp.StatusCode, detail)
	default:
		return nil, errors.Wrapf(errors.ErrExternal, "%s http %d: %s", provider, resp.StatusCode, detail)
	}
}
