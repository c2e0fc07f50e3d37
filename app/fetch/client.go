package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBodyBytes = 10 << 20

// BrowserHeaders are sent when fetching article pages rather than feeds.
var BrowserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// Options control a single Fetch call. Zero values fall back to the client defaults.
type Options struct {
	Timeout time.Duration
	// Retries counts attempts after the first one. Zero means "client default",
	// so a call that must not retry sets NoRetry instead. A client whose
	// Defaults.Retries is zero never retries.
	Retries    int
	RetryDelay time.Duration
	Headers    map[string]string
	// NoRetry forces a single attempt regardless of Retries and the defaults.
	NoRetry bool
}

type Config struct {
	UserAgent    string
	RelayURL     string
	RelayHosts   []string
	HostInterval time.Duration
	Defaults     Options
}

func DefaultOptions() Options {
	return Options{
		Timeout:    15 * time.Second,
		Retries:    3,
		RetryDelay: 2 * time.Second,
	}
}

// Client performs GET requests with per-attempt timeouts and exponential backoff.
// It holds no mutable state besides the per-host limiter, so one Client is shared
// by every concurrent ingestion.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *hostLimiter
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewClient(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Defaults.Timeout <= 0 {
		cfg.Defaults = DefaultOptions()
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		limiter:    newHostLimiter(cfg.HostInterval),
		sleep:      sleepContext,
	}
}

// Fetch downloads rawURL, making at most Retries+1 attempts. Between attempts it
// waits RetryDelay * 2^attempt. The last error is returned when every attempt fails.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, ErrEmptyURL
	}
	opts = c.withDefaults(opts)

	target := c.RelayedURL(rawURL)
	if target != rawURL {
		slog.Debug("Routing request through relay", "url", rawURL)
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			delay := opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			slog.Debug("Fetch retry scheduled", "url", rawURL, "attempt", attempt+1, "delay", delay.String(), "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("fetch %s cancelled: %w", rawURL, err)
			}
		}

		body, err := c.attempt(ctx, target, opts)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s cancelled: %w", rawURL, ctx.Err())
		}
	}

	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", rawURL, opts.Retries+1, lastErr)
}

// Head issues a single HEAD request and reports whether the endpoint answered below 400.
func (c *Client) Head(ctx context.Context, rawURL string, timeout time.Duration) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return ErrTimeout
		}
		return fmt.Errorf("failed to probe URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// RelayedURL wraps rawURL into the relay endpoint when its host matches a relay rule.
func (c *Client) RelayedURL(rawURL string) string {
	if c.cfg.RelayURL == "" || len(c.cfg.RelayHosts) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	for _, rule := range c.cfg.RelayHosts {
		if rule != "" && strings.Contains(host, strings.ToLower(rule)) {
			return WrapURL(c.cfg.RelayURL, "url", rawURL)
		}
	}
	return rawURL
}

// WrapURL passes target as a query parameter of base.
func WrapURL(base, param, target string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + param + "=" + url.QueryEscape(target)
}

func (c *Client) attempt(ctx context.Context, target string, opts Options) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	if err := c.limiter.wait(attemptCtx, req.URL.Host); err != nil {
		return nil, c.timeoutOr(ctx, attemptCtx, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.timeoutOr(ctx, attemptCtx, fmt.Errorf("failed to fetch URL: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.timeoutOr(ctx, attemptCtx, fmt.Errorf("failed to read response body: %w", err))
	}
	return data, nil
}

// timeoutOr maps an attempt-local deadline to ErrTimeout while leaving
// parent cancellation untouched.
func (c *Client) timeoutOr(parent, attemptCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (c *Client) withDefaults(opts Options) Options {
	d := c.cfg.Defaults
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	if opts.NoRetry {
		opts.Retries = 0
	} else if opts.Retries <= 0 {
		opts.Retries = d.Retries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = d.RetryDelay
	}
	return opts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
