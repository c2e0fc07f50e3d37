package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/temoto/robotstxt"
)

const (
	DefaultRobotsCacheSize = 512
	DefaultRobotsTTL       = 6 * time.Hour
	robotsTimeout          = 5 * time.Second
)

// RobotsChecker answers whether an article page may be fetched according to
// its host's robots.txt. Rules are cached per scheme and host.
type RobotsChecker struct {
	client *Client
	agent  string
	rules  *expirable.LRU[string, *robotstxt.RobotsData]
}

func NewRobotsChecker(client *Client, agent string, size int, ttl time.Duration) *RobotsChecker {
	if size <= 0 {
		size = DefaultRobotsCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultRobotsTTL
	}
	return &RobotsChecker{
		client: client,
		agent:  strings.TrimSpace(agent),
		rules:  expirable.NewLRU[string, *robotstxt.RobotsData](size, nil, ttl),
	}
}

// Allowed fails open: a robots.txt that cannot be fetched permits the request.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	origin := u.Scheme + "://" + u.Host
	data, ok := r.rules.Get(origin)
	if !ok {
		data, ok = r.load(ctx, origin)
		if !ok {
			return true
		}
		r.rules.Add(origin, data)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, r.agent)
}

func (r *RobotsChecker) load(ctx context.Context, origin string) (*robotstxt.RobotsData, bool) {
	body, err := r.client.Fetch(ctx, origin+"/robots.txt", Options{Timeout: robotsTimeout, NoRetry: true})

	status := 200
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		status = statusErr.StatusCode
		body = nil
	case err != nil:
		slog.Debug("robots.txt unavailable", "origin", origin, "error", err)
		return nil, false
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		slog.Debug("robots.txt unparsable", "origin", origin, "error", err)
		return nil, false
	}
	return data, true
}
