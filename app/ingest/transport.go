package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/lysyi3m/rss-harvest/app/fetch"
)

const RelayFeedPath = "/relay/feed"

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) ([]byte, error)
}

// Transport retrieves the raw feed document for a concrete feed URL.
type Transport interface {
	Name() string
	FetchFeed(ctx context.Context, feedURL string) ([]byte, error)
}

// DirectTransport downloads feeds from their origin.
type DirectTransport struct {
	client Fetcher
	opts   fetch.Options
}

func NewDirectTransport(client Fetcher, opts fetch.Options) *DirectTransport {
	return &DirectTransport{client: client, opts: opts}
}

func (t *DirectTransport) Name() string { return "direct" }

func (t *DirectTransport) FetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	return t.client.Fetch(ctx, feedURL, t.opts)
}

// RelayTransport asks a remote relay for the feed. The relay answers with the
// dereferenced XML, images already pointing at the relay.
type RelayTransport struct {
	client   Fetcher
	endpoint string
	opts     fetch.Options
}

func NewRelayTransport(client Fetcher, relayBaseURL string, opts fetch.Options) (*RelayTransport, error) {
	base := strings.TrimRight(strings.TrimSpace(relayBaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("relay base URL is empty")
	}
	return &RelayTransport{client: client, endpoint: base + RelayFeedPath, opts: opts}, nil
}

func (t *RelayTransport) Name() string { return "proxy" }

func (t *RelayTransport) FetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	return t.client.Fetch(ctx, fetch.WrapURL(t.endpoint, "url", feedURL), t.opts)
}
