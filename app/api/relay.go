package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-harvest/app/cache"
	"github.com/lysyi3m/rss-harvest/app/feed"
	"github.com/lysyi3m/rss-harvest/app/fetch"
	"github.com/lysyi3m/rss-harvest/app/ingest"
	"github.com/lysyi3m/rss-harvest/app/metrics"
)

const (
	RawRelayPath   = "/relay/raw"
	FeedRelayPath  = ingest.RelayFeedPath
	ImageRelayPath = "/relay/image"

	imageCacheControl = "public, max-age=86400"
	feedContentType   = "application/rss+xml; charset=utf-8"
)

var imageHeaders = map[string]string{
	"Accept": "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
}

// ResponseCache keeps rendered relay responses between requests.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RelayOptions struct {
	// PublicURL is the externally reachable base of this server; relayed
	// image urls are built on it.
	PublicURL string
	// AllowPrivate lets the relay fetch loopback and private network hosts.
	AllowPrivate bool
	Fetch        fetch.Options

	// Cache is optional. A zero TTL disables caching for that kind.
	Cache    ResponseCache
	FeedTTL  time.Duration
	ImageTTL time.Duration
}

// Relay fetches upstream resources on behalf of clients that cannot reach
// them directly. Feeds are re-rendered with their images routed through the
// image endpoint.
type Relay struct {
	fetcher   Fetcher
	parser    *feed.Parser
	generator *feed.Generator
	policy    urlPolicy
	publicURL string
	opts      fetch.Options
	cache     ResponseCache
	feedTTL   time.Duration
	imageTTL  time.Duration
}

func NewRelay(fetcher Fetcher, parser *feed.Parser, generator *feed.Generator, opts RelayOptions) *Relay {
	return &Relay{
		fetcher:   fetcher,
		parser:    parser,
		generator: generator,
		policy:    urlPolicy{allowPrivate: opts.AllowPrivate},
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		opts:      opts.Fetch,
		cache:     opts.Cache,
		feedTTL:   opts.FeedTTL,
		imageTTL:  opts.ImageTTL,
	}
}

func (r *Relay) Raw(c *gin.Context) {
	target, ok := r.target(c)
	if !ok {
		return
	}

	body, err := r.fetcher.Fetch(c.Request.Context(), target.String(), r.opts)
	if err != nil {
		r.upstreamError(c, "raw", target, err)
		return
	}

	contentType := http.DetectContentType(body)
	if feed.LooksLikeXML(body) {
		contentType = "application/xml; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, body)
}

func (r *Relay) Feed(c *gin.Context) {
	target, ok := r.target(c)
	if !ok {
		return
	}

	key := cache.Key("feed", target.String())
	if contentType, body, ok := r.cached(c.Request.Context(), "feed", key); ok {
		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, contentType, body)
		return
	}

	body, err := r.fetcher.Fetch(c.Request.Context(), target.String(), r.opts)
	if err != nil {
		r.upstreamError(c, "feed", target, err)
		return
	}
	if !feed.LooksLikeXML(body) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream did not return a feed"})
		return
	}

	parsed, err := r.parser.Run(body)
	if err != nil {
		slog.Warn("Relay parse failed", "url", target.String(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream feed could not be parsed"})
		return
	}

	r.rewriteFeed(parsed)

	selfLink := r.publicURL + FeedRelayPath + "?url=" + url.QueryEscape(target.String())
	out, err := r.generator.Run(parsed, selfLink)
	if err != nil {
		slog.Error("Relay render failed", "url", target.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Feed could not be rendered"})
		return
	}

	r.store(c.Request.Context(), key, feedContentType, []byte(out), r.feedTTL)

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, feedContentType, []byte(out))
}

func (r *Relay) Image(c *gin.Context) {
	target, ok := r.target(c)
	if !ok {
		return
	}

	key := cache.Key("image", target.String())
	if contentType, body, ok := r.cached(c.Request.Context(), "image", key); ok {
		c.Header("Cache-Control", imageCacheControl)
		c.Header("X-Content-Type-Options", "nosniff")
		c.Data(http.StatusOK, contentType, body)
		return
	}

	opts := r.opts
	opts.Headers = imageHeaders
	body, err := r.fetcher.Fetch(c.Request.Context(), target.String(), opts)
	if err != nil {
		r.upstreamError(c, "image", target, err)
		return
	}

	contentType, ok := imageContentType(body)
	if !ok {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Upstream did not return an image"})
		return
	}

	r.store(c.Request.Context(), key, contentType, body, r.imageTTL)

	c.Header("Cache-Control", imageCacheControl)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, contentType, body)
}

// cached looks up a stored response. Cache errors count as misses.
func (r *Relay) cached(ctx context.Context, kind, key string) (string, []byte, bool) {
	if r.cache == nil {
		return "", nil, false
	}

	entry, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("Relay cache read failed", "kind", kind, "error", err)
		return "", nil, false
	}
	if ok {
		contentType, body, ok := decodeEntry(entry)
		metrics.RecordRelayCache(kind, ok)
		return contentType, body, ok
	}
	metrics.RecordRelayCache(kind, false)
	return "", nil, false
}

func (r *Relay) store(ctx context.Context, key, contentType string, body []byte, ttl time.Duration) {
	if r.cache == nil || ttl <= 0 {
		return
	}
	if err := r.cache.Set(ctx, key, encodeEntry(contentType, body), ttl); err != nil {
		slog.Warn("Relay cache write failed", "key", key, "error", err)
	}
}

// Entries are the content type, a newline, then the body.
func encodeEntry(contentType string, body []byte) []byte {
	out := make([]byte, 0, len(contentType)+1+len(body))
	out = append(out, contentType...)
	out = append(out, '\n')
	return append(out, body...)
}

func decodeEntry(entry []byte) (string, []byte, bool) {
	i := bytes.IndexByte(entry, '\n')
	if i <= 0 {
		return "", nil, false
	}
	return string(entry[:i]), entry[i+1:], true
}

func (r *Relay) target(c *gin.Context) (*url.URL, bool) {
	target, err := r.policy.parse(c.Query("url"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid url", "detail": err.Error()})
		return nil, false
	}
	return target, true
}

func (r *Relay) upstreamError(c *gin.Context, kind string, target *url.URL, err error) {
	slog.Warn("Relay fetch failed", "kind", kind, "url", target.String(), "error", err)

	var statusErr *fetch.StatusError
	switch {
	case errors.As(err, &statusErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream error", "upstream_status": statusErr.StatusCode})
	case errors.Is(err, fetch.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Upstream timeout"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream unreachable"})
	}
}

func imageContentType(body []byte) (string, bool) {
	detected := http.DetectContentType(body)
	if strings.HasPrefix(detected, "image/") {
		return detected, true
	}
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return "image/svg+xml", true
	}
	return "", false
}
