// Package content turns raw item markup into stored article content.
package content

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lysyi3m/rss-harvest/app/fetch"
)

type Mode string

const (
	ModeText      Mode = "text"
	ModeImageText Mode = "image_text"
)

func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeText {
		return ModeText
	}
	return ModeImageText
}

const (
	MinRawLength   = 200
	MinBlockLength = 500
	SummaryLength  = 200
	WordsPerMinute = 200
)

// PageFetcher is the subset of fetch.Client used for article page backfill.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) ([]byte, error)
}

// RobotsPolicy reports whether a page may be fetched for backfill.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

type Result struct {
	HTML               string
	Summary            string
	WordCount          int
	ReadingTimeMinutes int
}

type Normalizer struct {
	pages    PageFetcher
	pageOpts fetch.Options
	robots   RobotsPolicy
}

// NewNormalizer returns a normalizer; pages may be nil to disable backfill.
func NewNormalizer(pages PageFetcher, pageOpts fetch.Options) *Normalizer {
	pageOpts.NoRetry = true
	pageOpts.Headers = fetch.BrowserHeaders
	return &Normalizer{pages: pages, pageOpts: pageOpts}
}

// WithRobots makes backfill skip pages that robots.txt disallows.
func (n *Normalizer) WithRobots(robots RobotsPolicy) *Normalizer {
	n.robots = robots
	return n
}

func (n *Normalizer) Normalize(ctx context.Context, rawHTML, itemURL string, mode Mode) Result {
	body := rawHTML
	if len(strings.TrimSpace(rawHTML)) < MinRawLength && itemURL != "" && n.pages != nil {
		if block, ok := n.Backfill(ctx, itemURL); ok {
			body = block
		}
	}

	cleaned := Sanitize(body, mode)
	text := PlainText(cleaned)
	words := WordCount(text)

	return Result{
		HTML:               cleaned,
		Summary:            Summarize(text, SummaryLength),
		WordCount:          words,
		ReadingTimeMinutes: ReadingTime(words),
	}
}

// Backfill fetches the article page and returns its main content block.
func (n *Normalizer) Backfill(ctx context.Context, pageURL string) (string, bool) {
	if n.robots != nil && !n.robots.Allowed(ctx, pageURL) {
		slog.Debug("Article page disallowed by robots.txt", "url", pageURL)
		return "", false
	}

	data, err := n.pages.Fetch(ctx, pageURL, n.pageOpts)
	if err != nil {
		slog.Debug("Article page fetch failed", "url", pageURL, "error", err)
		return "", false
	}

	block, err := ExtractMainBlock(data, pageURL)
	if err != nil {
		slog.Debug("Main content extraction failed", "url", pageURL, "error", err)
		return "", false
	}

	slog.Debug("Backfilled short item content", "url", pageURL, "length", len(block))
	return block, true
}
