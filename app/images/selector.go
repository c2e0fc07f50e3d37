// Package images picks the single most representative image for a feed item.
package images

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/rss-harvest/app/feed"
)

type Origin string

const (
	OriginMediaContent   Origin = "media_content"
	OriginMediaThumbnail Origin = "media_thumbnail"
	OriginEnclosure      Origin = "enclosure"
	OriginItemImage      Origin = "item_image"
	OriginFigure         Origin = "figure"
	OriginInlineImage    Origin = "img"
)

type Selection struct {
	URL     string
	Caption string
	Credit  string
	Origin  Origin
}

// Config is immutable once handed to NewSelector.
type Config struct {
	PlaceholderKeywords []string
	PlaceholderAlts     []string
	LazyAttrs           []string
	// IconTokens match whole words of the URL host or path, so "logo" rejects
	// site-logo.png but not catalogue.jpg.
	IconTokens []string
	// TrackerPatterns are substrings of known tracking-pixel URLs.
	TrackerPatterns []string
}

func DefaultConfig() Config {
	return Config{
		PlaceholderKeywords: []string{
			"placeholder", "grey-placeholder", "loading", "dummy", "blank", "spacer",
			"transparent.gif", "pixel.gif", "1x1.", "spinner", "lazy-load",
			"default-image", "default_image", "defaultimage", "no-image", "no_image", "noimage",
			"image-not-found", "missing-image", "favicon",
		},
		PlaceholderAlts: []string{"loading", "loading...", "image unavailable"},
		LazyAttrs:       []string{"data-src", "data-original", "data-lazy-src", "src"},
		IconTokens: []string{
			"logo", "logos", "icon", "icons", "favicon", "avatar", "avatars", "gravatar",
			"sprite", "emoji", "badge", "button",
		},
		TrackerPatterns: []string{
			"pixel.wp.com", "stats.wordpress.com", "feeds.feedburner.com/~r/", "/~ff/",
			"feedsportal.com", "doubleclick.net", "pixel.quantserve.com", "/tracking/",
			"/beacon", "open.gif", "track.gif",
		},
	}
}

type Selector struct {
	keywords []string
	alts     map[string]struct{}
	attrs    []string
	icons    map[string]struct{}
	trackers []string
}

func NewSelector(cfg Config) *Selector {
	s := &Selector{
		alts:  make(map[string]struct{}, len(cfg.PlaceholderAlts)),
		attrs: cfg.LazyAttrs,
		icons: make(map[string]struct{}, len(cfg.IconTokens)),
	}
	for _, k := range cfg.PlaceholderKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			s.keywords = append(s.keywords, k)
		}
	}
	for _, k := range cfg.TrackerPatterns {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			s.trackers = append(s.trackers, k)
		}
	}
	for _, k := range cfg.IconTokens {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			s.icons[k] = struct{}{}
		}
	}
	for _, a := range cfg.PlaceholderAlts {
		s.alts[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	if len(s.attrs) == 0 {
		s.attrs = []string{"src"}
	}
	return s
}

// SelectBestImage walks media:content, media:thumbnail, enclosures, the item HTML
// and finally the parser's item image. The first acceptable candidate wins;
// placeholders, icons and tracking pixels are skipped rather than ending the
// search. sourceURL resolves relative references when the item has no link of
// its own.
func (s *Selector) SelectBestImage(item feed.FeedItem, sourceURL string) (Selection, bool) {
	base := baseURL(item.Link, sourceURL)

	if sel, ok := s.fromMediaContent(item.MediaContent, base); ok {
		return sel, true
	}

	if item.MediaThumbnail != nil {
		if u, ok := s.accept(item.MediaThumbnail.URL, "", base); ok {
			sel := Selection{URL: u, Origin: OriginMediaThumbnail}
			if len(item.MediaContent) > 0 {
				sel.Caption = caption(item.MediaContent[0])
				sel.Credit = item.MediaContent[0].Credit
			}
			return sel, true
		}
	}

	for _, enclosure := range item.Enclosures {
		if !strings.HasPrefix(enclosure.MimeType, "image/") {
			continue
		}
		if u, ok := s.accept(enclosure.URL, "", base); ok {
			return Selection{URL: u, Origin: OriginEnclosure}, true
		}
	}

	if sel, ok := s.FromHTML(item.RawContentHTML, base); ok {
		return sel, true
	}

	// For RSS the parser derives this from the first <img> of the content, so it
	// only adds something when the image came from elsewhere (itunes:image).
	if item.ImageURL != "" {
		if u, ok := s.accept(item.ImageURL, "", base); ok {
			return Selection{URL: u, Origin: OriginItemImage}, true
		}
	}

	return Selection{}, false
}

func (s *Selector) fromMediaContent(contents []feed.MediaContent, base *url.URL) (Selection, bool) {
	for _, c := range contents {
		if c.Medium != "image" {
			continue
		}
		if u, ok := s.accept(c.URL, "", base); ok {
			return Selection{URL: u, Caption: caption(c), Credit: c.Credit, Origin: OriginMediaContent}, true
		}
	}
	for _, c := range contents {
		if IsNonImageMedia(c) {
			continue
		}
		if u, ok := s.accept(c.URL, "", base); ok {
			return Selection{URL: u, Caption: caption(c), Credit: c.Credit, Origin: OriginMediaContent}, true
		}
	}
	return Selection{}, false
}

// FromHTML scans markup for <figure> images first, then any <img>.
func (s *Selector) FromHTML(rawHTML string, base *url.URL) (Selection, bool) {
	if !strings.Contains(strings.ToLower(rawHTML), "<img") {
		return Selection{}, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		slog.Debug("Inline image scan failed", "error", err)
		return Selection{}, false
	}

	var found Selection
	doc.Find("figure").EachWithBreak(func(_ int, fig *goquery.Selection) bool {
		var hit bool
		fig.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
			alt := strings.TrimSpace(img.AttrOr("alt", ""))
			u, ok := s.fromImgTag(img, alt, base)
			if !ok {
				return true
			}
			capText := collapse(fig.Find("figcaption").First().Text())
			if capText == "" {
				capText = alt
			}
			found = Selection{URL: u, Caption: capText, Origin: OriginFigure}
			hit = true
			return false
		})
		return !hit
	})
	if found.URL != "" {
		return found, true
	}

	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		alt := strings.TrimSpace(img.AttrOr("alt", ""))
		u, ok := s.fromImgTag(img, alt, base)
		if !ok {
			return true
		}
		found = Selection{URL: u, Caption: alt, Origin: OriginInlineImage}
		return false
	})
	if found.URL != "" {
		return found, true
	}
	return Selection{}, false
}

// fromImgTag checks lazy-loading attributes before src so that a placeholder src
// does not hide the real image.
func (s *Selector) fromImgTag(img *goquery.Selection, alt string, base *url.URL) (string, bool) {
	if isPixelSized(img) {
		return "", false
	}
	for _, attr := range s.attrs {
		v, exists := img.Attr(attr)
		if !exists {
			continue
		}
		if u, ok := s.accept(v, alt, base); ok {
			return u, true
		}
	}
	return "", false
}

// accept resolves, unwraps and filters one candidate.
func (s *Selector) accept(raw, alt string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
		return "", false
	}

	u, ok := resolve(raw, base)
	if !ok {
		return "", false
	}
	u = UnwrapCDN(u)

	if s.IsPlaceholder(u, alt) {
		slog.Debug("Skipping placeholder image", "url", u, "alt", alt)
		return "", false
	}
	return u, true
}

// IsPlaceholder reports whether a URL or alt text marks a stand-in image, a
// site icon or logo, or a tracking pixel.
func (s *Selector) IsPlaceholder(imageURL, alt string) bool {
	if _, ok := s.alts[strings.ToLower(strings.TrimSpace(alt))]; ok && alt != "" {
		return true
	}
	lower := strings.ToLower(imageURL)
	for _, k := range s.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	for _, k := range s.trackers {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return s.hasIconToken(lower)
}

func (s *Selector) hasIconToken(lowerURL string) bool {
	if len(s.icons) == 0 {
		return false
	}
	target := lowerURL
	if u, err := url.Parse(lowerURL); err == nil {
		target = u.Host + "/" + u.Path
	}
	words := strings.FieldsFunc(target, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	for _, w := range words {
		if _, ok := s.icons[w]; ok {
			return true
		}
	}
	return false
}

// isPixelSized reports <img> tags declared as 1x1 or smaller.
func isPixelSized(img *goquery.Selection) bool {
	w, okW := dimension(img, "width")
	h, okH := dimension(img, "height")
	return okW && okH && w <= 1 && h <= 1
}

func dimension(img *goquery.Selection, attr string) (int, bool) {
	v, ok := img.Attr(attr)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// UnwrapCDN returns the inner image of CDN URLs carrying it in an image_uri parameter.
func UnwrapCDN(raw string) string {
	if !strings.Contains(raw, "image_uri=") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	inner := u.Query().Get("image_uri")
	if inner == "" {
		return raw
	}
	innerURL, err := url.Parse(inner)
	if err != nil || (innerURL.Scheme != "http" && innerURL.Scheme != "https") {
		return raw
	}
	return innerURL.String()
}

func resolve(raw string, base *url.URL) (string, bool) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !ref.IsAbs() {
		if base == nil {
			if strings.HasPrefix(raw, "//") {
				ref.Scheme = "https"
			} else {
				return "", false
			}
		} else {
			ref = base.ResolveReference(ref)
		}
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	return ref.String(), true
}

func baseURL(candidates ...string) *url.URL {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		u, err := url.Parse(c)
		if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return u
		}
	}
	return nil
}

func caption(c feed.MediaContent) string {
	if c.Description != "" {
		return collapse(c.Description)
	}
	return collapse(c.Title)
}

// IsNonImageMedia reports media:content entries that describe video, audio or
// other non-image payloads.
func IsNonImageMedia(c feed.MediaContent) bool {
	switch c.Medium {
	case "video", "audio", "document", "executable":
		return true
	}
	return strings.HasPrefix(c.Type, "video/") || strings.HasPrefix(c.Type, "audio/")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
