package feed

import (
	"strings"
	"time"
)

type Feed struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
	Items       []FeedItem
}

// FeedItem is one parsed entry prior to normalization. It is never persisted directly.
type FeedItem struct {
	GUID           string
	Title          string
	Link           string
	PublishedAt    *time.Time // parsed by the feed parser, nil when it could not
	PublishedRaw   string     // raw date text for the fallback date chain
	RawContentHTML string
	AuthorName     string
	Authors        []string // "email (name)" or "name"
	Categories     []string
	ImageURL       string // feed-level <image> of the item, when the format has one

	Enclosures     []Enclosure
	MediaContent   []MediaContent
	MediaThumbnail *MediaThumbnail
}

type Enclosure struct {
	URL      string
	MimeType string
}

type MediaContent struct {
	URL         string
	Width       int
	Height      int
	Medium      string
	Type        string
	Title       string
	Description string
	Credit      string
}

type MediaThumbnail struct {
	URL    string
	Width  int
	Height int
}

// ArticleURL is the link an item is stored under: its link, or an http(s)
// GUID when the link is missing. Empty when neither exists.
func (i FeedItem) ArticleURL() string {
	if link := strings.TrimSpace(i.Link); link != "" {
		return link
	}
	if guid := strings.TrimSpace(i.GUID); strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}
	return ""
}
