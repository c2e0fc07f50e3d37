package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

const (
	mediaNamespace = "http://search.yahoo.com/mrss/"
	atomNamespace  = "http://www.w3.org/2005/Atom"
)

// Generator renders a parsed Feed back to RSS 2.0 with Media RSS elements.
// The relay uses it to serve feeds whose image URLs it has rewritten.
type Generator struct {
	version string
}

func NewGenerator(version string) *Generator {
	return &Generator{version: version}
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	MediaNS string     `xml:"xmlns:media,attr"`
	AtomNS  string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link,omitempty"`
	Description   string    `xml:"description,omitempty"`
	Self          *atomLink `xml:"atom:link"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Generator     string    `xml:"generator"`
	Language      string    `xml:"language,omitempty"`
	Image         *rssImage `xml:"image"`
	Items         []rssItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssImage struct {
	URL   string `xml:"url"`
	Title string `xml:"title,omitempty"`
	Link  string `xml:"link,omitempty"`
}

type rssItem struct {
	GUID        *rssGUID        `xml:"guid"`
	Title       string          `xml:"title,omitempty"`
	Link        string          `xml:"link,omitempty"`
	Description string          `xml:"description,omitempty"`
	PubDate     string          `xml:"pubDate,omitempty"`
	Author      string          `xml:"author,omitempty"`
	Categories  []string        `xml:"category"`
	Enclosures  []rssEnclosure  `xml:"enclosure"`
	Media       []mediaContent  `xml:"media:content"`
	Thumbnail   *mediaThumbnail `xml:"media:thumbnail"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int    `xml:"length,attr"`
	Type   string `xml:"type,attr,omitempty"`
}

type mediaContent struct {
	URL         string `xml:"url,attr"`
	Medium      string `xml:"medium,attr,omitempty"`
	Type        string `xml:"type,attr,omitempty"`
	Width       int    `xml:"width,attr,omitempty"`
	Height      int    `xml:"height,attr,omitempty"`
	Title       string `xml:"media:title,omitempty"`
	Description string `xml:"media:description,omitempty"`
	Credit      string `xml:"media:credit,omitempty"`
}

type mediaThumbnail struct {
	URL    string `xml:"url,attr"`
	Width  int    `xml:"width,attr,omitempty"`
	Height int    `xml:"height,attr,omitempty"`
}

func (g *Generator) Run(feed *Feed, selfLink string) (string, error) {
	if feed == nil {
		return "", fmt.Errorf("feed is nil")
	}

	channel := rssChannel{
		Title:         feed.Title,
		Link:          feed.Link,
		Description:   feed.Description,
		LastBuildDate: time.Now().Format(time.RFC1123Z),
		Generator:     "RSS-Harvest/" + g.version,
		Language:      feed.Language,
		Items:         make([]rssItem, 0, len(feed.Items)),
	}
	if selfLink != "" {
		channel.Self = &atomLink{Href: selfLink, Rel: "self", Type: "application/rss+xml"}
	}
	if feed.ImageURL != "" {
		channel.Image = &rssImage{URL: feed.ImageURL, Title: feed.Title, Link: feed.Link}
	}
	for _, item := range feed.Items {
		channel.Items = append(channel.Items, toRSSItem(item))
	}

	doc := rssDoc{Version: "2.0", MediaNS: mediaNamespace, AtomNS: atomNamespace, Channel: channel}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render feed: %w", err)
	}
	return xml.Header + string(out), nil
}

func toRSSItem(item FeedItem) rssItem {
	out := rssItem{
		Title:       item.Title,
		Link:        item.Link,
		Description: item.RawContentHTML,
		PubDate:     item.PublishedRaw,
		Categories:  item.Categories,
	}

	if item.GUID != "" {
		out.GUID = &rssGUID{IsPermaLink: isAbsoluteHTTP(item.GUID), Value: item.GUID}
	}
	if item.PublishedAt != nil {
		out.PubDate = item.PublishedAt.Format(time.RFC1123Z)
	}
	if len(item.Authors) > 0 {
		out.Author = item.Authors[0]
	}

	for _, enc := range item.Enclosures {
		out.Enclosures = append(out.Enclosures, rssEnclosure{URL: enc.URL, Type: enc.MimeType})
	}
	for _, m := range item.MediaContent {
		out.Media = append(out.Media, mediaContent{
			URL:         m.URL,
			Medium:      m.Medium,
			Type:        m.Type,
			Width:       m.Width,
			Height:      m.Height,
			Title:       m.Title,
			Description: m.Description,
			Credit:      m.Credit,
		})
	}
	if t := item.MediaThumbnail; t != nil {
		out.Thumbnail = &mediaThumbnail{URL: t.URL, Width: t.Width, Height: t.Height}
	}

	return out
}

func isAbsoluteHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
