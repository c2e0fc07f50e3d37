package feed

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

var ErrMalformedFeed = errors.New("malformed feed")

// Parser is safe for concurrent use; gofeed parsers keep per-document state, so
// each Run gets its own.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Run parses RSS, Atom or JSON feed bytes. Baseline fields come from gofeed; media
// extensions are read from the extension tree gofeed attaches to each item, so an
// item and its media:* elements can never be paired with the wrong neighbour.
func (p *Parser) Run(data []byte) (*Feed, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	out := &Feed{
		Title:       strings.TrimSpace(parsed.Title),
		Link:        parsed.Link,
		Description: parsed.Description,
		Language:    parsed.Language,
	}
	if parsed.Image != nil {
		out.ImageURL = parsed.Image.URL
	}

	out.Items = make([]FeedItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		out.Items = append(out.Items, p.normalizeItem(item))
	}

	return out, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) FeedItem {
	normalized := FeedItem{
		GUID:           cmp.Or(item.GUID, item.Link),
		Title:          strings.TrimSpace(item.Title),
		Link:           strings.TrimSpace(item.Link),
		PublishedAt:    cmp.Or(item.PublishedParsed, item.UpdatedParsed),
		PublishedRaw:   cmp.Or(item.Published, item.Updated),
		RawContentHTML: cmp.Or(item.Content, item.Description),
		Categories:     item.Categories,
	}

	if item.Image != nil {
		normalized.ImageURL = item.Image.URL
	}

	normalized.Authors = p.extractAuthors(item)
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		normalized.AuthorName = cmp.Or(strings.TrimSpace(item.Authors[0].Name), strings.TrimSpace(item.Authors[0].Email))
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		normalized.Enclosures = append(normalized.Enclosures, Enclosure{
			URL:      enclosure.URL,
			MimeType: strings.ToLower(strings.TrimSpace(enclosure.Type)),
		})
	}

	normalized.MediaContent, normalized.MediaThumbnail = extractMedia(item.Extensions)

	return normalized
}

func (p *Parser) extractAuthors(item *gofeed.Item) []string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				authorStr := p.formatAuthor(author.Name, author.Email)
				if authorStr != "" {
					authors = append(authors, authorStr)
				}
			}
		}
	} else if item.Author != nil {
		authorStr := p.formatAuthor(item.Author.Name, item.Author.Email)
		if authorStr != "" {
			authors = append(authors, authorStr)
		}
	}

	return authors
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	} else if email != "" {
		return email
	}

	return ""
}

// LooksLikeXML reports whether data plausibly holds a feed document rather than an
// HTML error page or a bot challenge.
func LooksLikeXML(data []byte) bool {
	trimmed := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	trimmed = bytes.TrimSpace(trimmed)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}

	head := trimmed
	if len(head) > 1024 {
		head = head[:1024]
	}
	lower := bytes.ToLower(head)
	if bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")) {
		return false
	}
	return true
}
