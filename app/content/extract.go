package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

var ErrNoMainContent = errors.New("no main content block found")

// mainSelectors are tried in order; the first block long enough wins.
var mainSelectors = []string{
	"article",
	"div.article-content",
	"div.article-body",
	"div.entry-content",
	"div.post-content",
	"div.post-body",
	"div.story-body",
	"div[itemprop=articleBody]",
	"div.content",
	"div#content",
	"main",
}

// ExtractMainBlock finds the main content of an article page. Ranked selectors
// are tried before falling back to readability scoring.
func ExtractMainBlock(page []byte, pageURL string) (string, error) {
	if len(page) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	r, err := charset.NewReader(bytes.NewReader(page), "text/html")
	if err != nil {
		return "", fmt.Errorf("failed to detect page encoding: %w", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decoded))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}
	doc.Find(chromeSelector).Remove()

	for _, sel := range mainSelectors {
		var block string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			html, err := s.Html()
			if err != nil || len(strings.TrimSpace(html)) < MinBlockLength {
				return true
			}
			block = strings.TrimSpace(html)
			return false
		})
		if block != "" {
			return block, nil
		}
	}

	return readabilityBlock(decoded, pageURL)
}

func readabilityBlock(page []byte, pageURL string) (string, error) {
	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil {
		base = u
	}

	article, err := readability.FromReader(bytes.NewReader(page), base)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	var buf bytes.Buffer
	if err := article.RenderHTML(&buf); err != nil {
		return "", fmt.Errorf("failed to render content: %w", err)
	}
	if len(strings.TrimSpace(buf.String())) < MinBlockLength {
		return "", ErrNoMainContent
	}
	return buf.String(), nil
}
