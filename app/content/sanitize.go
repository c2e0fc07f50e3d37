package content

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

const (
	chromeSelector = "script, style, nav, header, footer, iframe, noscript"
	mediaSelector  = "img, picture, figure, video, audio"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("article", "section", "div", "span", "figure", "figcaption", "picture", "video", "audio", "source")
	p.AllowAttrs("src", "alt", "title", "width", "height", "loading").OnElements("img")
	p.AllowAttrs("src", "type", "srcset").OnElements("source")
	p.AllowAttrs("src", "controls", "poster").OnElements("video", "audio")
	p.RequireNoFollowOnLinks(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Sanitize removes page chrome, scripts and handlers while keeping structural
// markup. ModeText additionally drops image and media blocks.
func Sanitize(raw string, mode Mode) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	stripped := raw
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		slog.Debug("Markup parse failed, sanitizing raw content", "error", err)
	} else {
		doc.Find(chromeSelector).Remove()
		if mode == ModeText {
			doc.Find(mediaSelector).Remove()
		}
		if html, err := doc.Find("body").Html(); err == nil {
			stripped = html
		}
	}

	return strings.TrimSpace(policy.Sanitize(stripped))
}

// PlainText flattens markup to whitespace-collapsed text.
func PlainText(markup string) string {
	if !strings.Contains(markup, "<") {
		return collapse(markup)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return collapse(bluemonday.StrictPolicy().Sanitize(markup))
	}
	doc.Find("p, div, br, li, h1, h2, h3, h4, h5, h6, blockquote, figcaption").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml(" ")
	})
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
