package api

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lysyi3m/rss-harvest/app/feed"
	"github.com/lysyi3m/rss-harvest/app/images"
)

// rewriteFeed points every image reference of f at the image relay. Links,
// titles and dates are left alone so a relayed feed diffs the same as the
// upstream one.
func (r *Relay) rewriteFeed(f *feed.Feed) {
	feedBase := parseBase(f.Link)
	f.ImageURL = r.imageURL(f.ImageURL, feedBase)

	for i := range f.Items {
		item := &f.Items[i]
		base := parseBase(item.Link)
		if base == nil {
			base = feedBase
		}

		for j := range item.MediaContent {
			if images.IsNonImageMedia(item.MediaContent[j]) {
				continue
			}
			item.MediaContent[j].URL = r.imageURL(item.MediaContent[j].URL, base)
		}
		if item.MediaThumbnail != nil {
			item.MediaThumbnail.URL = r.imageURL(item.MediaThumbnail.URL, base)
		}
		for j := range item.Enclosures {
			if strings.HasPrefix(item.Enclosures[j].MimeType, "image/") {
				item.Enclosures[j].URL = r.imageURL(item.Enclosures[j].URL, base)
			}
		}
		item.ImageURL = r.imageURL(item.ImageURL, base)
		item.RawContentHTML = r.rewriteHTML(item.RawContentHTML, base)
	}
}

func (r *Relay) imageURL(raw string, base *url.URL) string {
	if out, ok := r.proxify(raw, base); ok {
		return out
	}
	return raw
}

func (r *Relay) proxify(raw string, base *url.URL) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(strings.ToLower(trimmed), "data:") {
		return raw, false
	}
	if strings.HasPrefix(trimmed, r.imagePrefix()) {
		return raw, false
	}

	parsed, err := url.Parse(images.UnwrapCDN(trimmed))
	if err != nil {
		return raw, false
	}
	if parsed.Host == "" {
		if base == nil {
			return raw, false
		}
		parsed = base.ResolveReference(parsed)
	} else if parsed.Scheme == "" && base != nil {
		parsed.Scheme = base.Scheme
	}
	if r.policy.check(parsed) != nil {
		return raw, false
	}
	return r.imagePrefix() + url.QueryEscape(parsed.String()), true
}

func (r *Relay) imagePrefix() string {
	return r.publicURL + ImageRelayPath + "?url="
}

func (r *Relay) rewriteHTML(text string, base *url.URL) string {
	if !strings.Contains(strings.ToLower(text), "<img") && !strings.Contains(strings.ToLower(text), "srcset") {
		return text
	}

	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	nodes, err := html.ParseFragment(strings.NewReader(text), root)
	if err != nil {
		return text
	}

	changed := false
	for _, node := range nodes {
		if r.rewriteNode(node, base) {
			changed = true
		}
	}
	if !changed {
		return text
	}

	var b strings.Builder
	for _, node := range nodes {
		_ = html.Render(&b, node)
	}
	return b.String()
}

func (r *Relay) rewriteNode(node *html.Node, base *url.URL) bool {
	changed := false
	if node.Type == html.ElementNode {
		switch node.DataAtom {
		case atom.Img:
			for _, key := range []string{"src", "data-src", "data-original", "data-lazy-src"} {
				if rewriteAttr(node, key, func(v string) (string, bool) { return r.proxify(v, base) }) {
					changed = true
				}
			}
			if rewriteAttr(node, "srcset", func(v string) (string, bool) { return r.rewriteSrcset(v, base) }) {
				changed = true
			}
		case atom.Source:
			if rewriteAttr(node, "srcset", func(v string) (string, bool) { return r.rewriteSrcset(v, base) }) {
				changed = true
			}
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if r.rewriteNode(child, base) {
			changed = true
		}
	}
	return changed
}

func (r *Relay) rewriteSrcset(value string, base *url.URL) (string, bool) {
	parts := strings.Split(value, ",")
	changed := false
	for i, part := range parts {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		if out, ok := r.proxify(fields[0], base); ok {
			fields[0] = out
			changed = true
		}
		parts[i] = strings.Join(fields, " ")
	}
	if !changed {
		return value, false
	}
	return strings.Join(parts, ", "), true
}

func rewriteAttr(node *html.Node, key string, rewrite func(string) (string, bool)) bool {
	for i, attr := range node.Attr {
		if attr.Key != key {
			continue
		}
		if updated, ok := rewrite(attr.Val); ok {
			node.Attr[i].Val = updated
			return true
		}
		return false
	}
	return false
}

func parseBase(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}
