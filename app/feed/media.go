package feed

import (
	"strconv"
	"strings"

	ext "github.com/mmcdole/gofeed/extensions"
)

// mediaPrefixes are the namespace prefixes Media RSS is commonly declared under.
var mediaPrefixes = []string{"media", "mrss"}

// mediaFallback carries item or group level values used when a media:content node
// has no description/credit/title of its own.
type mediaFallback struct {
	title       string
	description string
	credit      string
}

// extractMedia walks media:content (also nested in media:group) and media:thumbnail.
// Any malformed node is skipped; it never fails the item.
func extractMedia(exts ext.Extensions) ([]MediaContent, *MediaThumbnail) {
	var contents []MediaContent
	var thumb *MediaThumbnail

	for _, prefix := range mediaPrefixes {
		media, ok := exts[prefix]
		if !ok {
			continue
		}

		itemFallback := fallbackFrom(media, mediaFallback{})

		for _, node := range media["content"] {
			if c, ok := contentFrom(node, itemFallback); ok {
				contents = append(contents, c)
			}
		}

		for _, group := range media["group"] {
			groupFallback := fallbackFrom(group.Children, itemFallback)
			for _, node := range group.Children["content"] {
				if c, ok := contentFrom(node, groupFallback); ok {
					contents = append(contents, c)
				}
			}
			if thumb == nil {
				thumb = thumbnailFrom(group.Children["thumbnail"])
			}
		}

		if thumb == nil {
			thumb = thumbnailFrom(media["thumbnail"])
		}
	}

	return contents, thumb
}

func contentFrom(node ext.Extension, fallback mediaFallback) (MediaContent, bool) {
	u := strings.TrimSpace(node.Attrs["url"])
	if u == "" {
		return MediaContent{}, false
	}
	local := fallbackFrom(node.Children, fallback)
	return MediaContent{
		URL:         u,
		Width:       atoi(node.Attrs["width"]),
		Height:      atoi(node.Attrs["height"]),
		Medium:      strings.ToLower(strings.TrimSpace(node.Attrs["medium"])),
		Type:        strings.ToLower(strings.TrimSpace(node.Attrs["type"])),
		Title:       local.title,
		Description: local.description,
		Credit:      local.credit,
	}, true
}

func thumbnailFrom(nodes []ext.Extension) *MediaThumbnail {
	for _, node := range nodes {
		if u := strings.TrimSpace(node.Attrs["url"]); u != "" {
			return &MediaThumbnail{
				URL:    u,
				Width:  atoi(node.Attrs["width"]),
				Height: atoi(node.Attrs["height"]),
			}
		}
	}
	return nil
}

// fallbackFrom reads description/credit/title children, keeping parent values
// for whatever the node does not define.
func fallbackFrom(children map[string][]ext.Extension, parent mediaFallback) mediaFallback {
	out := parent
	if v := firstValue(children["title"]); v != "" {
		out.title = v
	}
	if v := firstValue(children["description"]); v != "" {
		out.description = v
	}
	if v := firstValue(children["credit"]); v != "" {
		out.credit = v
	}
	return out
}

func firstValue(nodes []ext.Extension) string {
	for _, node := range nodes {
		if v := strings.TrimSpace(node.Value); v != "" {
			return v
		}
	}
	return ""
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
