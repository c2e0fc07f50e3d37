package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-harvest/app/fetch"
)

type stubPages struct {
	body  string
	err   error
	calls int
	opts  fetch.Options
}

func (s *stubPages) Fetch(_ context.Context, _ string, opts fetch.Options) ([]byte, error) {
	s.calls++
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

func longParagraph() string {
	return "<p>" + strings.Repeat("Long form reporting continues here. ", 30) + "</p>"
}

func TestSanitize_RemovesChromeAndHandlers(t *testing.T) {
	raw := `<header>Site header</header><nav>Menu</nav>
<p onclick="steal()">Body <b>text</b></p>
<script>alert(1)</script><style>p{}</style><iframe src="https://ads.example.com"></iframe>
<img src="https://example.com/a.jpg" onerror="x()" alt="A">
<footer>Copyright</footer>`

	got := Sanitize(raw, ModeImageText)

	assert.Contains(t, got, "Body <b>text</b>")
	assert.Contains(t, got, `src="https://example.com/a.jpg"`)
	for _, banned := range []string{"Site header", "Menu", "alert", "p{}", "iframe", "onclick", "onerror", "Copyright"} {
		assert.NotContains(t, got, banned)
	}
}

func TestSanitize_TextModeStripsMedia(t *testing.T) {
	raw := `<p>Intro</p><figure><img src="https://example.com/a.jpg"><figcaption>Cap</figcaption></figure>
<video src="https://example.com/v.mp4"></video><audio src="https://example.com/a.mp3"></audio><p>Outro</p>`

	got := Sanitize(raw, ModeText)

	assert.Contains(t, got, "Intro")
	assert.Contains(t, got, "Outro")
	for _, banned := range []string{"<img", "<figure", "Cap", "<video", "<audio"} {
		assert.NotContains(t, got, banned)
	}
}

func TestNormalize_ComputesStats(t *testing.T) {
	n := NewNormalizer(nil, fetch.DefaultOptions())

	res := n.Normalize(context.Background(), "<p>Hello world</p><p>你好世界</p>", "https://example.com/a", ModeImageText)

	assert.Equal(t, 6, res.WordCount)
	assert.Equal(t, 1, res.ReadingTimeMinutes)
	assert.Equal(t, "Hello world 你好世界", res.Summary)
	assert.Contains(t, res.HTML, "<p>Hello world</p>")
}

func TestNormalize_BackfillsShortContent(t *testing.T) {
	page := `<html><head><title>x</title></head><body><header>Top</header>
<article>` + longParagraph() + `</article><footer>Bottom</footer></body></html>`
	pages := &stubPages{body: page}
	n := NewNormalizer(pages, fetch.DefaultOptions())

	res := n.Normalize(context.Background(), "<p>Teaser</p>", "https://example.com/story", ModeImageText)

	require.Equal(t, 1, pages.calls)
	assert.Equal(t, fetch.BrowserHeaders, pages.opts.Headers)
	assert.True(t, pages.opts.NoRetry)
	assert.Contains(t, res.HTML, "Long form reporting")
	assert.NotContains(t, res.HTML, "Teaser")
	assert.Greater(t, res.WordCount, 100)
}

func TestNormalize_BackfillFailureKeepsOriginal(t *testing.T) {
	pages := &stubPages{err: errors.New("boom")}
	n := NewNormalizer(pages, fetch.DefaultOptions())

	res := n.Normalize(context.Background(), "<p>Teaser</p>", "https://example.com/story", ModeImageText)

	assert.Equal(t, 1, pages.calls)
	assert.Equal(t, "<p>Teaser</p>", res.HTML)
}

func TestNormalize_BackfillTooSmallKeepsOriginal(t *testing.T) {
	pages := &stubPages{body: "<html><body><article><p>Tiny</p></article></body></html>"}
	n := NewNormalizer(pages, fetch.DefaultOptions())

	res := n.Normalize(context.Background(), "<p>Teaser</p>", "https://example.com/story", ModeImageText)

	assert.Equal(t, "<p>Teaser</p>", res.HTML)
}

func TestNormalize_LongContentSkipsBackfill(t *testing.T) {
	pages := &stubPages{}
	n := NewNormalizer(pages, fetch.DefaultOptions())

	n.Normalize(context.Background(), longParagraph(), "https://example.com/story", ModeImageText)

	assert.Equal(t, 0, pages.calls)
}

type denyAll struct{ asked []string }

func (d *denyAll) Allowed(_ context.Context, rawURL string) bool {
	d.asked = append(d.asked, rawURL)
	return false
}

func TestNormalize_RobotsDisallowSkipsBackfill(t *testing.T) {
	pages := &stubPages{body: "<html><body><article>" + longParagraph() + "</article></body></html>"}
	robots := &denyAll{}
	n := NewNormalizer(pages, fetch.DefaultOptions()).WithRobots(robots)

	res := n.Normalize(context.Background(), "<p>Teaser</p>", "https://example.com/story", ModeImageText)

	assert.Equal(t, []string{"https://example.com/story"}, robots.asked)
	assert.Equal(t, 0, pages.calls)
	assert.Equal(t, "<p>Teaser</p>", res.HTML)
}

func TestExtractMainBlock_PrefersRankedSelector(t *testing.T) {
	page := `<html><body><div class="content"><p>Sidebar teaser</p></div>
<div class="entry-content">` + longParagraph() + `</div></body></html>`

	block, err := ExtractMainBlock([]byte(page), "https://example.com/post")

	require.NoError(t, err)
	assert.Contains(t, block, "Long form reporting")
	assert.NotContains(t, block, "Sidebar teaser")
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeText, ParseMode("TEXT"))
	assert.Equal(t, ModeImageText, ParseMode("image_text"))
	assert.Equal(t, ModeImageText, ParseMode(""))
}
