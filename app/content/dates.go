package content

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var isoPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2})?`)

var rfc2822Layouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
}

// simplified RFC 2822: no weekday, optional seconds
var simplifiedLayouts = []string{
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
}

// millisecond timestamps start above this value
const unixMillisThreshold = 1e11

// ParseDate never fails: input that matches no known format yields now.
func ParseDate(raw string, now time.Time) time.Time {
	if t, ok := parseDate(raw); ok {
		return t
	}
	return now
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
		return t, true
	}

	if m := isoPrefix.FindString(raw); m != "" {
		m = strings.Replace(m, " ", "T", 1)
		for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
			if t, err := time.Parse(layout, m); err == nil {
				return t, true
			}
		}
	}

	for _, layout := range rfc2822Layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}

	trimmed := raw
	if i := strings.Index(raw, ","); i > 0 && i <= 9 {
		trimmed = strings.TrimSpace(raw[i+1:])
	}
	for _, layout := range simplifiedLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}

	if len(raw) >= 10 {
		if t, err := time.Parse("2006-01-02", raw[:10]); err == nil {
			return t, true
		}
	}

	if isDigits(raw) {
		return parseUnix(raw)
	}
	return time.Time{}, false
}

func parseUnix(raw string) (time.Time, bool) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n < unixMillisThreshold {
		return time.Unix(n, 0).UTC(), true
	}
	return time.UnixMilli(n).UTC(), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
