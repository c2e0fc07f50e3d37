package content

import (
	"regexp"
	"strings"
	"unicode"
)

var latinWord = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// WordCount counts each CJK character as a word plus every other word token.
func WordCount(text string) int {
	var cjk int
	rest := strings.Map(func(r rune) rune {
		if isCJK(r) {
			cjk++
			return ' '
		}
		return r
	}, text)
	return cjk + len(latinWord.FindAllStringIndex(rest, -1))
}

func ReadingTime(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// Summarize cuts text to at most limit runes on a whitespace boundary, adding an
// ellipsis when anything was dropped.
func Summarize(text string, limit int) string {
	text = collapse(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	cut := string(runes[:limit])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':'
	}) + "…"
}
