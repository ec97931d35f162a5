package editor

import (
	"unicode/utf8"

	"draftwise/api/internal/annotation"
)

// changedRange returns the smallest range of prev that, replaced by inserted,
// yields next. Both ends are moved outward to rune boundaries.
func changedRange(prev, next string) (annotation.Range, string) {
	limit := len(prev)
	if len(next) < limit {
		limit = len(next)
	}

	prefix := 0
	for prefix < limit && prev[prefix] == next[prefix] {
		prefix++
	}
	for prefix > 0 && (splitsRune(prev, prefix) || splitsRune(next, prefix)) {
		prefix--
	}

	suffix := 0
	for suffix < limit-prefix && prev[len(prev)-1-suffix] == next[len(next)-1-suffix] {
		suffix++
	}
	for suffix > 0 && (splitsRune(prev, len(prev)-suffix) || splitsRune(next, len(next)-suffix)) {
		suffix--
	}

	edit := annotation.Range{Start: prefix, End: len(prev) - suffix}
	return edit, next[prefix : len(next)-suffix]
}

func splitsRune(s string, offset int) bool {
	return offset < len(s) && !utf8.RuneStart(s[offset])
}
