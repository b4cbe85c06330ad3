// Package scan finds test functions in Rust sources so editors can offer to
// debug them.
package scan

import (
	"iter"
	"regexp"
	"strings"
)

// DefaultAttributes are the test attributes recognized when none are given.
var DefaultAttributes = []string{"drink::test", "ink_e2e::test"}

// Tests yields the name and byte offset of every function annotated with one
// of attrs, where the attribute sits on the line directly above the fn
// declaration. Matches are produced lazily in source order.
func Tests(src string, attrs ...string) iter.Seq2[string, int] {
	if len(attrs) == 0 {
		attrs = DefaultAttributes
	}
	re := pattern(attrs)
	return func(yield func(string, int) bool) {
		offset := 0
		for offset <= len(src) {
			loc := re.FindStringSubmatchIndex(src[offset:])
			if loc == nil {
				return
			}
			name := src[offset+loc[2] : offset+loc[3]]
			if !yield(name, offset+loc[0]) {
				return
			}
			offset += loc[1]
		}
	}
}

func pattern(attrs []string) *regexp.Regexp {
	quoted := make([]string, 0, len(attrs))
	for _, a := range attrs {
		quoted = append(quoted, regexp.QuoteMeta(a))
	}
	return regexp.MustCompile(`#\[(?:` + strings.Join(quoted, "|") + `)\]\s*\n\s*(?:pub\s+)?(?:async\s+)?fn\s+([a-zA-Z0-9_]+)`)
}

// Line converts a byte offset in src to a 1-based line number.
func Line(src string, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	return strings.Count(src[:offset], "\n") + 1
}
