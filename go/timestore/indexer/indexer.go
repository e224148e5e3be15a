// Package indexer derives the word n-gram substrings that serve as
// inverted-index row-key suffixes for free-text search over blob payloads.
// It only makes sense for payloads that are valid UTF-8 text; binary blobs
// should be indexed by hand-picked tags instead.
package indexer

import (
	"strings"
	"unicode"

	"go.skia.org/infra/go/util"
)

// punctuation is the set of characters replaced by spaces before
// tokenization. Everything else, including non-ASCII letters, is kept.
const punctuation = `,.-?=!@#$()<>_[]'"´:`

// Normalize lowercases s, replaces punctuation with spaces, collapses runs
// of whitespace into single spaces and trims the ends. The result is the
// canonical form used both when building index rows and when resolving a
// search string, so the two always agree.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Substrings returns the set of space-joined word n-grams of s for
// n = 1..depth. For "hello indexed words" and depth 2 that is {"hello",
// "indexed", "words", "hello indexed", "indexed words"}. The caller is
// expected to pass an already normalized string. An empty string yields an
// empty set.
func Substrings(s string, depth int) util.StringSet {
	ret := util.StringSet{}
	words := strings.Fields(s)
	for d := 0; d < depth; d++ {
		for i := 0; i+d+1 <= len(words); i++ {
			ret[strings.Join(words[i:i+d+1], " ")] = true
		}
	}
	return ret
}
