package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.skia.org/infra/go/util"
)

func TestNormalize(t *testing.T) {

	require.Equal(t, "sea", Normalize("sea."))
	require.Equal(t, "hello indexed words", Normalize("  Hello,   indexed!words  "))
	require.Equal(t, "", Normalize(""))
	require.Equal(t, "", Normalize(" ,.-?=! "))
}

func TestNormalize_PreservesNonASCIILetters(t *testing.T) {

	require.Equal(t,
		"1921 bg three cäts left hôme early in two cars really",
		Normalize("<1921___.bg three cäts!Left__hôme(early)-In.Two.CARS really?"))
	require.Equal(t, "örth ánd sea", Normalize("örth ánd sea."))
}

func TestSubstrings(t *testing.T) {

	require.Equal(t,
		util.NewStringSet([]string{"hello", "indexed", "words", "hello indexed", "indexed words"}),
		Substrings("hello indexed words", 2))

	// Depth beyond the word count adds nothing.
	require.Equal(t,
		Substrings("hello indexed words", 3),
		Substrings("hello indexed words", 5))

	require.Equal(t, util.NewStringSet([]string{"one"}), Substrings("one", 4))
	require.Empty(t, Substrings("", 3))
}

func TestSubstrings_ContainsEverySingleToken(t *testing.T) {

	subs := Substrings(Normalize("Woe to you o örth ánd sea."), 5)
	for _, word := range []string{"woe", "to", "you", "o", "örth", "ánd", "sea"} {
		require.True(t, subs[word], "missing token %q", word)
	}
}
