// Package textsim provides the text normalization and similarity helpers shared
// by the cache, history, rule and clustering layers.
package textsim

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	longDigitRun = regexp.MustCompile(`[0-9]{6,}`)
	nonAlnum     = regexp.MustCompile(`[^A-Z0-9]+`)
)

// editOptions counts a substitution as a single edit.
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// stripAccents removes combining marks, so "DEVOLUÇÃO" becomes "DEVOLUCAO".
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold upper-cases s, strips accents, replaces punctuation with spaces and
// collapses whitespace. Digits are kept.
func Fold(s string) string {
	s = strings.ToUpper(stripAccents(s))
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Normalize produces the lookup key used by the cache and history layers.
// Digit runs of six or more characters (document numbers, account numbers,
// timestamps) are removed; short digit tokens such as amounts survive.
func Normalize(s string) string {
	s = strings.ToUpper(stripAccents(s))
	s = longDigitRun.ReplaceAllString(s, " ")
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Similarity returns 1 - editDistance/maxLen, in [0, 1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	distance := levenshtein.DistanceForStrings(ra, rb, editOptions)
	sim := 1 - float64(distance)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries.
// Both arguments are expected to be folded.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// ContainsAny reports whether any of the phrases occurs in text on word boundaries.
func ContainsAny(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			return p, true
		}
	}
	return "", false
}

// IsNumeric reports whether the token consists only of digits.
func IsNumeric(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
