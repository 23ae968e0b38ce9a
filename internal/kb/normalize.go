package kb

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// NFD + drop combining marks + NFC strips Vietnamese tone and vowel
	// marks. The đ/Đ letters carry no combining mark and are replaced
	// separately.
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	dReplacer = strings.NewReplacer("đ", "d", "Đ", "d")

	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lowercases text, strips diacritics, replaces punctuation with
// spaces and collapses whitespace. Scoring, deduplication and cache keys all
// go through this one function so that strings a human would call equal
// compare equal.
func Normalize(text string) string {
	out, _, err := transform.String(stripMarks, text)
	if err != nil {
		out = text
	}
	out = dReplacer.Replace(out)
	out = strings.ToLower(out)
	out = nonWordRe.ReplaceAllString(out, " ")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Tokenize splits Normalize(text) on spaces, keeping tokens of at least two
// runes.
func Tokenize(text string) []string {
	fields := strings.Fields(Normalize(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
