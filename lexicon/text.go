package lexicon

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, composes it to NFC and collapses whitespace.
func Normalize(s string) string {
	s = norm.NFC.String(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// Fold normalizes s and strips Vietnamese diacritics, so "bệnh đạo ôn"
// compares equal to "benh dao on".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, Normalize(s))
	if err != nil {
		out = Normalize(s)
	}
	return strings.NewReplacer("đ", "d", "Đ", "D").Replace(out)
}

// Words splits normalized s into words, trimming surrounding punctuation.
func Words(s string) []string {
	fields := strings.Fields(Normalize(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return !isWordRune(r) && r != '+' })
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// RuneLen counts runes, the unit every length threshold uses.
func RuneLen(s string) int { return len([]rune(s)) }
