package lexicon

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Pattern is a regular expression whose matches may be required to sit on
// word boundaries. RE2 has no Unicode-aware \b, so boundaries are checked
// on the runes around each match.
type Pattern struct {
	re    *regexp.Regexp
	words bool
}

// Match is one located pattern hit. Offsets are byte offsets.
type Match struct {
	Text   string
	Start  int
	End    int
	Groups []string
}

// CompileRaw compiles expr as-is.
func CompileRaw(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Pattern{re: re}, nil
}

// CompileWord compiles expr and only accepts matches on word boundaries.
func CompileWord(expr string) (*Pattern, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, err
	}
	return &Pattern{re: re, words: true}, nil
}

// MustCompileWord is CompileWord for package-level patterns.
func MustCompileWord(expr string) *Pattern {
	p, err := CompileWord(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// CompilePhrases builds a word-bounded alternation of literal phrases,
// longest first, tolerating any whitespace between syllables.
func CompilePhrases(phrases []string) (*Pattern, error) {
	sorted := append([]string(nil), phrases...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i]) > utf8.RuneCountInString(sorted[j])
	})
	alts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		parts := strings.Fields(Normalize(p))
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		if len(parts) > 0 {
			alts = append(alts, strings.Join(parts, `\s*`))
		}
	}
	return CompileWord("(?:" + strings.Join(alts, "|") + ")")
}

// ReplaceAll removes or substitutes every accepted match.
func (p *Pattern) ReplaceAll(s, repl string) string {
	if !p.words {
		return p.re.ReplaceAllString(s, repl)
	}
	var b strings.Builder
	last := 0
	for _, m := range p.FindAll(s) {
		b.WriteString(s[last:m.Start])
		b.WriteString(repl)
		last = m.End
	}
	b.WriteString(s[last:])
	return b.String()
}

// MatchString reports whether s has at least one accepted match.
func (p *Pattern) MatchString(s string) bool {
	return len(p.FindAll(s)) > 0
}

// FindAll returns every accepted, non-overlapping match in s.
func (p *Pattern) FindAll(s string) []Match {
	idx := p.re.FindAllStringSubmatchIndex(s, -1)
	out := make([]Match, 0, len(idx))
	for _, loc := range idx {
		start, end := loc[0], loc[1]
		if start == end {
			continue
		}
		if p.words && !(boundaryBefore(s, start) && boundaryAfter(s, end)) {
			continue
		}
		m := Match{Text: s[start:end], Start: start, End: end}
		for g := 2; g+1 < len(loc); g += 2 {
			if loc[g] < 0 {
				m.Groups = append(m.Groups, "")
				continue
			}
			m.Groups = append(m.Groups, s[loc[g]:loc[g+1]])
		}
		out = append(out, m)
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}
