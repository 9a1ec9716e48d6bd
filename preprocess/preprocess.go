// Package preprocess turns noisy conversational phrasing into a
// keyword-dense search string.
package preprocess

import (
	"strconv"
	"strings"

	"github.com/agrisense/agriquery/lexicon"
)

// MinLength is the shortest cleaned query, in runes, worth searching with.
const MinLength = 3

type Complexity string

const (
	Simple  Complexity = "simple"
	Medium  Complexity = "medium"
	Complex Complexity = "complex"
)

// Result is the preprocessed form of one query.
type Result struct {
	Original          string     `json:"original"`
	Cleaned           string     `json:"cleaned"`
	Keywords          []string   `json:"keywords"`
	NoiseWordsRemoved bool       `json:"noise_words_removed"`
	Complexity        Complexity `json:"complexity"`
	// Recommended gates whether search uses Cleaned or the raw query.
	Recommended bool `json:"recommended"`
}

// SearchText is the string downstream search should use.
func (r Result) SearchText() string {
	if r.Recommended {
		return r.Cleaned
	}
	return lexicon.Normalize(r.Original)
}

// Preprocessor is stateless and safe for concurrent use.
type Preprocessor struct {
	lex *lexicon.Lexicon
}

func New(lex *lexicon.Lexicon) *Preprocessor {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Preprocessor{lex: lex}
}

// Preprocess cleans query. When cleaning leaves fewer than MinLength runes
// or no keywords, the lower-cased original is returned unchanged.
func (p *Preprocessor) Preprocess(query string) Result {
	lowered := strings.ToLower(strings.TrimSpace(query))
	normalized := lexicon.Normalize(query)

	cleaned := normalized
	for _, re := range p.lex.Noise() {
		cleaned = lexicon.Normalize(re.ReplaceAll(cleaned, ""))
	}

	res := Result{Original: query, Complexity: complexityOf(len(lexicon.Words(normalized)))}
	keywords := p.Keywords(cleaned)
	if lexicon.RuneLen(cleaned) < MinLength || len(keywords) == 0 {
		res.Cleaned = lowered
		res.Keywords = p.Keywords(lowered)
		res.Recommended = res.Complexity != Simple
		return res
	}

	res.Cleaned = cleaned
	res.Keywords = keywords
	res.NoiseWordsRemoved = cleaned != normalized
	res.Recommended = res.NoiseWordsRemoved || res.Complexity != Simple
	return res
}

// Keywords drops stop words, pure numbers and words of two runes or fewer.
func (p *Preprocessor) Keywords(text string) []string {
	var out []string
	for _, w := range lexicon.Words(text) {
		if lexicon.RuneLen(w) <= 2 || p.lex.IsStopWord(w) || isNumeric(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Analysis summarises a query without rewriting it.
type Analysis struct {
	WordCount    int        `json:"word_count"`
	KeywordCount int        `json:"keyword_count"`
	HasNoise     bool       `json:"has_noise"`
	Complexity   Complexity `json:"complexity"`
	Recommended  bool       `json:"recommended"`
}

func (p *Preprocessor) Analyze(query string) Analysis {
	words := lexicon.Words(query)
	keywords := p.Keywords(query)
	a := Analysis{
		WordCount:    len(words),
		KeywordCount: len(keywords),
		HasNoise:     len(words) > len(keywords),
		Complexity:   complexityOf(len(words)),
	}
	a.Recommended = a.HasNoise || a.Complexity != Simple
	return a
}

// SuggestAlternatives proposes rewrites of query for a retry search:
// without question phrases, without question marks, and keywords only.
func (p *Preprocessor) SuggestAlternatives(query string) []string {
	base := p.Preprocess(query).Cleaned
	var candidates []string

	noMark := lexicon.Normalize(strings.ReplaceAll(base, "?", ""))
	noQuestion := noMark
	for _, qp := range p.lex.QuestionPhrases {
		noQuestion = strings.ReplaceAll(noQuestion, lexicon.Normalize(qp), "")
	}
	candidates = append(candidates, lexicon.Normalize(noQuestion), noMark)
	candidates = append(candidates, strings.Join(p.Keywords(base), " "))

	seen := map[string]bool{lexicon.Normalize(query): true}
	var out []string
	for _, c := range candidates {
		if lexicon.RuneLen(c) <= 3 || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// BoostQuery repeats important agricultural terms so lexical ranking
// weighs them more.
func (p *Preprocessor) BoostQuery(query string) string {
	boosted := lexicon.Normalize(query)
	for _, term := range p.lex.BoostTerms {
		if lexicon.ContainsWord(boosted, term) {
			boosted += " " + term
		}
	}
	return boosted
}

func complexityOf(words int) Complexity {
	switch {
	case words > 10:
		return Complex
	case words > 5:
		return Medium
	default:
		return Simple
	}
}

func isNumeric(w string) bool {
	_, err := strconv.ParseFloat(strings.ReplaceAll(w, ",", ""), 64)
	return err == nil
}
