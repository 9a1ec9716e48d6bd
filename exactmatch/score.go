package exactmatch

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/schema"
)

// Substring fallback weights per field.
const (
	weightCrop  = 3.0
	weightTitle = 2.0
	weightTopic = 1.5
	weightBody  = 1.0
)

// queryWords returns the normalized query words longer than two runes.
func queryWords(query string) []string {
	var out []string
	for _, w := range lexicon.Words(query) {
		if lexicon.RuneLen(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// Confidence calibrates a raw rank into [0,1] using field matches.
// Each adjacent two-word phrase of the query found in the title doubles
// the score; single title words only count when no phrase matched.
func Confidence(c schema.Candidate, query string) float64 {
	conf := math.Min(c.Rank*0.5, 1.0)
	q := lexicon.Normalize(query)
	words := queryWords(query)

	if c.CropType != "" {
		crop := lexicon.Normalize(c.CropType)
		switch {
		case strings.Contains(q, crop) || strings.Contains(crop, q):
			conf *= 1.5
		case anyContained(crop, words):
			conf *= 1.2
		}
	}

	if c.SectionTitle != "" {
		title := lexicon.Normalize(c.SectionTitle)
		phrases := 0
		for i := 0; i+1 < len(words); i++ {
			if strings.Contains(title, words[i]+" "+words[i+1]) {
				phrases++
				conf *= 2.0
			}
		}
		if phrases == 0 {
			if n := countContained(title, words); n > 0 {
				conf *= 1 + 0.1*float64(n)
			}
		}
	}

	if c.Topic != "" && anyContained(lexicon.Normalize(c.Topic), words) {
		conf *= 1.1
	}
	return math.Min(conf, 1.0)
}

// SubstringRank scores a candidate by which fields contain each keyword,
// averaged over the keywords. ok is false when some keyword is absent
// from every field.
func SubstringRank(c schema.Candidate, keywords []string) (rank float64, ok bool) {
	if len(keywords) == 0 {
		return 0, false
	}
	crop := lexicon.Normalize(c.CropType)
	title := lexicon.Normalize(c.SectionTitle)
	topic := lexicon.Normalize(c.Topic)
	body := lexicon.Normalize(c.Content)
	var sum float64
	for _, kw := range keywords {
		var hit float64
		if strings.Contains(crop, kw) {
			hit += weightCrop
		}
		if strings.Contains(title, kw) {
			hit += weightTitle
		}
		if strings.Contains(topic, kw) {
			hit += weightTopic
		}
		if strings.Contains(body, kw) {
			hit += weightBody
		}
		if hit == 0 {
			return 0, false
		}
		sum += hit
	}
	return sum / float64(len(keywords)), true
}

// fallbackRank ranks scanned chunks with SubstringRank, best first.
func fallbackRank(chunks []schema.Candidate, query string, limit int) []schema.Candidate {
	keywords := queryWords(query)
	var out []schema.Candidate
	for _, c := range chunks {
		if r, ok := SubstringRank(c, keywords); ok {
			c.Rank = r
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// compilePestPatterns matches each prefix followed by one or two words on
// diacritic-folded text.
func compilePestPatterns(prefixes []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(lexicon.Fold(p))+`\s+(\w+(?:\s+\w+)?)`))
	}
	return out
}

// pestKeywords pulls the words after each pest or disease prefix, so
// "bệnh đạo ôn" yields "dao on".
func pestKeywords(query string, patterns []*regexp.Regexp) []string {
	folded := lexicon.Fold(query)
	var out []string
	for _, re := range patterns {
		if m := re.FindStringSubmatch(folded); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}

// rerankByTitle boosts candidates whose title names the pest or disease:
// +2 for the full keyword, +1 when only a word of it matches.
func rerankByTitle(cands []schema.Candidate, keywords []string) []schema.Candidate {
	if len(keywords) == 0 {
		return cands
	}
	out := make([]schema.Candidate, len(cands))
	for i, c := range cands {
		title := lexicon.Fold(c.SectionTitle)
		boost := 0.0
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				boost = math.Max(boost, 2.0)
				continue
			}
			for _, w := range strings.Fields(kw) {
				if len(w) > 2 && strings.Contains(title, w) {
					boost = math.Max(boost, 1.0)
				}
			}
		}
		c.Rank += boost
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	return out
}

func anyContained(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func countContained(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}

// FormatAnswer renders a chunk as a Markdown answer.
func FormatAnswer(c schema.Candidate) string {
	var b strings.Builder
	b.WriteString("**" + c.CropType + " - " + c.SectionTitle + "**\n")
	if c.Topic != "" && c.Topic != c.SectionTitle {
		b.WriteString("*Chủ đề: " + c.Topic + "*\n\n")
	}
	b.WriteString(c.Content)
	if c.Source != "" {
		b.WriteString("\n\n_Nguồn: " + c.Source + "_")
	}
	return b.String()
}
