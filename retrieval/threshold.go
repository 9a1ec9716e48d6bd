package retrieval

import (
	"math"

	"github.com/agrisense/agriquery/lexicon"
)

const baseThreshold = 0.35

// DynamicThreshold picks the minimum vector similarity by query shape.
// Short queries are held to a stricter bar, comparative or analytic
// queries get a looser one, and technical ones a slightly stricter one.
func DynamicThreshold(query string, lex *lexicon.Lexicon) float64 {
	if lexicon.RuneLen(query) < 30 {
		return math.Min(baseThreshold+0.1, 0.5)
	}
	q := lexicon.Normalize(query)
	if lexicon.ContainsAny(q, lex.ThresholdTerms.Comparative) {
		return math.Max(baseThreshold-0.1, 0.25)
	}
	if lexicon.ContainsAny(q, lex.ThresholdTerms.Technical) {
		return math.Min(baseThreshold+0.05, 0.45)
	}
	return baseThreshold
}
