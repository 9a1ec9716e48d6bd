// Package scope decides whether an unclassified query belongs to the
// agricultural domain before any generation is spent on it.
package scope

import (
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/metrics"
)

// RejectionMessage is shown for every out-of-scope query.
const RejectionMessage = "Xin lỗi, tôi chỉ có thể hỗ trợ các câu hỏi liên quan đến nông nghiệp. Vui lòng hỏi về cây trồng, chăm sóc, thiết bị, hoặc quản lý nông trại."

// Rejection reasons, also used as metric labels.
const (
	ReasonCoding   = "coding"
	ReasonOffTopic = "off_topic"
	ReasonTooLong  = "too_long"
)

// Verdict is the outcome of a scope check. Rule names the deciding rule.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Rule   string `json:"rule"`
}

// Guard applies the scope heuristic from the lexicon's scope lists.
type Guard struct {
	lists lexicon.ScopeLists
}

func NewGuard(lex *lexicon.Lexicon) *Guard {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Guard{lists: lex.Scope}
}

// Validate runs the rules in order; the first that decides wins. Queries no
// rule decides are valid.
func (g *Guard) Validate(query string) Verdict {
	q := lexicon.Normalize(query)
	n := lexicon.RuneLen(q)
	l := g.lists

	if n < l.MaxGreetingLength && isGreeting(q, l.Greetings) {
		return Verdict{Valid: true, Rule: "greeting"}
	}
	if lexicon.ContainsAny(q, l.CodingKeywords) {
		return g.reject(ReasonCoding)
	}
	if lexicon.ContainsAny(q, l.OffTopicKeywords) {
		return g.reject(ReasonOffTopic)
	}
	if lexicon.ContainsAny(q, l.AgricultureKeywords) {
		return Verdict{Valid: true, Rule: "agriculture"}
	}
	if n < l.ShortQueryLength {
		return Verdict{Valid: true, Rule: "short"}
	}
	if n > l.LongQueryLength {
		return g.reject(ReasonTooLong)
	}
	return Verdict{Valid: true, Rule: "default"}
}

func (g *Guard) reject(reason string) Verdict {
	metrics.IncScopeRejection(reason)
	return Verdict{Reason: reason, Rule: reason}
}

func isGreeting(q string, greetings []string) bool {
	for _, gr := range greetings {
		if q == lexicon.Normalize(gr) || lexicon.ContainsWord(q, gr) {
			return true
		}
	}
	return false
}
