// Package fallback is the third knowledge layer: an unconstrained
// generated answer, plus plain-language explanations of business data.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/llm"
)

// Apology is returned with confidence 0 when generation fails.
const Apology = "Xin lỗi, tôi không thể trả lời câu hỏi này lúc này. Vui lòng thử lại sau hoặc liên hệ với chuyên gia nông nghiệp."

const (
	baseConfidence     = 0.5
	explainTemperature = 0.5
)

// Result is the outcome of Layer 3.
type Result struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
	Reason     string  `json:"reason,omitempty"`
	Failed     bool    `json:"failed,omitempty"`
}

// Engine is safe for concurrent use.
type Engine struct {
	gen   llm.Generator
	lex   *lexicon.Lexicon
	model string
	opts  llm.Options
}

// New builds an Engine. opts carries the default sampling settings for
// unconstrained answers; model is reported as the answer's source.
func New(gen llm.Generator, lex *lexicon.Lexicon, model string, opts llm.Options) *Engine {
	return &Engine{gen: gen, lex: lex, model: model, opts: opts}
}

// Generate answers query without retrieval context. It never fails: a
// backend error yields the fixed apology with confidence 0.
func (e *Engine) Generate(ctx context.Context, query, reason string) Result {
	logger.Infof("fallback: generating answer, reason: %s", reason)
	answer, err := e.gen.Generate(ctx, llm.FallbackPrompt(query), e.opts)
	if err != nil {
		logger.Errorf("fallback: generation failed: %v", err)
		return Result{Answer: Apology, Model: e.model, Reason: reason, Failed: true}
	}
	conf := EstimateConfidence(query, answer, e.lex)
	logger.Debugf("fallback: answer confidence %.2f", conf)
	return Result{Answer: answer, Confidence: conf, Model: e.model, Reason: reason}
}

// GenerateWithContext explains data for query at a low temperature. On
// failure the data is returned as "Kết quả: <json>".
func (e *Engine) GenerateWithContext(ctx context.Context, query string, data any) string {
	formatted := formatData(data, true)
	opts := e.opts
	opts.Temperature = explainTemperature
	answer, err := e.gen.Generate(ctx, llm.ExplainPrompt(query, formatted), opts)
	if err != nil {
		logger.Warnf("fallback: explanation failed, returning raw data: %v", err)
		return "Kết quả: " + formatData(data, false)
	}
	return answer
}

func formatData(data any, indent bool) string {
	if s, ok := data.(string); ok {
		return s
	}
	var raw []byte
	var err error
	if indent {
		raw, err = json.MarshalIndent(data, "", "  ")
	} else {
		raw, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(raw)
}

// EstimateConfidence scores an unconstrained answer from a base of 0.5.
// Long, structured or on-topic answers gain 0.1 each; hedging costs 0.1.
func EstimateConfidence(query, answer string, lex *lexicon.Lexicon) float64 {
	conf := baseConfidence
	if lexicon.RuneLen(answer) > 100 {
		conf += 0.1
	}
	for _, m := range lex.StructureMarkers {
		if strings.Contains(answer, m) {
			conf += 0.1
			break
		}
	}
	if overlap(query, answer) > 0.3 {
		conf += 0.1
	}
	lower := lexicon.Normalize(answer)
	for _, h := range lex.HedgingPhrases {
		if strings.Contains(lower, lexicon.Normalize(h)) {
			conf -= 0.1
			break
		}
	}
	return math.Max(0, math.Min(1, conf))
}

// overlap is the share of query words that share a substring relation
// with some answer word.
func overlap(query, answer string) float64 {
	qs := lexicon.Words(query)
	if len(qs) == 0 {
		return 0
	}
	as := lexicon.Words(answer)
	n := 0
	for _, q := range qs {
		for _, a := range as {
			if strings.Contains(a, q) || strings.Contains(q, a) {
				n++
				break
			}
		}
	}
	return float64(n) / float64(len(qs))
}
