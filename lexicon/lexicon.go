// Package lexicon holds the versioned linguistic data the pipeline runs on:
// noise patterns, stop words, intent patterns, vocabularies and scope lists.
// The data ships embedded and can be replaced by an external YAML file.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/agrisense/agriquery/schema"
)

//go:embed default.yaml
var defaultData []byte

// MetricPhrase maps a sensor phrase to a reading key and display unit.
type MetricPhrase struct {
	Phrase string `yaml:"phrase"`
	Metric string `yaml:"metric"`
	Unit   string `yaml:"unit"`
}

// ScopeLists drives the out-of-scope heuristic for unclassified queries.
type ScopeLists struct {
	MaxGreetingLength   int      `yaml:"max_greeting_length"`
	ShortQueryLength    int      `yaml:"short_query_length"`
	LongQueryLength     int      `yaml:"long_query_length"`
	Greetings           []string `yaml:"greetings"`
	CodingKeywords      []string `yaml:"coding_keywords"`
	OffTopicKeywords    []string `yaml:"off_topic_keywords"`
	AgricultureKeywords []string `yaml:"agriculture_keywords"`
}

// Lexicon is immutable once loaded and safe for concurrent use.
type Lexicon struct {
	Version          string              `yaml:"version"`
	NoisePatterns    []string            `yaml:"noise_patterns"`
	StopWords        []string            `yaml:"stop_words"`
	BoostTerms       []string            `yaml:"boost_terms"`
	QuestionPhrases  []string            `yaml:"question_phrases"`
	IntentPatterns   map[string][]string `yaml:"intent_patterns"`
	Crops            []string            `yaml:"crops"`
	Devices          []string            `yaml:"devices"`
	Activities       []string            `yaml:"activities"`
	SensorMetrics    []MetricPhrase      `yaml:"sensor_metrics"`
	DeviceAliases    map[string]string   `yaml:"device_aliases"`
	ActionVerbs      struct {
		On  []string `yaml:"on"`
		Off []string `yaml:"off"`
	} `yaml:"action_verbs"`
	Synonyms         map[string][]string `yaml:"synonyms"`
	PestPrefixes     []string            `yaml:"pest_prefixes"`
	HedgingPhrases   []string            `yaml:"hedging_phrases"`
	StructureMarkers []string            `yaml:"structure_markers"`
	ThresholdTerms   struct {
		Comparative []string `yaml:"comparative"`
		Technical   []string `yaml:"technical"`
	} `yaml:"threshold_terms"`
	Scope ScopeLists `yaml:"scope"`

	noise     []*Pattern
	stopWords map[string]struct{}
	intents   map[schema.Intent][]*Pattern
}

var (
	defaultOnce sync.Once
	defaultLex  *Lexicon
)

// Default returns the embedded lexicon. It panics if the embedded data is
// malformed, which is a build defect.
func Default() *Lexicon {
	defaultOnce.Do(func() {
		lx, err := Parse(defaultData)
		if err != nil {
			panic(fmt.Sprintf("lexicon: embedded default is invalid: %v", err))
		}
		defaultLex = lx
	})
	return defaultLex
}

// Load reads a lexicon file; an empty path yields the embedded default.
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and compiles lexicon YAML.
func Parse(data []byte) (*Lexicon, error) {
	lx := &Lexicon{}
	if err := yaml.Unmarshal(data, lx); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if err := lx.compile(); err != nil {
		return nil, err
	}
	return lx, nil
}

func (lx *Lexicon) compile() error {
	if lx.Version == "" {
		return fmt.Errorf("lexicon: version is required")
	}
	for _, p := range lx.NoisePatterns {
		re, err := CompileRaw(p)
		if err != nil {
			return fmt.Errorf("lexicon: noise pattern %q: %w", p, err)
		}
		lx.noise = append(lx.noise, re)
	}
	lx.stopWords = make(map[string]struct{}, len(lx.StopWords))
	for _, w := range lx.StopWords {
		lx.stopWords[Normalize(w)] = struct{}{}
	}
	lx.intents = make(map[schema.Intent][]*Pattern, len(lx.IntentPatterns))
	for name, exprs := range lx.IntentPatterns {
		in, ok := schema.ParseIntent(name)
		if !ok {
			return fmt.Errorf("lexicon: unknown intent group %q", name)
		}
		for _, expr := range exprs {
			p, err := CompileWord(expr)
			if err != nil {
				return fmt.Errorf("lexicon: intent pattern %q: %w", expr, err)
			}
			lx.intents[in] = append(lx.intents[in], p)
		}
	}
	// longest phrase first so overlapping metrics resolve to the most specific one
	sort.SliceStable(lx.SensorMetrics, func(i, j int) bool {
		return len([]rune(lx.SensorMetrics[i].Phrase)) > len([]rune(lx.SensorMetrics[j].Phrase))
	})
	if lx.Scope.MaxGreetingLength <= 0 {
		lx.Scope.MaxGreetingLength = 30
	}
	if lx.Scope.ShortQueryLength <= 0 {
		lx.Scope.ShortQueryLength = 10
	}
	if lx.Scope.LongQueryLength <= 0 {
		lx.Scope.LongQueryLength = 200
	}
	return nil
}

// Noise returns the ordered noise-removal patterns.
func (lx *Lexicon) Noise() []*Pattern { return lx.noise }

// IsStopWord reports whether w (normalized) is a stop word.
func (lx *Lexicon) IsStopWord(w string) bool {
	_, ok := lx.stopWords[w]
	return ok
}

// IntentPatternsFor returns the compiled patterns of one intent group.
func (lx *Lexicon) IntentPatternsFor(i schema.Intent) []*Pattern { return lx.intents[i] }

// DeviceType maps a device alias found in text to pump or light. The longest
// alias present wins; "" means no alias matched.
func (lx *Lexicon) DeviceType(text string) string {
	best, bestLen := "", 0
	for alias, typ := range lx.DeviceAliases {
		if n := len([]rune(alias)); n > bestLen && ContainsWord(text, alias) {
			best, bestLen = typ, n
		}
	}
	return best
}

// ContainsWord reports whether phrase occurs in text on word boundaries.
// Both are compared after Normalize.
func ContainsWord(text, phrase string) bool {
	text, phrase = Normalize(text), Normalize(phrase)
	if phrase == "" {
		return false
	}
	from := 0
	for {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		from = start + 1
		for from < len(text) && !isRuneStart(text[from]) {
			from++
		}
	}
}

// ContainsAny reports whether any phrase occurs in text on word boundaries.
func ContainsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if ContainsWord(text, p) {
			return true
		}
	}
	return false
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
