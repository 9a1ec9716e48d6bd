// Package entity extracts typed spans (dates, money, crops, farm areas,
// devices, activities, sensor metrics) from Vietnamese query text.
package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/schema"
)

// Fixed per-type confidences; extraction is pattern driven, not scored.
const (
	dateConfidence     = 0.9
	moneyConfidence    = 0.95
	cropConfidence     = 0.85
	areaConfidence     = 0.9
	deviceConfidence   = 0.85
	activityConfidence = 0.8
	metricConfidence   = 0.85
)

type datePattern struct {
	p     *lexicon.Pattern
	value func(m lexicon.Match, now time.Time) (string, bool)
}

func fixed(token string) func(lexicon.Match, time.Time) (string, bool) {
	return func(lexicon.Match, time.Time) (string, bool) { return token, true }
}

var datePatterns = []datePattern{
	{lexicon.MustCompileWord(`hôm\s*nay`), func(_ lexicon.Match, now time.Time) (string, bool) {
		return now.Format(time.DateOnly), true
	}},
	{lexicon.MustCompileWord(`hôm\s*qua`), func(_ lexicon.Match, now time.Time) (string, bool) {
		return now.AddDate(0, 0, -1).Format(time.DateOnly), true
	}},
	{lexicon.MustCompileWord(`tuần\s*này`), fixed("this_week")},
	{lexicon.MustCompileWord(`tuần\s*trước`), fixed("last_week")},
	{lexicon.MustCompileWord(`tháng\s*này`), fixed("this_month")},
	{lexicon.MustCompileWord(`tháng\s*trước`), fixed("last_month")},
	{lexicon.MustCompileWord(`tháng\s*(\d{1,2})`), func(m lexicon.Match, _ time.Time) (string, bool) {
		n, err := strconv.Atoi(m.Groups[0])
		if err != nil || n < 1 || n > 12 {
			return "", false
		}
		return fmt.Sprintf("month_%d", n), true
	}},
	{lexicon.MustCompileWord(`năm\s*n(?:ay|ày)`), fixed("this_year")},
	{lexicon.MustCompileWord(`năm\s*(\d{4})`), func(m lexicon.Match, _ time.Time) (string, bool) {
		return "year_" + m.Groups[0], true
	}},
	{lexicon.MustCompileWord(`(\d{1,2})/(\d{1,2})/(\d{2,4})`), func(m lexicon.Match, _ time.Time) (string, bool) {
		return isoDate(m.Groups[0], m.Groups[1], m.Groups[2])
	}},
}

var (
	moneyPattern = lexicon.MustCompileWord(`(\d+[\d,\.]*)\s*(đồng|vnđ|vnd|k|triệu|tr|tỷ)`)
	areaPattern  = lexicon.MustCompileWord(`(luống|khu|lô|vườn)\s*([a-z]|\d+)`)
)

var moneyUnits = map[string]float64{
	"k":     1e3,
	"triệu": 1e6,
	"tr":    1e6,
	"tỷ":    1e9,
}

// Extractor is immutable and safe for concurrent use.
type Extractor struct {
	crops      *vocabulary
	devices    *vocabulary
	activities *vocabulary
	metrics    *vocabulary
	now        func() time.Time
}

type vocabulary struct {
	p         *lexicon.Pattern
	canonical map[string]string // space-stripped phrase -> value
}

func newVocabulary(phrases []string, values []string) (*vocabulary, error) {
	p, err := lexicon.CompilePhrases(phrases)
	if err != nil {
		return nil, err
	}
	v := &vocabulary{p: p, canonical: make(map[string]string, len(phrases))}
	for i, ph := range phrases {
		v.canonical[squash(ph)] = values[i]
	}
	return v, nil
}

func (v *vocabulary) value(match string) string {
	if c, ok := v.canonical[squash(match)]; ok {
		return c
	}
	return lexicon.Normalize(match)
}

func squash(s string) string {
	return strings.Join(strings.Fields(lexicon.Normalize(s)), "")
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithClock fixes the reference time used for relative dates.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

func New(lex *lexicon.Lexicon, opts ...Option) (*Extractor, error) {
	if lex == nil {
		lex = lexicon.Default()
	}
	e := &Extractor{now: time.Now}
	var err error
	if e.crops, err = newVocabulary(lex.Crops, normalizedAll(lex.Crops)); err != nil {
		return nil, fmt.Errorf("entity: crops: %w", err)
	}
	if e.devices, err = newVocabulary(lex.Devices, normalizedAll(lex.Devices)); err != nil {
		return nil, fmt.Errorf("entity: devices: %w", err)
	}
	if e.activities, err = newVocabulary(lex.Activities, normalizedAll(lex.Activities)); err != nil {
		return nil, fmt.Errorf("entity: activities: %w", err)
	}
	phrases := make([]string, 0, len(lex.SensorMetrics))
	keys := make([]string, 0, len(lex.SensorMetrics))
	for _, m := range lex.SensorMetrics {
		phrases = append(phrases, m.Phrase)
		keys = append(keys, m.Metric)
	}
	if e.metrics, err = newVocabulary(phrases, keys); err != nil {
		return nil, fmt.Errorf("entity: metrics: %w", err)
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func normalizedAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = lexicon.Normalize(s)
	}
	return out
}

// Extract returns every entity found in text. Offsets are rune offsets in
// the normalized text; spans of different types may overlap.
func (e *Extractor) Extract(text string) []schema.Entity {
	norm := lexicon.Normalize(text)
	now := e.now()
	var out []schema.Entity

	for _, dp := range datePatterns {
		for _, m := range dp.p.FindAll(norm) {
			if v, ok := dp.value(m, now); ok {
				out = append(out, span(norm, m, schema.EntityDate, v, dateConfidence))
			}
		}
	}
	for _, m := range moneyPattern.FindAll(norm) {
		if v, ok := moneyValue(m.Groups[0], m.Groups[1]); ok {
			out = append(out, span(norm, m, schema.EntityMoney, v, moneyConfidence))
		}
	}
	for _, m := range e.crops.p.FindAll(norm) {
		out = append(out, span(norm, m, schema.EntityCropName, e.crops.value(m.Text), cropConfidence))
	}
	for _, m := range areaPattern.FindAll(norm) {
		out = append(out, span(norm, m, schema.EntityFarmArea, m.Groups[0]+" "+strings.ToUpper(m.Groups[1]), areaConfidence))
	}
	for _, m := range e.devices.p.FindAll(norm) {
		out = append(out, span(norm, m, schema.EntityDeviceName, e.devices.value(m.Text), deviceConfidence))
	}
	for _, m := range e.activities.p.FindAll(norm) {
		out = append(out, span(norm, m, schema.EntityActivityType, e.activities.value(m.Text), activityConfidence))
	}
	for _, m := range e.metrics.p.FindAll(norm) {
		out = append(out, span(norm, m, schema.EntityMetric, e.metrics.value(m.Text), metricConfidence))
	}
	return out
}

func span(norm string, m lexicon.Match, t schema.EntityType, value string, conf float64) schema.Entity {
	start := utf8.RuneCountInString(norm[:m.Start])
	return schema.Entity{
		Type:       t,
		Value:      value,
		RawText:    strings.TrimSpace(m.Text),
		Confidence: conf,
		Start:      start,
		End:        start + utf8.RuneCountInString(m.Text),
	}
}

// moneyValue converts "1,5" + "triệu" style amounts to base currency units.
func moneyValue(num, unit string) (string, bool) {
	num = strings.ReplaceAll(num, ",", "")
	if strings.Count(num, ".") > 1 {
		num = strings.ReplaceAll(num, ".", "")
	}
	num = strings.TrimRight(num, ".")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return "", false
	}
	if mult, ok := moneyUnits[unit]; ok {
		v *= mult
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

func isoDate(d, m, y string) (string, bool) {
	day, err1 := strconv.Atoi(d)
	month, err2 := strconv.Atoi(m)
	year, err3 := strconv.Atoi(y)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}
	if len(y) == 2 {
		year += 2000
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format(time.DateOnly), true
}
