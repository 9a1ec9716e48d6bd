package exactmatch

import (
	"sync"
	"time"
)

// SearchRecord is one entry of the analytics window.
type SearchRecord struct {
	Query      string        `json:"query"`
	Found      bool          `json:"found"`
	Confidence float64       `json:"confidence"`
	Method     string        `json:"method"`
	Duration   time.Duration `json:"duration"`
	At         time.Time     `json:"at"`
}

// AnalyticsSummary aggregates the window.
type AnalyticsSummary struct {
	Total         int            `json:"total"`
	HitRate       float64        `json:"hit_rate"`
	AvgConfidence float64        `json:"avg_confidence"`
	AvgDuration   time.Duration  `json:"avg_duration"`
	Methods       map[string]int `json:"methods"`
}

// Analytics keeps the most recent searches in a ring buffer.
type Analytics struct {
	mu   sync.Mutex
	buf  []SearchRecord
	next int
	full bool
}

func NewAnalytics(size int) *Analytics {
	if size <= 0 {
		size = 100
	}
	return &Analytics{buf: make([]SearchRecord, size)}
}

func (a *Analytics) Record(query string, res Result, d time.Duration) {
	method := res.Method
	if res.Cached {
		method = MethodCache
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf[a.next] = SearchRecord{
		Query:      query,
		Found:      res.Found,
		Confidence: res.Confidence,
		Method:     method,
		Duration:   d,
		At:         time.Now(),
	}
	a.next = (a.next + 1) % len(a.buf)
	if a.next == 0 {
		a.full = true
	}
}

// Recent returns the window oldest first.
func (a *Analytics) Recent() []SearchRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.full {
		return append([]SearchRecord(nil), a.buf[:a.next]...)
	}
	out := make([]SearchRecord, 0, len(a.buf))
	out = append(out, a.buf[a.next:]...)
	return append(out, a.buf[:a.next]...)
}

func (a *Analytics) Summary() AnalyticsSummary {
	recs := a.Recent()
	s := AnalyticsSummary{Total: len(recs), Methods: map[string]int{}}
	if len(recs) == 0 {
		return s
	}
	var found int
	var conf float64
	var dur time.Duration
	for _, r := range recs {
		if r.Found {
			found++
		}
		conf += r.Confidence
		dur += r.Duration
		s.Methods[r.Method]++
	}
	s.HitRate = float64(found) / float64(len(recs))
	s.AvgConfidence = conf / float64(len(recs))
	s.AvgDuration = dur / time.Duration(len(recs))
	return s
}
