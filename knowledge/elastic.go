package knowledge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agrisense/agriquery/common/httpx"
	"github.com/agrisense/agriquery/metrics"
	"github.com/agrisense/agriquery/schema"
)

// ElasticIndex queries an Elasticsearch index of knowledge chunks with a
// field-boosted multi_match.
// Endpoint example: http://es:9200
// Index example: agri_knowledge
type ElasticIndex struct {
	Endpoint string
	Index    string
	Client   *httpx.Client
	Username string
	Password string
}

// Field boosts mirror the crop type > section title > topic > body tiers.
var elasticFields = []string{"crop_type^4", "section_title^3", "topic^2", "content"}

func (e *ElasticIndex) searchURL() (string, error) {
	u, err := url.Parse(e.Endpoint)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(u.Path, e.Index, "_search")
	return u.String(), nil
}

func (e *ElasticIndex) header() http.Header {
	if e.Username == "" {
		return nil
	}
	req := &http.Request{Header: http.Header{}}
	req.SetBasicAuth(e.Username, e.Password)
	return req.Header
}

func (e *ElasticIndex) SearchWeightedFTS(ctx context.Context, query string, filter Filter, limit int, minRank float64) ([]schema.Candidate, error) {
	if e.Client == nil {
		return nil, fmt.Errorf("knowledge: elasticsearch http client not configured")
	}
	start := time.Now()
	if limit <= 0 {
		limit = 10
	}
	u, err := e.searchURL()
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"size":      limit,
		"min_score": minRank,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":  query,
						"fields": elasticFields,
					},
				},
				"filter": elasticFilters(filter),
			},
		},
	}
	resp, err := e.Client.PostJSON(ctx, u, body, e.header())
	if err != nil {
		return nil, err
	}
	out := parseHits(resp)
	metrics.ObserveRetriever("elasticsearch", start, len(out))
	return out, nil
}

// Scan is not offered over HTTP; callers rely on SearchWeightedFTS.
func (e *ElasticIndex) Scan(context.Context, Filter) ([]schema.Candidate, error) {
	return nil, ErrUnsupported
}

func elasticFilters(f Filter) []any {
	var out []any
	if f.UserID != "" {
		out = append(out, map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"user_id": f.UserID}},
					map[string]any{"bool": map[string]any{"must_not": map[string]any{"exists": map[string]any{"field": "user_id"}}}},
				},
				"minimum_should_match": 1,
			},
		})
	}
	if f.CropType != "" {
		out = append(out, map[string]any{"match": map[string]any{"crop_type": f.CropType}})
	}
	return out
}

func parseHits(body []byte) []schema.Candidate {
	hits := gjson.GetBytes(body, "hits.hits")
	out := make([]schema.Candidate, 0, len(hits.Array()))
	hits.ForEach(func(_, h gjson.Result) bool {
		src := h.Get("_source")
		c := schema.Candidate{
			ID:           h.Get("_id").String(),
			CropType:     src.Get("crop_type").String(),
			Topic:        src.Get("topic").String(),
			SectionTitle: src.Get("section_title").String(),
			Content:      src.Get("content").String(),
			Source:       src.Get("source").String(),
			Page:         int(src.Get("page").Int()),
			Rank:         h.Get("_score").Float(),
		}
		// fallback: if no content, use the section title
		if c.Content == "" {
			c.Content = c.SectionTitle
		}
		out = append(out, c)
		return true
	})
	return out
}
