package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/agrisense/agriquery/config"
	"github.com/agrisense/agriquery/metrics"
	"github.com/agrisense/agriquery/schema"
)

var milvusOutputFields = []string{"crop_type", "topic", "section_title", "content", "source", "page", "user_id"}

// MilvusIndex runs cosine similarity search against a Milvus collection.
type MilvusIndex struct {
	client      client.Client
	collection  string
	vectorField string
}

// NewMilvusIndex connects to Milvus and loads the collection.
func NewMilvusIndex(ctx context.Context, cfg config.MilvusConfig) (*MilvusIndex, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: connect milvus %s: %w", cfg.Address, err)
	}
	if err := c.LoadCollection(ctx, cfg.Collection, false); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("knowledge: load collection %s: %w", cfg.Collection, err)
	}
	field := cfg.VectorField
	if field == "" {
		field = "embedding"
	}
	return &MilvusIndex{client: c, collection: cfg.Collection, vectorField: field}, nil
}

func (m *MilvusIndex) Close() error { return m.client.Close() }

func (m *MilvusIndex) VectorSearch(ctx context.Context, embedding []float32, limit int, filter Filter) ([]schema.Candidate, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 10
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, err
	}
	results, err := m.client.Search(ctx, m.collection, nil, milvusExpr(filter), milvusOutputFields,
		[]entity.Vector{entity.FloatVector(embedding)}, m.vectorField, entity.COSINE, limit, sp)
	if err != nil {
		return nil, fmt.Errorf("knowledge: milvus search: %w", err)
	}

	var out []schema.Candidate
	for _, rs := range results {
		for i := 0; i < rs.ResultCount; i++ {
			score := float64(rs.Scores[i])
			if score < filter.MinSimilarity {
				continue
			}
			c := schema.Candidate{ID: columnString(rs.IDs, i), Rank: score}
			c.CropType = columnString(rs.Fields.GetColumn("crop_type"), i)
			c.Topic = columnString(rs.Fields.GetColumn("topic"), i)
			c.SectionTitle = columnString(rs.Fields.GetColumn("section_title"), i)
			c.Content = columnString(rs.Fields.GetColumn("content"), i)
			c.Source = columnString(rs.Fields.GetColumn("source"), i)
			if col := rs.Fields.GetColumn("page"); col != nil {
				if p, err := col.GetAsInt64(i); err == nil {
					c.Page = int(p)
				}
			}
			out = append(out, c)
		}
	}
	metrics.ObserveRetriever("milvus", start, len(out))
	return out, nil
}

// ScanEmbeddings is not offered; Milvus always serves VectorSearch.
func (m *MilvusIndex) ScanEmbeddings(context.Context, Filter) ([]Chunk, error) {
	return nil, ErrUnsupported
}

func milvusExpr(f Filter) string {
	var parts []string
	if f.UserID != "" {
		parts = append(parts, fmt.Sprintf(`(user_id == "" || user_id == "%s")`, escapeExpr(f.UserID)))
	}
	if f.CropType != "" {
		parts = append(parts, fmt.Sprintf(`crop_type like "%%%s%%"`, escapeExpr(f.CropType)))
	}
	return strings.Join(parts, " && ")
}

func escapeExpr(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func columnString(col entity.Column, i int) string {
	if col == nil {
		return ""
	}
	if s, err := col.GetAsString(i); err == nil {
		return s
	}
	if n, err := col.GetAsInt64(i); err == nil {
		return fmt.Sprint(n)
	}
	return ""
}
