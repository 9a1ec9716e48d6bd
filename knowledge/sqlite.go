package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/metrics"
	"github.com/agrisense/agriquery/schema"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL DEFAULT '',
	crop_type     TEXT NOT NULL DEFAULT '',
	crop_key      TEXT NOT NULL DEFAULT '',
	topic         TEXT NOT NULL DEFAULT '',
	section_title TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	page          INTEGER NOT NULL DEFAULT 0,
	embedding     BLOB
);
CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_user ON knowledge_chunks(user_id);
CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
	crop_type, section_title, topic, content, chunk_id UNINDEXED,
	tokenize = 'unicode61 remove_diacritics 0'
);
`

// Column weights for bm25, in fts column order: crop type, section
// title, topic, body, chunk id. The 1.0/0.4/0.2/0.1 tiers keep scores on
// the same scale as a ts_rank over A/B/C/D weighted vectors.
const bm25Weights = "1.0, 0.4, 0.2, 0.1, 0.0"

// SQLiteIndex stores chunks in SQLite with an FTS5 table for weighted
// lexical ranking. It has no vector primitive; VectorSearch reports
// ErrUnsupported and ScanEmbeddings serves the in-process fallback.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex creates the tables if needed.
func NewSQLiteIndex(db *sql.DB) (*SQLiteIndex, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("knowledge: create sqlite schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Put inserts or replaces chunks and their full-text rows.
func (s *SQLiteIndex) Put(ctx context.Context, chunks ...Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO knowledge_chunks
			(id, user_id, crop_type, crop_key, topic, section_title, content, source, page, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.UserID, c.CropType, lexicon.Normalize(c.CropType), c.Topic, c.SectionTitle, c.Content, c.Source, c.Page, encodeVector(c.Embedding),
		); err != nil {
			return fmt.Errorf("knowledge: insert chunk %s: %w", c.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_fts WHERE chunk_id = ?`, c.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO knowledge_fts (crop_type, section_title, topic, content, chunk_id)
			VALUES (?, ?, ?, ?, ?)`,
			lexicon.Normalize(c.CropType), lexicon.Normalize(c.SectionTitle), lexicon.Normalize(c.Topic), lexicon.Normalize(c.Content), c.ID,
		); err != nil {
			return fmt.Errorf("knowledge: index chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// SearchWeightedFTS ranks with bm25. FTS5 scores are negative with lower
// being better, so Rank is the negated score.
func (s *SQLiteIndex) SearchWeightedFTS(ctx context.Context, query string, filter Filter, limit int, minRank float64) ([]schema.Candidate, error) {
	start := time.Now()
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	crop := lexicon.Normalize(filter.CropType)
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.crop_type, c.topic, c.section_title, c.content, c.source, c.page,
		       -bm25(knowledge_fts, `+bm25Weights+`) AS score
		FROM knowledge_fts
		JOIN knowledge_chunks c ON c.id = knowledge_fts.chunk_id
		WHERE knowledge_fts MATCH ?
		  AND (? = '' OR c.user_id = '' OR c.user_id = ?)
		  AND (? = '' OR instr(c.crop_key, ?) > 0)
		ORDER BY score DESC
		LIMIT ?`,
		match, filter.UserID, filter.UserID, crop, crop, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge: fts query: %w", err)
	}
	defer rows.Close()

	var out []schema.Candidate
	for rows.Next() {
		var c schema.Candidate
		if err := rows.Scan(&c.ID, &c.CropType, &c.Topic, &c.SectionTitle, &c.Content, &c.Source, &c.Page, &c.Rank); err != nil {
			return nil, err
		}
		if c.Rank < minRank {
			continue
		}
		out = append(out, c)
	}
	metrics.ObserveRetriever("sqlite_fts", start, len(out))
	return out, rows.Err()
}

// Scan returns every chunk visible through filter.
func (s *SQLiteIndex) Scan(ctx context.Context, filter Filter) ([]schema.Candidate, error) {
	chunks, err := s.scan(ctx, filter, false)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Candidate, len(chunks))
	for i, c := range chunks {
		out[i] = c.Candidate
	}
	return out, nil
}

func (s *SQLiteIndex) VectorSearch(context.Context, []float32, int, Filter) ([]schema.Candidate, error) {
	return nil, ErrUnsupported
}

// ScanEmbeddings returns chunks that carry an embedding.
func (s *SQLiteIndex) ScanEmbeddings(ctx context.Context, filter Filter) ([]Chunk, error) {
	return s.scan(ctx, filter, true)
}

func (s *SQLiteIndex) scan(ctx context.Context, filter Filter, withEmbedding bool) ([]Chunk, error) {
	q := `SELECT id, user_id, crop_type, topic, section_title, content, source, page, embedding
		FROM knowledge_chunks
		WHERE (? = '' OR user_id = '' OR user_id = ?)
		  AND (? = '' OR instr(crop_key, ?) > 0)`
	if withEmbedding {
		q += ` AND embedding IS NOT NULL`
	}
	crop := lexicon.Normalize(filter.CropType)
	rows, err := s.db.QueryContext(ctx, q, filter.UserID, filter.UserID, crop, crop)
	if err != nil {
		return nil, fmt.Errorf("knowledge: scan: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.UserID, &c.CropType, &c.Topic, &c.SectionTitle, &c.Content, &c.Source, &c.Page, &blob); err != nil {
			return nil, err
		}
		c.Embedding = decodeVector(blob)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into an FTS5 OR query of quoted terms.
func ftsQuery(text string) string {
	words := lexicon.Words(text)
	terms := make([]string, 0, len(words))
	seen := map[string]bool{}
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
