package knowledge

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/agrisense/agriquery/schema"
)

func setupSQLite(t *testing.T) *SQLiteIndex {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	idx, err := NewSQLiteIndex(db)
	require.NoError(t, err)
	return idx
}

func seedChunks() []Chunk {
	return []Chunk{
		{Candidate: candidate("c1", "Cà chua", "tưới nước", "Kỹ thuật tưới cà chua", "Tưới cà chua vào sáng sớm, giữ ẩm đất đều."), Embedding: []float32{1, 0, 0}},
		{Candidate: candidate("c2", "Lúa", "sâu bệnh", "Bệnh đạo ôn", "Phun thuốc khi lúa xuất hiện vết bệnh đạo ôn."), Embedding: []float32{0, 1, 0}},
		{Candidate: candidate("c3", "Cà phê", "bón phân", "Bón phân cà phê", "Bón phân NPK cho cà phê sau mùa mưa."), UserID: "u2"},
	}
}

func candidate(id, crop, topic, title, content string) schema.Candidate {
	return schema.Candidate{ID: id, CropType: crop, Topic: topic, SectionTitle: title, Content: content, Source: "so_tay_" + id + ".pdf", Page: 3}
}

func TestSQLiteWeightedFTSRanksCropTypeFirst(t *testing.T) {
	idx := setupSQLite(t)
	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, seedChunks()...))

	res, err := idx.SearchWeightedFTS(ctx, "tưới cà chua", Filter{}, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "c1", res[0].ID)
	assert.Greater(t, res[0].Rank, 0.0)
	assert.Equal(t, "so_tay_c1.pdf", res[0].Source)
	assert.Equal(t, 3, res[0].Page)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Rank, res[i].Rank)
	}
}

func TestSQLiteFiltersByUserAndCrop(t *testing.T) {
	idx := setupSQLite(t)
	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, seedChunks()...))

	res, err := idx.SearchWeightedFTS(ctx, "bón phân cà phê", Filter{UserID: "u1"}, 10, 0)
	require.NoError(t, err)
	for _, c := range res {
		assert.NotEqual(t, "c3", c.ID, "private chunk of another user leaked")
	}

	res, err = idx.SearchWeightedFTS(ctx, "bón phân cà phê", Filter{UserID: "u2"}, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "c3", res[0].ID)

	all, err := idx.Scan(ctx, Filter{CropType: "lúa"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "c2", all[0].ID)
}

func TestSQLiteMinRankAndEmptyQuery(t *testing.T) {
	idx := setupSQLite(t)
	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, seedChunks()...))

	res, err := idx.SearchWeightedFTS(ctx, "tưới cà chua", Filter{}, 10, 1e9)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = idx.SearchWeightedFTS(ctx, "  ?? ", Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSQLitePutReplacesAndEmbeddingsRoundTrip(t *testing.T) {
	idx := setupSQLite(t)
	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, seedChunks()...))

	updated := seedChunks()[0]
	updated.Content = "Tưới nhỏ giọt cho cà chua."
	require.NoError(t, idx.Put(ctx, updated))

	res, err := idx.SearchWeightedFTS(ctx, "nhỏ giọt", Filter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c1", res[0].ID)

	chunks, err := idx.ScanEmbeddings(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	hits, err := SearchVector(ctx, idx, []float32{0.9, 0.1, 0}, 1, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ID)
	assert.InDelta(t, 0.9938, hits[0].Rank, 1e-3)
}

func TestSQLiteCropFilterFoldsVietnameseCase(t *testing.T) {
	idx := setupSQLite(t)
	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, append(seedChunks(),
		Chunk{Candidate: candidate("c4", "Ớt", "bón phân", "Bón phân cho Ớt", "Bón phân hữu cơ cho ớt trước khi ra hoa.")})...))

	for _, crop := range []string{"ớt", "Ớt", "ỚT"} {
		res, err := idx.SearchWeightedFTS(ctx, "bón phân", Filter{CropType: crop}, 10, 0)
		require.NoError(t, err)
		require.Len(t, res, 1, crop)
		assert.Equal(t, "c4", res[0].ID)

		all, err := idx.Scan(ctx, Filter{CropType: crop})
		require.NoError(t, err)
		require.Len(t, all, 1, crop)
		assert.Equal(t, "c4", all[0].ID)
	}
}
