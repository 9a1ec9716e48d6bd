package exactmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/schema"
)

func TestConfidence(t *testing.T) {
	tests := []struct {
		name  string
		cand  schema.Candidate
		query string
		want  float64
	}{
		{
			name:  "crop exact and title phrase",
			cand:  schema.Candidate{Rank: 0.4, CropType: "Cà chua", SectionTitle: "Cách tưới cà chua"},
			query: "cách tưới cà chua",
			want:  0.4 * 0.5 * 1.5 * 2.0,
		},
		{
			name:  "crop partial and title words",
			cand:  schema.Candidate{Rank: 0.4, CropType: "Lúa nước", SectionTitle: "Phòng trừ bệnh", Topic: "Sâu bệnh"},
			query: "bệnh hại lúa nước",
			want:  0.4 * 0.5 * 1.5 * 1.1 * 1.1,
		},
		{
			name:  "topic only",
			cand:  schema.Candidate{Rank: 1.0, Topic: "Kỹ thuật tưới"},
			query: "tưới rau",
			want:  0.5 * 1.1,
		},
		{
			name:  "capped",
			cand:  schema.Candidate{Rank: 5, CropType: "Cà chua", SectionTitle: "Cách tưới cà chua"},
			query: "cách tưới cà chua",
			want:  1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.cand, tt.query), 1e-9)
		})
	}
}

func TestConfidencePhraseReplacesWordBoost(t *testing.T) {
	query := "cách tưới nước cho cây cà chua"
	words := schema.Candidate{Rank: 0.3, SectionTitle: "nước tưới cách cây cho"}
	phrase := schema.Candidate{Rank: 0.3, SectionTitle: "cách tưới nước cho cây"}
	assert.Greater(t, Confidence(phrase, query), Confidence(words, query))

	// twelve scattered title words give 1 + 12*0.1; one phrase gives 2.0
	// and the scattered words no longer count
	many := "alpha beta gamma delta epsilon zeta theta kappa lambda sigma omega omicron"
	scattered := schema.Candidate{Rank: 0.1, SectionTitle: "omicron omega sigma lambda kappa theta zeta epsilon delta gamma beta alpha"}
	withPhrase := scattered
	withPhrase.SectionTitle += " alpha beta"
	assert.InDelta(t, 0.05*2.2, Confidence(scattered, many), 1e-9)
	assert.InDelta(t, 0.05*2.0, Confidence(withPhrase, many), 1e-9)
}

func TestSubstringRank(t *testing.T) {
	c := schema.Candidate{
		CropType:     "Cà chua",
		SectionTitle: "Cách tưới cà chua",
		Topic:        "Chăm sóc",
		Content:      "Tưới nước vào sáng sớm cho cà chua.",
	}
	rank, ok := SubstringRank(c, queryWords("cách tưới cà chua"))
	require.True(t, ok)
	assert.InDelta(t, (2.0+3.0+6.0)/3.0, rank, 1e-9)

	_, ok = SubstringRank(c, queryWords("giá phân bón"))
	assert.False(t, ok)
	_, ok = SubstringRank(c, nil)
	assert.False(t, ok)
}

func TestPestKeywordsAndRerank(t *testing.T) {
	pats := compilePestPatterns(lexicon.Default().PestPrefixes)
	assert.Equal(t, []string{"dao on"}, pestKeywords("cách phòng bệnh đạo ôn", pats))
	assert.Equal(t, []string{"duc than"}, pestKeywords("trị sâu đục thân", pats))
	assert.Empty(t, pestKeywords("cách tưới cà chua", pats))

	cands := []schema.Candidate{
		{ID: "a", SectionTitle: "Bón phân cho lúa", Rank: 1.0},
		{ID: "b", SectionTitle: "Bệnh đạo ôn", Rank: 0.5},
		{ID: "c", SectionTitle: "Đạo đức nghề nông", Rank: 0.6},
	}
	out := rerankByTitle(cands, []string{"dao on"})
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID)
	assert.InDelta(t, 2.5, out[0].Rank, 1e-9)
	assert.Equal(t, "c", out[1].ID)
	assert.InDelta(t, 1.6, out[1].Rank, 1e-9)
	assert.Equal(t, 0.5, cands[1].Rank, "input is not mutated")
}

func TestFormatAnswer(t *testing.T) {
	got := FormatAnswer(schema.Candidate{CropType: "Cà chua", SectionTitle: "Cách tưới", Topic: "Chăm sóc", Content: "Tưới sáng sớm.", Source: "so_tay.pdf"})
	assert.Equal(t, "**Cà chua - Cách tưới**\n*Chủ đề: Chăm sóc*\n\nTưới sáng sớm.\n\n_Nguồn: so_tay.pdf_", got)

	got = FormatAnswer(schema.Candidate{CropType: "Lúa", SectionTitle: "Giống", Topic: "Giống", Content: "ST25"})
	assert.Equal(t, "**Lúa - Giống**\nST25", got)
}
