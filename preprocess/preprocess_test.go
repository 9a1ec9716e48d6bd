package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocessStripsPolitePrefix(t *testing.T) {
	p := New(nil)
	r := p.Preprocess("Cho tôi biết cách tưới cà chua")

	assert.Equal(t, "cách tưới cà chua", r.Cleaned)
	assert.True(t, r.NoiseWordsRemoved)
	assert.True(t, r.Recommended)
	assert.Equal(t, []string{"cách", "tưới", "chua"}, r.Keywords)
	assert.Equal(t, Simple, r.Complexity)
	assert.Equal(t, "cách tưới cà chua", r.SearchText())
}

func TestPreprocessNoisePatterns(t *testing.T) {
	p := New(nil)
	cases := []struct {
		in, want string
	}{
		{"tôi muốn biết giá phân bón", "giá phân bón"},
		{"làm sao để trồng lúa", "trồng lúa"},
		{"bón phân cho lúa nhé", "bón phân cho lúa"},
		{"hỏi về   sâu cuốn lá", "sâu cuốn lá"},
		{"xin anh hỏi cách ủ phân được không", "cách ủ phân được"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Preprocess(tc.in).Cleaned)
		})
	}
}

func TestPreprocessKeepsOriginalWhenTooShort(t *testing.T) {
	p := New(nil)
	for _, in := range []string{"Cho tôi biết  ", "ạ", "  Xin Chào  ", "12 34"} {
		r := p.Preprocess(in)
		if len(r.Keywords) == 0 || len([]rune(r.Cleaned)) < MinLength {
			assert.Equal(t, lowerTrim(in), r.Cleaned, in)
			assert.False(t, r.NoiseWordsRemoved, in)
		}
	}
	r := p.Preprocess("Cho tôi biết gì")
	assert.Equal(t, "cho tôi biết gì", r.Cleaned)
}

func TestComplexity(t *testing.T) {
	p := New(nil)
	assert.Equal(t, Simple, p.Analyze("trồng lúa").Complexity)
	assert.Equal(t, Medium, p.Analyze("cách bón phân cho lúa vào mùa mưa").Complexity)
	assert.Equal(t, Complex, p.Analyze("tôi muốn biết cách phòng trừ sâu bệnh hại lúa vào đầu mùa mưa năm nay").Complexity)

	a := p.Analyze("phân bón của lúa")
	assert.True(t, a.HasNoise)
	assert.True(t, a.Recommended)
}

func TestSuggestAlternatives(t *testing.T) {
	p := New(nil)
	alts := p.SuggestAlternatives("bệnh đạo ôn là gì?")
	assert.Contains(t, alts, "bệnh đạo ôn")
	for _, a := range alts {
		assert.Greater(t, len([]rune(a)), 3)
	}
}

func TestBoostQuery(t *testing.T) {
	p := New(nil)
	assert.Equal(t, "cách tưới nước cho lúa lúa tưới nước", p.BoostQuery("Cách tưới nước cho lúa"))
	assert.Equal(t, "xem giá ớt", p.BoostQuery("xem giá ớt"))
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
