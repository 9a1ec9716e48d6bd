package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agriquery/schema"
)

func TestRuleClassifierPriority(t *testing.T) {
	rc := NewRuleClassifier(nil, nil)
	cases := []struct {
		query string
		want  schema.Intent
	}{
		{"bật máy bơm khu A trong 10 phút", schema.IntentDeviceControl},
		{"doanh thu tháng 3 là bao nhiêu", schema.IntentFinancialQuery},
		{"phân tích xu hướng năng suất", schema.IntentAnalyticsQuery},
		{"độ ẩm đất ở khu A hôm nay thế nào", schema.IntentSensorQuery},
		{"cây trồng của tôi đang thế nào", schema.IntentCropQuery},
		{"xem nhật ký tuần này", schema.IntentActivityQuery},
		{"cho tôi biết cách tưới cà chua", schema.IntentKnowledgeQuery},
		{"bệnh đạo ôn trên lúa", schema.IntentKnowledgeQuery},
		{"xin chào", schema.IntentKnowledgeQuery},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			res, err := rc.Classify(context.Background(), tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Intent)
			assert.Equal(t, PathRule, res.Path)
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
		})
	}
}

func TestRuleClassifierDeviceBeatsSensor(t *testing.T) {
	res, err := NewRuleClassifier(nil, nil).Classify(context.Background(), "tắt hệ thống đo nhiệt độ")
	require.NoError(t, err)
	assert.Equal(t, schema.IntentDeviceControl, res.Intent)
}

func TestRuleConfidenceFormula(t *testing.T) {
	rc := NewRuleClassifier(nil, nil)
	// "doanh thu" covers 9 of 9 runes, one pattern matches: min(1 + 0.1, 1) = 1
	res, err := rc.Classify(context.Background(), "doanh thu")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Confidence)

	// "chi phí" (7 runes) in a 21-rune query, one group pattern: 7/21 + 0.1
	res, err = rc.Classify(context.Background(), "chi phí phân bón ớt a")
	require.NoError(t, err)
	assert.Equal(t, schema.IntentFinancialQuery, res.Intent)
	assert.InDelta(t, 7.0/21.0+0.1, res.Confidence, 1e-9)
}

func TestRuleClassifierCarriesEntities(t *testing.T) {
	res, err := NewRuleClassifier(nil, nil).Classify(context.Background(), "Độ ẩm đất ở khu A hôm nay thế nào")
	require.NoError(t, err)
	area, ok := res.FirstEntity(schema.EntityFarmArea)
	require.True(t, ok)
	assert.Equal(t, "khu A", area.Value)
	_, ok = res.FirstEntity(schema.EntityDate)
	assert.True(t, ok)
	assert.Equal(t, "độ ẩm đất ở khu a hôm nay thế nào", res.NormalizedQuery)
}

func TestCategoryOfCoversEveryIntent(t *testing.T) {
	for _, in := range schema.AllIntents() {
		c := CategoryOf(in)
		assert.True(t, c == schema.CategoryAction || c == schema.CategoryKnowledge)
	}
	assert.Equal(t, schema.CategoryAction, CategoryOf(schema.IntentDeviceControl))
	assert.Equal(t, schema.CategoryKnowledge, CategoryOf(schema.IntentUnknown))
}
