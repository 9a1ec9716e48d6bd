package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryIntentHasExactlyOneCategory(t *testing.T) {
	actions := 0
	for _, i := range AllIntents() {
		c := i.Category()
		assert.Contains(t, []Category{CategoryAction, CategoryKnowledge}, c, i.String())
		assert.Equal(t, c, i.Category(), "category must be stable for %s", i)
		if c == CategoryAction {
			actions++
		}
	}
	assert.Equal(t, 10, actions)
	assert.Equal(t, CategoryKnowledge, IntentUnknown.Category())
	assert.Equal(t, CategoryKnowledge, IntentKnowledgeQuery.Category())
	assert.Equal(t, CategoryKnowledge, Intent(200).Category())
}

func TestParseIntent(t *testing.T) {
	i, ok := ParseIntent("device-control")
	require.True(t, ok)
	assert.Equal(t, IntentDeviceControl, i)

	i, ok = ParseIntent("weather_query")
	assert.False(t, ok)
	assert.Equal(t, IntentUnknown, i)

	for _, in := range AllIntents() {
		got, ok := ParseIntent(in.String())
		require.True(t, ok)
		assert.Equal(t, in, got)
	}
}

func TestIntentJSON(t *testing.T) {
	b, err := json.Marshal(IntentClassification{Intent: IntentSensorQuery, Confidence: 0.8})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"intent":"SENSOR_QUERY"`)

	var back IntentClassification
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, IntentSensorQuery, back.Intent)
}
