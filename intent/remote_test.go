package intent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agriquery/common/httpx"
	"github.com/agrisense/agriquery/schema"
)

func testClient() *httpx.Client {
	return httpx.New(httpx.Options{Timeout: time.Second, MaxConsecutiveFail: 100, CircuitOpen: time.Second})
}

type mlService struct {
	healthy      atomic.Bool
	healthCalls  atomic.Int32
	analyzeCalls atomic.Int32
	response     string
}

func (m *mlService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		m.healthCalls.Add(1)
		status := "degraded"
		if m.healthy.Load() {
			status = "healthy"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		m.analyzeCalls.Add(1)
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" || req.TopK != 3 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(m.response))
	})
	return mux
}

func TestRemoteClassifierMapsResponse(t *testing.T) {
	svc := &mlService{response: `{
		"intent": "sensor_query",
		"intent_confidence": 0.93,
		"entities": [
			{"type": "farm_area", "value": "khu A", "raw": "khu a", "confidence": 0.9, "start": 12, "end": 17},
			{"type": "weather", "value": "mưa", "raw": "mưa", "confidence": 0.4, "start": 0, "end": 3}
		]}`}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	rc := NewRemoteClassifier(srv.URL+"/", testClient(), 0)
	res, err := rc.Classify(context.Background(), "độ ẩm đất ở khu A")
	require.NoError(t, err)
	assert.Equal(t, schema.IntentSensorQuery, res.Intent)
	assert.Equal(t, 0.93, res.Confidence)
	assert.Equal(t, PathRemote, res.Path)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, schema.EntityFarmArea, res.Entities[0].Type)
	assert.Equal(t, 12, res.Entities[0].Start)
	assert.Equal(t, defaultEntityType, res.Entities[1].Type)
}

func TestRemoteClassifierUnknownLabel(t *testing.T) {
	svc := &mlService{response: `{"intent":"weather_query","intent_confidence":0.99,"entities":[]}`}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	res, err := NewRemoteClassifier(srv.URL, testClient(), 3).Classify(context.Background(), "trời có mưa không")
	require.NoError(t, err)
	assert.Equal(t, schema.IntentUnknown, res.Intent)
}

func TestRemoteClassifierFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemoteClassifier(srv.URL, testClient(), 3).Classify(context.Background(), "lúa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestMapEntityType(t *testing.T) {
	assert.Equal(t, schema.EntityCropName, mapEntityType("cropName"))
	assert.Equal(t, schema.EntityCropName, mapEntityType("CROP_NAME"))
	assert.Equal(t, schema.EntityDeviceName, mapEntityType("device"))
	assert.Equal(t, schema.EntityDate, mapEntityType("something-else"))
}
