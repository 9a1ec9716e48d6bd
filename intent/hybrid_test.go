package intent

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agriquery/config"
	"github.com/agrisense/agriquery/schema"
)

func TestHybridAdoptsConfidentRemoteVerdict(t *testing.T) {
	svc := &mlService{response: `{"intent":"FINANCIAL_QUERY","intent_confidence":0.91,"entities":[]}`}
	svc.healthy.Store(true)
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	h := NewHybridClassifier(NewRemoteClassifier(srv.URL, testClient(), 3), nil, 0.7, time.Minute)
	res, err := h.Classify(context.Background(), "cách tưới cà chua")
	require.NoError(t, err)
	assert.Equal(t, schema.IntentFinancialQuery, res.Intent)
	assert.Equal(t, PathRemote, res.Path)
}

func TestHybridFallsBackOnLowConfidence(t *testing.T) {
	svc := &mlService{response: `{"intent":"FINANCIAL_QUERY","intent_confidence":0.7,"entities":[]}`}
	svc.healthy.Store(true)
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	h := NewHybridClassifier(NewRemoteClassifier(srv.URL, testClient(), 3), nil, 0.7, time.Minute)
	res, err := h.Classify(context.Background(), "cách tưới cà chua")
	require.NoError(t, err)
	assert.Equal(t, schema.IntentKnowledgeQuery, res.Intent)
	assert.Equal(t, PathRule, res.Path)
}

func TestHybridCachesHealthVerdict(t *testing.T) {
	svc := &mlService{response: `{"intent":"FINANCIAL_QUERY","intent_confidence":0.95,"entities":[]}`}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHybridClassifier(NewRemoteClassifier(srv.URL, testClient(), 3), nil, 0.7, 30*time.Second)
	h.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		res, err := h.Classify(context.Background(), "doanh thu")
		require.NoError(t, err)
		assert.Equal(t, PathRule, res.Path)
	}
	assert.Equal(t, int32(1), svc.healthCalls.Load())
	assert.Equal(t, int32(0), svc.analyzeCalls.Load())

	svc.healthy.Store(true)
	now = now.Add(31 * time.Second)
	res, err := h.Classify(context.Background(), "doanh thu")
	require.NoError(t, err)
	assert.Equal(t, PathRemote, res.Path)
	assert.Equal(t, int32(2), svc.healthCalls.Load())
}

func TestHybridMarksPrimaryDownOnError(t *testing.T) {
	svc := &mlService{response: `not json`}
	svc.healthy.Store(true)
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	h := NewHybridClassifier(NewRemoteClassifier(srv.URL, testClient(), 3), nil, 0.7, time.Hour)
	res, err := h.Classify(context.Background(), "bật đèn")
	require.NoError(t, err)
	assert.Equal(t, schema.IntentDeviceControl, res.Intent)
	assert.Equal(t, PathRule, res.Path)

	_, _ = h.Classify(context.Background(), "bật đèn")
	assert.Equal(t, int32(1), svc.analyzeCalls.Load())
}

type blockingPrimary struct {
	started chan struct{}
	release chan struct{}
	probes  atomic.Int32
}

func (b *blockingPrimary) Classify(context.Context, string) (*schema.IntentClassification, error) {
	return &schema.IntentClassification{Intent: schema.IntentFinancialQuery, Confidence: 0.95, Path: PathRemote}, nil
}

func (b *blockingPrimary) Healthy(context.Context) bool {
	if b.probes.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	return true
}

func TestHybridHealthProbeDoesNotHoldLock(t *testing.T) {
	p := &blockingPrimary{started: make(chan struct{}), release: make(chan struct{})}
	h := NewHybridClassifier(p, nil, 0.7, time.Minute)

	var wg sync.WaitGroup
	paths := make([]string, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, _ := h.Classify(context.Background(), "doanh thu")
		paths[0] = res.Path
	}()
	<-p.started

	for i := 1; i < len(paths); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _ := h.Classify(context.Background(), "doanh thu")
			paths[i] = res.Path
		}(i)
	}

	done := make(chan struct{})
	go func() {
		_, _ = h.cached()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health cache blocked while the probe was running")
	}

	close(p.release)
	wg.Wait()
	assert.Equal(t, int32(1), p.probes.Load())
	for _, path := range paths {
		assert.Equal(t, PathRemote, path)
	}
}

func TestRemoteModeKeepsConfidenceGate(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"confident", `{"intent":"FINANCIAL_QUERY","intent_confidence":0.95,"entities":[]}`, PathRemote},
		{"not confident", `{"intent":"FINANCIAL_QUERY","intent_confidence":0.5,"entities":[]}`, PathRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mlService{response: tt.response}
			srv := httptest.NewServer(svc.handler())
			defer srv.Close()

			cfg := config.Default()
			cfg.Classifier.Mode = "remote"
			cfg.Classifier.Endpoint = srv.URL
			c, err := NewFromConfig(cfg, nil, nil)
			require.NoError(t, err)

			res, err := c.Classify(context.Background(), "doanh thu tháng 3")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Path)
			assert.Equal(t, int32(1), svc.analyzeCalls.Load())
			assert.Zero(t, svc.healthCalls.Load())
		})
	}
}
