// Package action answers the intents that read a user's farm records or
// drive devices. Handlers never consult the knowledge layers.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/metrics"
	"github.com/agrisense/agriquery/schema"
)

var (
	// ErrNotResolved is returned when no record matches a name.
	ErrNotResolved = errors.New("action: name not resolved")
	// ErrAmbiguous is returned when a name matches more than one record at
	// the first tier that matched anything.
	ErrAmbiguous = errors.New("action: name is ambiguous")
)

const (
	msgUnknownIntent = "Tôi chưa hiểu yêu cầu của bạn. Vui lòng thử lại."
	msgHandlerError  = "Có lỗi xảy ra khi xử lý yêu cầu của bạn."
)

// Request is one action to run for an authenticated user.
type Request struct {
	Query          string
	UserID         string
	Classification schema.IntentClassification
}

// Result is what a handler reports back to the orchestrator.
type Result struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	Data                 any    `json:"data,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
}

// Explainer phrases raw business data for the user.
type Explainer interface {
	GenerateWithContext(ctx context.Context, query string, data any) string
}

type handlerFunc func(ctx context.Context, r *Router, req Request) (Result, error)

type handlerSpec struct {
	name    string
	run     handlerFunc
	explain bool
}

// handlers is the intent to handler table. Every action intent has exactly
// one entry; the orchestrator only routes action intents here.
var handlers = map[schema.Intent]handlerSpec{
	schema.IntentFinancialQuery: {name: "financial", run: handleFinancial, explain: true},
	schema.IntentCropQuery:      {name: "crop", run: handleCrop, explain: true},
	schema.IntentActivityQuery:  {name: "activity", run: handleActivity, explain: true},
	schema.IntentAnalyticsQuery: {name: "analytics", run: handleAnalytics, explain: true},
	schema.IntentFarmQuery:      {name: "farm", run: handleFarm, explain: true},
	schema.IntentSensorQuery:    {name: "sensor", run: handleSensor},
	schema.IntentDeviceControl:  {name: "device", run: handleDevice},
	schema.IntentCreateRecord:   {name: "create", run: handleCreateRecord},
	schema.IntentUpdateRecord:   {name: "update", run: handleUpdateRecord},
	schema.IntentDeleteRecord:   {name: "delete", run: handleDeleteRecord},
}

// Handles reports whether intent has a handler.
func Handles(intent schema.Intent) bool {
	_, ok := handlers[intent]
	return ok
}

// Router dispatches action intents. It is safe for concurrent use.
type Router struct {
	data      BusinessData
	devices   DeviceDispatcher
	explainer Explainer
	lex       *lexicon.Lexicon
	now       func() time.Time
}

// Option customises a Router.
type Option func(*Router)

// WithExplainer makes read handlers phrase their data through e.
func WithExplainer(e Explainer) Option {
	return func(r *Router) { r.explainer = e }
}

// WithClock fixes the reference time for periods and staleness.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// NewRouter builds a Router. devices may be nil when no device channel is
// configured; device control then fails with a user-facing message.
func NewRouter(data BusinessData, devices DeviceDispatcher, lex *lexicon.Lexicon, opts ...Option) *Router {
	if lex == nil {
		lex = lexicon.Default()
	}
	r := &Router{data: data, devices: devices, lex: lex, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Route runs the handler for req's intent. Collaborator failures become an
// unsuccessful Result; they are never returned as errors.
func (r *Router) Route(ctx context.Context, req Request) Result {
	intent := req.Classification.Intent
	spec, ok := handlers[intent]
	if !ok {
		metrics.IncAction(intent.String(), false)
		return Result{Message: msgUnknownIntent}
	}

	res, err := spec.run(ctx, r, req)
	if err != nil {
		logger.Errorf("action: %s handler failed: %v", spec.name, err)
		metrics.IncAction(intent.String(), false)
		return Result{Message: msgHandlerError}
	}
	if spec.explain && r.explainer != nil && res.Success && res.Data != nil {
		res.Message = r.explainer.GenerateWithContext(ctx, req.Query, res.Data)
	}
	logger.Debugf("action: %s handled, success=%t", spec.name, res.Success)
	metrics.IncAction(intent.String(), res.Success)
	return res
}

func (r *Router) requireData() error {
	if r.data == nil {
		return fmt.Errorf("action: no business data accessor configured")
	}
	return nil
}
