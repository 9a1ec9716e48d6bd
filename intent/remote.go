package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/agrisense/agriquery/common/errx"
	"github.com/agrisense/agriquery/common/httpx"
	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/metrics"
	"github.com/agrisense/agriquery/schema"
)

// defaultEntityType receives remote entities whose type has no local match.
const defaultEntityType = schema.EntityDate

var remoteEntityTypes = map[string]schema.EntityType{
	"DATE":         schema.EntityDate,
	"TIME":         schema.EntityDate,
	"MONEY":        schema.EntityMoney,
	"CROP":         schema.EntityCropName,
	"CROPNAME":     schema.EntityCropName,
	"AREA":         schema.EntityFarmArea,
	"FARMAREA":     schema.EntityFarmArea,
	"DEVICE":       schema.EntityDeviceName,
	"DEVICENAME":   schema.EntityDeviceName,
	"ACTIVITY":     schema.EntityActivityType,
	"ACTIVITYTYPE": schema.EntityActivityType,
	"METRIC":       schema.EntityMetric,
}

// mapEntityType folds "crop_name", "cropName" and "CROP-NAME" to one key.
func mapEntityType(raw string) schema.EntityType {
	key := strings.ToUpper(strings.NewReplacer("_", "", "-", "", " ", "").Replace(raw))
	if t, ok := remoteEntityTypes[key]; ok {
		return t
	}
	return defaultEntityType
}

// RemoteClassifier calls the external ML classification service.
type RemoteClassifier struct {
	Endpoint string
	Client   *httpx.Client
	TopK     int
}

func NewRemoteClassifier(endpoint string, client *httpx.Client, topK int) *RemoteClassifier {
	if topK <= 0 {
		topK = 3
	}
	return &RemoteClassifier{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Client:   client,
		TopK:     topK,
	}
}

type analyzeRequest struct {
	Text string `json:"text"`
	TopK int    `json:"top_k"`
}

// Classify posts the query to /analyze. Any failure is reported as ErrUnavailable.
func (r *RemoteClassifier) Classify(ctx context.Context, query string) (*schema.IntentClassification, error) {
	body, err := r.Client.PostJSON(ctx, r.Endpoint+"/analyze", analyzeRequest{Text: query, TopK: r.TopK}, nil)
	if err != nil {
		return nil, errx.Wrap(fmt.Errorf("%w: %v", ErrUnavailable, err), errx.CodeDependencyUnavailable, "intent service call failed")
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON from intent service", ErrUnavailable)
	}
	doc := gjson.ParseBytes(body)

	label := doc.Get("intent").String()
	in, ok := schema.ParseIntent(label)
	if !ok {
		logger.Debugf("intent: remote label %q not recognised, using UNKNOWN", label)
	}
	res := &schema.IntentClassification{
		Intent:          in,
		Confidence:      doc.Get("intent_confidence").Float(),
		NormalizedQuery: lexicon.Normalize(query),
		Path:            PathRemote,
	}
	doc.Get("entities").ForEach(func(_, e gjson.Result) bool {
		raw := e.Get("raw").String()
		if raw == "" {
			raw = e.Get("text").String()
		}
		value := e.Get("value").String()
		if value == "" {
			value = raw
		}
		res.Entities = append(res.Entities, schema.Entity{
			Type:       mapEntityType(e.Get("type").String()),
			Value:      value,
			RawText:    raw,
			Confidence: e.Get("confidence").Float(),
			Start:      int(e.Get("start").Int()),
			End:        int(e.Get("end").Int()),
		})
		return true
	})
	metrics.IncIntent(res.Intent.String(), PathRemote)
	return res, nil
}

// Healthy probes GET /health and expects {"status":"healthy"}.
func (r *RemoteClassifier) Healthy(ctx context.Context) bool {
	body, err := r.Client.Get(ctx, r.Endpoint+"/health")
	if err != nil {
		logger.Debugf("intent: health check failed: %v", err)
		return false
	}
	return gjson.GetBytes(body, "status").String() == "healthy"
}
