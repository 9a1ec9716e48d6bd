package schema

import (
	"fmt"
	"strings"
)

// Intent is the closed set of things a user can ask the pipeline to do.
type Intent uint8

const (
	IntentUnknown Intent = iota
	IntentKnowledgeQuery
	IntentFinancialQuery
	IntentCropQuery
	IntentActivityQuery
	IntentAnalyticsQuery
	IntentFarmQuery
	IntentSensorQuery
	IntentDeviceControl
	IntentCreateRecord
	IntentUpdateRecord
	IntentDeleteRecord

	intentCount
)

// Category splits intents into those answered from business data or
// devices and those answered from the knowledge layers.
type Category uint8

const (
	CategoryKnowledge Category = iota
	CategoryAction
)

func (c Category) String() string {
	if c == CategoryAction {
		return "action"
	}
	return "knowledge"
}

var intentNames = [intentCount]string{
	IntentUnknown:        "UNKNOWN",
	IntentKnowledgeQuery: "KNOWLEDGE_QUERY",
	IntentFinancialQuery: "FINANCIAL_QUERY",
	IntentCropQuery:      "CROP_QUERY",
	IntentActivityQuery:  "ACTIVITY_QUERY",
	IntentAnalyticsQuery: "ANALYTICS_QUERY",
	IntentFarmQuery:      "FARM_QUERY",
	IntentSensorQuery:    "SENSOR_QUERY",
	IntentDeviceControl:  "DEVICE_CONTROL",
	IntentCreateRecord:   "CREATE_RECORD",
	IntentUpdateRecord:   "UPDATE_RECORD",
	IntentDeleteRecord:   "DELETE_RECORD",
}

var intentCategories = [intentCount]Category{
	IntentUnknown:        CategoryKnowledge,
	IntentKnowledgeQuery: CategoryKnowledge,
	IntentFinancialQuery: CategoryAction,
	IntentCropQuery:      CategoryAction,
	IntentActivityQuery:  CategoryAction,
	IntentAnalyticsQuery: CategoryAction,
	IntentFarmQuery:      CategoryAction,
	IntentSensorQuery:    CategoryAction,
	IntentDeviceControl:  CategoryAction,
	IntentCreateRecord:   CategoryAction,
	IntentUpdateRecord:   CategoryAction,
	IntentDeleteRecord:   CategoryAction,
}

// AllIntents lists every intent in declaration order.
func AllIntents() []Intent {
	out := make([]Intent, 0, intentCount)
	for i := Intent(0); i < intentCount; i++ {
		out = append(out, i)
	}
	return out
}

// Category returns the branch the orchestrator takes for i. Out-of-range
// values are treated as unknown.
func (i Intent) Category() Category {
	if i >= intentCount {
		return CategoryKnowledge
	}
	return intentCategories[i]
}

func (i Intent) String() string {
	if i >= intentCount {
		return intentNames[IntentUnknown]
	}
	return intentNames[i]
}

// ParseIntent maps a wire label (any case, '-' or '_') to an Intent.
// Unrecognised labels yield IntentUnknown and false.
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for i, name := range intentNames {
		if name == s {
			return Intent(i), true
		}
	}
	return IntentUnknown, false
}

func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Intent) UnmarshalText(b []byte) error {
	v, ok := ParseIntent(string(b))
	if !ok {
		return fmt.Errorf("unknown intent %q", string(b))
	}
	*i = v
	return nil
}
