package schema

import "time"

// EntityType is the closed set of entity kinds.
type EntityType string

const (
	EntityDate         EntityType = "DATE"
	EntityMoney        EntityType = "MONEY"
	EntityCropName     EntityType = "CROP_NAME"
	EntityFarmArea     EntityType = "FARM_AREA"
	EntityDeviceName   EntityType = "DEVICE_NAME"
	EntityActivityType EntityType = "ACTIVITY_TYPE"
	EntityMetric       EntityType = "METRIC"
)

// Query is one request entering the pipeline.
type Query struct {
	Text           string `json:"text"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Entity is a typed span. Offsets are rune offsets into the normalized text.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	RawText    string     `json:"raw_text"`
	Confidence float64    `json:"confidence"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
}

// IntentClassification is the classifier's verdict.
type IntentClassification struct {
	Intent          Intent   `json:"intent"`
	Confidence      float64  `json:"confidence"`
	Entities        []Entity `json:"entities"`
	NormalizedQuery string   `json:"normalized_query"`
	// Path records which classifier produced the verdict (rule or remote).
	Path string `json:"path,omitempty"`
}

// FirstEntity returns the first entity of type t.
func (c *IntentClassification) FirstEntity(t EntityType) (Entity, bool) {
	for _, e := range c.Entities {
		if e.Type == t {
			return e, true
		}
	}
	return Entity{}, false
}

// EntitiesOf returns every entity of type t, in extraction order.
func (c *IntentClassification) EntitiesOf(t EntityType) []Entity {
	var out []Entity
	for _, e := range c.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Candidate is a knowledge chunk returned by a search backend.
type Candidate struct {
	ID           string  `json:"id"`
	CropType     string  `json:"crop_type"`
	Topic        string  `json:"topic"`
	SectionTitle string  `json:"section_title"`
	Content      string  `json:"content"`
	Source       string  `json:"source,omitempty"`
	Page         int     `json:"page,omitempty"`
	Rank         float64 `json:"rank"`
	Confidence   float64 `json:"confidence"`
}

// ProcessingLayer names the stage that produced a response.
type ProcessingLayer string

const (
	LayerExactMatch ProcessingLayer = "exact_match"
	LayerRetrieval  ProcessingLayer = "rag"
	LayerGeneration ProcessingLayer = "llm_fallback"
	LayerAction     ProcessingLayer = "action"
	LayerScope      ProcessingLayer = "scope_guard"
	LayerError      ProcessingLayer = "error"
)

// SourceType classifies a provenance entry.
type SourceType string

const (
	SourceKnowledgeBase SourceType = "knowledge_base"
	SourceDocument      SourceType = "document"
	SourceLLM           SourceType = "llm"
	SourceDatabase      SourceType = "database"
)

// Source is one provenance entry of a response.
type Source struct {
	Type       SourceType `json:"type"`
	Reference  string     `json:"reference"`
	Confidence float64    `json:"confidence"`
}

// PipelineResponse is the single terminal output of a query.
type PipelineResponse struct {
	Success              bool                 `json:"success"`
	Message              string               `json:"message"`
	Intent               Intent               `json:"intent"`
	ProcessingLayer      ProcessingLayer      `json:"processing_layer"`
	Confidence           float64              `json:"confidence"`
	ResponseTime         time.Duration        `json:"response_time_ns"`
	Sources              []Source             `json:"sources"`
	ErrorCode            string               `json:"error_code,omitempty"`
	RequiresConfirmation bool                 `json:"requires_confirmation,omitempty"`
	RequestID            string               `json:"request_id,omitempty"`
	Summary              string               `json:"summary,omitempty"`
	Classification       IntentClassification `json:"classification"`
	Data                 any                  `json:"data,omitempty"`
}
