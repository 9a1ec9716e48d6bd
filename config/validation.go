package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Message))
	}
	return b.String()
}

// Fields lists the offending field paths, in order.
func (errs ValidationErrors) Fields() []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	var errs ValidationErrors
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateClassifier()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateRetrieval()...)
	errs = append(errs, c.validateLLM()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateKnowledge()...)
	errs = append(errs, c.validateSession()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func unitInterval(field string, v float64) *ValidationError {
	if v < 0 || v > 1 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be in [0, 1], got %.2f", field, v),
		}
	}
	return nil
}

func (c *Config) validatePipeline() ValidationErrors {
	var errs ValidationErrors
	if e := unitInterval("pipeline.exact_match_threshold", c.Pipeline.ExactMatchThreshold); e != nil {
		errs = append(errs, *e)
	}
	if e := unitInterval("pipeline.rag_confidence_threshold", c.Pipeline.RAGConfidenceThreshold); e != nil {
		errs = append(errs, *e)
	}
	return errs
}

func (c *Config) validateClassifier() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.Classifier.Mode) {
	case "rule":
	case "remote", "hybrid":
		if c.Classifier.Endpoint == "" {
			errs = append(errs, ValidationError{
				Field:   "classifier.endpoint",
				Message: fmt.Sprintf("classifier endpoint is required for %s mode", c.Classifier.Mode),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "classifier.mode",
			Message: fmt.Sprintf("unsupported classifier mode %q, must be one of rule, remote, hybrid", c.Classifier.Mode),
		})
	}
	if e := unitInterval("classifier.min_confidence", c.Classifier.MinConfidence); e != nil {
		errs = append(errs, *e)
	}
	return errs
}

func (c *Config) validateCache() ValidationErrors {
	var errs ValidationErrors
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.max_entries",
			Message: fmt.Sprintf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries),
		})
	}
	if c.Cache.TTLFoundSeconds <= 0 || c.Cache.TTLMissSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.ttl_found_seconds",
			Message: "cache TTLs must be positive",
		})
	}
	return errs
}

func (c *Config) validateRetrieval() ValidationErrors {
	var errs ValidationErrors
	r := c.Retrieval

	if r.TopK <= 0 || r.TopK > 100 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.top_k",
			Message: fmt.Sprintf("retrieval.top_k must be in [1, 100], got %d", r.TopK),
		})
	}
	if r.VectorWeight < 0 || r.LexicalWeight < 0 || r.VectorWeight+r.LexicalWeight == 0 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.vector_weight",
			Message: "retrieval weights must be non-negative and not both zero",
		})
	}
	switch strings.ToLower(r.Fusion) {
	case "weighted", "rrf":
	default:
		errs = append(errs, ValidationError{
			Field:   "retrieval.fusion",
			Message: fmt.Sprintf("unsupported fusion strategy %q, must be weighted or rrf", r.Fusion),
		})
	}
	if e := unitInterval("retrieval.min_avg_similarity", r.MinAvgSimilarity); e != nil {
		errs = append(errs, *e)
	}
	return errs
}

func (c *Config) validateLLM() ValidationErrors {
	var errs ValidationErrors
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "gemini":
	default:
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unsupported llm provider %q, must be openai or gemini", c.LLM.Provider),
		})
	}
	if c.LLM.Model == "" {
		errs = append(errs, ValidationError{Field: "llm.model", Message: "llm model is required"})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("llm.temperature must be in [0, 2], got %.2f", c.LLM.Temperature),
		})
	}
	return errs
}

// validateEmbedding validates embedding configuration
func (c *Config) validateEmbedding() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.Embedding.Provider) {
	case "hash":
	case "openai":
		if c.Embedding.Model == "" {
			errs = append(errs, ValidationError{
				Field:   "embedding.model",
				Message: "embedding model is required for openai provider",
			})
		}
	case "http":
		if c.Embedding.BaseURL == "" {
			errs = append(errs, ValidationError{
				Field:   "embedding.base_url",
				Message: "embedding base_url is required for http provider",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unsupported embedding provider %q, must be openai, http or hash", c.Embedding.Provider),
		})
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, ValidationError{
			Field:   "embedding.dimensions",
			Message: fmt.Sprintf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions),
		})
	}
	return errs
}

func (c *Config) validateKnowledge() ValidationErrors {
	var errs ValidationErrors
	k := c.Knowledge

	switch strings.ToLower(k.FTS) {
	case "memory":
	case "sqlite":
		if k.SQLitePath == "" {
			errs = append(errs, ValidationError{
				Field:   "knowledge.sqlite_path",
				Message: "database path is required for SQLite provider",
			})
		}
	case "elasticsearch":
		if k.Elastic.URL == "" || k.Elastic.Index == "" {
			errs = append(errs, ValidationError{
				Field:   "knowledge.elastic.url",
				Message: "elasticsearch url and index are required",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "knowledge.fts",
			Message: fmt.Sprintf("unsupported full-text backend %q", k.FTS),
		})
	}

	switch strings.ToLower(k.Vector) {
	case "memory":
	case "sqlite":
		if k.SQLitePath == "" {
			errs = append(errs, ValidationError{
				Field:   "knowledge.sqlite_path",
				Message: "database path is required for SQLite provider",
			})
		}
	case "milvus":
		if k.Milvus.Address == "" || k.Milvus.Collection == "" {
			errs = append(errs, ValidationError{
				Field:   "knowledge.milvus.address",
				Message: "milvus address and collection are required",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "knowledge.vector",
			Message: fmt.Sprintf("unsupported vector backend %q", k.Vector),
		})
	}
	return errs
}

func (c *Config) validateSession() ValidationErrors {
	var errs ValidationErrors
	switch strings.ToLower(c.Session.Store) {
	case "", "memory":
	case "redis":
		if !c.Session.Redis.Enabled() {
			errs = append(errs, ValidationError{
				Field:   "session.redis.url",
				Message: "session.redis.url is required for the redis session store",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "session.store",
			Message: fmt.Sprintf("unsupported session store %q, must be memory or redis", c.Session.Store),
		})
	}
	return errs
}
