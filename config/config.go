package config

import "time"

// Config represents the main configuration structure for the query pipeline.
type Config struct {
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	ExactMatch ExactMatchConfig `json:"exact_match" yaml:"exact_match" split_words:"true"`
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Knowledge  KnowledgeConfig  `json:"knowledge" yaml:"knowledge"`
	Farm       FarmConfig       `json:"farm" yaml:"farm"`
	Session    SessionConfig    `json:"session" yaml:"session"`
	Lexicon    LexiconConfig    `json:"lexicon" yaml:"lexicon"`
	HTTP       HTTPClientConfig `json:"http" yaml:"http"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// PipelineConfig holds the orchestrator gates.
type PipelineConfig struct {
	// ExactMatchThreshold is the single Layer 1 threshold: it decides both
	// Layer 1's found flag and the orchestrator's accept gate.
	ExactMatchThreshold    float64       `json:"exact_match_threshold" yaml:"exact_match_threshold" split_words:"true"`
	RAGConfidenceThreshold float64       `json:"rag_confidence_threshold" yaml:"rag_confidence_threshold" split_words:"true"`
	UseHybrid              bool          `json:"use_hybrid" yaml:"use_hybrid" split_words:"true"`
	UseExpansion           bool          `json:"use_expansion" yaml:"use_expansion" split_words:"true"`
	StageTimeouts          StageTimeouts `json:"stage_timeouts" yaml:"stage_timeouts" split_words:"true"`
}

// StageTimeouts bounds each suspension point of a single query.
type StageTimeouts struct {
	ClassifyMs   int `json:"classify_ms" yaml:"classify_ms" split_words:"true"`
	ExactMatchMs int `json:"exact_match_ms" yaml:"exact_match_ms" split_words:"true"`
	RetrievalMs  int `json:"retrieval_ms" yaml:"retrieval_ms" split_words:"true"`
	GenerationMs int `json:"generation_ms" yaml:"generation_ms" split_words:"true"`
	ActionMs     int `json:"action_ms" yaml:"action_ms" split_words:"true"`
}

// ClassifierConfig selects between the remote ML classifier and the rule engine.
type ClassifierConfig struct {
	Mode             string  `json:"mode" yaml:"mode"` // Available options: rule, remote, hybrid
	Endpoint         string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	MinConfidence    float64 `json:"min_confidence" yaml:"min_confidence" split_words:"true"`
	HealthTTLSeconds int     `json:"health_ttl_seconds" yaml:"health_ttl_seconds" split_words:"true"`
	TimeoutMs        int     `json:"timeout_ms" yaml:"timeout_ms" split_words:"true"`
	TopK             int     `json:"top_k" yaml:"top_k" split_words:"true"`
}

// CacheConfig controls the Layer 1 result cache.
type CacheConfig struct {
	MaxEntries      int         `json:"max_entries" yaml:"max_entries" split_words:"true"`
	TTLFoundSeconds int         `json:"ttl_found_seconds" yaml:"ttl_found_seconds" split_words:"true"`
	TTLMissSeconds  int         `json:"ttl_miss_seconds" yaml:"ttl_miss_seconds" split_words:"true"`
	JanitorSeconds  int         `json:"janitor_seconds" yaml:"janitor_seconds" split_words:"true"`
	Redis           RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig is empty (URL == "") when Redis is not used.
type RedisConfig struct {
	URL            string `json:"url,omitempty" yaml:"url,omitempty"`
	Prefix         string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Channel        string `json:"channel,omitempty" yaml:"channel,omitempty"`
	ReadTimeoutMs  int    `json:"read_timeout_ms,omitempty" yaml:"read_timeout_ms,omitempty" split_words:"true"`
	WriteTimeoutMs int    `json:"write_timeout_ms,omitempty" yaml:"write_timeout_ms,omitempty" split_words:"true"`
	DialTimeoutMs  int    `json:"dial_timeout_ms,omitempty" yaml:"dial_timeout_ms,omitempty" split_words:"true"`
}

// Enabled reports whether a Redis URL is configured.
func (r RedisConfig) Enabled() bool { return r.URL != "" }

// ExactMatchConfig tunes the Layer 1 full-text query.
type ExactMatchConfig struct {
	Limit   int     `json:"limit" yaml:"limit"`
	MinRank float64 `json:"min_rank" yaml:"min_rank" split_words:"true"`
}

// RetrievalConfig tunes Layer 2.
type RetrievalConfig struct {
	TopK             int     `json:"top_k" yaml:"top_k" split_words:"true"`
	VectorWeight     float64 `json:"vector_weight" yaml:"vector_weight" split_words:"true"`
	LexicalWeight    float64 `json:"lexical_weight" yaml:"lexical_weight" split_words:"true"`
	Fusion           string  `json:"fusion" yaml:"fusion"` // Available options: weighted, rrf
	RRFK             int     `json:"rrf_k" yaml:"rrf_k" split_words:"true"`
	MinAvgSimilarity float64 `json:"min_avg_similarity" yaml:"min_avg_similarity" split_words:"true"`
	MaxContextTokens int     `json:"max_context_tokens" yaml:"max_context_tokens" split_words:"true"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	Encoding         string  `json:"encoding" yaml:"encoding"`
}

// LLMConfig defines configuration for the generation backend
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // Available options: openai, gemini
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key" split_words:"true"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty" split_words:"true"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" split_words:"true"`
}

// EmbeddingConfig defines configuration for embedding models
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: openai, http, hash
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty" split_words:"true"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty" split_words:"true"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// KnowledgeConfig selects the knowledge index backends.
type KnowledgeConfig struct {
	FTS        string        `json:"fts" yaml:"fts"`       // Available options: sqlite, elasticsearch, memory
	Vector     string        `json:"vector" yaml:"vector"` // Available options: sqlite, milvus, memory
	SQLitePath string        `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty" split_words:"true"`
	Elastic    ElasticConfig `json:"elastic" yaml:"elastic"`
	Milvus     MilvusConfig  `json:"milvus" yaml:"milvus"`
}

// ElasticConfig points at an Elasticsearch index of knowledge chunks.
type ElasticConfig struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Index    string `json:"index,omitempty" yaml:"index,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// MilvusConfig points at a Milvus collection of chunk embeddings.
type MilvusConfig struct {
	Address     string `json:"address,omitempty" yaml:"address,omitempty"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	Database    string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection  string `json:"collection,omitempty" yaml:"collection,omitempty"`
	VectorField string `json:"vector_field,omitempty" yaml:"vector_field,omitempty" split_words:"true"`
}

// FarmConfig wires the business-data store and the device command channel.
type FarmConfig struct {
	SQLitePath string      `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty" split_words:"true"`
	Redis      RedisConfig `json:"redis" yaml:"redis"`
	// ExplainData asks the generation backend to phrase business data
	// results instead of returning the templated message.
	ExplainData bool `json:"explain_data" yaml:"explain_data" split_words:"true"`
}

// SessionConfig controls the per-conversation turn log.
type SessionConfig struct {
	Store      string      `json:"store" yaml:"store"` // Available options: memory, redis
	MaxTurns   int         `json:"max_turns" yaml:"max_turns" split_words:"true"`
	TTLSeconds int         `json:"ttl_seconds" yaml:"ttl_seconds" split_words:"true"`
	Redis      RedisConfig `json:"redis" yaml:"redis"`
}

// LexiconConfig points at an external linguistic data file. Empty uses the embedded default.
type LexiconConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ServerConfig configures the MCP server and the metrics listener.
type ServerConfig struct {
	Name        string `json:"name" yaml:"name"`
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty" split_words:"true"`
}

// LogConfig configures the logger backend.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Production bool   `json:"production" yaml:"production"`
}

// HTTPClientConfig defines common options for outbound HTTP calls.
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty" split_words:"true"`
	Retry                  int      `json:"retry,omitempty" yaml:"retry,omitempty"`
	BackoffMinMs           int      `json:"backoff_min_ms,omitempty" yaml:"backoff_min_ms,omitempty" split_words:"true"`
	BackoffMaxMs           int      `json:"backoff_max_ms,omitempty" yaml:"backoff_max_ms,omitempty" split_words:"true"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty" split_words:"true"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty" split_words:"true"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty" split_words:"true"`
}

// Default returns the full default configuration tree.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			ExactMatchThreshold:    0.9,
			RAGConfidenceThreshold: 0.7,
			UseHybrid:              true,
			UseExpansion:           true,
			StageTimeouts: StageTimeouts{
				ClassifyMs:   10000,
				ExactMatchMs: 5000,
				RetrievalMs:  30000,
				GenerationMs: 30000,
				ActionMs:     15000,
			},
		},
		Classifier: ClassifierConfig{
			Mode:             "rule",
			MinConfidence:    0.7,
			HealthTTLSeconds: 30,
			TimeoutMs:        10000,
			TopK:             3,
		},
		Cache: CacheConfig{
			MaxEntries:      1000,
			TTLFoundSeconds: 3600,
			TTLMissSeconds:  1800,
			JanitorSeconds:  300,
			Redis:           RedisConfig{Prefix: "agriquery:search:"},
		},
		ExactMatch: ExactMatchConfig{Limit: 10, MinRank: 0.01},
		Retrieval: RetrievalConfig{
			TopK:             5,
			VectorWeight:     0.7,
			LexicalWeight:    0.3,
			Fusion:           "weighted",
			RRFK:             60,
			MinAvgSimilarity: 0.45,
			MaxContextTokens: 3000,
			Temperature:      0.3,
			Encoding:         "cl100k_base",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Embedding: EmbeddingConfig{Provider: "hash", Dimensions: 768},
		Knowledge: KnowledgeConfig{
			FTS:        "sqlite",
			Vector:     "sqlite",
			SQLitePath: "agriquery.db",
			Milvus:     MilvusConfig{VectorField: "embedding"},
		},
		Farm: FarmConfig{
			SQLitePath:  "agriquery.db",
			Redis:       RedisConfig{Channel: "agriquery:device-commands"},
			ExplainData: true,
		},
		Session: SessionConfig{
			Store:      "memory",
			MaxTurns:   50,
			TTLSeconds: 86400,
			Redis:      RedisConfig{Prefix: "agriquery:conv:"},
		},
		HTTP: HTTPClientConfig{
			TimeoutMs:              1200,
			Retry:                  1,
			BackoffMinMs:           100,
			BackoffMaxMs:           800,
			MaxConsecutiveFailures: 5,
			CircuitOpenSeconds:     5,
		},
		Server: ServerConfig{Name: "agriquery", MetricsAddr: ":9090"},
		Log:    LogConfig{Level: "info"},
	}
}

// Millis converts a millisecond setting to a duration, falling back to def when unset.
func Millis(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// Seconds converts a second setting to a duration, falling back to def when unset.
func Seconds(s int, def time.Duration) time.Duration {
	if s <= 0 {
		return def
	}
	return time.Duration(s) * time.Second
}
