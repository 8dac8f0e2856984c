// Package config provides configuration loading for localrag.
//
// Settings are flat keys read from built-in defaults, an optional YAML file
// and LOCALRAG_-prefixed environment variables, in increasing precedence.
// A loaded Config is validated once and treated as read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a setting is missing or out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Modes select which model backends are used.
const (
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// Vector store providers.
const (
	StoreChromem = "chromem"
	StoreQdrant  = "qdrant"
)

// Default model names.
const (
	DefaultLocalLLMModel   = "llama3.2"
	DefaultCloudLLMModel   = "gpt-4o-mini"
	DefaultLocalEmbedModel = "nomic-embed-text"
	DefaultCloudEmbedModel = "text-embedding-3-small"
)

// Config holds the complete localrag configuration.
type Config struct {
	// Mode is "local" (Ollama) or "cloud" (OpenAI).
	Mode string `koanf:"mode"`

	LLMModel    string  `koanf:"llm_model"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`

	EmbedModel string `koanf:"embed_model"`

	// EmbeddingProvider overrides the provider implied by Mode:
	// "ollama", "fastembed" or "openai".
	EmbeddingProvider  string  `koanf:"embedding_provider"`
	EmbeddingBatchSize int     `koanf:"embedding_batch_size"`
	EmbeddingRPS       float64 `koanf:"embedding_requests_per_second"`
	EmbeddingCacheDir  string  `koanf:"embedding_cache_dir"`
	OpenAIAPIKey       Secret  `koanf:"openai_api_key"`
	OpenAIBaseURL      string  `koanf:"openai_base_url"`
	OllamaBaseURL      string  `koanf:"ollama_base_url"`

	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`

	TopK            int     `koanf:"top_k"`
	ScoreThreshold  float64 `koanf:"score_threshold"`
	UseHybridSearch bool    `koanf:"use_hybrid_search"`

	VectorStore    string `koanf:"vector_store"`
	VectorPath     string `koanf:"vector_path"`
	UploadPath     string `koanf:"upload_path"`
	CollectionName string `koanf:"collection_name"`
	QdrantHost     string `koanf:"qdrant_host"`
	QdrantPort     int    `koanf:"qdrant_port"`
	QdrantUseTLS   bool   `koanf:"qdrant_use_tls"`

	APIHost         string        `koanf:"api_host"`
	APIPort         int           `koanf:"api_port"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	MaxUploadSize   int64         `koanf:"max_upload_size"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	WatchDebounce time.Duration `koanf:"watch_debounce"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// Telemetry exports traces and metrics over OTLP when enabled.
	TelemetryEnabled        bool          `koanf:"telemetry_enabled"`
	TelemetryEndpoint       string        `koanf:"telemetry_endpoint"`
	TelemetryProtocol       string        `koanf:"telemetry_protocol"`
	TelemetryInsecure       bool          `koanf:"telemetry_insecure"`
	TelemetrySampleRate     float64       `koanf:"telemetry_sample_rate"`
	TelemetryExportInterval time.Duration `koanf:"telemetry_export_interval"`
}

// EffectiveLLMModel returns the chat model to use. Cloud mode replaces the
// local default with the cloud default.
func (c *Config) EffectiveLLMModel() string {
	if c.Mode == ModeCloud && (c.LLMModel == "" || c.LLMModel == DefaultLocalLLMModel) {
		return DefaultCloudLLMModel
	}
	return c.LLMModel
}

// EffectiveEmbedModel returns the embedding model to use.
func (c *Config) EffectiveEmbedModel() string {
	if c.EffectiveEmbeddingProvider() == "openai" && (c.EmbedModel == "" || c.EmbedModel == DefaultLocalEmbedModel) {
		return DefaultCloudEmbedModel
	}
	return c.EmbedModel
}

// EffectiveEmbeddingProvider returns the embedding provider, derived from
// Mode when not set explicitly.
func (c *Config) EffectiveEmbeddingProvider() string {
	if c.EmbeddingProvider != "" {
		return c.EmbeddingProvider
	}
	if c.Mode == ModeCloud {
		return "openai"
	}
	return "ollama"
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeLocal, ModeCloud:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeLocal, ModeCloud, c.Mode))
	}

	switch c.EffectiveEmbeddingProvider() {
	case "ollama", "fastembed":
	case "openai":
		if !c.OpenAIAPIKey.IsSet() {
			errs = append(errs, errors.New("openai_api_key is required for openai embeddings"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding_provider %q", c.EmbeddingProvider))
	}

	if c.Mode == ModeCloud && !c.OpenAIAPIKey.IsSet() {
		errs = append(errs, errors.New("openai_api_key is required in cloud mode"))
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", c.TopK))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be in [0, 2], got %g", c.Temperature))
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("score_threshold must be in [0, 1], got %g", c.ScoreThreshold))
	}

	switch c.VectorStore {
	case StoreChromem:
		if c.VectorPath == "" {
			errs = append(errs, errors.New("vector_path is required for chromem"))
		}
	case StoreQdrant:
		if c.QdrantHost == "" {
			errs = append(errs, errors.New("qdrant_host is required for qdrant"))
		}
		if !validPort(c.QdrantPort) {
			errs = append(errs, fmt.Errorf("invalid qdrant_port: %d", c.QdrantPort))
		}
	default:
		errs = append(errs, fmt.Errorf("vector_store must be %q or %q, got %q", StoreChromem, StoreQdrant, c.VectorStore))
	}

	if c.CollectionName == "" {
		errs = append(errs, errors.New("collection_name is required"))
	}
	if !validPort(c.APIPort) {
		errs = append(errs, fmt.Errorf("invalid api_port: %d", c.APIPort))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
