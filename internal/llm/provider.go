package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Defaults for each mode.
const (
	DefaultOllamaURL  = "http://localhost:11434"
	DefaultLocalModel = "llama3.2"
	DefaultCloudModel = "gpt-4o-mini"
	DefaultMaxTokens  = 1024

	// cloudRequestsPerSecond is about 50 requests per minute.
	cloudRequestsPerSecond = 50.0 / 60.0
)

// New creates the Client for cfg.Mode.
func New(cfg Config, logger *zap.Logger) (Client, error) {
	switch cfg.Mode {
	case "local", "":
		return NewLocalClient(cfg, logger)
	case "cloud":
		return NewCloudClient(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, cfg.Mode)
	}
}

func applyDefaults(cfg *Config, model string) {
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
}

// NewLocalClient creates a Client backed by an Ollama server.
func NewLocalClient(cfg Config, logger *zap.Logger) (*LangChainClient, error) {
	applyDefaults(&cfg, DefaultLocalModel)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	return newLangChainClient(llm, cfg, logger), nil
}

// NewCloudClient creates a Client backed by the OpenAI API.
// The local default model is replaced with DefaultCloudModel.
func NewCloudClient(cfg Config, logger *zap.Logger) (*LangChainClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key required", ErrInvalidConfig)
	}
	if cfg.Model == DefaultLocalModel {
		cfg.Model = ""
	}
	applyDefaults(&cfg, DefaultCloudModel)
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = cloudRequestsPerSecond
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return newLangChainClient(llm, cfg, logger), nil
}
