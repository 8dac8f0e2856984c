// Package llm generates answers from a question and retrieved context using
// a local Ollama model or the OpenAI API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("localrag.llm")

var (
	// ErrGenerationFailed wraps failures reported by the model provider.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrInvalidConfig indicates a missing or invalid client setting.
	ErrInvalidConfig = errors.New("invalid llm configuration")
)

// Client answers a question using only the supplied context.
type Client interface {
	Generate(ctx context.Context, question, context string) (string, error)
	Model() string
}

// Config configures a Client.
type Config struct {
	// Mode is "local" (Ollama) or "cloud" (OpenAI).
	Mode        string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int

	// RequestsPerSecond throttles requests when positive.
	RequestsPerSecond float64
}

// LangChainClient implements Client on any langchaingo chat model.
type LangChainClient struct {
	llm         llms.Model
	model       string
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

func newLangChainClient(llm llms.Model, cfg Config, logger *zap.Logger) *LangChainClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &LangChainClient{
		llm:         llm,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Model returns the model name answers are generated with.
func (c *LangChainClient) Model() string {
	return c.model
}

// Generate sends the system prompt and the formatted question/context and
// returns the model's text.
func (c *LangChainClient) Generate(ctx context.Context, question, contextText string) (string, error) {
	ctx, span := tracer.Start(ctx, "LangChainClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", c.model),
		attribute.Int("context_length", len(contextText)),
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, SystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, UserPrompt(question, contextText)),
	}

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithModel(c.model),
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		err := fmt.Errorf("%w: empty response from %s", ErrGenerationFailed, c.model)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)
	c.logger.Debug("answer generated",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("answer_length", len(answer)),
	)
	span.SetStatus(codes.Ok, "success")
	return answer, nil
}

var _ Client = (*LangChainClient)(nil)
