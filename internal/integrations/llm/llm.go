// Package llm turns raw venue text into candidate field values with
// per-field confidences.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"venuefinds/internal/config"
	"venuefinds/internal/domain"
	"venuefinds/internal/httpx"
	"venuefinds/internal/logging"
	"venuefinds/internal/schema"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultGeminiModel    = "gemini-2.5-flash"
)

var ErrEmptyRawText = errors.New("raw text is empty")

type Request struct {
	EntityName string
	EntityType string
	RawText    string
}

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

type Extraction struct {
	Candidate domain.Candidate
	// Dropped lists response keys that were not usable: unknown fields and
	// nulls the model did not stand behind.
	Dropped  []string
	Usage    Usage
	Provider string
	Model    string
}

type Extractor interface {
	Extract(ctx context.Context, req Request) (Extraction, error)
}

// completer is one provider's chat call.
type completer interface {
	complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)
	provider() string
	modelName() string
}

type extractor struct {
	c       completer
	prompts *Prompts
	logger  *zap.Logger
}

func newExtractor(c completer, prompts *Prompts, logger *zap.Logger) *extractor {
	return &extractor{c: c, prompts: prompts, logger: logging.OrNop(logger)}
}

// NewExtractor builds the extractor of the configured provider.
func NewExtractor(cfg config.Config, logger *zap.Logger) (Extractor, error) {
	prompts, err := LoadPrompts(cfg.LLMPromptsPath)
	if err != nil {
		return nil, err
	}
	httpClient := httpx.ExternalHTTPClient()
	var c completer
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		c = newAnthropicCompleter(cfg.AnthropicAPIKey, orDefault(cfg.LLMModel, defaultAnthropicModel), cfg.LLMMaxTokens, "", httpClient)
	case config.ProviderOpenAI:
		c = newOpenAICompleter(cfg.OpenAIAPIKey, orDefault(cfg.LLMModel, defaultOpenAIModel), cfg.LLMMaxTokens, cfg.OpenAIBaseURL, httpClient)
	case config.ProviderGemini:
		c, err = newGeminiCompleter(context.Background(), cfg.GeminiAPIKey, orDefault(cfg.LLMModel, defaultGeminiModel), cfg.LLMMaxTokens, "", httpClient)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
	return newExtractor(c, prompts, logger), nil
}

func (e *extractor) Extract(ctx context.Context, req Request) (Extraction, error) {
	if strings.TrimSpace(req.RawText) == "" {
		return Extraction{}, ErrEmptyRawText
	}
	reg, err := schema.For(req.EntityType)
	if err != nil {
		return Extraction{}, err
	}
	systemPrompt, userPrompt, err := e.prompts.Render(e.c.provider(), reg, req)
	if err != nil {
		return Extraction{}, err
	}

	e.logger.Info("llm extract",
		zap.String("provider", e.c.provider()),
		zap.String("model", e.c.modelName()),
		zap.String("entity_name", req.EntityName),
		zap.String("entity_type", reg.EntityType()),
		zap.Int("raw_chars", len(req.RawText)),
	)
	text, usage, err := e.c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		e.logger.Error("llm call failed", zap.String("provider", e.c.provider()), zap.Error(err))
		return Extraction{}, err
	}
	e.logger.Debug("llm response",
		zap.Int("size", len(text)),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens),
		zap.Int64("cache_create", usage.CacheCreationInputTokens),
		zap.Int64("cache_read", usage.CacheReadInputTokens),
	)

	candidate, dropped, err := parseExtractionResponse(text, reg)
	if err != nil {
		return Extraction{}, err
	}
	if len(dropped) > 0 {
		e.logger.Debug("llm response keys dropped", zap.Strings("keys", dropped))
	}
	return Extraction{
		Candidate: candidate,
		Dropped:   dropped,
		Usage:     usage,
		Provider:  e.c.provider(),
		Model:     e.c.modelName(),
	}, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func httpClientOrDefault(c *http.Client) *http.Client {
	if c == nil {
		return httpx.ExternalHTTPClient()
	}
	return c
}
