package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatform/chatform/internal/config"
	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/metrics"
)

// Provider represents the LLM provider
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// NewChatModel builds the configured provider wrapped with rate limiting and
// metrics. rdb may be nil, in which case no cross-process budget is enforced.
func NewChatModel(ctx context.Context, cfg *config.Config, rdb *redis.Client) (ChatModel, error) {
	logger := slog.Default().With("component", "llm")

	var (
		model ChatModel
		err   error
	)
	switch Provider(cfg.LLM.Provider) {
	case ProviderOpenAI, "":
		if cfg.LLM.OpenAIKey == "" {
			return nil, errors.ConfigError("OPENAI_API_KEY is not set")
		}
		model, err = NewOpenAIModel(OpenAIConfig{
			APIKey:      cfg.LLM.OpenAIKey,
			Model:       cfg.LLM.OpenAIModel,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
	case ProviderGemini:
		if cfg.LLM.GeminiKey == "" {
			return nil, errors.ConfigError("GEMINI_API_KEY is not set")
		}
		model, err = NewGeminiModel(ctx, GeminiConfig{
			APIKey:      cfg.LLM.GeminiKey,
			Model:       cfg.LLM.GeminiModel,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
	default:
		return nil, errors.ConfigErrorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "failed to create chat model")
	}

	var budget *Budget
	if rdb != nil {
		budget = NewBudget(rdb, model.Name())
	}

	logger.Info("chat model initialized",
		"provider", model.Name(),
		"rate_limit", cfg.LLM.RateLimit,
		"shared_budget", budget != nil,
	)
	return Instrument(NewLimited(model, cfg.LLM.RateLimit, budget)), nil
}

// Instrumented records metrics and logs for every turn
type Instrumented struct {
	next   ChatModel
	logger *slog.Logger
}

// Instrument wraps next with metrics
func Instrument(next ChatModel) *Instrumented {
	return &Instrumented{
		next:   next,
		logger: slog.Default().With("component", "llm", "provider", next.Name()),
	}
}

// Name returns the wrapped provider name
func (i *Instrumented) Name() string { return i.next.Name() }

// Chat delegates and records the outcome
func (i *Instrumented) Chat(ctx context.Context, req Request, exec ToolExecutor) (*Response, error) {
	start := time.Now()
	resp, err := i.next.Chat(ctx, req, exec)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		metrics.RecordModelCall(i.next.Name(), "error", elapsed, 0)
		i.logger.Warn("model turn failed", "error", err, "duration", elapsed)
		return nil, fmt.Errorf("%s: %w", i.next.Name(), err)
	case resp.ToolBudgetExhausted:
		metrics.RecordModelCall(i.next.Name(), "tool_budget_exhausted", elapsed, resp.TokensUsed)
	default:
		metrics.RecordModelCall(i.next.Name(), "success", elapsed, resp.TokensUsed)
	}

	i.logger.Debug("model turn",
		"duration", elapsed,
		"tool_rounds", resp.ToolRounds,
		"tokens_used", resp.TokensUsed,
	)
	return resp, nil
}
