package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIModel runs conversation turns against the OpenAI chat completions
// API with function calling.
type OpenAIModel struct {
	client      openai.Client
	model       openai.ChatModel
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// OpenAIConfig configures an OpenAIModel
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // optional, for compatible endpoints
}

// NewOpenAIModel creates an OpenAI-backed chat model
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIModel{
		client:      openai.NewClient(opts...),
		model:       openai.ChatModel(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      slog.Default().With("component", "openai", "model", cfg.Model),
	}, nil
}

// Name returns the provider name
func (m *OpenAIModel) Name() string { return "openai" }

// Chat runs one turn. Tool calls are executed sequentially through exec and
// fed back until the model produces a plain reply or the round budget runs out.
func (m *OpenAIModel) Chat(ctx context.Context, req Request, exec ToolExecutor) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.System),
	}
	for _, msg := range withBootstrap(req.Messages) {
		switch msg.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       m.model,
		Messages:    messages,
		Temperature: openai.Float(m.temperature),
		MaxTokens:   openai.Int(int64(m.maxTokens)),
	}
	if len(req.Tools) > 0 {
		params.Tools = m.toolDefinitions(req.Tools)
	}
	if req.JSONOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp := &Response{}
	for round := 0; ; round++ {
		completion, err := m.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai completion failed at round %d: %w", round, err)
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("openai returned no choices at round %d", round)
		}

		choice := completion.Choices[0]
		resp.TokensUsed += int(completion.Usage.TotalTokens)

		toolCalls := choice.Message.ToolCalls
		if len(toolCalls) == 0 {
			resp.Content = choice.Message.Content
			m.logger.Debug("openai turn complete",
				"rounds", resp.ToolRounds,
				"response_length", len(resp.Content),
				"tokens_used", resp.TokensUsed,
			)
			return resp, nil
		}

		if round >= req.MaxToolRounds {
			m.logger.Warn("tool round budget exhausted", "max_tool_rounds", req.MaxToolRounds)
			resp.ToolBudgetExhausted = true
			return resp, nil
		}

		// The assistant message carrying the tool calls must precede the tool results
		params.Messages = append(params.Messages, choice.Message.ToParam())

		for _, toolCall := range toolCalls {
			call := ToolCall{
				ID:        toolCall.ID,
				Name:      toolCall.Function.Name,
				Arguments: []byte(toolCall.Function.Arguments),
			}
			outcome := runTool(ctx, exec, call)
			resp.ToolCalls = append(resp.ToolCalls, call)
			if outcome.Note != "" {
				resp.ToolNotes = append(resp.ToolNotes, outcome.Note)
			}
			params.Messages = append(params.Messages, openai.ToolMessage(outcome.Content, toolCall.ID))
		}
		resp.ToolRounds++
	}
}

func (m *OpenAIModel) toolDefinitions(specs []ToolSpec) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  openai.FunctionParameters(spec.Parameters),
		}))
	}
	return tools
}
