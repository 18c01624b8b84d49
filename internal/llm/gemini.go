package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// GeminiModel runs conversation turns against Gemini with function calling
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// GeminiConfig configures a GeminiModel
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // optional, overrides the API endpoint
}

// NewGeminiModel creates a Gemini API client
func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger := slog.Default().With("component", "gemini", "model", cfg.Model)
	logger.Info("gemini client initialized")

	return &GeminiModel{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

// Name returns the provider name
func (m *GeminiModel) Name() string { return "gemini" }

// Chat runs one turn, looping over function calls until the model answers
// in text or the round budget runs out.
func (m *GeminiModel) Chat(ctx context.Context, req Request, exec ToolExecutor) (*Response, error) {
	history := make([]*genai.Content, 0, len(req.Messages)+1)
	for _, msg := range withBootstrap(req.Messages) {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     ptrFloat32(m.temperature),
		MaxOutputTokens: int32(m.maxTokens),
	}
	if req.System != "" {
		genConfig.SystemInstruction = genai.Text(req.System)[0]
	}
	if len(req.Tools) > 0 {
		genConfig.Tools = geminiTools(req.Tools)
	} else if req.JSONOutput {
		// Gemini rejects JSON mode combined with function calling
		genConfig.ResponseMIMEType = "application/json"
	}

	resp := &Response{}
	for round := 0; ; round++ {
		result, err := m.client.Models.GenerateContent(ctx, m.model, history, genConfig)
		if err != nil {
			return nil, fmt.Errorf("gemini request failed at round %d: %w", round, err)
		}
		if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
			return nil, fmt.Errorf("no response from gemini at round %d", round)
		}
		if result.UsageMetadata != nil {
			resp.TokensUsed += int(result.UsageMetadata.TotalTokenCount)
		}

		candidate := result.Candidates[0]
		var calls []*genai.FunctionCall
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				calls = append(calls, part.FunctionCall)
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}

		if len(calls) == 0 {
			resp.Content = text.String()
			m.logger.Debug("gemini turn complete",
				"rounds", resp.ToolRounds,
				"response_length", len(resp.Content),
			)
			return resp, nil
		}

		if round >= req.MaxToolRounds {
			m.logger.Warn("tool round budget exhausted", "max_tool_rounds", req.MaxToolRounds)
			resp.ToolBudgetExhausted = true
			return resp, nil
		}

		history = append(history, candidate.Content)

		parts := make([]*genai.Part, 0, len(calls))
		for i, fc := range calls {
			call, err := geminiToolCall(fc, round, i)
			var outcome ToolOutcome
			if err != nil {
				m.logger.Warn("unusable function call arguments", "tool", fc.Name, "error", err)
				outcome = invalidArguments(call, err)
			} else {
				outcome = runTool(ctx, exec, call)
			}
			resp.ToolCalls = append(resp.ToolCalls, call)
			if outcome.Note != "" {
				resp.ToolNotes = append(resp.ToolNotes, outcome.Note)
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     fc.Name,
					Response: map[string]any{"result": outcome.Content},
				},
			})
		}
		history = append(history, &genai.Content{Role: "user", Parts: parts})
		resp.ToolRounds++
	}
}

// geminiToolCall converts a function call. The call keeps its id and name
// when its arguments cannot be encoded.
func geminiToolCall(fc *genai.FunctionCall, round, i int) (ToolCall, error) {
	call := ToolCall{
		ID:   fmt.Sprintf("%s-%d-%d", fc.Name, round, i),
		Name: fc.Name,
	}
	if fc.ID != "" {
		call.ID = fc.ID
	}
	args, err := json.Marshal(fc.Args)
	if err != nil {
		return call, fmt.Errorf("encode arguments of %s: %w", fc.Name, err)
	}
	call.Arguments = args
	return call, nil
}

func geminiTools(specs []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  toGeminiSchema(spec.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGeminiSchema converts a JSON Schema document into Gemini's schema type.
// Only the subset used by tool declarations is supported.
func toGeminiSchema(doc map[string]any) *genai.Schema {
	if doc == nil {
		return nil
	}
	schema := &genai.Schema{}

	switch t := doc["type"].(type) {
	case string:
		schema.Type = genai.Type(strings.ToUpper(t))
	case []any:
		for _, v := range t {
			s, _ := v.(string)
			if s == "null" {
				schema.Nullable = ptrBool(true)
				continue
			}
			if s != "" && schema.Type == "" {
				schema.Type = genai.Type(strings.ToUpper(s))
			}
		}
	}
	if desc, ok := doc["description"].(string); ok {
		schema.Description = desc
	}
	schema.Enum = stringList(doc["enum"])
	schema.Required = stringList(doc["required"])

	if props, ok := doc["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(sub)
			}
		}
	}
	if items, ok := doc["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}
	return schema
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func ptrFloat32(f float64) *float32 {
	f32 := float32(f)
	return &f32
}

func ptrBool(b bool) *bool {
	return &b
}
