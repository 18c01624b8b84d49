package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/models"
)

// Query describes the employer to verify
type Query struct {
	CompanyName       string `json:"companyName" validate:"required"`
	CompanyWebsite    string `json:"companyWebsite,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Searcher answers whether an employer looks legitimate from public web sources
type Searcher interface {
	Search(ctx context.Context, q Query) (*models.AISearchResult, error)
}

// SearchConfig configures the AI web search provider
type SearchConfig struct {
	APIKey           string
	Model            string
	BaseURL          string
	Jurisdiction     string
	ExcludedIndustry string
	Timeout          time.Duration
}

var searchPrompt = template.Must(template.New("search").Parse(
	`You help a licensed securities broker in {{.Jurisdiction}} check the employer an applicant declared on a trading account application.
Your only job is to decide whether that employer is a legitimate business entity.

Rely on trustworthy public sources, for example:
- Google and Google Maps
- The company's own website and reputable news coverage
- {{.Jurisdiction}} company registries (in Thailand: the Department of Business Development and DataForThai)
- Stock exchange and securities regulator listings
- International business directories such as Bloomberg, Reuters, Crunchbase and LinkedIn company pages

Rules:
- Answer YES only when there is clear and consistent evidence that the company exists as a real, registered business.
- Answer NO when the name is generic or ambiguous and you cannot tell which entity is meant.
- Answer NO when there is strong evidence of a scam, a fake company, or something that is not a business.
- Answer NO when evidence is thin or contradictory. Do not guess.
- A company based outside {{.Jurisdiction}} must plausibly operate in {{.Jurisdiction}}. A small local shop abroad is NO; an international software firm with regional offices is YES.
- Any company in the {{.ExcludedIndustry}} industry is always NO. This is a regulatory requirement.

Reply with a single JSON object with exactly these fields:
{
  "result": "YES or NO, uppercase",
  "explanation": "a short reason for the decision that cites the evidence",
  "closest_company_name": "the best matching company name you found, or null",
  "closest_company_website": "the main website of that company, or null"
}`))

var searchSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "result": {"type": "string", "enum": ["YES", "NO"]},
    "explanation": {"type": "string"},
    "closest_company_name": {"type": ["string", "null"]},
    "closest_company_website": {"type": ["string", "null"]}
  },
  "required": ["result", "explanation"],
  "additionalProperties": false
}`)

// PerplexitySearch queries an OpenAI-compatible search model (Perplexity sonar)
type PerplexitySearch struct {
	client  *openai.Client
	model   string
	system  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPerplexitySearch creates the AI search client
func NewPerplexitySearch(cfg SearchConfig) (*PerplexitySearch, error) {
	if cfg.APIKey == "" {
		return nil, errors.ConfigError("PERPLEXITY_API_KEY is not set")
	}
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Jurisdiction == "" {
		cfg.Jurisdiction = "Thailand"
	}
	if cfg.ExcludedIndustry == "" {
		cfg.ExcludedIndustry = "securities/brokerage"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	var prompt bytes.Buffer
	if err := searchPrompt.Execute(&prompt, cfg); err != nil {
		return nil, errors.InternalErrorf("failed to render search prompt: %v", err)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &PerplexitySearch{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		system:  prompt.String(),
		timeout: cfg.Timeout,
		logger:  slog.Default().With("component", "ai_search", "model", cfg.Model),
	}, nil
}

// Search asks the provider about q. Provider failures and unparseable
// answers are returned as errors; the caller decides how to degrade.
func (p *PerplexitySearch) Search(ctx context.Context, q Query) (*models.AISearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.system},
			{Role: openai.ChatMessageRoleUser, Content: searchMessage(q)},
		},
		MaxTokens: 256,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "employer_verification",
				Schema: searchSchema,
			},
		},
	})
	if err != nil {
		return nil, errors.NetworkError(err, "ai search request failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.ExternalError(fmt.Errorf("no choices"), "ai search returned no answer")
	}

	result, err := ParseSearchAnswer(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	p.logger.Info("ai search complete",
		"company", q.CompanyName,
		"result", result.Result,
		"closest_company", result.ClosestCompanyName,
		"tokens_used", resp.Usage.TotalTokens,
	)
	return result, nil
}

// searchMessage renders the user turn, omitting empty optional lines
func searchMessage(q Query) string {
	lines := []string{fmt.Sprintf("Company name: %q.", q.CompanyName)}
	if q.CompanyWebsite != "" {
		lines = append(lines, fmt.Sprintf("Their website is: %s.", q.CompanyWebsite))
	}
	if q.AdditionalContext != "" {
		lines = append(lines, fmt.Sprintf("Additional context: %s.", q.AdditionalContext))
	}
	return strings.Join(lines, "\n")
}

// ParseSearchAnswer decodes the provider's JSON answer. The result must be
// YES or NO; anything else is a malformed answer.
func ParseSearchAnswer(content string) (*models.AISearchResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result models.AISearchResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return nil, errors.ExternalError(err, "ai search answer is not valid JSON")
	}
	result.Result = strings.ToUpper(strings.TrimSpace(result.Result))
	if result.Result != "YES" && result.Result != "NO" {
		return nil, errors.New(errors.ErrorTypeExternal, errors.SeverityMedium,
			fmt.Sprintf("ai search answer has unexpected result %q", result.Result))
	}
	return &result, nil
}
