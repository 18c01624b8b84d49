package resolution

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/llm"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/tools"
)

// Context is everything a model needs to hold one flag's conversation
type Context struct {
	System string
	Tools  []llm.ToolSpec
	// DefaultField is the field an escalated justification is recorded on
	DefaultField string
}

// ContextBuilder turns a red flag and application into a Context
type ContextBuilder struct {
	registry *tools.Registry
	logger   *slog.Logger
}

// NewContextBuilder creates a builder. A nil registry offers no tools.
func NewContextBuilder(registry *tools.Registry) *ContextBuilder {
	return &ContextBuilder{
		registry: registry,
		logger:   slog.Default().With("component", "context_builder"),
	}
}

type affectedValue struct {
	Name  string
	Value string
}

type systemData struct {
	Rule           models.RuleID
	Message        string
	AffectedFields []string
	Affected       []affectedValue
	Findings       string
	Application    string
	Guidance       string
	Tools          []string
}

// Build renders the system prompt for flag over app and selects the
// rule's tools.
func (b *ContextBuilder) Build(flag models.RedFlag, app *models.ApplicationSnapshot) (*Context, error) {
	if len(flag.AffectedFields) == 0 {
		return nil, errors.ValidationErrorf("red flag %s has no affected fields", flag.Rule)
	}
	lib, err := prompts()
	if err != nil {
		return nil, errors.InternalErrorf("load prompts: %v", err)
	}
	rp := lib.forRule(flag.Rule)

	var specs []llm.ToolSpec
	if b.registry != nil {
		specs = b.registry.Specs(flag.Rule)
	}

	data := systemData{
		Rule:           flag.Rule,
		Message:        flag.Message,
		AffectedFields: flag.AffectedFields,
		Application:    app.Context(flag.AffectedFields),
		Guidance:       rp.Guidance,
	}
	for _, f := range flag.AffectedFields {
		data.Affected = append(data.Affected, affectedValue{Name: f, Value: app.String(f)})
	}
	if flag.DebugInfo != nil {
		data.Findings = flag.DebugInfo.Summary()
	}
	for _, s := range specs {
		data.Tools = append(data.Tools, s.Name)
	}

	var buf bytes.Buffer
	if err := lib.system.Execute(&buf, data); err != nil {
		return nil, errors.InternalErrorf("render system prompt for %s: %v", flag.Rule, err)
	}

	defaultField := rp.DefaultField
	if defaultField == "" || !flag.Affects(defaultField) {
		defaultField = flag.AffectedFields[0]
	}

	b.logger.Debug("context built",
		"rule", flag.Rule,
		"prompt_chars", buf.Len(),
		"tools", len(specs),
	)
	return &Context{System: buf.String(), Tools: specs, DefaultField: defaultField}, nil
}

// PreScreeningOpening is the fixed first question of pre-screening
func PreScreeningOpening() (string, error) {
	lib, err := prompts()
	if err != nil {
		return "", fmt.Errorf("load prompts: %w", err)
	}
	return lib.preScreening.OpeningQuestion, nil
}
