// Package tools holds the verification tools a resolution conversation can
// call and the registry that decides which tools a rule may use.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/llm"
	"github.com/chatform/chatform/internal/metrics"
	"github.com/chatform/chatform/internal/models"
)

// Handler is a callable verification tool
type Handler interface {
	Name() string
	Description() string
	// Parameters is the JSON Schema of the argument object
	Parameters() map[string]any
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Summarizer is implemented by tool results that can describe themselves
// in one line for the transcript.
type Summarizer interface {
	Summary() string
}

// Descriptor is what a model is told about a tool
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Result is the outcome of a tool call. It is never persisted beyond the
// turn that produced it.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ruleTools maps a rule to the tools offered in its conversation, in order
var ruleTools = map[models.RuleID][]string{
	models.RuleEmployerVerification: {EmployerToolName},
}

type entry struct {
	handler Handler
	schema  *gojsonschema.Schema
}

// Registry maps tool names to handlers. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		logger:  slog.Default().With("component", "tools"),
	}
}

// Register adds a handler. A name that is already taken is a
// DuplicateToolError. The argument schema is compiled once here.
func (r *Registry) Register(h Handler) error {
	name := h.Name()
	if name == "" {
		return errors.ValidationError("tool name is required")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(h.Parameters()))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityCritical,
			fmt.Sprintf("tool %s has an invalid parameter schema", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return errors.DuplicateToolError(name)
	}
	r.entries[name] = entry{handler: h, schema: schema}
	r.logger.Debug("tool registered", "tool", name)
	return nil
}

// MustRegister is Register for startup wiring; it panics on error
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Names returns the registered tool names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the descriptor of a registered tool
func (r *Registry) Describe(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Descriptor{}, false
	}
	return Descriptor{Name: name, Description: e.handler.Description(), Parameters: e.handler.Parameters()}, true
}

// ToolsForRule returns the descriptors of the registered tools mapped to rule.
// Unknown rules get no tools.
func (r *Registry) ToolsForRule(rule models.RuleID) []Descriptor {
	names := ruleTools[rule]
	if len(names) == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		e, ok := r.entries[name]
		if !ok {
			r.logger.Warn("rule references unregistered tool", "rule", rule, "tool", name)
			continue
		}
		out = append(out, Descriptor{
			Name:        name,
			Description: e.handler.Description(),
			Parameters:  e.handler.Parameters(),
		})
	}
	return out
}

// Specs returns the rule's tools in the form model providers declare them
func (r *Registry) Specs(rule models.RuleID) []llm.ToolSpec {
	descs := r.ToolsForRule(rule)
	if len(descs) == 0 {
		return nil
	}
	specs := make([]llm.ToolSpec, len(descs))
	for i, d := range descs {
		specs[i] = llm.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return specs
}

// Execute runs the named tool. Every failure, including an unknown tool,
// invalid arguments and a handler panic, is reported in the Result.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (result Result) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			result = Result{Success: false, Error: fmt.Sprintf("tool %s failed unexpectedly", name)}
			outcome = "panic"
		}
		metrics.RecordToolExecution(name, outcome, time.Since(start))
	}()

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		outcome = "unknown"
		r.logger.Warn("unknown tool requested", "tool", name)
		return Result{Success: false, Error: fmt.Sprintf("unknown tool %q", name)}
	}

	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}
	if msg := validateArgs(e.schema, args); msg != "" {
		outcome = "invalid_arguments"
		r.logger.Warn("tool arguments rejected", "tool", name, "reason", msg)
		return Result{Success: false, Error: "invalid arguments: " + msg}
	}

	data, err := e.handler.Execute(ctx, args)
	if err != nil {
		outcome = "error"
		terr := errors.ToolExecutionError(err, name)
		r.logger.Warn("tool failed", "tool", name, "error", terr)
		return Result{Success: false, Error: err.Error()}
	}

	r.logger.Info("tool executed", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	return Result{Success: true, Data: data}
}

func validateArgs(schema *gojsonschema.Schema, args json.RawMessage) string {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return "arguments are not a JSON object"
	}
	if res.Valid() {
		return ""
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}

// Summarize renders the one-line note kept on the transcript for a tool call
func Summarize(name string, result Result) string {
	if !result.Success {
		return fmt.Sprintf("%s failed: %s", name, result.Error)
	}
	if s, ok := result.Data.(Summarizer); ok {
		return fmt.Sprintf("%s: %s", name, s.Summary())
	}
	b, err := json.Marshal(result.Data)
	if err != nil {
		return name + ": ok"
	}
	return fmt.Sprintf("%s: %s", name, b)
}

// Executor adapts the registry to the model tool loop
func (r *Registry) Executor() llm.ToolExecutor {
	return func(ctx context.Context, call llm.ToolCall) llm.ToolOutcome {
		result := r.Execute(ctx, call.Name, call.Arguments)
		content, err := json.Marshal(result)
		if err != nil {
			content = []byte(`{"success":false,"error":"tool result could not be encoded"}`)
		}
		return llm.ToolOutcome{Content: string(content), Note: Summarize(call.Name, result)}
	}
}
