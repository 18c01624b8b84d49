// Package resolution holds the per-flag conversation state machine that
// turns a red flag and the applicant's replies into a field correction,
// an accepted justification, or a further question.
package resolution

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/llm"
	"github.com/chatform/chatform/internal/metrics"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/tools"
)

// State of one flag's conversation
type State int

const (
	StateUninitialized State = iota
	StateAwaitingFirstPrompt
	StateAwaitingUserReply
	StateProcessingReply
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingFirstPrompt:
		return "awaiting_first_prompt"
	case StateAwaitingUserReply:
		return "awaiting_user_reply"
	case StateProcessingReply:
		return "processing_reply"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

const (
	DefaultMaxToolRounds = 3
	DefaultMaxTurns      = 10
	DefaultTimeout       = 30 * time.Second
)

var (
	// ErrBusy rejects a message while another one for the same flag is in flight
	ErrBusy = stderrors.New("a message for this flag is already being processed")
	// ErrResolved rejects a message for a flag that is already resolved
	ErrResolved = stderrors.New("this flag is already resolved")
	// ErrInitialized rejects a second Initialize
	ErrInitialized = stderrors.New("conversation already started")
)

const (
	clarifyQuestion    = "Sorry, I didn't quite catch that. Could you tell me a bit more about your situation?"
	toolBudgetQuestion = "I wasn't able to finish checking that just now. Could you give me any other details that would help, such as the full registered name or a website?"
	escalatedReply     = "Thank you. I've recorded your explanation and passed it to our team for a manual review, so you can continue with your application."
)

// Options bound a conversation
type Options struct {
	MaxToolRounds int
	// MaxTurns is the number of applicant messages after which an open
	// flag is closed with an escalated justification.
	MaxTurns int
	Timeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxToolRounds <= 0 {
		o.MaxToolRounds = DefaultMaxToolRounds
	}
	if o.MaxTurns <= 0 {
		o.MaxTurns = DefaultMaxTurns
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Deps are the collaborators of an engine. Tools and Builder may be nil.
type Deps struct {
	Model   llm.ChatModel
	Tools   *tools.Registry
	Builder *ContextBuilder
}

// Turn is the result of one applicant message
type Turn struct {
	Message models.ChatMessage
	Action  models.ResolutionAction
	Audit   *models.AuditRecord
	State   State
}

// Engine runs the conversation for a single red flag. Calls for one flag
// are expected to be serialized; a concurrent SendMessage is rejected
// with ErrBusy rather than queued.
type Engine struct {
	flag    models.RedFlag
	ledger  *Ledger
	model   llm.ChatModel
	tools   *tools.Registry
	builder *ContextBuilder
	opts    Options
	clock   func() time.Time
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	convo      *Context
	transcript []models.ChatMessage
}

// NewEngine creates an engine for flag committing to ledger
func NewEngine(flag models.RedFlag, ledger *Ledger, deps Deps, opts Options) *Engine {
	builder := deps.Builder
	if builder == nil {
		builder = NewContextBuilder(deps.Tools)
	}
	return &Engine{
		flag:    flag,
		ledger:  ledger,
		model:   deps.Model,
		tools:   deps.Tools,
		builder: builder,
		opts:    opts.withDefaults(),
		clock:   func() time.Time { return time.Now().UTC() },
		logger:  slog.Default().With("component", "resolution", "rule", flag.Rule),
	}
}

// Flag returns the red flag this engine resolves
func (e *Engine) Flag() models.RedFlag { return e.flag }

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Transcript returns a copy of the conversation so far
func (e *Engine) Transcript() []models.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ChatMessage, len(e.transcript))
	copy(out, e.transcript)
	return out
}

// Initialize produces the opening assistant question. On failure nothing
// is kept and the engine stays uninitialized, so the call can be retried.
func (e *Engine) Initialize(ctx context.Context) (models.ChatMessage, error) {
	e.mu.Lock()
	if e.state != StateUninitialized {
		e.mu.Unlock()
		return models.ChatMessage{}, e.conflict(ErrInitialized)
	}
	e.state = StateAwaitingFirstPrompt
	e.mu.Unlock()

	fail := func(err error) (models.ChatMessage, error) {
		e.setState(StateUninitialized)
		e.logger.Warn("conversation start failed", "error", err)
		return models.ChatMessage{}, errors.InitializationError(err, string(e.flag.Rule))
	}

	convo, err := e.builder.Build(e.flag, e.ledger.Snapshot())
	if err != nil {
		return fail(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	resp, err := e.model.Chat(callCtx, e.request(convo, nil), e.executor())
	if err != nil {
		return fail(err)
	}

	question := e.openingFallback()
	if !resp.ToolBudgetExhausted {
		action, perr := ParseAction(resp.Content, e.flag)
		switch {
		case perr != nil:
			metrics.RecordMalformedOutput(string(e.flag.Rule))
			e.logger.Warn("malformed opening reply, using fallback question", "error", perr)
		case action.Kind != models.ActionAskMore:
			e.logger.Warn("opening reply was not a question, using fallback question", "action", action.Kind)
		default:
			question = action.Question
		}
	}

	ask := models.AskMore(question)
	msg := models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   question,
		Timestamp: e.clock(),
		Action:    &ask,
		ToolNotes: resp.ToolNotes,
	}

	e.mu.Lock()
	e.convo = convo
	e.transcript = []models.ChatMessage{msg}
	e.state = StateAwaitingUserReply
	e.mu.Unlock()

	e.logger.Info("conversation started", "tool_rounds", resp.ToolRounds, "tokens", resp.TokensUsed)
	return msg, nil
}

// SendMessage processes one applicant message. The message is appended
// before the model is called and kept if the call fails; in that case the
// error is a MessageProcessingError and the message can be resent.
func (e *Engine) SendMessage(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.ValidationError("message is empty")
	}

	e.mu.Lock()
	switch e.state {
	case StateProcessingReply, StateAwaitingFirstPrompt:
		e.mu.Unlock()
		return nil, e.conflict(ErrBusy)
	case StateResolved:
		e.mu.Unlock()
		return nil, e.conflict(ErrResolved)
	}
	if e.convo == nil {
		convo, err := e.builder.Build(e.flag, e.ledger.Snapshot())
		if err != nil {
			e.mu.Unlock()
			return nil, errors.MessageProcessingError(err, string(e.flag.Rule))
		}
		e.convo = convo
	}
	e.transcript = append(e.transcript, models.UserMessage(text, e.clock()))
	e.state = StateProcessingReply
	convo := e.convo
	history := e.history()
	statements := e.userStatements()
	e.mu.Unlock()

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	resp, err := e.model.Chat(callCtx, e.request(convo, history), e.executor())
	if err != nil {
		e.setState(StateAwaitingUserReply)
		e.logger.Warn("model call failed, message kept for retry", "error", err)
		return nil, errors.MessageProcessingError(err, string(e.flag.Rule))
	}

	action, content := e.interpret(resp)
	if !action.Terminal() && len(statements) >= e.opts.MaxTurns {
		e.logger.Warn("turn limit reached, escalating for manual review", "turns", len(statements))
		action = models.Justify(convo.DefaultField, strings.Join(statements, " "))
		action.Escalated = true
	}

	var rec *models.AuditRecord
	next := StateAwaitingUserReply
	if action.Terminal() {
		r, err := e.ledger.Commit(ctx, e.flag.Rule, action)
		if err != nil {
			e.setState(StateAwaitingUserReply)
			return nil, errors.MessageProcessingError(err, string(e.flag.Rule))
		}
		rec = &r
		content = confirmation(action)
		next = StateResolved
	}

	msg := models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   content,
		Timestamp: e.clock(),
		Action:    &action,
		ToolNotes: resp.ToolNotes,
	}
	e.mu.Lock()
	e.transcript = append(e.transcript, msg)
	e.state = next
	e.mu.Unlock()

	e.logger.Info("turn complete",
		"action", action.Kind,
		"state", next,
		"tool_rounds", resp.ToolRounds,
		"tokens", resp.TokensUsed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Turn{Message: msg, Action: action, Audit: rec, State: next}, nil
}

// RestoreMessages replaces the transcript with a saved one and marks the
// conversation as started. It is resolved when the last assistant message
// carries an update or justification.
func (e *Engine) RestoreMessages(history []models.ChatMessage) error {
	if err := models.ValidateTranscript(history); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateProcessingReply || e.state == StateAwaitingFirstPrompt {
		return e.conflict(ErrBusy)
	}

	e.transcript = make([]models.ChatMessage, len(history))
	copy(e.transcript, history)
	e.state = StateAwaitingUserReply
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != models.RoleAssistant {
			continue
		}
		if a := history[i].Action; a != nil && a.Terminal() {
			e.state = StateResolved
		}
		break
	}
	return nil
}

// Reset clears the conversation back to uninitialized
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateProcessingReply || e.state == StateAwaitingFirstPrompt {
		return e.conflict(ErrBusy)
	}
	e.transcript = nil
	e.convo = nil
	e.state = StateUninitialized
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) conflict(err error) error {
	return errors.Wrap(err, errors.ErrorTypeConflict, errors.SeverityMedium, fmt.Sprintf("rule %s", e.flag.Rule))
}

func (e *Engine) request(convo *Context, history []llm.Message) llm.Request {
	return llm.Request{
		System:        convo.System,
		Messages:      history,
		Tools:         convo.Tools,
		MaxToolRounds: e.opts.MaxToolRounds,
		JSONOutput:    true,
	}
}

func (e *Engine) executor() llm.ToolExecutor {
	if e.tools == nil {
		return nil
	}
	return e.tools.Executor()
}

// interpret maps a model reply to a non-committed action and the text
// shown to the applicant.
func (e *Engine) interpret(resp *llm.Response) (models.ResolutionAction, string) {
	if resp.ToolBudgetExhausted {
		e.logger.Warn("tool round limit reached", "rounds", resp.ToolRounds)
		return models.AskMore(toolBudgetQuestion), toolBudgetQuestion
	}

	action, err := ParseAction(resp.Content, e.flag)
	if err != nil {
		metrics.RecordMalformedOutput(string(e.flag.Rule))
		e.logger.Warn("malformed model output, asking for clarification", "error", err, "raw_chars", len(resp.Content))
		content := clarifyQuestion
		if raw := strings.TrimSpace(resp.Content); raw != "" {
			content = raw + "\n\n" + clarifyQuestion
		}
		return models.AskMore(clarifyQuestion), content
	}
	if action.Kind == models.ActionAskMore {
		return action, action.Question
	}
	return action, ""
}

// history renders the transcript for the model. Assistant questions are
// replayed in the output contract form, preceded by their tool notes.
// Callers hold e.mu.
func (e *Engine) history() []llm.Message {
	msgs := make([]llm.Message, 0, len(e.transcript))
	for _, m := range e.transcript {
		if m.Role == models.RoleUser {
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: m.Content})
			continue
		}
		content := m.Content
		if m.Action != nil {
			content = contractJSON(*m.Action, m.Content)
		}
		if len(m.ToolNotes) > 0 {
			content = "[Tool results: " + strings.Join(m.ToolNotes, "; ") + "]\n" + content
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: content})
	}
	return msgs
}

// userStatements returns the applicant's messages in order. Callers hold e.mu.
func (e *Engine) userStatements() []string {
	var out []string
	for _, m := range e.transcript {
		if m.Role == models.RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}

func (e *Engine) openingFallback() string {
	msg := strings.TrimRight(strings.TrimSpace(e.flag.Message), ".")
	return fmt.Sprintf("I noticed an issue with your application: %s. Could you tell me more about it?", msg)
}

func contractJSON(a models.ResolutionAction, content string) string {
	out := map[string]any{"action": nil, "field": nil, "value": nil, "justification": nil, "follow_up": nil}
	switch a.Kind {
	case models.ActionUpdate:
		out["action"], out["field"], out["value"] = "update", a.Field, a.NewValue
	case models.ActionJustify:
		out["action"], out["field"], out["justification"] = "justify", a.Field, a.Explanation
	case models.ActionAskMore:
		out["action"], out["follow_up"] = "ask_more", content
	default:
		return content
	}
	b, err := json.Marshal(out)
	if err != nil {
		return content
	}
	return string(b)
}

func confirmation(a models.ResolutionAction) string {
	switch {
	case a.Escalated:
		return escalatedReply
	case a.Kind == models.ActionUpdate:
		return fmt.Sprintf("Thank you! I've updated %s to %q. This issue is now resolved.", a.Field, models.FormatValue(a.NewValue))
	default:
		return fmt.Sprintf("Thank you for explaining. I've noted that for %s and this issue is now resolved.", a.Field)
	}
}
