package llm

import (
	"context"
	"encoding/json"
)

// Role of a conversation message sent to a model
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior conversation turn
type Message struct {
	Role    Role
	Content string
}

// ToolSpec declares a function the model may call
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// ToolCall is a model-initiated function invocation
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolOutcome is what the executor hands back for a tool call
type ToolOutcome struct {
	Content string // serialized result fed back to the model
	Note    string // short human-readable summary kept on the transcript
}

// ToolExecutor runs a single tool call. It must not return an error:
// failures are reported in the outcome so the model can adapt.
type ToolExecutor func(ctx context.Context, call ToolCall) ToolOutcome

// Request is a provider-neutral chat request
type Request struct {
	System        string
	Messages      []Message
	Tools         []ToolSpec
	MaxToolRounds int
	JSONOutput    bool
}

// Response is the model's final (non-tool) reply for a turn
type Response struct {
	Content    string
	ToolCalls  []ToolCall // every tool call executed during the turn, in order
	ToolNotes  []string
	ToolRounds int
	TokensUsed int

	// ToolBudgetExhausted is set when the model was still requesting
	// tools after MaxToolRounds rounds. Content is empty in that case.
	ToolBudgetExhausted bool
}

// ChatModel runs one conversational turn, including any tool rounds.
type ChatModel interface {
	Chat(ctx context.Context, req Request, exec ToolExecutor) (*Response, error)
	Name() string
}

// BootstrapPrompt is sent when a conversation has no user content yet
const BootstrapPrompt = "Begin the conversation."

// withBootstrap guarantees the conversation opens with a user turn
func withBootstrap(msgs []Message) []Message {
	if len(msgs) > 0 && msgs[0].Role == RoleUser {
		return msgs
	}
	return append([]Message{{Role: RoleUser, Content: BootstrapPrompt}}, msgs...)
}

// invalidArguments reports a call whose arguments never reached the tool
func invalidArguments(call ToolCall, err error) ToolOutcome {
	content, _ := json.Marshal(map[string]any{"success": false, "error": err.Error()})
	return ToolOutcome{
		Content: string(content),
		Note:    call.Name + ": invalid arguments",
	}
}

func runTool(ctx context.Context, exec ToolExecutor, call ToolCall) ToolOutcome {
	if exec == nil {
		return ToolOutcome{
			Content: `{"success":false,"error":"no tools are available in this conversation"}`,
			Note:    call.Name + ": unavailable",
		}
	}
	return exec(ctx, call)
}
