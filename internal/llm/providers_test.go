package llm

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const (
	openAIToolCallReply = `{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
    "role": "assistant", "content": null,
    "tool_calls": [{"id": "call_1", "type": "function",
      "function": {"name": "verify_employer", "arguments": "{\"companyName\":\"SCB Bank\"}"}}]}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`
	openAITextReply = `{
  "id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Which company do you work for?"}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`
	geminiToolCallReply = `{
  "candidates": [{"content": {"role": "model", "parts": [
    {"functionCall": {"name": "verify_employer", "args": {"companyName": "SCB Bank"}}}]}}],
  "usageMetadata": {"totalTokenCount": 15}
}`
)

// countingExecutor records every tool call it runs
type countingExecutor struct {
	mu    sync.Mutex
	calls []ToolCall
}

func (c *countingExecutor) exec(ctx context.Context, call ToolCall) ToolOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return ToolOutcome{Content: `{"success":true}`, Note: call.Name + ": verified"}
}

// replayServer answers every request with body and counts the requests
func replayServer(t *testing.T, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func toolRequest(rounds int) Request {
	return Request{
		System:        "resolve the employer flag",
		Messages:      []Message{{Role: RoleUser, Content: "I work at SCB"}},
		Tools:         []ToolSpec{{Name: "verify_employer", Parameters: map[string]any{"type": "object"}}},
		MaxToolRounds: rounds,
		JSONOutput:    true,
	}
}

func newTestOpenAIModel(t *testing.T, url string) *OpenAIModel {
	t.Helper()
	model, err := NewOpenAIModel(OpenAIConfig{APIKey: "test-key", BaseURL: url + "/"})
	require.NoError(t, err)
	return model
}

func TestOpenAIModel_ToolRoundsBounded(t *testing.T) {
	srv, hits := replayServer(t, openAIToolCallReply)
	model := newTestOpenAIModel(t, srv.URL)
	exec := &countingExecutor{}

	resp, err := model.Chat(context.Background(), toolRequest(3), exec.exec)
	require.NoError(t, err)

	assert.True(t, resp.ToolBudgetExhausted)
	assert.Empty(t, resp.Content)
	assert.Equal(t, 3, resp.ToolRounds)
	assert.Len(t, exec.calls, 3)
	assert.Len(t, resp.ToolNotes, 3)
	assert.Equal(t, int32(4), atomic.LoadInt32(hits))
	assert.JSONEq(t, `{"companyName":"SCB Bank"}`, string(exec.calls[0].Arguments))
}

func TestOpenAIModel_ZeroRoundsNeverExecutes(t *testing.T) {
	srv, hits := replayServer(t, openAIToolCallReply)
	model := newTestOpenAIModel(t, srv.URL)
	exec := &countingExecutor{}

	resp, err := model.Chat(context.Background(), toolRequest(0), exec.exec)
	require.NoError(t, err)
	assert.True(t, resp.ToolBudgetExhausted)
	assert.Empty(t, exec.calls)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestOpenAIModel_PlainReply(t *testing.T) {
	srv, hits := replayServer(t, openAITextReply)
	model := newTestOpenAIModel(t, srv.URL)
	exec := &countingExecutor{}

	resp, err := model.Chat(context.Background(), toolRequest(3), exec.exec)
	require.NoError(t, err)
	assert.False(t, resp.ToolBudgetExhausted)
	assert.Equal(t, "Which company do you work for?", resp.Content)
	assert.Equal(t, 15, resp.TokensUsed)
	assert.Empty(t, exec.calls)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestGeminiModel_ToolRoundsBounded(t *testing.T) {
	srv, hits := replayServer(t, geminiToolCallReply)
	model, err := NewGeminiModel(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	exec := &countingExecutor{}

	resp, err := model.Chat(context.Background(), toolRequest(3), exec.exec)
	require.NoError(t, err)

	assert.True(t, resp.ToolBudgetExhausted)
	assert.Equal(t, 3, resp.ToolRounds)
	assert.Len(t, exec.calls, 3)
	assert.Equal(t, int32(4), atomic.LoadInt32(hits))

	var args map[string]any
	require.NoError(t, json.Unmarshal(exec.calls[0].Arguments, &args))
	assert.Equal(t, "SCB Bank", args["companyName"])
}

func TestGeminiToolCall_UnencodableArguments(t *testing.T) {
	fc := &genai.FunctionCall{ID: "fc-1", Name: "verify_employer", Args: map[string]any{"score": math.NaN()}}

	call, err := geminiToolCall(fc, 0, 0)
	require.Error(t, err)
	assert.Equal(t, "fc-1", call.ID)
	assert.Nil(t, call.Arguments)

	out := invalidArguments(call, err)
	assert.Contains(t, out.Content, `"success":false`)
	assert.Equal(t, "verify_employer: invalid arguments", out.Note)

	call, err = geminiToolCall(&genai.FunctionCall{Name: "verify_employer", Args: map[string]any{"companyName": "SCB"}}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "verify_employer-1-2", call.ID)
	assert.JSONEq(t, `{"companyName":"SCB"}`, string(call.Arguments))
}
