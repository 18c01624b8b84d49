package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type stubModel struct {
	calls int
	resp  *Response
	err   error
}

func (s *stubModel) Name() string { return "stub" }

func (s *stubModel) Chat(ctx context.Context, req Request, exec ToolExecutor) (*Response, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.resp, s.err
}

func TestWithBootstrap(t *testing.T) {
	got := withBootstrap(nil)
	require.Len(t, got, 1)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, BootstrapPrompt, got[0].Content)

	assistantFirst := []Message{
		{Role: RoleAssistant, Content: "Where do you work?"},
		{Role: RoleUser, Content: "At SCB"},
	}
	got = withBootstrap(assistantFirst)
	require.Len(t, got, 3)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "Where do you work?", got[1].Content)

	userFirst := []Message{{Role: RoleUser, Content: "hi"}}
	assert.Equal(t, userFirst, withBootstrap(userFirst))
}

func TestRunTool_NoExecutor(t *testing.T) {
	out := runTool(context.Background(), nil, ToolCall{Name: "verify_employer"})
	assert.Contains(t, out.Content, `"success":false`)
	assert.Equal(t, "verify_employer: unavailable", out.Note)
}

func TestToGeminiSchema(t *testing.T) {
	doc := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"companyName": map[string]any{
				"type":        "string",
				"description": "Registered company name",
			},
			"companyWebsite": map[string]any{
				"type": []any{"string", "null"},
			},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "enum": []any{"a", "b"}},
			},
		},
		"required": []string{"companyName"},
	}

	schema := toGeminiSchema(doc)
	require.NotNil(t, schema)
	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"companyName"}, schema.Required)
	assert.Equal(t, genai.TypeString, schema.Properties["companyName"].Type)
	assert.Equal(t, "Registered company name", schema.Properties["companyName"].Description)

	website := schema.Properties["companyWebsite"]
	assert.Equal(t, genai.TypeString, website.Type)
	require.NotNil(t, website.Nullable)
	assert.True(t, *website.Nullable)

	tags := schema.Properties["tags"]
	assert.Equal(t, genai.TypeArray, tags.Type)
	assert.Equal(t, []string{"a", "b"}, tags.Items.Enum)

	assert.Nil(t, toGeminiSchema(nil))
}

func TestLimited_DelegatesAndRespectsContext(t *testing.T) {
	stub := &stubModel{resp: &Response{Content: "ok"}}
	limited := NewLimited(stub, 100, nil)

	resp, err := limited.Chat(context.Background(), Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "stub", limited.Name())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Chat(ctx, Request{}, nil)
	assert.Error(t, err)
}

func TestInstrumented_WrapsErrors(t *testing.T) {
	cause := errors.New("connection reset")
	model := Instrument(&stubModel{err: cause})

	_, err := model.Chat(context.Background(), Request{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "stub")
}

func TestEstimateTokens(t *testing.T) {
	req := Request{
		System:   "12345678",
		Messages: []Message{{Role: RoleUser, Content: "1234"}},
	}
	assert.Equal(t, int64(4), estimateTokens(req))
}
