package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/llm"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/verification"
)

type fakeVerifier struct {
	result *models.VerificationResult
	err    error
	calls  []verification.Query
}

func (f *fakeVerifier) VerifyEmployer(ctx context.Context, q verification.Query) (*models.VerificationResult, error) {
	f.calls = append(f.calls, q)
	return f.result, f.err
}

type panicHandler struct{}

func (panicHandler) Name() string               { return "explode" }
func (panicHandler) Description() string        { return "always panics" }
func (panicHandler) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (panicHandler) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	panic("boom")
}

func newRegistry(t *testing.T, v *fakeVerifier) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(NewEmployerHandler(v)))
	return r
}

func TestRegister_Duplicate(t *testing.T) {
	r := newRegistry(t, &fakeVerifier{})
	err := r.Register(NewEmployerHandler(&fakeVerifier{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateTool)
	assert.True(t, apperrors.IsFatal(err))

	assert.Panics(t, func() { r.MustRegister(NewEmployerHandler(&fakeVerifier{})) })
	assert.Equal(t, []string{EmployerToolName}, r.Names())
}

func TestToolsForRule(t *testing.T) {
	r := newRegistry(t, &fakeVerifier{})

	descs := r.ToolsForRule(models.RuleEmployerVerification)
	require.Len(t, descs, 1)
	assert.Equal(t, EmployerToolName, descs[0].Name)
	assert.NotEmpty(t, descs[0].Description)
	assert.Equal(t, "object", descs[0].Parameters["type"])

	assert.Empty(t, r.ToolsForRule(models.RuleDistance))
	assert.Empty(t, r.ToolsForRule("no_such_rule"))
	assert.Empty(t, NewRegistry().ToolsForRule(models.RuleEmployerVerification))

	specs := r.Specs(models.RuleEmployerVerification)
	require.Len(t, specs, 1)
	assert.Equal(t, EmployerToolName, specs[0].Name)

	desc, ok := r.Describe(EmployerToolName)
	require.True(t, ok)
	assert.Equal(t, descs[0].Description, desc.Description)
	_, ok = r.Describe("explode")
	assert.False(t, ok)
}

func TestExecute_Success(t *testing.T) {
	v := &fakeVerifier{result: &models.VerificationResult{
		Verified:    true,
		Source:      models.SourceAllowlist,
		Explanation: "The company is on the list of pre-verified employers.",
	}}
	r := newRegistry(t, v)

	result := r.Execute(context.Background(), EmployerToolName, json.RawMessage(`{"companyName":" SCB Bank "}`))
	require.True(t, result.Success, result.Error)
	require.Len(t, v.calls, 1)
	assert.Equal(t, "SCB Bank", v.calls[0].CompanyName)

	note := Summarize(EmployerToolName, result)
	assert.Contains(t, note, "verify_employer: verified via allowlist")
}

func TestExecute_FailuresBecomeResults(t *testing.T) {
	v := &fakeVerifier{err: apperrors.NetworkError(fmt.Errorf("connection reset"), "ai search request failed")}
	r := newRegistry(t, v)
	r.MustRegister(panicHandler{})

	tests := []struct {
		name    string
		tool    string
		args    string
		wantErr string
	}{
		{"unknown tool", "lookup_ssn", `{}`, "unknown tool"},
		{"missing required argument", EmployerToolName, `{}`, "invalid arguments"},
		{"wrong argument type", EmployerToolName, `{"companyName": 42}`, "invalid arguments"},
		{"not json", EmployerToolName, `company`, "invalid arguments"},
		{"handler error", EmployerToolName, `{"companyName":"Acme"}`, "connection reset"},
		{"handler panic", "explode", ``, "failed unexpectedly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result Result
			require.NotPanics(t, func() {
				result = r.Execute(context.Background(), tt.tool, json.RawMessage(tt.args))
			})
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, tt.wantErr)
			assert.Contains(t, Summarize(tt.tool, result), "failed")
		})
	}
}

func TestExecutor_FeedsResultBack(t *testing.T) {
	v := &fakeVerifier{result: &models.VerificationResult{
		Verified:     false,
		Source:       models.SourceAISearch,
		Explanation:  "No such company.",
		ClosestMatch: &models.CompanyMatch{Name: "SCB Bank", Website: "https://www.scb.co.th"},
	}}
	exec := newRegistry(t, v).Executor()

	out := exec(context.Background(), llm.ToolCall{ID: "call_1", Name: EmployerToolName, Arguments: json.RawMessage(`{"companyName":"SCB Bankk"}`)})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Content), &decoded))
	assert.Equal(t, true, decoded["success"])
	data := decoded["data"].(map[string]any)
	assert.Equal(t, false, data["verified"])
	assert.Contains(t, out.Note, "Closest match: SCB Bank (https://www.scb.co.th)")
}
