package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatform/chatform/internal/audit"
	apperrors "github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/llm"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/resolution"
)

// scriptModel answers each call with the next scripted content
type scriptModel struct {
	mu      sync.Mutex
	replies []string
}

func (m *scriptModel) Name() string { return "script" }

func (m *scriptModel) Chat(ctx context.Context, req llm.Request, exec llm.ToolExecutor) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return nil, stderrors.New("no reply scripted")
	}
	content := m.replies[0]
	m.replies = m.replies[1:]
	return &llm.Response{Content: content}, nil
}

func contract(action string, field, value, justification, followUp any) string {
	b, _ := json.Marshal(map[string]any{
		"action": action, "field": field, "value": value, "justification": justification, "follow_up": followUp,
	})
	return string(b)
}

func distanceFlag() models.RedFlag {
	return models.RedFlag{
		Rule:           models.RuleDistance,
		Message:        "Home and work addresses are 582.6km apart (limit: 150km)",
		Severity:       models.SeverityLow,
		AffectedFields: []string{"currentAddress", "companyAddress"},
	}
}

func newSession(t *testing.T, model llm.ChatModel) (*resolution.Session, *audit.JSONLSink) {
	t.Helper()
	sink := audit.NewJSONLSink(filepath.Join(t.TempDir(), "audit.jsonl"))
	app := models.NewSnapshot(map[string]any{
		"currentAddress": "Chiang Mai",
		"companyAddress": "Bangkok",
	})
	ledger := resolution.NewLedger(app, sink)
	return resolution.NewSession(ledger, resolution.Deps{Model: model}, resolution.Options{}), sink
}

func TestResolveAll_Justify(t *testing.T) {
	model := &scriptModel{replies: []string{
		contract("ask_more", nil, nil, nil, "Why do you live so far from work?"),
		contract("justify", "currentAddress", nil, "Works remotely four days a week", nil),
	}}
	session, sink := newSession(t, model)

	var out bytes.Buffer
	in := strings.NewReader("\nI work remotely most of the week\n")
	err := resolveAll(context.Background(), session, []models.RedFlag{distanceFlag()}, in, &out, false)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "[1/1] distance_check (low)")
	assert.Contains(t, out.String(), "assistant> Why do you live so far from work?")
	assert.NotContains(t, out.String(), "you> ")
	assert.False(t, session.IsOpen(models.RuleDistance))

	snap := session.Ledger().Snapshot()
	assert.Equal(t, "Works remotely four days a week", snap.Justifications["currentAddress"])

	recs, err := sink.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.ActionJustify, recs[0].Action)
}

func TestResolveAll_RetriesAfterModelFailure(t *testing.T) {
	model := &scriptModel{replies: []string{
		contract("ask_more", nil, nil, nil, "Which address is wrong?"),
	}}
	session, _ := newSession(t, model)

	var out bytes.Buffer
	in := strings.NewReader("the home one\n")
	err := resolveAll(context.Background(), session, []models.RedFlag{distanceFlag()}, in, &out, true)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetType(err))
	assert.Contains(t, out.String(), retryNotice)
	assert.Contains(t, out.String(), "you> ")
}

func TestLoadApplication(t *testing.T) {
	dir := t.TempDir()

	_, err := loadApplication("")
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetType(err))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = loadApplication(bad)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetType(err))

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("{}"), 0644))
	_, err = loadApplication(empty)
	assert.Error(t, err)

	good := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"firstName":"Somchai","companyName":"Siam Cement"}`), 0644))
	app, err := loadApplication(good)
	require.NoError(t, err)
	assert.Equal(t, "Siam Cement", app.String("companyName"))
}

func TestWriteApplication(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	app := models.NewSnapshot(map[string]any{"firstName": "Somchai"})
	require.NoError(t, writeApplication(app, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Somchai", got["firstName"])
}
