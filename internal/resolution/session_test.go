package resolution

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatform/chatform/internal/audit"
	apperrors "github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/llm"
	"github.com/chatform/chatform/internal/models"
)

func TestLedger_UpdateIsIdempotent(t *testing.T) {
	sink := audit.NewJSONLSink(filepath.Join(t.TempDir(), "audit.jsonl"))
	ledger := NewLedger(application(), sink)
	ctx := context.Background()

	_, err := ledger.Commit(ctx, models.RuleEmployerVerification, models.Update("companyName", "SCB Bank"))
	require.NoError(t, err)
	rec, err := ledger.Commit(ctx, models.RuleEmployerVerification, models.Update("companyName", "SCB Bank"))
	require.NoError(t, err)

	assert.Equal(t, "SCB Bankk", rec.OldValue)
	snap := ledger.Snapshot()
	assert.Equal(t, models.FieldCorrection{OldValue: "SCB Bankk", NewValue: "SCB Bank"}, snap.CorrectedFields["companyName"])

	records, err := sink.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.ActionUpdate, records[1].Action)
}

func TestLedger_RejectsNonTerminal(t *testing.T) {
	ledger := NewLedger(nil, nil)
	_, err := ledger.Commit(context.Background(), models.RuleDistance, models.AskMore("?"))
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	_, err = ledger.Commit(context.Background(), models.RuleDistance, models.Justify("", "x"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestLedger_SnapshotIsACopy(t *testing.T) {
	ledger := NewLedger(application(), nil)
	snap := ledger.Snapshot()
	snap.Fields["companyName"] = "changed"
	assert.Equal(t, "SCB Bankk", ledger.Snapshot().String("companyName"))
}

func TestSession_OpenCloseResume(t *testing.T) {
	model := script(
		step{content: ask("why so far?")},
		step{content: ask("anything else?")},
	)
	s := NewSession(NewLedger(application(), nil), Deps{Model: model}, Options{})
	ctx := context.Background()

	e, created := s.Open(distanceFlag())
	require.True(t, created)
	assert.True(t, s.IsOpen(models.RuleDistance))

	_, err := s.Initialize(ctx, models.RuleDistance)
	require.NoError(t, err)
	s.Close(models.RuleDistance)
	assert.False(t, s.IsOpen(models.RuleDistance))

	again, created := s.Open(distanceFlag())
	assert.False(t, created)
	assert.Same(t, e, again)
	assert.Len(t, again.Transcript(), 1)

	assert.Equal(t, []models.RuleID{models.RuleDistance}, s.Rules())
	assert.True(t, s.Evict(models.RuleDistance))
	assert.False(t, s.Evict(models.RuleDistance))
	_, err = s.Send(ctx, models.RuleDistance, "hello")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSession_TurnSurvivesCallerCancel(t *testing.T) {
	release := make(chan struct{})
	model := script(step{release: release, content: justify("companyAddress", "remote")})
	s := NewSession(NewLedger(application(), nil), Deps{Model: model}, Options{})
	e, _ := s.Open(distanceFlag())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Send(ctx, models.RuleDistance, "I work remotely")
		done <- err
	}()
	require.Eventually(t, func() bool { return e.State() == StateProcessingReply }, time.Second, 5*time.Millisecond)

	cancel()
	s.Close(models.RuleDistance)
	close(release)

	require.NoError(t, <-done)
	assert.Equal(t, StateResolved, e.State())
	assert.Len(t, e.Transcript(), 2)
	assert.Equal(t, "remote", s.Ledger().Snapshot().Justifications["companyAddress"])
}

func TestSession_IndependentFlagsShareLedger(t *testing.T) {
	employer := script(step{content: update("companyName", "SCB Bank")})
	distance := script(step{content: justify("companyAddress", "remote")})
	ledger := NewLedger(application(), nil)

	eEmployer := NewEngine(employerFlag(), ledger, Deps{Model: employer}, Options{})
	eDistance := NewEngine(distanceFlag(), ledger, Deps{Model: distance}, Options{})

	var wg sync.WaitGroup
	for _, e := range []*Engine{eEmployer, eDistance} {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			_, err := e.SendMessage(context.Background(), "fix it")
			assert.NoError(t, err)
		}(e)
	}
	wg.Wait()

	snap := ledger.Snapshot()
	assert.Equal(t, "SCB Bank", snap.String("companyName"))
	assert.Equal(t, "remote", snap.Justifications["companyAddress"])
}

func TestScenarioC_PreScreening(t *testing.T) {
	ps := NewPreScreening(script(), 0)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	opening, err := ps.Opening(now)
	require.NoError(t, err)
	assert.Contains(t, opening.Content, "US citizen")

	result := FinishPreScreening([]models.ChatMessage{opening}, "My uncle is a city council member", now)
	assert.Equal(t, "yes", result.Response)
	assert.Equal(t, "My uncle is a city council member", result.Explanation)
	require.Len(t, result.ChatHistory, 2)
	assert.Equal(t, models.RoleAssistant, result.ChatHistory[0].Role)
	assert.Equal(t, models.RoleUser, result.ChatHistory[1].Role)
}

func TestPreScreening_Reply(t *testing.T) {
	model := script(step{content: "  Which position does your uncle hold?  "})
	ps := NewPreScreening(model, 0)
	now := time.Now().UTC()
	opening, err := ps.Opening(now)
	require.NoError(t, err)

	msg, err := ps.Reply(context.Background(), []models.ChatMessage{opening}, "My uncle is in politics")
	require.NoError(t, err)
	assert.Equal(t, "Which position does your uncle hold?", msg.Content)
	assert.Equal(t, models.ActionAskMore, msg.Action.Kind)

	req := model.lastRequest()
	assert.Empty(t, req.Tools)
	assert.False(t, req.JSONOutput)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleAssistant, req.Messages[0].Role)
	assert.Equal(t, "My uncle is in politics", req.Messages[1].Content)

	_, err = ps.Reply(context.Background(), nil, "  ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = ps.Reply(context.Background(), nil, "again")
	assert.ErrorIs(t, err, apperrors.ErrMessageProcessing, "script is exhausted")
}

func TestFinishPreScreening_JoinsUserTurns(t *testing.T) {
	now := time.Now().UTC()
	history := []models.ChatMessage{
		models.AssistantMessage("q1", now),
		models.UserMessage("I am a US citizen.", now),
		models.AssistantMessage("q2", now),
		models.UserMessage("Born in Ohio.", now),
	}
	result := FinishPreScreening(history, "", now)
	assert.Equal(t, "I am a US citizen. Born in Ohio.", result.Explanation)
	assert.Len(t, result.ChatHistory, 4)
}
