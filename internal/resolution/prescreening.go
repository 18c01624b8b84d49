package resolution

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/llm"
	"github.com/chatform/chatform/internal/models"
)

const preScreeningRule = "pre_screening"

// PreScreening runs the political exposure questionnaire. It has one fixed
// opening question, offers no tools and never commits anything: the caller
// decides when the conversation is done and calls Finish.
type PreScreening struct {
	model   llm.ChatModel
	timeout time.Duration
	logger  *slog.Logger
}

// NewPreScreening creates a resolver. A zero timeout uses DefaultTimeout.
func NewPreScreening(model llm.ChatModel, timeout time.Duration) *PreScreening {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PreScreening{
		model:   model,
		timeout: timeout,
		logger:  slog.Default().With("component", "prescreening"),
	}
}

// Opening returns the fixed first question
func (p *PreScreening) Opening(now time.Time) (models.ChatMessage, error) {
	q, err := PreScreeningOpening()
	if err != nil {
		return models.ChatMessage{}, errors.InternalErrorf("pre-screening opening: %v", err)
	}
	return models.AssistantMessage(strings.TrimSpace(q), now), nil
}

// Reply asks the model for the next question given history and the
// applicant's new message. history is not modified.
func (p *PreScreening) Reply(ctx context.Context, history []models.ChatMessage, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, errors.ValidationError("message is empty")
	}
	if err := models.ValidateTranscript(history); err != nil {
		return models.ChatMessage{}, err
	}
	lib, err := prompts()
	if err != nil {
		return models.ChatMessage{}, errors.InternalErrorf("load prompts: %v", err)
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: text})

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := p.model.Chat(callCtx, llm.Request{System: lib.preScreening.System, Messages: msgs}, nil)
	if err != nil {
		p.logger.Warn("pre-screening reply failed", "error", err)
		return models.ChatMessage{}, errors.MessageProcessingError(err, preScreeningRule)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		content = "Thank you. Is there anything else about your situation we should know?"
	}
	ask := models.AskMore(content)
	msg := models.AssistantMessage(content, time.Now().UTC())
	msg.Action = &ask
	p.logger.Debug("pre-screening reply", "turns", len(history)+1, "tokens", resp.TokensUsed)
	return msg, nil
}

// FinishPreScreening builds the stored answer from a finished conversation.
// A non-empty pending message is appended as the final user turn.
func FinishPreScreening(history []models.ChatMessage, pending string, now time.Time) models.PreScreening {
	chat := make([]models.ChatMessage, len(history), len(history)+1)
	copy(chat, history)
	if p := strings.TrimSpace(pending); p != "" {
		chat = append(chat, models.UserMessage(p, now))
	}

	var parts []string
	for _, m := range chat {
		if m.Role == models.RoleUser {
			if s := strings.TrimSpace(m.Content); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return models.PreScreening{
		Response:    "yes",
		Explanation: strings.Join(parts, " "),
		ChatHistory: chat,
	}
}
