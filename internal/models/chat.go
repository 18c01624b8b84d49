package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role of a transcript message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one transcript entry. Assistant messages may carry the
// action they represent and the notes of tools run during that turn.
type ChatMessage struct {
	Role      Role              `json:"role" validate:"required,oneof=user assistant"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Action    *ResolutionAction `json:"action,omitempty"`
	ToolNotes []string          `json:"toolNotes,omitempty"`
}

// timestampLayouts are accepted for incoming timestamps, in order. Layouts
// without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON accepts RFC 3339 timestamps and zone-less ISO 8601 ones.
// A missing or empty timestamp leaves the zero time.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type plain ChatMessage
	var raw struct {
		plain
		Timestamp *string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = ChatMessage(raw.plain)
	m.Timestamp = time.Time{}
	if raw.Timestamp == nil || strings.TrimSpace(*raw.Timestamp) == "" {
		return nil
	}
	ts, err := parseTimestamp(strings.TrimSpace(*raw.Timestamp))
	if err != nil {
		return err
	}
	m.Timestamp = ts
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// UserMessage builds a user transcript entry
func UserMessage(content string, at time.Time) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, Timestamp: at}
}

// AssistantMessage builds an assistant transcript entry
func AssistantMessage(content string, at time.Time) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, Timestamp: at}
}

// ActionKind tags a ResolutionAction
type ActionKind string

const (
	ActionUpdate  ActionKind = "update"
	ActionJustify ActionKind = "justify"
	ActionAskMore ActionKind = "ask_more"
	ActionError   ActionKind = "error"
)

// ResolutionAction is the terminal output of one engine turn
type ResolutionAction struct {
	Kind        ActionKind `json:"kind"`
	Field       string     `json:"field,omitempty"`
	NewValue    any        `json:"newValue,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
	Question    string     `json:"question,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	// Escalated marks a justification committed for manual review after the
	// turn limit was reached.
	Escalated bool `json:"escalated,omitempty"`
}

func Update(field string, value any) ResolutionAction {
	return ResolutionAction{Kind: ActionUpdate, Field: field, NewValue: value}
}

func Justify(field, explanation string) ResolutionAction {
	return ResolutionAction{Kind: ActionJustify, Field: field, Explanation: explanation}
}

func AskMore(question string) ResolutionAction {
	return ResolutionAction{Kind: ActionAskMore, Question: question}
}

func ErrorAction(reason string) ResolutionAction {
	return ResolutionAction{Kind: ActionError, Reason: reason}
}

// Terminal reports whether the action resolves the flag
func (a ResolutionAction) Terminal() bool {
	return a.Kind == ActionUpdate || a.Kind == ActionJustify
}

// AuditRecord is written for every committed Update or Justify
type AuditRecord struct {
	ID          string     `json:"id"`
	Rule        RuleID     `json:"rule"`
	Action      ActionKind `json:"action"`
	Field       string     `json:"field"`
	OldValue    any        `json:"oldValue,omitempty"`
	NewValue    any        `json:"newValue,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
	Escalated   bool       `json:"escalated,omitempty"`
	CommittedAt time.Time  `json:"committedAt"`
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
