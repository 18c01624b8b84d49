package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Reserved snapshot keys holding the audit maps
const (
	JustificationsKey  = "justifications"
	CorrectedFieldsKey = "correctedFields"
	PreScreeningKey    = "preScreening"
)

// FieldCorrection records a committed correction. OldValue is the value
// before the first correction; NewValue is the latest committed value.
type FieldCorrection struct {
	OldValue any `json:"oldValue"`
	NewValue any `json:"newValue"`
}

// PreScreening is the structured pre-screening answer stored on the snapshot
type PreScreening struct {
	Response    string        `json:"response"`
	Explanation string        `json:"explanation"`
	ChatHistory []ChatMessage `json:"chatHistory,omitempty"`
}

// ApplicationSnapshot is the applicant's form data plus the resolution audit
// maps. On the wire it is one flat JSON object: every form field is a
// top-level key and the audit maps live under their reserved keys.
type ApplicationSnapshot struct {
	Fields          map[string]any
	Justifications  map[string]string
	CorrectedFields map[string]FieldCorrection
}

// NewSnapshot creates a snapshot over a copy of fields
func NewSnapshot(fields map[string]any) *ApplicationSnapshot {
	s := &ApplicationSnapshot{
		Fields:          make(map[string]any, len(fields)),
		Justifications:  make(map[string]string),
		CorrectedFields: make(map[string]FieldCorrection),
	}
	for k, v := range fields {
		s.Fields[k] = v
	}
	return s
}

// Get returns the live value of field
func (s *ApplicationSnapshot) Get(field string) (any, bool) {
	v, ok := s.Fields[field]
	return v, ok
}

// String returns the live value of field rendered as text, or "" when absent
func (s *ApplicationSnapshot) String(field string) string {
	v, ok := s.Fields[field]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// FormatValue renders a field value for prompts and logs
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// PreScreening decodes the structured pre-screening field, if present
func (s *ApplicationSnapshot) PreScreening() (*PreScreening, error) {
	raw, ok := s.Fields[PreScreeningKey]
	if !ok || raw == nil {
		return nil, nil
	}
	if ps, ok := raw.(*PreScreening); ok {
		return ps, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode pre-screening: %w", err)
	}
	var ps PreScreening
	if err := json.Unmarshal(b, &ps); err != nil {
		return nil, fmt.Errorf("decode pre-screening: %w", err)
	}
	return &ps, nil
}

// ApplyUpdate commits a correction of field to value. Repeated corrections
// keep the value that preceded the first one as OldValue.
func (s *ApplicationSnapshot) ApplyUpdate(field string, value any) FieldCorrection {
	s.ensureMaps()
	old := s.Fields[field]
	if prev, ok := s.CorrectedFields[field]; ok {
		old = prev.OldValue
	}
	c := FieldCorrection{OldValue: old, NewValue: value}
	s.CorrectedFields[field] = c
	s.Fields[field] = value
	return c
}

// ApplyJustification records the accepted explanation for field
func (s *ApplicationSnapshot) ApplyJustification(field, explanation string) {
	s.ensureMaps()
	s.Justifications[field] = explanation
}

// Clone returns a copy whose maps can be mutated independently
func (s *ApplicationSnapshot) Clone() *ApplicationSnapshot {
	c := NewSnapshot(s.Fields)
	for k, v := range s.Justifications {
		c.Justifications[k] = v
	}
	for k, v := range s.CorrectedFields {
		c.CorrectedFields[k] = v
	}
	return c
}

// Context renders the non-empty form fields as "Label: value" lines, sorted
// by the given order first and then alphabetically.
func (s *ApplicationSnapshot) Context(order []string) string {
	seen := make(map[string]bool, len(s.Fields))
	var lines []string
	add := func(k string) {
		if seen[k] || k == PreScreeningKey {
			return
		}
		seen[k] = true
		v := s.String(k)
		if strings.TrimSpace(v) == "" {
			return
		}
		lines = append(lines, fmt.Sprintf("%s: %s", k, v))
	}
	for _, k := range order {
		add(k)
	}
	for _, k := range sortedKeys(s.Fields) {
		add(k)
	}
	return strings.Join(lines, "\n")
}

func (s *ApplicationSnapshot) ensureMaps() {
	if s.Fields == nil {
		s.Fields = make(map[string]any)
	}
	if s.Justifications == nil {
		s.Justifications = make(map[string]string)
	}
	if s.CorrectedFields == nil {
		s.CorrectedFields = make(map[string]FieldCorrection)
	}
}

// MarshalJSON flattens the snapshot into a single object
func (s ApplicationSnapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+2)
	for k, v := range s.Fields {
		out[k] = v
	}
	if len(s.Justifications) > 0 {
		out[JustificationsKey] = s.Justifications
	}
	if len(s.CorrectedFields) > 0 {
		out[CorrectedFieldsKey] = s.CorrectedFields
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the flat object into fields and audit maps
func (s *ApplicationSnapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Fields = make(map[string]any, len(raw))
	s.Justifications = make(map[string]string)
	s.CorrectedFields = make(map[string]FieldCorrection)

	for k, v := range raw {
		switch k {
		case JustificationsKey:
			if err := json.Unmarshal(v, &s.Justifications); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if s.Justifications == nil {
				s.Justifications = make(map[string]string)
			}
		case CorrectedFieldsKey:
			if err := json.Unmarshal(v, &s.CorrectedFields); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if s.CorrectedFields == nil {
				s.CorrectedFields = make(map[string]FieldCorrection)
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("decode field %s: %w", k, err)
			}
			s.Fields[k] = val
		}
	}
	return nil
}
