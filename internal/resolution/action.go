package resolution

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/models"
)

// actionSchema is the output contract every non-tool model turn must honor
const actionSchema = `{
  "type": "object",
  "required": ["action", "field", "value", "justification", "follow_up"],
  "properties": {
    "action": {"enum": ["update", "justify", "ask_more"]},
    "field": {"type": ["string", "null"]},
    "value": {},
    "justification": {"type": ["string", "null"]},
    "follow_up": {"type": ["string", "null"]}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func outputSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(actionSchema))
	})
	return compiledSchema, schemaErr
}

// modelOutput mirrors actionSchema
type modelOutput struct {
	Action        string  `json:"action"`
	Field         *string `json:"field"`
	Value         any     `json:"value"`
	Justification *string `json:"justification"`
	FollowUp      *string `json:"follow_up"`
}

// cleanJSONBlock strips markdown fences and any prose around the object
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}
	return text
}

// ParseAction decodes a model reply into an action for flag. Replies that
// break the contract, or that target a field the flag does not affect,
// are MalformedOutput errors.
func ParseAction(raw string, flag models.RedFlag) (models.ResolutionAction, error) {
	text := cleanJSONBlock(raw)
	if text == "" {
		return models.ResolutionAction{}, errors.MalformedOutputError("empty reply", raw)
	}

	schema, err := outputSchema()
	if err != nil {
		return models.ResolutionAction{}, errors.InternalErrorf("compile action schema: %v", err)
	}
	res, err := schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return models.ResolutionAction{}, errors.MalformedOutputError("reply is not JSON", raw)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return models.ResolutionAction{}, errors.MalformedOutputError(strings.Join(msgs, "; "), raw)
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return models.ResolutionAction{}, errors.MalformedOutputError("reply is not JSON", raw)
	}

	switch out.Action {
	case "update":
		field, err := targetField(out.Field, flag, raw)
		if err != nil {
			return models.ResolutionAction{}, err
		}
		if out.Value == nil {
			return models.ResolutionAction{}, errors.MalformedOutputError("update without a value", raw)
		}
		if s, ok := out.Value.(string); ok {
			out.Value = strings.TrimSpace(s)
		}
		return models.Update(field, out.Value), nil

	case "justify":
		field, err := targetField(out.Field, flag, raw)
		if err != nil {
			return models.ResolutionAction{}, err
		}
		if nonEmpty(out.Justification) == "" {
			return models.ResolutionAction{}, errors.MalformedOutputError("justify without a justification", raw)
		}
		return models.Justify(field, nonEmpty(out.Justification)), nil

	default: // ask_more
		if nonEmpty(out.FollowUp) == "" {
			return models.ResolutionAction{}, errors.MalformedOutputError("ask_more without a follow_up question", raw)
		}
		return models.AskMore(nonEmpty(out.FollowUp)), nil
	}
}

// targetField resolves the field an action applies to. A missing field is
// accepted when the flag affects exactly one field.
func targetField(field *string, flag models.RedFlag, raw string) (string, error) {
	name := nonEmpty(field)
	if name == "" {
		if len(flag.AffectedFields) == 1 {
			return flag.AffectedFields[0], nil
		}
		return "", errors.MalformedOutputError("action names no field", raw)
	}
	if !flag.Affects(name) {
		return "", errors.MalformedOutputError(fmt.Sprintf("field %q is not affected by %s", name, flag.Rule), raw)
	}
	return name, nil
}

func nonEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
