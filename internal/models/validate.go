package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/chatform/chatform/internal/errors"
)

var validate = validator.New()

// Validate checks struct tags and returns a validation error naming the
// offending fields.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
		return apperrors.ValidationErrorf("invalid %T: %s", v, strings.Join(parts, ", "))
	}
	return apperrors.ValidationErrorf("invalid %T: %v", v, err)
}

// ValidateTranscript checks every message of a caller-supplied history
func ValidateTranscript(history []ChatMessage) error {
	for i := range history {
		if err := Validate(&history[i]); err != nil {
			return fmt.Errorf("conversationHistory[%d]: %w", i, err)
		}
	}
	return nil
}
