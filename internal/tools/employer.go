package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/verification"
)

// EmployerToolName is the name models use to call employer verification
const EmployerToolName = "verify_employer"

// EmployerVerifier is the verification service the employer tool wraps
type EmployerVerifier interface {
	VerifyEmployer(ctx context.Context, q verification.Query) (*models.VerificationResult, error)
}

// EmployerHandler exposes employer verification as a tool
type EmployerHandler struct {
	verifier EmployerVerifier
}

// NewEmployerHandler creates the verify_employer tool
func NewEmployerHandler(verifier EmployerVerifier) *EmployerHandler {
	return &EmployerHandler{verifier: verifier}
}

func (h *EmployerHandler) Name() string { return EmployerToolName }

func (h *EmployerHandler) Description() string {
	return "Check whether a company is a legitimate registered business. " +
		"Looks the name up in the list of pre-verified employers first and falls back to a web search. " +
		"Call it with the corrected company name after the applicant clarifies their employer."
}

func (h *EmployerHandler) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"companyName": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Company name to verify",
			},
			"companyWebsite": map[string]any{
				"type":        "string",
				"description": "Company website, if the applicant gave one",
			},
			"additionalContext": map[string]any{
				"type":        "string",
				"description": "Anything else the applicant said about the company, such as location or industry",
			},
		},
		"required": []string{"companyName"},
	}
}

// Execute verifies the employer named in args
func (h *EmployerHandler) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var q verification.Query
	if err := json.Unmarshal(args, &q); err != nil {
		return nil, errors.ValidationErrorf("invalid verify_employer arguments: %v", err)
	}
	q.CompanyName = strings.TrimSpace(q.CompanyName)
	q.CompanyWebsite = strings.TrimSpace(q.CompanyWebsite)
	if q.CompanyName == "" {
		return nil, errors.ValidationError("companyName is required")
	}
	return h.verifier.VerifyEmployer(ctx, q)
}
