package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/chatform/chatform/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextServe - the HTTP service needs a model key and rule sources
	ValidationContextServe ValidationContext = "serve"
	// ValidationContextResolve - interactive resolution needs a model key
	ValidationContextResolve ValidationContext = "resolve"
	// ValidationContextVerify - employer verification needs the search provider
	ValidationContextVerify ValidationContext = "verify"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}
	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}
	return sb.String()
}

// Validate validates configuration for the given context with auto-detected mode
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	return c.ValidateWithMode(ctx, DetectMode())
}

// ValidateWithMode validates configuration for the given context and deployment mode
func (c *Config) ValidateWithMode(ctx ValidationContext, mode DeploymentMode) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextServe:
		c.validateLLM(result, true)
		c.validateResolution(result)
		c.validateVerification(result, false)
		c.validateRuleSources(result)
		c.validateServer(result, mode)
	case ValidationContextResolve:
		c.validateLLM(result, true)
		c.validateResolution(result)
		c.validateVerification(result, false)
	case ValidationContextVerify:
		c.validateVerification(result, true)
	case ValidationContextAll:
		c.validateLLM(result, false)
		c.validateResolution(result)
		c.validateVerification(result, false)
		c.validateRuleSources(result)
		c.validateServer(result, mode)
		c.validateAudit(result)
	}

	return result
}

// Require returns a config error when validation for ctx fails
func (c *Config) Require(ctx ValidationContext) error {
	result := c.Validate(ctx)
	if result.HasErrors() {
		return errors.ConfigError(result.Error())
	}
	return nil
}

func (c *Config) validateLLM(result *ValidationResult, required bool) {
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIKey == "" {
			if required {
				result.AddError("OPENAI_API_KEY is required but not set. Set it via environment variable or keychain.")
			} else {
				result.AddWarning("OPENAI_API_KEY is not set. Conversations cannot be started.")
			}
		}
		if c.LLM.OpenAIModel == "" {
			result.AddWarning("llm.openai_model is not set, will use gpt-4o")
		}
	case "gemini":
		if c.LLM.GeminiKey == "" {
			if required {
				result.AddError("GEMINI_API_KEY is required when llm.provider is gemini")
			} else {
				result.AddWarning("GEMINI_API_KEY is not set. Conversations cannot be started.")
			}
		}
	default:
		result.AddError("llm.provider must be openai or gemini, got %q", c.LLM.Provider)
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		result.AddError("llm.temperature must be between 0 and 2, got %.2f", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		result.AddWarning("llm.max_tokens is invalid, will use default (2000)")
	}
	if c.LLM.Timeout <= 0 {
		result.AddWarning("llm.timeout is invalid, will use default (30s)")
	}
}

func (c *Config) validateResolution(result *ValidationResult) {
	if c.Resolution.MaxToolRounds < 1 {
		result.AddError("resolution.max_tool_rounds must be at least 1, got %d", c.Resolution.MaxToolRounds)
	}
	if c.Resolution.MaxTurns < 1 {
		result.AddError("resolution.max_turns must be at least 1, got %d", c.Resolution.MaxTurns)
	}
}

func (c *Config) validateVerification(result *ValidationResult, required bool) {
	if c.Verification.SearchKey == "" {
		if required {
			result.AddError("PERPLEXITY_API_KEY is required but not set")
		} else {
			result.AddWarning("PERPLEXITY_API_KEY is not set. Employers missing from the allowlist cannot be verified.")
		}
	}
	if c.Verification.AllowlistURL == "" {
		result.AddWarning("EMPLOYER_ALLOWLIST_SHEET_URL is not set. Employer verification will use AI search only.")
	} else if _, err := url.ParseRequestURI(c.Verification.AllowlistURL); err != nil {
		result.AddError("EMPLOYER_ALLOWLIST_SHEET_URL is invalid: %v", err)
	}
	if c.Verification.SearchBaseURL != "" {
		if _, err := url.ParseRequestURI(c.Verification.SearchBaseURL); err != nil {
			result.AddError("verification.search_base_url is invalid: %v", err)
		}
	}
	if c.Verification.AllowlistTTL <= 0 {
		result.AddWarning("verification.allowlist_ttl is invalid, will use default (1h)")
	}
}

func (c *Config) validateRuleSources(result *ValidationResult) {
	if c.Blacklist.URL == "" {
		result.AddWarning("BLACKLIST_SHEET_URL is not set. The blacklist rule will pass every applicant.")
	}
	if c.Geocoding.APIKey == "" {
		result.AddWarning("GOOGLE_MAPS_API_KEY is not set. The distance rule will flag addresses as unverifiable.")
	}
	if c.Geocoding.LimitKm <= 0 {
		result.AddError("geocoding.limit_km must be positive, got %.1f", c.Geocoding.LimitKm)
	}
}

func (c *Config) validateServer(result *ValidationResult, mode DeploymentMode) {
	if c.Server.Addr == "" {
		result.AddError("server.addr is required")
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" && mode.RequiresSecureSettings() {
			result.AddError("CORS_ORIGINS contains '*'. This is not allowed in %s mode (%s).", mode, mode.Description())
		}
	}
	if len(c.Server.CORSOrigins) == 0 {
		result.AddWarning("CORS_ORIGINS is empty, browsers will not be able to call the API")
	}
}

func (c *Config) validateAudit(result *ValidationResult) {
	switch c.Audit.Format {
	case "bolt", "jsonl", "sqlite", "postgres":
	default:
		result.AddError("audit.format must be bolt, jsonl, sqlite or postgres, got %q", c.Audit.Format)
	}
	if c.Audit.Path == "" {
		result.AddError("audit.path is required")
	}
}
