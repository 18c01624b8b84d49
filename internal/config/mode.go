package config

import (
	"os"
	"strings"
)

// DeploymentMode represents the deployment context
type DeploymentMode string

const (
	// ModeDevelopment is a local checkout: .env files, permissive CORS, placeholder keys
	ModeDevelopment DeploymentMode = "development"

	// ModeProduction is a deployed service: real keys and explicit CORS origins required
	ModeProduction DeploymentMode = "production"

	// ModeCI is a pipeline run: everything from environment variables, fail fast
	ModeCI DeploymentMode = "ci"
)

// DetectMode determines the deployment context based on environment
func DetectMode() DeploymentMode {
	if mode := os.Getenv("CHATFORM_MODE"); mode != "" {
		switch strings.ToLower(mode) {
		case "development", "dev":
			return ModeDevelopment
		case "production", "prod":
			return ModeProduction
		case "ci":
			return ModeCI
		}
	}

	if isCI() {
		return ModeCI
	}

	if _, err := os.Stat(".env"); err == nil {
		return ModeDevelopment
	}
	if _, err := os.Stat("go.mod"); err == nil {
		return ModeDevelopment
	}

	return ModeProduction
}

func isCI() bool {
	for _, envVar := range []string{"CI", "CONTINUOUS_INTEGRATION", "GITHUB_ACTIONS", "GITLAB_CI", "BUILDKITE"} {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

// String returns the string representation of the mode
func (m DeploymentMode) String() string {
	return string(m)
}

// RequiresSecureSettings returns true if placeholder keys and wildcard CORS are rejected
func (m DeploymentMode) RequiresSecureSettings() bool {
	return m == ModeProduction
}

// Description returns a human-readable description of the mode
func (m DeploymentMode) Description() string {
	switch m {
	case ModeDevelopment:
		return "Local development"
	case ModeProduction:
		return "Deployed service"
	case ModeCI:
		return "CI/CD pipeline"
	default:
		return "Unknown mode"
	}
}
