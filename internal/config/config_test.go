package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.OpenAIModel)
	assert.Equal(t, 0.5, cfg.LLM.Temperature)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Resolution.MaxToolRounds)
	assert.Equal(t, 10, cfg.Resolution.MaxTurns)
	assert.Equal(t, time.Hour, cfg.Verification.AllowlistTTL)
	assert.Equal(t, "sonar", cfg.Verification.SearchModel)
	assert.Equal(t, "Thailand", cfg.Verification.Jurisdiction)
	assert.Equal(t, 150.0, cfg.Geocoding.LimitKm)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
llm:
  openai_model: gpt-4o-mini
  temperature: 0.2
resolution:
  max_turns: 6
verification:
  jurisdiction: Malaysia
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	t.Setenv("OPENAI_API_KEY", "sk-from-env-0000")
	t.Setenv("PERPLEXITY_API_KEY", "pplx-123")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAIModel)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens, "unset keys keep defaults")
	assert.Equal(t, 6, cfg.Resolution.MaxTurns)
	assert.Equal(t, 3, cfg.Resolution.MaxToolRounds)
	assert.Equal(t, "Malaysia", cfg.Verification.Jurisdiction)
	assert.Equal(t, "sk-from-env-0000", cfg.LLM.OpenAIKey)
	assert.Equal(t, "pplx-123", cfg.Verification.SearchKey)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidate_Serve(t *testing.T) {
	cfg := Default()

	result := cfg.ValidateWithMode(ValidationContextServe, ModeDevelopment)
	assert.True(t, result.HasErrors(), "missing model key must fail")
	assert.Contains(t, result.Error(), "OPENAI_API_KEY")

	cfg.LLM.OpenAIKey = "sk-test-1234567890"
	result = cfg.ValidateWithMode(ValidationContextServe, ModeDevelopment)
	assert.False(t, result.HasErrors(), result.Error())
	assert.NotEmpty(t, result.Warnings)
}

func TestValidate_WildcardCORSInProduction(t *testing.T) {
	cfg := Default()
	cfg.LLM.OpenAIKey = "sk-test-1234567890"
	cfg.Server.CORSOrigins = []string{"*"}

	assert.False(t, cfg.ValidateWithMode(ValidationContextServe, ModeDevelopment).HasErrors())
	assert.True(t, cfg.ValidateWithMode(ValidationContextServe, ModeProduction).HasErrors())
}

func TestValidate_ResolutionBounds(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "gemini"
	cfg.LLM.GeminiKey = "g-key"
	cfg.Resolution.MaxToolRounds = 0

	result := cfg.ValidateWithMode(ValidationContextResolve, ModeDevelopment)
	assert.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "max_tool_rounds")
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "anthropic"

	result := cfg.ValidateWithMode(ValidationContextAll, ModeDevelopment)
	assert.Contains(t, result.Error(), "llm.provider")
}

func TestSave_OmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.LLM.OpenAIKey = "sk-secret-should-not-persist"
	path := filepath.Join(t.TempDir(), "out", "config.yaml")

	require.NoError(t, cfg.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret-should-not-persist")
}
