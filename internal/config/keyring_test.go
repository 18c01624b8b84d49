package config

import (
	"os"
	"testing"
)

func TestKeyringManager_SaveAndGetAPIKey(t *testing.T) {
	km := NewKeyringManager()

	// Check if keychain is available (skip test on CI without keychain)
	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	defer km.DeleteAPIKey()

	testKey := "sk-test123456789"

	if err := km.SaveAPIKey(testKey); err != nil {
		t.Fatalf("Failed to save API key: %v", err)
	}

	retrievedKey, err := km.GetAPIKey()
	if err != nil {
		t.Fatalf("Failed to get API key: %v", err)
	}
	if retrievedKey != testKey {
		t.Errorf("Expected key %s, got %s", testKey, retrievedKey)
	}
}

func TestKeyringManager_GetAPIKey_NotFound(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	km.DeleteAPIKey()

	retrievedKey, err := km.GetAPIKey()
	if err != nil {
		t.Fatalf("Expected no error for non-existent key, got: %v", err)
	}
	if retrievedKey != "" {
		t.Errorf("Expected empty string for non-existent key, got: %s", retrievedKey)
	}
}

func TestKeyringManager_SaveAPIKey_EmptyKey(t *testing.T) {
	km := NewKeyringManager()

	if err := km.SaveAPIKey(""); err == nil {
		t.Error("Expected error when saving empty API key")
	}
	if err := km.SaveSearchKey(""); err == nil {
		t.Error("Expected error when saving empty search key")
	}
}

func TestKeySource_EnvironmentVariable(t *testing.T) {
	km := NewKeyringManager()
	cfg := Default()

	os.Setenv("OPENAI_API_KEY", "sk-env-test-123")
	defer os.Unsetenv("OPENAI_API_KEY")

	if source := km.KeySource(cfg); source != "env" {
		t.Errorf("Expected source 'env', got '%s'", source)
	}
}

func TestKeySource_ConfigFile(t *testing.T) {
	km := NewKeyringManager()
	cfg := Default()
	cfg.LLM.OpenAIKey = "sk-config-test-123"

	os.Unsetenv("OPENAI_API_KEY")

	if source := km.KeySource(cfg); source != "config" {
		t.Errorf("Expected source 'config', got '%s'", source)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-proj-abcdefghijkl1234", "sk-proj...1234"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.in); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
