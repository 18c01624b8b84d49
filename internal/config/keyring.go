package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "ChatForm"

	// KeyringAPIKeyItem is the item holding the model provider key
	KeyringAPIKeyItem = "openai-api-key"

	// KeyringSearchKeyItem is the item holding the AI search provider key
	KeyringSearchKeyItem = "perplexity-api-key"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// SaveAPIKey stores the model provider key in the OS keychain
func (km *KeyringManager) SaveAPIKey(apiKey string) error {
	return km.set(KeyringAPIKeyItem, apiKey)
}

// GetAPIKey retrieves the model provider key; a missing item is not an error
func (km *KeyringManager) GetAPIKey() (string, error) {
	return km.get(KeyringAPIKeyItem)
}

// DeleteAPIKey removes the model provider key
func (km *KeyringManager) DeleteAPIKey() error {
	return km.delete(KeyringAPIKeyItem)
}

// SaveSearchKey stores the AI search provider key
func (km *KeyringManager) SaveSearchKey(apiKey string) error {
	return km.set(KeyringSearchKeyItem, apiKey)
}

// GetSearchKey retrieves the AI search provider key
func (km *KeyringManager) GetSearchKey() (string, error) {
	return km.get(KeyringSearchKeyItem)
}

func (km *KeyringManager) set(item, secret string) error {
	if secret == "" {
		return fmt.Errorf("%s cannot be empty", item)
	}
	if err := keyring.Set(KeyringService, item, secret); err != nil {
		km.logger.Error("failed to save secret to keychain", "item", item, "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	km.logger.Info("secret saved to keychain", "service", KeyringService, "item", item)
	return nil
}

func (km *KeyringManager) get(item string) (string, error) {
	secret, err := keyring.Get(KeyringService, item)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to read secret from keychain", "item", item, "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	km.logger.Debug("secret retrieved from keychain", "item", item)
	return secret, nil
}

func (km *KeyringManager) delete(item string) error {
	err := keyring.Delete(KeyringService, item)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		km.logger.Error("failed to delete secret from keychain", "item", item, "error", err)
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	km.logger.Info("secret deleted from keychain", "item", item)
	return nil
}

// IsAvailable checks if OS keychain is available.
// Returns false on headless systems where no secret service is running.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return true
	}
	km.logger.Debug("keychain not available", "error", err)
	return false
}

// KeySource reports where the model provider key came from
func (km *KeyringManager) KeySource(cfg *Config) string {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return "env"
	}
	if cfg.LLM.UseKeychain {
		if key, _ := km.GetAPIKey(); key != "" {
			return "keychain"
		}
	}
	if cfg.LLM.OpenAIKey != "" {
		return "config"
	}
	return "none"
}

// MaskAPIKey masks an API key for display: "sk-proj...abcd"
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "(not set)"
	}
	if len(apiKey) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", apiKey[:7], apiKey[len(apiKey)-4:])
}
