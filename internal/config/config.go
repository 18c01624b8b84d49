package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Resolution   ResolutionConfig   `mapstructure:"resolution"`
	Verification VerificationConfig `mapstructure:"verification"`
	Blacklist    BlacklistConfig    `mapstructure:"blacklist"`
	Geocoding    GeocodingConfig    `mapstructure:"geocoding"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // "openai", "gemini"
	OpenAIKey   string        `mapstructure:"openai_key"`
	OpenAIModel string        `mapstructure:"openai_model"`
	GeminiKey   string        `mapstructure:"gemini_key"`
	GeminiModel string        `mapstructure:"gemini_model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"` // Requests per second, 0 disables
	UseKeychain bool          `mapstructure:"use_keychain"`
}

type ResolutionConfig struct {
	MaxToolRounds int `mapstructure:"max_tool_rounds"`
	MaxTurns      int `mapstructure:"max_turns"`
}

type VerificationConfig struct {
	AllowlistURL     string        `mapstructure:"allowlist_url"`
	AllowlistTTL     time.Duration `mapstructure:"allowlist_ttl"`
	SearchKey        string        `mapstructure:"search_key"`
	SearchModel      string        `mapstructure:"search_model"`
	SearchBaseURL    string        `mapstructure:"search_base_url"`
	Jurisdiction     string        `mapstructure:"jurisdiction"`
	ExcludedIndustry string        `mapstructure:"excluded_industry"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type BlacklistConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type GeocodingConfig struct {
	APIKey    string  `mapstructure:"api_key"`
	URL       string  `mapstructure:"url"`
	LimitKm   float64 `mapstructure:"limit_km"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

type CacheConfig struct {
	RedisURL string `mapstructure:"redis_url"` // Empty keeps sheet caches in process
}

type AuditConfig struct {
	Path   string `mapstructure:"path"`   // File path, or a DSN for postgres
	Format string `mapstructure:"format"` // "bolt", "jsonl", "sqlite", "postgres"
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	JSON       bool   `mapstructure:"json"`
	OutputFile string `mapstructure:"output_file"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8000",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		LLM: LLMConfig{
			Provider:    "openai",
			OpenAIModel: "gpt-4o",
			GeminiModel: "gemini-2.0-flash",
			Temperature: 0.5,
			MaxTokens:   2000,
			Timeout:     30 * time.Second,
		},
		Resolution: ResolutionConfig{
			MaxToolRounds: 3,
			MaxTurns:      10,
		},
		Verification: VerificationConfig{
			AllowlistTTL:     time.Hour,
			SearchModel:      "sonar",
			SearchBaseURL:    "https://api.perplexity.ai",
			Jurisdiction:     "Thailand",
			ExcludedIndustry: "securities/brokerage",
			Timeout:          15 * time.Second,
		},
		Blacklist: BlacklistConfig{
			TTL: time.Hour,
		},
		Geocoding: GeocodingConfig{
			URL:       "https://maps.googleapis.com/maps/api/geocode/json",
			LimitKm:   150,
			RateLimit: 10,
		},
		Audit: AuditConfig{
			Path:   filepath.Join(".chatform", "audit.db"),
			Format: "bolt",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("server", cfg.Server)
	v.SetDefault("llm", cfg.LLM)
	v.SetDefault("resolution", cfg.Resolution)
	v.SetDefault("verification", cfg.Verification)
	v.SetDefault("blacklist", cfg.Blacklist)
	v.SetDefault("geocoding", cfg.Geocoding)
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("audit", cfg.Audit)
	v.SetDefault("logging", cfg.Logging)

	v.SetEnvPrefix("CHATFORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".chatform")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".chatform"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".chatform", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the unprefixed environment variables the
// deployment has always used.
func applyEnvOverrides(cfg *Config) {
	// Precedence for the model key: 1. Env var 2. Keychain 3. Config file
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	} else if cfg.LLM.OpenAIKey == "" && cfg.LLM.UseKeychain {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if keychainKey, err := km.GetAPIKey(); err == nil && keychainKey != "" {
				cfg.LLM.OpenAIKey = keychainKey
			}
		}
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.LLM.OpenAIModel = model
	}
	if maxTokens := os.Getenv("OPENAI_MAX_TOKENS"); maxTokens != "" {
		if n, err := strconv.Atoi(maxTokens); err == nil {
			cfg.LLM.MaxTokens = n
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLM.GeminiKey = key
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		cfg.LLM.Provider = provider
	}

	if key := os.Getenv("PERPLEXITY_API_KEY"); key != "" {
		cfg.Verification.SearchKey = key
	} else if cfg.Verification.SearchKey == "" && cfg.LLM.UseKeychain {
		if key, err := NewKeyringManager().GetSearchKey(); err == nil && key != "" {
			cfg.Verification.SearchKey = key
		}
	}
	if url := os.Getenv("EMPLOYER_ALLOWLIST_SHEET_URL"); url != "" {
		cfg.Verification.AllowlistURL = url
	}
	if url := os.Getenv("BLACKLIST_SHEET_URL"); url != "" {
		cfg.Blacklist.URL = url
	}
	if key := os.Getenv("GOOGLE_MAPS_API_KEY"); key != "" {
		cfg.Geocoding.APIKey = key
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Cache.RedisURL = url
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		var list []string
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				list = append(list, o)
			}
		}
		cfg.Server.CORSOrigins = list
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if path := os.Getenv("AUDIT_PATH"); path != "" {
		cfg.Audit.Path = expandPath(path)
	}
	if format := os.Getenv("AUDIT_FORMAT"); format != "" {
		cfg.Audit.Format = strings.ToLower(format)
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file. API keys are never written.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	llm := c.LLM
	llm.OpenAIKey = ""
	llm.GeminiKey = ""
	verification := c.Verification
	verification.SearchKey = ""
	geocoding := c.Geocoding
	geocoding.APIKey = ""

	v.Set("server", c.Server)
	v.Set("llm", llm)
	v.Set("resolution", c.Resolution)
	v.Set("verification", verification)
	v.Set("blacklist", c.Blacklist)
	v.Set("geocoding", geocoding)
	v.Set("cache", c.Cache)
	v.Set("audit", c.Audit)
	v.Set("logging", c.Logging)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
