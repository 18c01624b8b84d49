package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chatform/chatform/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage configuration",
}

var validateContext string

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for a command",
	Long: `Check that the configuration has what a command needs.

Examples:
  chatform config validate
  chatform config validate --for serve`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration, keys masked",
	RunE:  runConfigShow,
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [openai|perplexity]",
	Short: "Store a provider API key in the OS keychain",
	Long: `Store a provider API key in the OS keychain and enable keychain lookup
in the config file. The key is read from the terminal without echo.

Examples:
  chatform config set-key openai
  chatform config set-key perplexity`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"openai", "perplexity"},
	RunE:      runConfigSetKey,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetKeyCmd)

	configValidateCmd.Flags().StringVar(&validateContext, "for", "all", "command to validate for: serve, resolve, verify, all")
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	ctx := config.ValidationContext(strings.ToLower(validateContext))
	switch ctx {
	case config.ValidationContextServe, config.ValidationContextResolve,
		config.ValidationContextVerify, config.ValidationContextAll:
	default:
		return fmt.Errorf("unknown validation context %q", validateContext)
	}

	mode := config.DetectMode()
	result := cfg.ValidateWithMode(ctx, mode)
	fmt.Printf("Mode: %s (%s)\n", mode, mode.Description())
	if !result.HasErrors() && len(result.Warnings) == 0 {
		fmt.Println("Configuration is valid.")
		return nil
	}
	if result.HasErrors() {
		fmt.Print(result.Error())
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
	}
	fmt.Println("Configuration is valid, with warnings:")
	for _, w := range result.Warnings {
		fmt.Printf("  - %s\n", w)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager()

	fmt.Println("server:")
	fmt.Printf("  addr = %s\n", cfg.Server.Addr)
	fmt.Printf("  cors_origins = %s\n", strings.Join(cfg.Server.CORSOrigins, ","))

	fmt.Println("llm:")
	fmt.Printf("  provider = %s\n", cfg.LLM.Provider)
	fmt.Printf("  openai_model = %s\n", cfg.LLM.OpenAIModel)
	fmt.Printf("  openai_key = %s (source: %s)\n", config.MaskAPIKey(cfg.LLM.OpenAIKey), km.KeySource(cfg))
	fmt.Printf("  gemini_model = %s\n", cfg.LLM.GeminiModel)
	fmt.Printf("  gemini_key = %s\n", config.MaskAPIKey(cfg.LLM.GeminiKey))
	fmt.Printf("  timeout = %s\n", cfg.LLM.Timeout)

	fmt.Println("resolution:")
	fmt.Printf("  max_tool_rounds = %d\n", cfg.Resolution.MaxToolRounds)
	fmt.Printf("  max_turns = %d\n", cfg.Resolution.MaxTurns)

	fmt.Println("verification:")
	fmt.Printf("  allowlist_url = %s\n", orUnset(cfg.Verification.AllowlistURL))
	fmt.Printf("  search_model = %s\n", cfg.Verification.SearchModel)
	fmt.Printf("  search_key = %s\n", config.MaskAPIKey(cfg.Verification.SearchKey))

	fmt.Println("rules:")
	fmt.Printf("  blacklist.url = %s\n", orUnset(cfg.Blacklist.URL))
	fmt.Printf("  geocoding.api_key = %s\n", config.MaskAPIKey(cfg.Geocoding.APIKey))
	fmt.Printf("  geocoding.limit_km = %g\n", cfg.Geocoding.LimitKm)

	fmt.Println("storage:")
	fmt.Printf("  cache.redis_url = %s\n", orUnset(cfg.Cache.RedisURL))
	fmt.Printf("  audit = %s (%s)\n", cfg.Audit.Path, cfg.Audit.Format)
	return nil
}

func runConfigSetKey(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager()
	if !km.IsAvailable() {
		return fmt.Errorf("OS keychain is not available; set the key through the environment instead")
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return fmt.Errorf("set-key must be run from a terminal")
	}

	fmt.Fprintf(os.Stderr, "Enter %s API key: ", args[0])
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	key := strings.TrimSpace(string(raw))

	switch args[0] {
	case "openai":
		err = km.SaveAPIKey(key)
	case "perplexity":
		err = km.SaveSearchKey(key)
	default:
		return fmt.Errorf("unknown provider %q", args[0])
	}
	if err != nil {
		return err
	}

	cfg.LLM.UseKeychain = true
	path := configPath()
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Saved %s key %s to the OS keychain; keychain lookup enabled in %s\n",
		args[0], config.MaskAPIKey(key), path)
	return nil
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(".chatform", "config.yaml")
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
