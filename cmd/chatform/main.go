package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatform/chatform/internal/config"
	"github.com/chatform/chatform/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  = slog.Default()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatform",
	Short: "ChatForm - conversational resolution of application red flags",
	Long: `ChatForm validates loan applications against its red-flag rules and
resolves each flag through a short conversation with the applicant.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
			cfg = config.Default()
		}

		logCfg := logging.Config{
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSON,
			OutputFile: cfg.Logging.OutputFile,
		}
		if verbose {
			logCfg.Level = "debug"
		}
		if _, err := logging.Setup(logCfg); err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		logger = slog.Default().With("component", "cli")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .chatform/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`ChatForm {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(configCmd)
}
