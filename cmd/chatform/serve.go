package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatform/chatform/internal/config"
	"github.com/chatform/chatform/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the validation, resolution and pre-screening API.

Examples:
  chatform serve
  chatform serve --addr :9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	result := cfg.Validate(config.ValidationContextServe)
	for _, w := range result.Warnings {
		logger.Warn("config warning", "warning", w)
	}
	if result.HasErrors() {
		return fmt.Errorf("invalid configuration:\n%s", result.Error())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, true, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("failed to close services", "error", err)
		}
	}()

	logger.Info("starting server",
		"rules", svc.rules.Rules(),
		"tools", svc.tools.Names(),
		"audit", cfg.Audit.Format,
	)
	srv := server.New(cfg.Server, server.Deps{
		Rules:   svc.rules,
		Model:   svc.model,
		Tools:   svc.tools,
		Audit:   svc.audit,
		Options: svc.resolutionOptions(cfg),
		Version: Version,
	})
	return srv.Run(ctx)
}
