package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatform/chatform/internal/config"
	"github.com/chatform/chatform/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the resolution tools over MCP (stdio)",
	Long: `Expose the tool registry, currently verify_employer, to MCP clients
over stdin/stdout. Logs go to stderr.

Example client configuration:
  {"command": "chatform", "args": ["mcp"]}`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	if err := cfg.Require(config.ValidationContextVerify); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, false, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv, err := mcp.NewServer(svc.tools, Version)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
