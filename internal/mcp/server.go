// Package mcp exposes the verification tools over the Model Context
// Protocol so that MCP clients can call them outside a resolution
// conversation.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/tools"
)

const serverName = "chatform"

// verifyEmployerInput mirrors the verify_employer parameters
type verifyEmployerInput struct {
	CompanyName       string `json:"companyName" jsonschema:"registered name of the employer"`
	CompanyWebsite    string `json:"companyWebsite,omitempty" jsonschema:"employer website, if known"`
	AdditionalContext string `json:"additionalContext,omitempty" jsonschema:"anything else the applicant said about the employer"`
}

// Server serves the tool registry over MCP
type Server struct {
	registry *tools.Registry
	server   *sdk.Server
	logger   *slog.Logger
}

// NewServer builds an MCP server for the registry's tools
func NewServer(registry *tools.Registry, version string) (*Server, error) {
	if registry == nil {
		return nil, errors.ConfigError("mcp server needs a tool registry")
	}
	s := &Server{
		registry: registry,
		server:   sdk.NewServer(&sdk.Implementation{Name: serverName, Version: version}, nil),
		logger:   slog.Default().With("component", "mcp"),
	}

	registered := 0
	for _, name := range registry.Names() {
		switch name {
		case tools.EmployerToolName:
			desc, _ := registry.Describe(name)
			sdk.AddTool(s.server, &sdk.Tool{Name: name, Description: desc.Description}, s.verifyEmployer)
			registered++
		default:
			s.logger.Warn("tool has no MCP binding, skipping", "tool", name)
		}
	}
	if registered == 0 {
		return nil, errors.ConfigError("no tools to serve over mcp")
	}
	return s, nil
}

// Run serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "tools", s.registry.Names())
	if err := s.server.Run(ctx, &sdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		return errors.NetworkError(err, "mcp stdio session ended")
	}
	return nil
}

func (s *Server) verifyEmployer(ctx context.Context, _ *sdk.CallToolRequest, in verifyEmployerInput) (*sdk.CallToolResult, any, error) {
	args, err := json.Marshal(in)
	if err != nil {
		return nil, nil, errors.InternalErrorf("encode arguments: %v", err)
	}
	return s.call(ctx, tools.EmployerToolName, args), nil, nil
}

// call runs a registry tool and renders its result. Tool failures are
// reported as tool errors, not protocol errors, so the client sees them.
func (s *Server) call(ctx context.Context, name string, args json.RawMessage) *sdk.CallToolResult {
	result := s.registry.Execute(ctx, name, args)
	body, err := json.Marshal(result)
	if err != nil {
		body = []byte(`{"success":false,"error":"tool result could not be encoded"}`)
	}
	s.logger.Debug("tool call served", "tool", name, "success", result.Success)
	return &sdk.CallToolResult{
		IsError: !result.Success,
		Content: []sdk.Content{&sdk.TextContent{Text: string(body)}},
	}
}
