package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StdioServer exposes the tool set over stdio for direct agent attachment.
type StdioServer struct {
	tools  *Tools
	server *server.MCPServer
}

// NewStdioServer creates a stdio MCP server around the tool dispatcher.
func NewStdioServer(tools *Tools, version string) *StdioServer {
	s := &StdioServer{tools: tools}

	mcpServer := server.NewMCPServer(
		"gitbridge",
		version,
		server.WithToolCapabilities(true),
	)

	for _, def := range tools.Definitions() {
		mcpServer.AddTool(
			mcp.NewToolWithRawSchema(def.Name, def.Description, def.Schema),
			s.handleCall(def.Name),
		)
	}

	s.server = mcpServer
	return s
}

func (s *StdioServer) handleCall(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := s.tools.Call(ctx, name, request.GetArguments())
		if result.IsError {
			return mcp.NewToolResultError(result.Text), nil
		}
		return mcp.NewToolResultText(result.Text), nil
	}
}

// ServeStdio starts the MCP server on stdio.
func (s *StdioServer) ServeStdio() error {
	return server.ServeStdio(s.server)
}
