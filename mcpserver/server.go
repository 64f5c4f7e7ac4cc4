package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/sandbox"
)

// ToolName is the name of the code execution tool
const ToolName = "run_code"

// Executor is the subset of sandbox.Service the tool needs
type Executor interface {
	Execute(ctx context.Context, req sandbox.SandboxRequest) sandbox.Result
	Languages() []string
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	executor  Executor
	mcpServer *server.MCPServer
}

// toolResult is the JSON text returned by run_code: the HTTP body plus its status
type toolResult struct {
	Status int `json:"status"`
	sandbox.Response
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, executor Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: executor,
	}

	languages := executor.Languages()
	if len(languages) == 0 {
		return nil, fmt.Errorf("no languages available for the %s tool", ToolName)
	}

	s.mcpServer = server.NewMCPServer("coderunner", "1.0.0", server.WithToolCapabilities(false))
	s.registerRunCodeTool(languages)

	return s, nil
}

// registerRunCodeTool registers the run_code tool
func (s *MCPServer) registerRunCodeTool(languages []string) {
	tool := mcp.Tool{
		Name:        ToolName,
		Description: "Run a short code snippet in an ephemeral, isolated container and return its output",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Source code passed to the interpreter as a single argument",
					"maxLength":   s.config.Sandbox.MaxCodeLength,
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Runtime language",
					"enum":        languages,
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunCode)
}

// handleRunCode handles the run_code tool
func (s *MCPServer) handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return errorResult(sandbox.MsgInvalidCode), nil
	}

	language, err := request.RequireString("language")
	if err != nil {
		return errorResult(sandbox.MsgUnsupportedLanguage), nil
	}

	s.logger.Info("code execution requested via MCP", zap.String("language", language), zap.Int("code_len", len(code)))

	result := s.executor.Execute(ctx, sandbox.SandboxRequest{Language: language, Code: code})

	text, err := json.Marshal(toolResult{Status: result.Status, Response: result.Body})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(text),
			},
		},
		IsError: result.Status != http.StatusOK,
	}, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	text, _ := json.Marshal(toolResult{Status: http.StatusBadRequest, Response: sandbox.Response{Error: msg}})
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(text),
			},
		},
		IsError: true,
	}
}

// ServeStdio serves MCP on stdin/stdout until the input is closed
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// HTTPHandler returns a streamable HTTP handler for mounting on the API router
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
