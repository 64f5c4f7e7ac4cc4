package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/sandbox"
)

// MockExecutor implements Executor for testing
type MockExecutor struct {
	languages []string
	result    sandbox.Result
	requests  []sandbox.SandboxRequest
}

func (m *MockExecutor) Execute(_ context.Context, req sandbox.SandboxRequest) sandbox.Result {
	m.requests = append(m.requests, req)
	return m.result
}

func (m *MockExecutor) Languages() []string {
	return m.languages
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{MCPTransport: "stdio", HTTPPort: 3000},
		Sandbox: config.SandboxConfig{MaxCodeLength: 1000},
	}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = ToolName
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	return body
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	executor := &MockExecutor{languages: []string{"node", "python"}}

	server, err := New(cfg, logger, executor)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, logger, server.logger)
	assert.NotNil(t, server.GetMCPServer())
	assert.NotNil(t, server.HTTPHandler())

	_, err = New(cfg, logger, &MockExecutor{})
	require.Error(t, err)
}

func TestHandleRunCode(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Success", func(t *testing.T) {
		output := "1\n"
		executor := &MockExecutor{
			languages: []string{"python"},
			result:    sandbox.Result{Status: http.StatusOK, Body: sandbox.Response{Output: &output}},
		}
		server, err := New(testConfig(), logger, executor)
		require.NoError(t, err)

		result, err := server.handleRunCode(context.Background(), callRequest(map[string]any{
			"language": "python",
			"code":     "print(1)",
		}))
		require.NoError(t, err)

		assert.False(t, result.IsError)
		assert.Equal(t, map[string]any{"status": float64(200), "output": "1\n"}, resultText(t, result))
		require.Len(t, executor.requests, 1)
		assert.Equal(t, sandbox.SandboxRequest{Language: "python", Code: "print(1)"}, executor.requests[0])
	})

	t.Run("ExecutionFailed", func(t *testing.T) {
		output := "Traceback..."
		executor := &MockExecutor{
			languages: []string{"python"},
			result: sandbox.Result{
				Status: http.StatusUnprocessableEntity,
				Body:   sandbox.Response{Error: sandbox.MsgExecutionFailed, Output: &output},
			},
		}
		server, err := New(testConfig(), logger, executor)
		require.NoError(t, err)

		result, err := server.handleRunCode(context.Background(), callRequest(map[string]any{
			"language": "python",
			"code":     "1/0",
		}))
		require.NoError(t, err)

		assert.True(t, result.IsError)
		body := resultText(t, result)
		assert.Equal(t, float64(422), body["status"])
		assert.Equal(t, "Execution failed", body["error"])
	})

	t.Run("MissingCode", func(t *testing.T) {
		executor := &MockExecutor{languages: []string{"python"}}
		server, err := New(testConfig(), logger, executor)
		require.NoError(t, err)

		result, err := server.handleRunCode(context.Background(), callRequest(map[string]any{"language": "python"}))
		require.NoError(t, err)

		assert.True(t, result.IsError)
		assert.Equal(t, sandbox.MsgInvalidCode, resultText(t, result)["error"])
		assert.Empty(t, executor.requests)
	})
}
