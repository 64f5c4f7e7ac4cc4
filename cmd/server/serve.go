package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (and MCP server, if configured)",
	Long: `Start the HTTP server with POST /run-code, /healthz and /metrics.

The MCP run_code tool is served on stdio or mounted at /mcp depending on
server.mcp_transport.

Examples:
  coderunner serve
  coderunner serve --config /etc/coderunner/config.yaml
  CODERUNNER_SANDBOX_BACKEND=docker coderunner serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(*cobra.Command, []string) error {
	app := fx.New(
		coreModule(configFlag),
		serveModule(),
	)
	if err := app.Err(); err != nil {
		return err
	}

	// Run blocks until SIGINT/SIGTERM or a shutdown request
	app.Run()
	return nil
}
