// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes a single run_code tool backed by the same
// sandbox.Service as the HTTP API. It uses the mark3labs/mcp-go library to
// handle the protocol details. The tool result is the HTTP response body as
// JSON with the status code added, and is flagged as an error for any status
// other than 200.
//
// The server is served on stdio, or mounted on the HTTP router at /mcp, as
// selected by server.mcp_transport.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, service)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or router.Handle("/mcp", server.HTTPHandler())
package mcpserver
