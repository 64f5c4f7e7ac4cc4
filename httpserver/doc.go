// Package httpserver exposes code execution over HTTP.
//
// The chi router serves POST /run-code, GET /healthz and GET /metrics, and
// optionally mounts the MCP streamable HTTP handler at /mcp. Every request
// passes through request id, real IP, zap request logging, panic recovery
// and Prometheus middleware.
package httpserver
