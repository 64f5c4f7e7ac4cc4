// Package main is the entry point for the coderunner service.
//
// Coderunner executes short, untrusted code snippets by creating one
// resource-limited pod per request, polling it to completion, returning its
// logs and deleting it on every exit path. It serves POST /run-code over
// HTTP and, optionally, an MCP run_code tool over stdio or HTTP.
//
// The command line is built with cobra (serve, run, config). The application
// uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
