// Package metrics provides Prometheus collectors and HTTP middleware for
// monitoring code executions, pod teardown and the inbound API.
package metrics
