// Package server provides the MCP server plumbing: the shared server
// context, per-conversation mailbox sessions and the operational HTTP
// endpoints.
//
// # Key Components
//
// ServerContext manages Gmail clients with lazy initialization and caching.
// It supports multiple accounts, each backed by its own token file, and
// carries the instrumentation wiring (metrics recorder, audit logger) the
// tool handlers share.
//
// SessionRegistry maps MCP session IDs to mailbox sessions so that each
// agent conversation keeps its own listing and position table. Idle
// sessions are evicted by a background cleanup loop. The stdio transport
// always resolves to a single default session.
//
// MetricsServer serves Prometheus metrics plus liveness and readiness
// probes on a dedicated port, isolated from MCP traffic.
package server
