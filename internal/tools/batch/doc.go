// Package batch provides shared helpers for MCP tools that act on one or
// many listing positions in a single call. It parses the number-or-array
// parameter shape and renders per-position results as a JSON report.
package batch
