// Package cmd implements the command-line interface for inboxtriage.
//
// This package provides the following commands:
//   - serve: Start the MCP server that exposes the mailbox triage tools
//   - auth: Run the interactive OAuth authorization flow
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
