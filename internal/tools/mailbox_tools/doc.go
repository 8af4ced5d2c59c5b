// Package mailbox_tools registers the MCP tools a triage agent drives the
// mailbox with: listing unread messages and archiving or trashing them by
// listing position or provider message ID.
//
// Listings are numbered per conversation. The positions a tool call names
// always refer to the most recent list_unread_emails result of the same MCP
// session; stale positions fail instead of acting on the wrong message.
package mailbox_tools
