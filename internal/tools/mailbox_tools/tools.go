package mailbox_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
	"github.com/inboxtriage/inboxtriage/internal/mailbox"
	"github.com/inboxtriage/inboxtriage/internal/server"
	"github.com/inboxtriage/inboxtriage/internal/tools/batch"
	"github.com/inboxtriage/inboxtriage/internal/tools/common"
)

const (
	// maxSubjectLen caps subjects in mutation confirmations.
	maxSubjectLen = 60

	// maxPreviewLen caps the body preview in listings.
	maxPreviewLen = 200
)

// RegisterMailboxTools registers the mailbox tools with the MCP server.
// With readOnly set, only the listing tool is registered.
func RegisterMailboxTools(s *mcpserver.MCPServer, sc *server.ServerContext, sessions *server.SessionRegistry, readOnly bool) error {
	listTool := mcp.NewTool("list_unread_emails",
		mcp.WithDescription("List unread emails in the inbox as a numbered listing. Positions in the listing can be used with archive_email and delete_email."),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple mailboxes."),
		),
		mcp.WithString("subject_filter",
			mcp.Description("Only list emails whose subject contains this text"),
		),
		mcp.WithNumber("max_results",
			mcp.Description(fmt.Sprintf("Maximum number of emails to list (default: %d)", gmail.DefaultMaxResults)),
		),
	)

	s.AddTool(listTool, mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler("list_unread_emails", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListUnread(ctx, request, sc, sessions)
		})))

	if readOnly {
		return nil
	}

	archiveTool := mcp.NewTool("archive_email",
		mcp.WithDescription("Archive one or more emails by removing them from the inbox and marking them read. Address emails by listing position, several positions, or message ID."),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple mailboxes."),
		),
		mcp.WithNumber("position",
			mcp.Description("Position from the most recent listing"),
		),
		mcp.WithArray("positions",
			mcp.Description("Array of positions from the most recent listing"),
			mcp.Items(map[string]any{"type": "number"}),
		),
		mcp.WithString("message_id",
			mcp.Description("Provider message ID, bypassing the listing"),
		),
	)

	s.AddTool(archiveTool, mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler("archive_email", "archive", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleMutation(ctx, request, sessions, mutationArchive)
		})))

	deleteTool := mcp.NewTool("delete_email",
		mcp.WithDescription("Move one or more emails to the trash and mark them read. The trash is recoverable until the provider purges it. Address emails by listing position, several positions, or message ID."),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple mailboxes."),
		),
		mcp.WithNumber("position",
			mcp.Description("Position from the most recent listing"),
		),
		mcp.WithArray("positions",
			mcp.Description("Array of positions from the most recent listing"),
			mcp.Items(map[string]any{"type": "number"}),
		),
		mcp.WithString("message_id",
			mcp.Description("Provider message ID, bypassing the listing"),
		),
	)

	s.AddTool(deleteTool, mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler("delete_email", "trash", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleMutation(ctx, request, sessions, mutationDelete)
		})))

	return nil
}

// sessionIDFromContext resolves the MCP client session ID, falling back to
// the default session for transports without one (stdio).
func sessionIDFromContext(ctx context.Context) string {
	if cs := mcpserver.ClientSessionFromContext(ctx); cs != nil {
		return cs.SessionID()
	}
	return server.DefaultSessionID
}

func handleListUnread(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, sessions *server.SessionRegistry) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)

	filter := mailbox.Filter{}
	if subjectVal, ok := args["subject_filter"].(string); ok {
		filter.SubjectContains = subjectVal
	}
	if maxVal, ok := args["max_results"].(float64); ok && maxVal > 0 {
		filter.MaxResults = int64(maxVal)
	}

	session, err := sessions.SessionFor(sessionIDFromContext(ctx), account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open mailbox session: %v", err)), nil
	}

	emails, err := session.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list unread emails: %v", err)), nil
	}

	if m := sc.Metrics(); m != nil {
		m.RecordListingSize(ctx, len(emails))
	}

	if len(emails) == 0 {
		return mcp.NewToolResultText("No unread emails."), nil
	}

	return mcp.NewToolResultText(formatListing(emails)), nil
}

// formatListing renders emails as the numbered listing positions refer to.
func formatListing(emails []gmail.Email) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d unread emails:\n\n", len(emails))
	for i, email := range emails {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, email.Subject)
		fmt.Fprintf(&sb, "   From: %s\n", email.Sender)
		fmt.Fprintf(&sb, "   Date: %s\n", email.Date)
		if email.Snippet != "" {
			fmt.Fprintf(&sb, "   Snippet: %s\n", email.Snippet)
		}
		if preview := previewBody(email.Body); preview != "" {
			fmt.Fprintf(&sb, "   %s\n", preview)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// mutation describes one of the two mailbox mutations so archive_email and
// delete_email can share a handler.
type mutation struct {
	// verb appears in confirmations ("Archived", "Deleted")
	verb string

	byPosition func(s *mailbox.Session, ctx context.Context, pos int) (gmail.Email, error)
	byID       func(s *mailbox.Session, ctx context.Context, id string) (gmail.Email, error)
	many       func(s *mailbox.Session, ctx context.Context, positions []int) []mailbox.BatchOutcome
}

var mutationArchive = mutation{
	verb:       "Archived",
	byPosition: (*mailbox.Session).Archive,
	byID:       (*mailbox.Session).ArchiveByID,
	many:       (*mailbox.Session).ArchiveMany,
}

var mutationDelete = mutation{
	verb:       "Deleted",
	byPosition: (*mailbox.Session).Delete,
	byID:       (*mailbox.Session).DeleteByID,
	many:       (*mailbox.Session).DeleteMany,
}

func handleMutation(ctx context.Context, request mcp.CallToolRequest, sessions *server.SessionRegistry, mut mutation) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)

	messageID, _ := args["message_id"].(string)
	_, hasPosition := args["position"]
	_, hasPositions := args["positions"]

	modes := 0
	if messageID != "" {
		modes++
	}
	if hasPosition {
		modes++
	}
	if hasPositions {
		modes++
	}
	if modes == 0 {
		return mcp.NewToolResultError("one of message_id, position or positions is required"), nil
	}
	if modes > 1 {
		return mcp.NewToolResultError("message_id, position and positions are mutually exclusive"), nil
	}

	session, err := sessions.SessionFor(sessionIDFromContext(ctx), account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open mailbox session: %v", err)), nil
	}

	switch {
	case messageID != "":
		email, err := mut.byID(session, ctx, messageID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to modify message %s: %v", messageID, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s: %s", mut.verb, truncateSubject(email.Subject))), nil

	case hasPosition:
		positions, err := batch.ParsePositions(args["position"], "position")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		email, err := mut.byPosition(session, ctx, positions[0])
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to modify email %d: %v", positions[0], err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s: %s", mut.verb, truncateSubject(email.Subject))), nil

	default:
		positions, err := batch.ParsePositions(args["positions"], "positions")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		outcomes := mut.many(session, ctx, positions)
		results := make([]batch.Result, 0, len(outcomes))
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				results = append(results, batch.NewErrorResult(outcome.Position, outcome.Err))
				continue
			}
			results = append(results, batch.NewSuccessResult(outcome.Position,
				fmt.Sprintf("%s: %s", mut.verb, truncateSubject(outcome.Email.Subject))))
		}
		return mcp.NewToolResultText(batch.FormatResults(results)), nil
	}
}

// truncateSubject shortens a subject for confirmations.
func truncateSubject(subject string) string {
	runes := []rune(subject)
	if len(runes) <= maxSubjectLen {
		return subject
	}
	return string(runes[:maxSubjectLen-3]) + "..."
}

// previewBody flattens a normalized body into a single preview line.
func previewBody(body string) string {
	preview := strings.Join(strings.Fields(body), " ")
	runes := []rune(preview)
	if len(runes) <= maxPreviewLen {
		return preview
	}
	return string(runes[:maxPreviewLen-3]) + "..."
}
