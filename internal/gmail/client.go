package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/inboxtriage/inboxtriage/internal/google"
	"github.com/inboxtriage/inboxtriage/internal/instrumentation"
	"github.com/inboxtriage/inboxtriage/internal/logging"
)

const (
	// requestTimeout bounds every provider call.
	requestTimeout = 30 * time.Second

	// maxPageSize is the Gmail list page size cap.
	maxPageSize = 100

	// DefaultMaxResults bounds a listing when the caller gives no limit.
	DefaultMaxResults = 50

	// maxAttempts bounds retries of transient failures.
	maxAttempts = 3

	// baseBackoff is the first retry delay; it doubles per attempt.
	baseBackoff = 250 * time.Millisecond
)

// ListFilter selects which messages a listing returns.
type ListFilter struct {
	// UnreadOnly restricts the listing to unread inbox messages.
	UnreadOnly bool

	// SubjectContains restricts the listing to messages whose subject
	// contains the given text (provider-side matching).
	SubjectContains string

	// MaxResults caps the number of returned messages. Zero or negative
	// means DefaultMaxResults.
	MaxResults int64
}

// Client wraps the Gmail Users service for one account.
type Client struct {
	svc     *gmail.UsersService
	store   *google.Store
	account string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewClient creates a Gmail client authenticated by the given token store.
func NewClient(ctx context.Context, store *google.Store, account string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := oauth2.NewClient(ctx, store)
	httpClient.Timeout = requestTimeout

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{
		svc:     svc.Users,
		store:   store,
		account: account,
		logger:  logging.WithAccount(logger, account),
	}, nil
}

// SetMetrics wires a metrics recorder into the client. Optional; a nil
// recorder disables provider metrics.
func (c *Client) SetMetrics(m *instrumentation.Metrics) {
	c.metrics = m
}

// Account returns the account name this client serves.
func (c *Client) Account() string {
	return c.account
}

// ListMessages returns message stubs matching the filter, paginating until
// the limit or exhaustion. Stubs carry only ids; use GetMessage for content.
func (c *Client) ListMessages(ctx context.Context, filter ListFilter) ([]*gmail.Message, error) {
	limit := filter.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	query := buildQuery(filter)

	var messages []*gmail.Message
	pageToken := ""
	for {
		pageSize := limit - int64(len(messages))
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		var res *gmail.ListMessagesResponse
		err := c.do(ctx, instrumentation.OperationList, "", func() error {
			call := c.svc.Messages.List("me").Q(query).MaxResults(pageSize).Context(ctx)
			if pageToken != "" {
				call.PageToken(pageToken)
			}
			var callErr error
			res, callErr = call.Do()
			return callErr
		})
		if err != nil {
			return nil, err
		}

		messages = append(messages, res.Messages...)

		pageToken = res.NextPageToken
		if pageToken == "" || int64(len(messages)) >= limit {
			break
		}
	}

	if int64(len(messages)) > limit {
		messages = messages[:limit]
	}

	c.logger.Debug("listed messages",
		logging.Operation("gmail.list"),
		slog.Int("count", len(messages)),
		slog.String("query", query))

	return messages, nil
}

// GetMessage fetches a message with its full MIME payload.
func (c *Client) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.do(ctx, instrumentation.OperationGet, id, func() error {
		var callErr error
		msg, callErr = c.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ArchiveMessage removes a message from the inbox and marks it read.
// Idempotent: archiving an already-archived message succeeds.
func (c *Client) ArchiveMessage(ctx context.Context, id string) error {
	return c.do(ctx, instrumentation.OperationArchive, id, func() error {
		_, callErr := c.svc.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{"INBOX", "UNREAD"},
		}).Context(ctx).Do()
		return callErr
	})
}

// TrashMessage moves a message to the provider trash and marks it read.
// The message stays recoverable until the provider purges the trash.
// Idempotent: trashing an already-trashed message succeeds.
func (c *Client) TrashMessage(ctx context.Context, id string) error {
	return c.do(ctx, instrumentation.OperationTrash, id, func() error {
		_, callErr := c.svc.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
			AddLabelIds:    []string{"TRASH"},
			RemoveLabelIds: []string{"UNREAD"},
		}).Context(ctx).Do()
		return callErr
	})
}

// do runs one provider call with the retry policy: transient failures retry
// up to maxAttempts with doubling backoff, and a rejected access token is
// refreshed exactly once before the auth error surfaces.
func (c *Client) do(ctx context.Context, op, messageID string, fn func() error) error {
	start := time.Now()
	refreshed := false
	backoff := baseBackoff

	var err error
	for attempt := 1; ; attempt++ {
		err = classify(fn(), messageID)
		if err == nil {
			break
		}

		if IsAuthError(err) && !refreshed {
			// The token may have been revoked or expired server-side.
			// Invalidate the cache so the next call refreshes, then
			// retry once.
			refreshed = true
			c.store.Invalidate()
			c.logger.Debug("retrying after token refresh",
				logging.Operation("gmail."+op),
				logging.Err(err))
			continue
		}

		if !IsTransient(err) || attempt >= maxAttempts {
			break
		}

		c.logger.Debug("retrying transient provider error",
			logging.Operation("gmail."+op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			logging.Err(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			err = classify(ctx.Err(), messageID)
			if c.metrics != nil {
				c.metrics.RecordProviderOperation(ctx, op, instrumentation.StatusError, time.Since(start))
			}
			return err
		}
		backoff *= 2
	}

	if c.metrics != nil {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordProviderOperation(ctx, op, status, time.Since(start))
	}

	if err != nil {
		c.logger.Warn("provider operation failed",
			logging.Operation("gmail."+op),
			logging.Err(err))
	}

	return err
}

// buildQuery translates a ListFilter into a Gmail search query.
func buildQuery(filter ListFilter) string {
	var parts []string
	if filter.UnreadOnly {
		parts = append(parts, "is:unread", "in:inbox")
	}
	if filter.SubjectContains != "" {
		// Quotes inside the filter would break the query syntax
		subject := strings.ReplaceAll(filter.SubjectContains, `"`, "")
		parts = append(parts, fmt.Sprintf("subject:%q", subject))
	}
	return strings.Join(parts, " ")
}
