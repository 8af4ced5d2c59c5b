package gmail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/inboxtriage/inboxtriage/internal/google"
)

// AuthError indicates the provider rejected our credentials. Not retryable
// beyond the single token refresh the client performs internally.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gmail authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError indicates a failure that may succeed on retry: rate
// limiting, provider 5xx responses, network errors and timeouts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient gmail error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NotFoundError indicates the referenced message no longer exists.
type NotFoundError struct {
	ID  string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("message %s not found: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("message not found: %v", e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// InvalidArgumentError indicates the provider rejected the request as
// malformed. Not retryable.
type InvalidArgumentError struct {
	Err error
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid gmail request: %v", e.Err)
}

func (e *InvalidArgumentError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsNotFound reports whether err indicates a missing message.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsInvalidArgument reports whether err indicates a malformed request.
func IsInvalidArgument(err error) bool {
	var ie *InvalidArgumentError
	return errors.As(err, &ie)
}

// classify maps raw provider and transport errors onto the package taxonomy.
// The message id is attached to not-found errors when known.
func classify(err error, messageID string) error {
	if err == nil {
		return nil
	}

	// Already classified
	if IsAuthError(err) || IsTransient(err) || IsNotFound(err) || IsInvalidArgument(err) {
		return err
	}

	// Missing or unrefreshable credentials fail closed as auth errors
	if errors.Is(err, google.ErrNoToken) {
		return &AuthError{Err: err}
	}

	// Refresh-token rejection at the OAuth token endpoint
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &AuthError{Err: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &AuthError{Err: err}
		case apiErr.Code == 404:
			return &NotFoundError{ID: messageID, Err: err}
		case apiErr.Code == 400:
			return &InvalidArgumentError{Err: err}
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return &TransientError{Err: err}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}

	// url.Error covers connection resets and DNS failures from the HTTP
	// transport that don't implement net.Error
	var urlErr *url.Error
	if errors.As(err, &urlErr) && !errors.Is(err, context.Canceled) {
		return &TransientError{Err: err}
	}

	return err
}
