// Package gmail wraps the Gmail REST API for mailbox triage.
//
// The Client exposes the four provider operations the server needs: listing
// unread inbox messages, fetching a full message, archiving and trashing.
// Provider failures are classified into a small error taxonomy (AuthError,
// TransientError, NotFoundError, InvalidArgumentError) so callers can react
// without inspecting HTTP status codes. Transient failures are retried with
// exponential backoff; a rejected access token triggers exactly one silent
// refresh before the auth failure surfaces.
//
// Normalize converts raw API messages into flat Email values, walking the
// MIME tree for the best-effort text body. Normalization never fails; a
// malformed message yields an Email with an empty body.
package gmail
