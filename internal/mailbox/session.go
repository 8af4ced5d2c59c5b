package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
	"github.com/inboxtriage/inboxtriage/internal/logging"
)

// ErrInvalidPosition is returned when a position does not refer to an entry
// of the current listing, either because it is out of range or because no
// listing has been made yet.
var ErrInvalidPosition = errors.New("position does not refer to the current listing; list unread emails again")

// Client is the narrow provider surface a Session needs. *gmail.Client
// satisfies it; tests substitute fakes.
type Client interface {
	ListMessages(ctx context.Context, filter gmail.ListFilter) ([]*gmailapi.Message, error)
	GetMessage(ctx context.Context, id string) (*gmailapi.Message, error)
	ArchiveMessage(ctx context.Context, id string) error
	TrashMessage(ctx context.Context, id string) error
}

// Filter narrows a listing. Listings are always unread-only.
type Filter struct {
	// SubjectContains keeps only messages whose subject contains the text.
	SubjectContains string

	// MaxResults caps the listing size. Zero means the client default.
	MaxResults int64
}

// BatchOutcome is the per-position result of a batch operation.
type BatchOutcome struct {
	Position int
	Email    gmail.Email
	Err      error
}

// Session binds an agent conversation to its current listing.
type Session struct {
	client Client
	logger *slog.Logger

	mu      sync.Mutex
	listing []gmail.Email
	listed  bool
}

// NewSession creates a Session over the given provider client.
func NewSession(client Client, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client: client,
		logger: logger,
	}
}

// List fetches unread inbox messages matching the filter, normalizes them in
// provider order and replaces the position table. Positions in the returned
// slice are index+1. On error the previous listing stays valid.
func (s *Session) List(ctx context.Context, filter Filter) ([]gmail.Email, error) {
	stubs, err := s.client.ListMessages(ctx, gmail.ListFilter{
		UnreadOnly:      true,
		SubjectContains: filter.SubjectContains,
		MaxResults:      filter.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}

	emails := make([]gmail.Email, 0, len(stubs))
	for _, stub := range stubs {
		msg, err := s.client.GetMessage(ctx, stub.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch message %s: %w", stub.Id, err)
		}
		emails = append(emails, gmail.Normalize(msg))
	}

	s.mu.Lock()
	s.listing = emails
	s.listed = true
	s.mu.Unlock()

	s.logger.Debug("listing replaced",
		logging.Operation("mailbox.list"),
		slog.Int("count", len(emails)))

	// Callers get their own copy; the position table stays internal
	out := make([]gmail.Email, len(emails))
	copy(out, emails)
	return out, nil
}

// Resolve maps a 1-based position onto the current listing.
func (s *Session) Resolve(position int) (gmail.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listed {
		return gmail.Email{}, fmt.Errorf("no listing yet: %w", ErrInvalidPosition)
	}
	if position < 1 || position > len(s.listing) {
		return gmail.Email{}, fmt.Errorf("position %d out of range 1..%d: %w", position, len(s.listing), ErrInvalidPosition)
	}

	return s.listing[position-1], nil
}

// Len returns the size of the current listing.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listing)
}

// Archive archives the message at the given position and returns it.
func (s *Session) Archive(ctx context.Context, position int) (gmail.Email, error) {
	email, err := s.Resolve(position)
	if err != nil {
		return gmail.Email{}, err
	}
	if err := s.client.ArchiveMessage(ctx, email.ID); err != nil {
		return gmail.Email{}, err
	}
	return email, nil
}

// Delete moves the message at the given position to the trash and returns it.
func (s *Session) Delete(ctx context.Context, position int) (gmail.Email, error) {
	email, err := s.Resolve(position)
	if err != nil {
		return gmail.Email{}, err
	}
	if err := s.client.TrashMessage(ctx, email.ID); err != nil {
		return gmail.Email{}, err
	}
	return email, nil
}

// ArchiveByID archives a message addressed directly by provider id,
// bypassing the position table. The message is fetched first so callers
// can confirm what was acted on.
func (s *Session) ArchiveByID(ctx context.Context, id string) (gmail.Email, error) {
	msg, err := s.client.GetMessage(ctx, id)
	if err != nil {
		return gmail.Email{}, err
	}
	if err := s.client.ArchiveMessage(ctx, id); err != nil {
		return gmail.Email{}, err
	}
	return gmail.Normalize(msg), nil
}

// DeleteByID moves a message addressed directly by provider id to the
// trash. Like ArchiveByID, the message is fetched first.
func (s *Session) DeleteByID(ctx context.Context, id string) (gmail.Email, error) {
	msg, err := s.client.GetMessage(ctx, id)
	if err != nil {
		return gmail.Email{}, err
	}
	if err := s.client.TrashMessage(ctx, id); err != nil {
		return gmail.Email{}, err
	}
	return gmail.Normalize(msg), nil
}

// ArchiveMany archives every given position, collecting per-position
// outcomes. A failing position never aborts the rest of the batch.
func (s *Session) ArchiveMany(ctx context.Context, positions []int) []BatchOutcome {
	return s.batch(ctx, positions, s.Archive)
}

// DeleteMany trashes every given position, collecting per-position outcomes.
// A failing position never aborts the rest of the batch.
func (s *Session) DeleteMany(ctx context.Context, positions []int) []BatchOutcome {
	return s.batch(ctx, positions, s.Delete)
}

func (s *Session) batch(ctx context.Context, positions []int, op func(context.Context, int) (gmail.Email, error)) []BatchOutcome {
	outcomes := make([]BatchOutcome, 0, len(positions))
	for _, pos := range positions {
		email, err := op(ctx, pos)
		outcomes = append(outcomes, BatchOutcome{
			Position: pos,
			Email:    email,
			Err:      err,
		})
	}
	return outcomes
}
