package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
)

// fakeClient serves canned messages and records mutations.
type fakeClient struct {
	messages []*gmailapi.Message

	archived []string
	trashed  []string

	listErr     error
	getErr      error
	archiveErr  error
	trashErr    error
	trashFailID string
}

func (f *fakeClient) ListMessages(_ context.Context, filter gmail.ListFilter) ([]*gmailapi.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	limit := filter.MaxResults
	if limit <= 0 {
		limit = gmail.DefaultMaxResults
	}

	var stubs []*gmailapi.Message
	for _, msg := range f.messages {
		if filter.SubjectContains != "" {
			subject := gmail.HeaderValue(msg, "Subject")
			if !strings.Contains(subject, filter.SubjectContains) {
				continue
			}
		}
		stubs = append(stubs, &gmailapi.Message{Id: msg.Id})
		if int64(len(stubs)) >= limit {
			break
		}
	}
	return stubs, nil
}

func (f *fakeClient) GetMessage(_ context.Context, id string) (*gmailapi.Message, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, msg := range f.messages {
		if msg.Id == id {
			return msg, nil
		}
	}
	return nil, &gmail.NotFoundError{ID: id, Err: errors.New("no such message")}
}

func (f *fakeClient) ArchiveMessage(_ context.Context, id string) error {
	if f.archiveErr != nil {
		return f.archiveErr
	}
	f.archived = append(f.archived, id)
	return nil
}

func (f *fakeClient) TrashMessage(_ context.Context, id string) error {
	if f.trashErr != nil {
		return f.trashErr
	}
	if f.trashFailID != "" && id == f.trashFailID {
		return &gmail.TransientError{Err: errors.New("rate limited")}
	}
	f.trashed = append(f.trashed, id)
	return nil
}

func testMessage(id, subject, sender, body string) *gmailapi.Message {
	return &gmailapi.Message{
		Id:       id,
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmailapi.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: sender},
				{Name: "Date", Value: "Mon, 2 Feb 2026 10:00:00 +0000"},
			},
			Body: &gmailapi.MessagePartBody{
				Data: base64.RawURLEncoding.EncodeToString([]byte(body)),
			},
		},
	}
}

func fiveMessages() []*gmailapi.Message {
	msgs := make([]*gmailapi.Message, 0, 5)
	for i := 1; i <= 5; i++ {
		msgs = append(msgs, testMessage(
			fmt.Sprintf("msg-%d", i),
			fmt.Sprintf("Subject %d", i),
			fmt.Sprintf("sender%d@example.com", i),
			fmt.Sprintf("body %d", i),
		))
	}
	return msgs
}

func TestSession_List_PositionsContiguous(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	emails, err := session.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(emails) != 5 {
		t.Fatalf("got %d emails, want 5", len(emails))
	}

	// Provider order preserved, positions map to index+1
	for i, email := range emails {
		want := fmt.Sprintf("msg-%d", i+1)
		if email.ID != want {
			t.Errorf("emails[%d].ID = %q, want %q", i, email.ID, want)
		}

		resolved, err := session.Resolve(i + 1)
		if err != nil {
			t.Errorf("Resolve(%d) failed: %v", i+1, err)
		}
		if resolved.ID != want {
			t.Errorf("Resolve(%d).ID = %q, want %q", i+1, resolved.ID, want)
		}
	}
}

func TestSession_List_MaxResults(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	emails, err := session.List(context.Background(), Filter{MaxResults: 3})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(emails) != 3 {
		t.Errorf("got %d emails, want 3", len(emails))
	}
	if session.Len() != 3 {
		t.Errorf("Len() = %d, want 3", session.Len())
	}
}

func TestSession_List_SubjectFilter(t *testing.T) {
	msgs := []*gmailapi.Message{
		testMessage("a", "Invoice March", "x@example.com", ""),
		testMessage("b", "Lunch plans", "y@example.com", ""),
		testMessage("c", "Invoice April", "x@example.com", ""),
		testMessage("d", "Invoice May", "x@example.com", ""),
	}
	fake := &fakeClient{messages: msgs}
	session := NewSession(fake, nil)

	emails, err := session.List(context.Background(), Filter{SubjectContains: "Invoice"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(emails) != 3 {
		t.Fatalf("got %d emails, want 3", len(emails))
	}
	wantIDs := []string{"a", "c", "d"}
	for i, id := range wantIDs {
		if emails[i].ID != id {
			t.Errorf("emails[%d].ID = %q, want %q", i, emails[i].ID, id)
		}
		if !emails[i].Unread {
			t.Errorf("emails[%d] should be unread", i)
		}
	}
}

func TestSession_Resolve_BeforeAnyListing(t *testing.T) {
	session := NewSession(&fakeClient{}, nil)

	_, err := session.Resolve(1)
	if !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestSession_Resolve_OutOfRange(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	if _, err := session.List(context.Background(), Filter{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	for _, pos := range []int{0, -1, 6, 99} {
		if _, err := session.Resolve(pos); !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("Resolve(%d): expected ErrInvalidPosition, got %v", pos, err)
		}
	}
}

func TestSession_NewListingInvalidatesOldPositions(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	if _, err := session.List(context.Background(), Filter{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if _, err := session.Resolve(5); err != nil {
		t.Fatalf("Resolve(5) should succeed on 5-entry listing: %v", err)
	}

	// Shrink the mailbox and list again
	fake.messages = fake.messages[:2]
	if _, err := session.List(context.Background(), Filter{}); err != nil {
		t.Fatalf("second List failed: %v", err)
	}

	if _, err := session.Resolve(5); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("position 5 should be invalid after relisting, got %v", err)
	}
	if _, err := session.Resolve(2); err != nil {
		t.Errorf("position 2 should remain valid, got %v", err)
	}
}

func TestSession_FailedListKeepsOldListing(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	if _, err := session.List(context.Background(), Filter{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	fake.listErr = &gmail.TransientError{Err: errors.New("rate limited")}
	if _, err := session.List(context.Background(), Filter{}); err == nil {
		t.Fatal("expected List to fail")
	}

	// The previous listing still resolves
	if _, err := session.Resolve(3); err != nil {
		t.Errorf("old listing should survive a failed relist, got %v", err)
	}
}

func TestSession_Archive(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	if _, err := session.List(context.Background(), Filter{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	email, err := session.Archive(context.Background(), 2)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if email.ID != "msg-2" {
		t.Errorf("archived ID = %q, want msg-2", email.ID)
	}
	if len(fake.archived) != 1 || fake.archived[0] != "msg-2" {
		t.Errorf("provider archived = %v, want [msg-2]", fake.archived)
	}

	// Positions are stable until the next listing: archiving does not
	// shift the table, and re-archiving the same position succeeds.
	if _, err := session.Archive(context.Background(), 2); err != nil {
		t.Errorf("second Archive of same position failed: %v", err)
	}
	resolved, err := session.Resolve(3)
	if err != nil || resolved.ID != "msg-3" {
		t.Errorf("Resolve(3) after archive = %v, %v; want msg-3", resolved.ID, err)
	}
}

func TestSession_Delete(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	if _, err := session.List(context.Background(), Filter{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	email, err := session.Delete(context.Background(), 4)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if email.ID != "msg-4" {
		t.Errorf("deleted ID = %q, want msg-4", email.ID)
	}
	if len(fake.trashed) != 1 || fake.trashed[0] != "msg-4" {
		t.Errorf("provider trashed = %v, want [msg-4]", fake.trashed)
	}
}

func TestSession_ByID(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	archived, err := session.ArchiveByID(context.Background(), "msg-2")
	if err != nil {
		t.Fatalf("ArchiveByID failed: %v", err)
	}
	if archived.Subject != "Subject 2" {
		t.Errorf("ArchiveByID subject = %q, want Subject 2", archived.Subject)
	}

	deleted, err := session.DeleteByID(context.Background(), "msg-4")
	if err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	if deleted.Subject != "Subject 4" {
		t.Errorf("DeleteByID subject = %q, want Subject 4", deleted.Subject)
	}

	if fake.archived[0] != "msg-2" || fake.trashed[0] != "msg-4" {
		t.Errorf("by-id operations hit wrong messages: %v %v", fake.archived, fake.trashed)
	}
}

func TestSession_ByID_UnknownMessage(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	_, err := session.ArchiveByID(context.Background(), "msg-99")
	if !gmail.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if len(fake.archived) != 0 {
		t.Error("nothing should be archived when the fetch fails")
	}
}

func TestSession_ArchiveMany_MixedOutcomes(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	if _, err := session.List(context.Background(), Filter{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	outcomes := session.ArchiveMany(context.Background(), []int{2, 99})

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}

	if outcomes[0].Position != 2 || outcomes[0].Err != nil {
		t.Errorf("position 2 should succeed, got %+v", outcomes[0])
	}
	if outcomes[0].Email.ID != "msg-2" {
		t.Errorf("outcome email = %q, want msg-2", outcomes[0].Email.ID)
	}

	if outcomes[1].Position != 99 || !errors.Is(outcomes[1].Err, ErrInvalidPosition) {
		t.Errorf("position 99 should fail with ErrInvalidPosition, got %+v", outcomes[1])
	}

	// The valid position was acted on despite the invalid one
	if len(fake.archived) != 1 || fake.archived[0] != "msg-2" {
		t.Errorf("provider archived = %v, want [msg-2]", fake.archived)
	}
}

func TestSession_DeleteMany_ProviderFailureDoesNotAbort(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	session := NewSession(fake, nil)

	if _, err := session.List(context.Background(), Filter{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	// Only msg-1 fails at the provider
	fake.trashFailID = "msg-1"

	outcomes := session.DeleteMany(context.Background(), []int{1, 2})

	if outcomes[0].Err == nil {
		t.Error("first delete should have failed")
	}
	if outcomes[1].Err != nil {
		t.Errorf("second delete should have succeeded, got %v", outcomes[1].Err)
	}
	if len(fake.trashed) != 1 || fake.trashed[0] != "msg-2" {
		t.Errorf("provider trashed = %v, want [msg-2]", fake.trashed)
	}
}

func TestSession_List_BodyNormalized(t *testing.T) {
	fake := &fakeClient{messages: []*gmailapi.Message{
		testMessage("m", "Hello", "a@example.com", "line one\r\n\r\n\r\nline two"),
	}}
	session := NewSession(fake, nil)

	emails, err := session.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if emails[0].Body != "line one\n\nline two" {
		t.Errorf("Body = %q", emails[0].Body)
	}
}

func TestSession_List_FetchErrorPropagates(t *testing.T) {
	fake := &fakeClient{messages: fiveMessages()}
	fake.getErr = &gmail.TransientError{Err: errors.New("boom")}
	session := NewSession(fake, nil)

	_, err := session.List(context.Background(), Filter{})
	if err == nil {
		t.Fatal("expected List to fail when a message fetch fails")
	}
	if !gmail.IsTransient(err) {
		t.Errorf("classification should survive wrapping, got %v", err)
	}
}
