package gmail

import (
	"encoding/base64"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

func encodeBody(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func plainPart(body string) *gmail.MessagePart {
	return &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: encodeBody(body)},
	}
}

func htmlPart(body string) *gmail.MessagePart {
	return &gmail.MessagePart{
		MimeType: "text/html",
		Body:     &gmail.MessagePartBody{Data: encodeBody(body)},
	}
}

func TestNormalize_Headers(t *testing.T) {
	msg := &gmail.Message{
		Id:       "msg-1",
		Snippet:  "Quarterly report attached",
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Quarterly report"},
				{Name: "From", Value: "Alice <alice@example.com>"},
				{Name: "Date", Value: "Mon, 2 Feb 2026 10:00:00 +0000"},
			},
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: encodeBody("hello")},
		},
	}

	email := Normalize(msg)

	if email.ID != "msg-1" {
		t.Errorf("ID = %q, want %q", email.ID, "msg-1")
	}
	if email.Subject != "Quarterly report" {
		t.Errorf("Subject = %q", email.Subject)
	}
	if email.Sender != "Alice <alice@example.com>" {
		t.Errorf("Sender = %q", email.Sender)
	}
	if email.Date != "Mon, 2 Feb 2026 10:00:00 +0000" {
		t.Errorf("Date = %q", email.Date)
	}
	if email.Snippet != "Quarterly report attached" {
		t.Errorf("Snippet = %q", email.Snippet)
	}
	if email.Body != "hello" {
		t.Errorf("Body = %q, want %q", email.Body, "hello")
	}
	if !email.Unread {
		t.Error("Unread should be true")
	}
}

func TestNormalize_MissingHeaders(t *testing.T) {
	msg := &gmail.Message{
		Id:      "msg-2",
		Payload: &gmail.MessagePart{MimeType: "text/plain"},
	}

	email := Normalize(msg)

	if email.Subject != "" || email.Sender != "" || email.Date != "" {
		t.Errorf("missing headers should be empty, got %+v", email)
	}
	if email.Unread {
		t.Error("Unread should be false without UNREAD label")
	}
}

func TestNormalize_NilPayload(t *testing.T) {
	email := Normalize(&gmail.Message{Id: "msg-3"})

	if email.ID != "msg-3" {
		t.Errorf("ID = %q", email.ID)
	}
	if email.Body != "" {
		t.Errorf("Body = %q, want empty", email.Body)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	msg := &gmail.Message{
		Id:       "msg-4",
		LabelIds: []string{"UNREAD"},
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Stable"},
			},
			Parts: []*gmail.MessagePart{
				htmlPart("<p>rich</p>"),
				plainPart("plain text"),
			},
		},
	}

	first := Normalize(msg)
	second := Normalize(msg)

	if first != second {
		t.Errorf("Normalize is not deterministic: %+v vs %+v", first, second)
	}
}

func TestExtractBody_PrefersPlainText(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			htmlPart("<p>html version</p>"),
			plainPart("plain version"),
		},
	}

	if body := ExtractBody(payload); body != "plain version" {
		t.Errorf("ExtractBody = %q, want %q", body, "plain version")
	}
}

func TestExtractBody_FallsBackToHTML(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			htmlPart("<div>Hello <b>world</b></div>"),
		},
	}

	if body := ExtractBody(payload); body != "Hello world" {
		t.Errorf("ExtractBody = %q, want %q", body, "Hello world")
	}
}

func TestExtractBody_NestedMultipart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					plainPart("nested body"),
				},
			},
			{
				MimeType: "application/pdf",
				Body:     &gmail.MessagePartBody{AttachmentId: "att-1"},
			},
		},
	}

	if body := ExtractBody(payload); body != "nested body" {
		t.Errorf("ExtractBody = %q, want %q", body, "nested body")
	}
}

func TestExtractBody_NoTextParts(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "application/octet-stream",
		Body:     &gmail.MessagePartBody{AttachmentId: "att-1"},
	}

	if body := ExtractBody(payload); body != "" {
		t.Errorf("ExtractBody = %q, want empty", body)
	}
}

func TestExtractBody_MalformedBase64(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: "!!!not base64!!!"},
	}

	if body := ExtractBody(payload); body != "" {
		t.Errorf("ExtractBody = %q, want empty for undecodable data", body)
	}
}

func TestDecodePartBody_QuotedPrintable(t *testing.T) {
	// "caf=C3=A9" is quoted-printable for "café"
	part := &gmail.MessagePart{
		MimeType: "text/plain",
		Headers: []*gmail.MessagePartHeader{
			{Name: "Content-Transfer-Encoding", Value: "quoted-printable"},
		},
		Body: &gmail.MessagePartBody{Data: encodeBody("caf=C3=A9")},
	}

	if body := decodePartBody(part); body != "café" {
		t.Errorf("decodePartBody = %q, want %q", body, "café")
	}
}

func TestDecodeBase64URL_PaddingVariants(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"raw unpadded", base64.RawURLEncoding.EncodeToString([]byte("ab")), "ab"},
		{"padded", base64.URLEncoding.EncodeToString([]byte("ab")), "ab"},
		{"garbage", "%%%%", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeBase64URL(tt.data); got != tt.want {
				t.Errorf("decodeBase64URL(%q) = %q, want %q", tt.data, got, tt.want)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "tags removed",
			html: "<p>Hello <b>world</b></p>",
			want: "Hello world",
		},
		{
			name: "script dropped",
			html: "<script>alert('x')</script><p>visible</p>",
			want: "visible",
		},
		{
			name: "style dropped",
			html: "<style>.a { color: red }</style>text",
			want: "text",
		},
		{
			name: "breaks become newlines",
			html: "line one<br>line two",
			want: "line one\nline two",
		},
		{
			name: "entities decoded",
			html: "a &amp; b &lt;c&gt; &quot;d&quot;",
			want: `a & b <c> "d"`,
		},
		{
			name: "blank lines collapsed",
			html: "<p>one</p><p></p><p></p><p>two</p>",
			want: "one\n\ntwo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripHTML(tt.html); got != tt.want {
				t.Errorf("stripHTML(%q) = %q, want %q", tt.html, got, tt.want)
			}
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "line one   \r\n\r\n\r\n\r\nline two\t\nline three"
	want := "line one\n\nline two\nline three"
	if got := normalizeWhitespace(in); got != want {
		t.Errorf("normalizeWhitespace = %q, want %q", got, want)
	}
}

func TestHeaderValue_CaseInsensitive(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "subject", Value: "lower case header"},
			},
		},
	}

	if got := HeaderValue(msg, "Subject"); got != "lower case header" {
		t.Errorf("HeaderValue = %q", got)
	}
}
