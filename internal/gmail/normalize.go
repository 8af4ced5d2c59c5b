package gmail

import (
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"regexp"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Email is the flat, provider-independent view of a message that the rest of
// the application works with.
type Email struct {
	ID      string
	Subject string
	Sender  string
	Date    string
	Snippet string
	Body    string
	Unread  bool
}

// Normalize converts a raw API message into an Email. It is a pure function
// of the message: missing headers become empty strings and an unparseable
// body degrades to "" rather than failing the listing.
func Normalize(msg *gmail.Message) Email {
	email := Email{ID: msg.Id, Snippet: msg.Snippet}

	if msg.Payload != nil {
		email.Subject = HeaderValue(msg, "Subject")
		email.Sender = HeaderValue(msg, "From")
		email.Date = HeaderValue(msg, "Date")
		email.Body = ExtractBody(msg.Payload)
	}

	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			email.Unread = true
			break
		}
	}

	return email
}

// HeaderValue returns the first header with the given name (case-insensitive)
// or "" when absent.
func HeaderValue(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ExtractBody walks the MIME tree depth-first and returns the best available
// text rendition: the first text/plain part wins, then the first text/html
// part stripped to text, then "".
func ExtractBody(payload *gmail.MessagePart) string {
	if plain := findPart(payload, "text/plain"); plain != "" {
		return normalizeWhitespace(plain)
	}
	if html := findPart(payload, "text/html"); html != "" {
		return stripHTML(html)
	}
	return ""
}

// findPart searches the part tree depth-first for a decodable part with the
// given MIME type.
func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}

	if strings.HasPrefix(part.MimeType, mimeType) {
		if text := decodePartBody(part); text != "" {
			return text
		}
	}

	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}

	return ""
}

// decodePartBody decodes the base64url body data of a part, then undoes
// quoted-printable encoding when the part declares it. Decode failures
// degrade to "".
func decodePartBody(part *gmail.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}

	decoded := decodeBase64URL(part.Body.Data)
	if decoded == "" {
		return ""
	}

	if strings.EqualFold(partHeader(part, "Content-Transfer-Encoding"), "quoted-printable") {
		text, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(decoded)))
		if err != nil {
			// Malformed quoted-printable: keep whatever decoded cleanly
			if len(text) == 0 {
				return ""
			}
		}
		return string(text)
	}

	return decoded
}

// partHeader returns the named header of a MIME part, or "".
func partHeader(part *gmail.MessagePart, name string) string {
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeBase64URL decodes Gmail body data, which is URL-safe base64 often
// without padding. Tries unpadded first, then padded, then manual padding.
func decodeBase64URL(data string) string {
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}

	padded := data
	switch len(data) % 4 {
	case 2:
		padded += "=="
	case 3:
		padded += "="
	}
	if decoded, err := base64.URLEncoding.DecodeString(padded); err == nil {
		return string(decoded)
	}

	return ""
}

var (
	scriptRe   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	brRe       = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockEndRe = regexp.MustCompile(`(?i)</p>|</div>|</tr>|</li>|</td>|</h[1-6]>`)
	tagRe      = regexp.MustCompile(`<[^>]*>`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&#160;", " ",
)

// stripHTML converts HTML content to readable plain text: script and style
// blocks are dropped, block elements become line breaks, remaining tags are
// removed and common entities decoded.
func stripHTML(html string) string {
	html = scriptRe.ReplaceAllString(html, "")
	html = styleRe.ReplaceAllString(html, "")

	html = brRe.ReplaceAllString(html, "\n")
	html = blockEndRe.ReplaceAllString(html, "\n")

	text := tagRe.ReplaceAllString(html, "")
	text = entityReplacer.Replace(text)

	lines := strings.Split(text, "\n")
	var result []string
	lastWasEmpty := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !lastWasEmpty {
				result = append(result, "")
				lastWasEmpty = true
			}
			continue
		}
		result = append(result, line)
		lastWasEmpty = false
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}

// normalizeWhitespace cleans up excessive whitespace in plain text while
// preserving paragraph structure.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	var result []string
	lastWasEmpty := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !lastWasEmpty {
				result = append(result, "")
				lastWasEmpty = true
			}
			continue
		}
		result = append(result, line)
		lastWasEmpty = false
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}
