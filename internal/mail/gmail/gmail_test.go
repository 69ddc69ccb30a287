package gmail

import (
	"encoding/base64"
	"strings"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestExtractBodyPlainText(t *testing.T) {
	part := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: encode("Your bill is $87.50")},
	}

	if got := extractBody(part); got != "Your bill is $87.50" {
		t.Errorf("extractBody() = %q", got)
	}
}

func TestExtractBodyPrefersPlainOverHTML(t *testing.T) {
	part := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: encode("<p>$87.50</p>")},
			},
			{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: encode("Amount due $87.50")},
			},
		},
	}

	if got := extractBody(part); got != "Amount due $87.50" {
		t.Errorf("extractBody() = %q, want plain part", got)
	}
}

func TestExtractBodyFallsBackToHTML(t *testing.T) {
	part := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: encode("<p>$12.00</p>")},
			},
		},
	}

	if got := extractBody(part); got != "<p>$12.00</p>" {
		t.Errorf("extractBody() = %q, want html fallback", got)
	}
}

func TestExtractBodyNestedMultipart(t *testing.T) {
	part := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{
						MimeType: "text/plain",
						Body:     &gmail.MessagePartBody{Data: encode("nested $5.00")},
					},
				},
			},
		},
	}

	if got := extractBody(part); got != "nested $5.00" {
		t.Errorf("extractBody() = %q", got)
	}
}

func TestExtractBodyHandlesEmpty(t *testing.T) {
	if got := extractBody(nil); got != "" {
		t.Errorf("extractBody(nil) = %q, want empty", got)
	}
	if got := extractBody(&gmail.MessagePart{MimeType: "text/plain"}); got != "" {
		t.Errorf("extractBody(no body) = %q, want empty", got)
	}
}

func TestDecodePartBodyToleratesPadding(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("padded body"))
	part := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: padded},
	}

	if got := decodePartBody(part); got != "padded body" {
		t.Errorf("decodePartBody() = %q, want %q", got, "padded body")
	}
}

func TestBuildRawMessage(t *testing.T) {
	raw := buildRawMessage("landlord@example.com", "tenant@example.com", "March utilities", "You owe $112.50")

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("raw message is not base64url: %v", err)
	}
	msg := string(decoded)

	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	if !found {
		t.Fatal("no header/body separator")
	}
	for _, want := range []string{
		"From: landlord@example.com",
		"To: tenant@example.com",
		"Subject: March utilities",
		"Content-Type: text/plain",
	} {
		if !strings.Contains(headers, want) {
			t.Errorf("headers missing %q: %q", want, headers)
		}
	}
	if body != "You owe $112.50" {
		t.Errorf("body = %q", body)
	}
}
