// Package gmail adapts the Gmail API to the mail ports.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	goption "google.golang.org/api/option"

	ports "nextbill/internal/mail"
)

// Client wraps a Gmail service scoped to one user's mailbox. Search and
// send both operate on the special "me" user, i.e. the account the OAuth
// token was minted for.
type Client struct {
	svc  *gmail.Service
	from string
}

// Ensure interface conformance
var (
	_ ports.Searcher = (*Client)(nil)
	_ ports.Sender   = (*Client)(nil)
	_ ports.Mailbox  = (*Client)(nil)
)

// NewClient creates a Gmail client from a user's OAuth token. from is the
// account's email address, used as the From header on sent mail.
func NewClient(ctx context.Context, ts oauth2.TokenSource, from string) (*Client, error) {
	svc, err := gmail.NewService(ctx, goption.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{svc: svc, from: from}, nil
}

// NewClientForToken builds a client from a stored access token. The token
// must still be fresh; expiry is checked by the caller before any mailbox
// operation.
func NewClientForToken(ctx context.Context, accessToken string, expiry time.Time, from string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      expiry,
	})
	return NewClient(ctx, ts, from)
}

// Search returns the IDs of messages matching the query. An empty result
// list is a valid outcome.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("gmail service not initialized")
	}

	var ids []string
	pageToken := ""
	for {
		call := c.svc.Users.Messages.List("me").Q(query).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages for %q: %w", query, err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return ids, nil
}

// FetchBody returns the plain-text body of one message, preferring
// text/plain parts and falling back to the snippet when the payload
// carries no decodable text.
func (c *Client) FetchBody(ctx context.Context, id string) (string, error) {
	if c.svc == nil {
		return "", errors.New("gmail service not initialized")
	}

	msg, err := c.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get message %s: %w", id, err)
	}

	if body := extractBody(msg.Payload); body != "" {
		return body, nil
	}
	return msg.Snippet, nil
}

// extractBody walks the MIME tree depth-first and returns the first
// decodable text part, preferring text/plain over text/html.
func extractBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") {
		if body := decodePartBody(part); body != "" {
			return body
		}
	}
	var htmlBody string
	for _, p := range part.Parts {
		if b := extractBody(p); b != "" {
			if strings.HasPrefix(p.MimeType, "text/plain") {
				return b
			}
			if htmlBody == "" {
				htmlBody = b
			}
		}
	}
	if htmlBody != "" {
		return htmlBody
	}
	if strings.HasPrefix(part.MimeType, "text/") {
		return decodePartBody(part)
	}
	return ""
}

func decodePartBody(part *gmail.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	// Gmail encodes bodies as unpadded base64url; tolerate padded data.
	data, err := base64.RawURLEncoding.DecodeString(part.Body.Data)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
	}
	return string(data)
}

// Send delivers a plain-text message and returns the Gmail message ID.
func (c *Client) Send(ctx context.Context, to, subject, body string) (string, error) {
	if c.svc == nil {
		return "", errors.New("gmail service not initialized")
	}

	raw := buildRawMessage(c.from, to, subject, body)
	sent, err := c.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("send message to %s: %w", to, err)
	}
	return sent.Id, nil
}

// buildRawMessage assembles an RFC 822 message and base64url-encodes it
// the way the Gmail send endpoint expects.
func buildRawMessage(from, to, subject, body string) string {
	var sb strings.Builder
	if from != "" {
		sb.WriteString("From: " + from + "\r\n")
	}
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return base64.RawURLEncoding.EncodeToString([]byte(sb.String()))
}
