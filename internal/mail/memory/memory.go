// Package memory provides an in-memory mailbox for development and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ports "nextbill/internal/mail"
)

// Message is one stored mailbox message.
type Message struct {
	ID       string
	From     string
	Subject  string
	Body     string
	Received time.Time
}

// SentMessage records one outbound email for inspection in tests.
type SentMessage struct {
	To      string
	Subject string
	Body    string
}

// Store is an in-memory mailbox. It understands the same query shape the
// bill fetcher produces: a quoted search term plus after:/before: date
// bounds, matched as a half-open interval.
type Store struct {
	mu       sync.Mutex
	messages []Message
	sent     []SentMessage
	nextID   int
}

var _ ports.Mailbox = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Add stores an inbound message and returns its ID.
func (s *Store) Add(from, subject, body string, received time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("mem:%d", s.nextID)
	s.messages = append(s.messages, Message{
		ID:       id,
		From:     from,
		Subject:  subject,
		Body:     body,
		Received: received,
	})
	return id
}

// Search returns IDs of messages matching the query term and date range.
func (s *Store) Search(_ context.Context, query string) ([]string, error) {
	term, after, before, err := parseQuery(query)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, m := range s.messages {
		if !after.IsZero() && m.Received.Before(after) {
			continue
		}
		if !before.IsZero() && !m.Received.Before(before) {
			continue
		}
		if term != "" && !matchesTerm(m, term) {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// FetchBody returns the body of a stored message.
func (s *Store) FetchBody(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m.Body, nil
		}
	}
	return "", fmt.Errorf("message not found: %s", id)
}

// Send records an outbound message.
func (s *Store) Send(_ context.Context, to, subject, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, SentMessage{To: to, Subject: subject, Body: body})
	return fmt.Sprintf("sent:%d", len(s.sent)), nil
}

// Sent returns a copy of all recorded outbound messages.
func (s *Store) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}

func matchesTerm(m Message, term string) bool {
	t := strings.ToLower(term)
	return strings.Contains(strings.ToLower(m.From), t) ||
		strings.Contains(strings.ToLower(m.Subject), t) ||
		strings.Contains(strings.ToLower(m.Body), t)
}

// parseQuery splits a mailbox query into its quoted (or bare) search term
// and optional after:/before: date bounds.
func parseQuery(query string) (term string, after, before time.Time, err error) {
	rest := strings.TrimSpace(query)
	if strings.HasPrefix(rest, `"`) {
		end := strings.Index(rest[1:], `"`)
		if end < 0 {
			return "", after, before, fmt.Errorf("unterminated quote in query: %s", query)
		}
		term = rest[1 : end+1]
		rest = rest[end+2:]
	}

	for _, field := range strings.Fields(rest) {
		switch {
		case strings.HasPrefix(field, "after:"):
			after, err = time.Parse("2006-01-02", strings.TrimPrefix(field, "after:"))
			if err != nil {
				return "", after, before, fmt.Errorf("bad after bound: %w", err)
			}
		case strings.HasPrefix(field, "before:"):
			before, err = time.Parse("2006-01-02", strings.TrimPrefix(field, "before:"))
			if err != nil {
				return "", after, before, fmt.Errorf("bad before bound: %w", err)
			}
		default:
			if term == "" {
				term = field
			} else {
				term += " " + field
			}
		}
	}
	return term, after, before, nil
}
