// Package backend selects the mailbox implementation used for reading
// utility bills and sending breakdown emails.
package backend

import (
	"nextbill/internal/mail/memory"
	"nextbill/internal/services"
	"nextbill/internal/worker"
)

// Type identifies a mailbox backend.
type Type string

const (
	// GmailBackend reads and sends mail through the landlord's Gmail
	// account using their stored OAuth token.
	GmailBackend Type = "gmail"
	// MemoryBackend keeps mail in process memory. Used for local
	// development and tests; no Google credentials required.
	MemoryBackend Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is known.
func (t Type) IsValid() bool {
	switch t {
	case GmailBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Types returns all valid backend types.
func Types() []Type {
	return []Type{GmailBackend, MemoryBackend}
}

// Result holds the per-user mailbox factories produced for a backend.
// MailboxFor opens a searchable mailbox for bill fetching; SenderFor
// opens an outbound sender for breakdown delivery. Store is non-nil
// only for the memory backend, so callers can seed test mail.
type Result struct {
	MailboxFor services.MailboxFactory
	SenderFor  worker.SenderFactory
	Store      *memory.Store
}
