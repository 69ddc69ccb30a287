package mail

import "context"

// Ports for outbound mailbox adapters.
type (
	// Searcher queries the landlord's mailbox for provider bills.
	Searcher interface {
		// Search returns the IDs of messages matching a mailbox query
		// such as `"Hydro One" after:2025-03-01 before:2025-04-01`.
		// No matches is a valid empty result, not an error.
		Search(ctx context.Context, query string) ([]string, error)

		// FetchBody returns the plain-text body of one message.
		FetchBody(ctx context.Context, id string) (string, error)
	}

	// Sender delivers a bill breakdown email to a tenant.
	Sender interface {
		// Send delivers the message and returns the provider-assigned
		// message ID.
		Send(ctx context.Context, to, subject, body string) (string, error)
	}

	// Mailbox combines searching and sending on one account.
	Mailbox interface {
		Searcher
		Sender
	}
)
