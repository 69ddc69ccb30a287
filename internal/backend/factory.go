package backend

import (
	"context"
	"fmt"
	"log/slog"

	"nextbill/internal/mail"
	"nextbill/internal/mail/gmail"
	"nextbill/internal/mail/memory"
	"nextbill/internal/storage"
)

// New builds the mailbox factories for the configured backend type.
func New(logger *slog.Logger, backendType Type) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !backendType.IsValid() {
		return nil, fmt.Errorf("invalid mail backend: %q (valid: %v)", backendType, Types())
	}

	switch backendType {
	case GmailBackend:
		logger.Info("Using Gmail mailbox backend")
		return &Result{
			MailboxFor: func(ctx context.Context, user storage.User) (mail.Mailbox, error) {
				return gmail.NewClientForToken(ctx, user.AccessToken, user.TokenExpiry, user.Email)
			},
			SenderFor: func(ctx context.Context, user storage.User) (mail.Sender, error) {
				return gmail.NewClientForToken(ctx, user.AccessToken, user.TokenExpiry, user.Email)
			},
		}, nil

	case MemoryBackend:
		// One shared store so mail sent by the worker shows up in the
		// same place searches run against.
		store := memory.New()
		logger.Info("Using in-memory mailbox backend")
		return &Result{
			MailboxFor: func(context.Context, storage.User) (mail.Mailbox, error) {
				return store, nil
			},
			SenderFor: func(context.Context, storage.User) (mail.Sender, error) {
				return store, nil
			},
			Store: store,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported mail backend: %q", backendType)
	}
}
