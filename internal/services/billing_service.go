// Package services orchestrates bill operations across the mailbox,
// SQLite, and the email dispatch queue.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nextbill/internal/amqp"
	"nextbill/internal/auth"
	"nextbill/internal/bills"
	"nextbill/internal/core"
	"nextbill/internal/mail"
	"nextbill/internal/storage"
)

// Result is the uniform outcome of a user-facing action. Internal
// failures are reduced to one generic message here; no structured error
// detail crosses this boundary.
type Result struct {
	Success bool
	Error   string
}

func okResult() Result {
	return Result{Success: true}
}

func failResult(msg string) Result {
	return Result{Error: msg}
}

// BillPublisher enqueues a bill email for the worker. *amqp.Client
// satisfies it; a nil publisher degrades to the worker's pending sweep.
type BillPublisher interface {
	PublishBillEmail(ctx context.Context, billID, tenantID string) error
}

// MailboxFactory opens a mailbox on the user's account, typically a
// Gmail client over their stored OAuth token.
type MailboxFactory func(ctx context.Context, user storage.User) (mail.Mailbox, error)

// BillingService runs the dashboard flow and bill actions.
type BillingService struct {
	storage    *storage.SQLiteRepository
	publisher  BillPublisher
	mailboxFor MailboxFactory
	now        func() time.Time
}

func NewBillingService(repo *storage.SQLiteRepository, publisher BillPublisher, mailboxFor MailboxFactory) *BillingService {
	return &BillingService{
		storage:    repo,
		publisher:  publisher,
		mailboxFor: mailboxFor,
		now:        time.Now,
	}
}

// CurrentBill fetches and consolidates the signed-in user's bills for
// the present month.
func (s *BillingService) CurrentBill(ctx context.Context, userID string) (core.ConsolidatedBill, error) {
	return s.BillForPeriod(ctx, userID, core.CurrentPeriod(s.now()))
}

// BillForPeriod runs the full fetch flow: load the user, verify their
// token, query the mailbox once per provider, and consolidate by
// category. An empty month consolidates to a zero-total bill.
func (s *BillingService) BillForPeriod(ctx context.Context, userID string, period core.Period) (core.ConsolidatedBill, error) {
	if err := period.Validate(); err != nil {
		return core.ConsolidatedBill{}, err
	}

	user, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		return core.ConsolidatedBill{}, fmt.Errorf("%w: load user: %s", auth.ErrUnauthenticated, err)
	}
	if err := auth.CheckToken(user.TokenExpiry, s.now()); err != nil {
		return core.ConsolidatedBill{}, err
	}

	providers, err := s.storage.ListProviders(ctx, userID)
	if err != nil {
		return core.ConsolidatedBill{}, fmt.Errorf("list providers: %w", err)
	}

	mailbox, err := s.mailboxFor(ctx, user)
	if err != nil {
		return core.ConsolidatedBill{}, fmt.Errorf("open mailbox: %w", err)
	}

	rawBills, err := bills.NewFetcher(mailbox).Fetch(ctx, providers, period)
	if err != nil {
		return core.ConsolidatedBill{}, err
	}

	return core.Consolidate(userID, rawBills, period), nil
}

// SendBreakdown persists a per-tenant copy of the period's consolidated
// bill and queues its breakdown email. The worker delivers the email and
// stamps DateSent; a lost queue message is re-dispatched by its sweep.
func (s *BillingService) SendBreakdown(ctx context.Context, userID, tenantID string, period core.Period) Result {
	tenant, err := s.storage.GetTenant(ctx, userID, tenantID)
	if err != nil {
		slog.ErrorContext(ctx, "Send breakdown: tenant lookup failed",
			"tenant_id", tenantID, "error", err)
		return failResult("Tenant not found.")
	}

	household, err := s.BillForPeriod(ctx, userID, period)
	if err != nil {
		return s.resultFromErr(ctx, err)
	}

	household.TenantID = tenant.ID
	saved, err := s.storage.SaveConsolidatedBill(ctx, household)
	if err != nil {
		slog.ErrorContext(ctx, "Send breakdown: save failed",
			"tenant_id", tenantID, "error", err)
		return failResult("Could not save the bill. Please try again.")
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "No publisher configured, bill left for sweep",
			"bill_id", saved.ID)
		return okResult()
	}
	if err := s.publisher.PublishBillEmail(ctx, saved.ID, tenant.ID); err != nil {
		// Bill is saved; the worker sweep re-dispatches unsent bills.
		slog.ErrorContext(ctx, "Send breakdown: publish failed, bill left for sweep",
			"bill_id", saved.ID, "error", err)
	}
	return okResult()
}

// MarkPaid flips a sent bill to paid and settles the tenant's derived
// share against their outstanding balance.
func (s *BillingService) MarkPaid(ctx context.Context, userID, billID string) Result {
	bill, err := s.storage.GetConsolidatedBill(ctx, userID, billID)
	if err != nil {
		slog.ErrorContext(ctx, "Mark paid: bill lookup failed",
			"bill_id", billID, "error", err)
		return failResult("Bill not found.")
	}
	if bill.Paid {
		return failResult("Bill is already marked as paid.")
	}

	if err := s.storage.MarkBillPaid(ctx, userID, billID, s.now()); err != nil {
		slog.ErrorContext(ctx, "Mark paid: update failed",
			"bill_id", billID, "error", err)
		return failResult("Could not mark the bill as paid. Please try again.")
	}

	tenant, err := s.storage.GetTenant(ctx, userID, bill.TenantID)
	if err != nil {
		slog.ErrorContext(ctx, "Mark paid: tenant lookup failed",
			"tenant_id", bill.TenantID, "error", err)
		return failResult("Could not settle the tenant balance.")
	}
	share := core.TenantShare(bill, tenant)
	if err := s.storage.AddToOutstandingBalance(ctx, tenant.ID, -share.Cents); err != nil {
		slog.ErrorContext(ctx, "Mark paid: balance settle failed",
			"tenant_id", tenant.ID, "error", err)
		return failResult("Could not settle the tenant balance.")
	}

	slog.InfoContext(ctx, "Bill marked paid",
		"bill_id", billID,
		"tenant_id", tenant.ID,
		"settled_cents", share.Cents)
	return okResult()
}

// resultFromErr maps internal errors to the generic user-visible
// messages. Auth failures keep their sentinel so callers can redirect.
func (s *BillingService) resultFromErr(ctx context.Context, err error) Result {
	switch {
	case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrUnauthenticated):
		return failResult("Your session has expired. Please sign in again.")
	case errors.Is(err, bills.ErrFetch):
		slog.ErrorContext(ctx, "Bill fetch failed", "error", err)
		return failResult("Could not fetch bills from your mailbox. Please try again.")
	default:
		slog.ErrorContext(ctx, "Bill action failed", "error", err)
		return failResult("Something went wrong. Please try again.")
	}
}

func (s *BillingService) Close() error {
	var errs []error
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(*amqp.Client); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close billing service: %v", errs)
	}
	return nil
}
