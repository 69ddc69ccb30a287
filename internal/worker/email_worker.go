// Package worker delivers bill breakdown emails queued over AMQP.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nextbill/internal/amqp"
	"nextbill/internal/core"
	"nextbill/internal/mail"
	"nextbill/internal/storage"
)

// SenderFactory opens an email sender on the landlord's account.
type SenderFactory func(ctx context.Context, user storage.User) (mail.Sender, error)

// EmailWorker consumes bill email messages, composes each tenant's
// breakdown, sends it, and stamps the bill as sent. Delivery also adds
// the tenant's derived share to their outstanding balance.
type EmailWorker struct {
	storage   *storage.SQLiteRepository
	senderFor SenderFactory
	batchSize int
	now       func() time.Time
}

func NewEmailWorker(repo *storage.SQLiteRepository, senderFor SenderFactory, batchSize int) *EmailWorker {
	return &EmailWorker{
		storage:   repo,
		senderFor: senderFor,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleBillEmail processes one queued message. Errors propagate so the
// consumer can nack and requeue.
func (w *EmailWorker) HandleBillEmail(ctx context.Context, msg *amqp.BillEmailMessage) error {
	slog.InfoContext(ctx, "Processing bill email message",
		"bill_id", msg.BillID,
		"tenant_id", msg.TenantID)

	return w.deliverBill(ctx, msg.BillID, msg.TenantID)
}

func (w *EmailWorker) deliverBill(ctx context.Context, billID, tenantID string) error {
	bill, err := w.storage.GetConsolidatedBillByID(ctx, billID)
	if err != nil {
		return fmt.Errorf("get bill: %w", err)
	}

	// Redeliveries and the sweep can race; a sent bill is done.
	if bill.DateSent != nil {
		slog.InfoContext(ctx, "Bill already sent, skipping",
			"bill_id", billID,
			"date_sent", bill.DateSent)
		return nil
	}

	tenant, err := w.storage.GetTenant(ctx, bill.UserID, tenantID)
	if err != nil {
		return fmt.Errorf("get tenant: %w", err)
	}

	user, err := w.storage.GetUser(ctx, bill.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	sender, err := w.senderFor(ctx, user)
	if err != nil {
		return fmt.Errorf("open sender: %w", err)
	}

	subject, body := ComposeBreakdownEmail(bill, tenant)
	msgID, err := sender.Send(ctx, tenant.Email, subject, body)
	if err != nil {
		return fmt.Errorf("send breakdown email: %w", err)
	}

	if err := w.storage.MarkBillSent(ctx, billID, w.now()); err != nil {
		// The email went out; failing here would resend on requeue.
		slog.ErrorContext(ctx, "Failed to mark bill sent",
			"bill_id", billID, "error", err)
		return nil
	}

	share := core.TenantShare(bill, tenant)
	if err := w.storage.AddToOutstandingBalance(ctx, tenant.ID, share.Cents); err != nil {
		slog.ErrorContext(ctx, "Failed to add outstanding balance",
			"tenant_id", tenant.ID, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "Bill breakdown email sent",
		"bill_id", billID,
		"tenant_id", tenant.ID,
		"tenant_email", tenant.Email,
		"message_id", msgID,
		"share_cents", share.Cents)

	return nil
}

// ProcessPendingBills re-dispatches bills whose queue message was lost.
// This is a backup mechanism; each failure is logged and skipped so one
// bad bill cannot stall the sweep.
func (w *EmailWorker) ProcessPendingBills(ctx context.Context) error {
	pending, err := w.storage.ListUnsentBills(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unsent bills: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending bills", "count", len(pending))

	for _, p := range pending {
		if err := w.deliverBill(ctx, p.BillID, p.TenantID); err != nil {
			slog.ErrorContext(ctx, "Failed to deliver pending bill",
				"bill_id", p.BillID, "error", err)
			continue
		}
	}
	return nil
}

// StartupCheck drains pending bills accumulated while the worker was
// down, with a larger batch than the periodic sweep.
func (w *EmailWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.storage.ListUnsentBills(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list unsent bills for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending bills found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending bills on startup, processing...",
		"count", len(pending))

	sent, failed := 0, 0
	for _, p := range pending {
		if err := w.deliverBill(ctx, p.BillID, p.TenantID); err != nil {
			slog.ErrorContext(ctx, "Failed to deliver bill during startup",
				"bill_id", p.BillID, "error", err)
			failed++
			continue
		}
		sent++
	}

	slog.InfoContext(ctx, "Startup delivery completed",
		"total", len(pending),
		"sent", sent,
		"errors", failed)

	return nil
}

// ComposeBreakdownEmail renders the plain-text breakdown for one tenant:
// one line per billed category with the full amount, the tenant's
// percentage, and their derived share.
func ComposeBreakdownEmail(bill core.ConsolidatedBill, tenant core.Tenant) (subject, body string) {
	subject = fmt.Sprintf("Utility bill breakdown for %s", bill.Period)

	greeting := tenant.Name
	if tenant.SecondaryName != "" {
		greeting = fmt.Sprintf("%s and %s", tenant.Name, tenant.SecondaryName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", greeting)
	fmt.Fprintf(&b, "Here is your share of the utility bills for %s.\n\n", bill.Period)

	for _, row := range core.BreakdownFor(bill, tenant) {
		fmt.Fprintf(&b, "%s (%s): $%.2f at %.1f%% = $%.2f\n",
			row.Category, row.ProviderName,
			row.Amount.Dollars(), row.Percentage, row.Share.Dollars())
	}

	share := core.TenantShare(bill, tenant)
	fmt.Fprintf(&b, "\nYour total share: $%.2f\n", share.Dollars())
	fmt.Fprintf(&b, "Total household bill: $%.2f\n", bill.TotalAmount.Dollars())

	return subject, b.String()
}
