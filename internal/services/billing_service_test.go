package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"nextbill/internal/auth"
	"nextbill/internal/core"
	"nextbill/internal/mail"
	"nextbill/internal/mail/memory"
	"nextbill/internal/storage"
)

type capturingPublisher struct {
	billIDs   []string
	tenantIDs []string
	err       error
}

func (p *capturingPublisher) PublishBillEmail(_ context.Context, billID, tenantID string) error {
	if p.err != nil {
		return p.err
	}
	p.billIDs = append(p.billIDs, billID)
	p.tenantIDs = append(p.tenantIDs, tenantID)
	return nil
}

type fixture struct {
	svc       *BillingService
	repo      *storage.SQLiteRepository
	store     *memory.Store
	publisher *capturingPublisher
	user      storage.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	user, err := repo.UpsertUser(context.Background(), storage.User{
		Email:       "landlord@example.com",
		AccessToken: "tok",
		TokenExpiry: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}

	store := memory.New()
	publisher := &capturingPublisher{}
	svc := NewBillingService(repo, publisher, func(_ context.Context, _ storage.User) (mail.Mailbox, error) {
		return store, nil
	})

	return &fixture{svc: svc, repo: repo, store: store, publisher: publisher, user: user}
}

func (f *fixture) seedProvider(t *testing.T, name string, cat core.Category) core.UtilityProvider {
	t.Helper()
	p, err := f.repo.CreateProvider(context.Background(), core.UtilityProvider{
		UserID: f.user.ID, Name: name, Category: cat,
	})
	if err != nil {
		t.Fatalf("CreateProvider(%s) error = %v", name, err)
	}
	return p
}

func (f *fixture) seedTenant(t *testing.T, shares map[core.Category]float64) core.Tenant {
	t.Helper()
	tenant, err := f.repo.CreateTenant(context.Background(), core.Tenant{
		UserID: f.user.ID,
		Name:   "Alice",
		Email:  "alice@example.com",
		Shares: shares,
	})
	if err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}
	return tenant
}

func TestBillForPeriodConsolidatesMailboxAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	period := core.Period{Month: 3, Year: 2025}

	f.seedProvider(t, "City Water Co", core.Water)
	f.seedProvider(t, "Gas Works", core.Gas)

	received := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	f.store.Add("billing@citywater.example", "City Water Co statement",
		"Amount due: $45.00", received)
	f.store.Add("billing@gasworks.example", "Gas Works invoice",
		"Total: $80.25", received)

	bill, err := f.svc.BillForPeriod(ctx, f.user.ID, period)
	if err != nil {
		t.Fatalf("BillForPeriod() error = %v", err)
	}
	if bill.TotalAmount.Cents != 12525 {
		t.Errorf("TotalAmount = %d, want 12525", bill.TotalAmount.Cents)
	}
	if bill.Categories[core.Water].Amount.Cents != 4500 {
		t.Errorf("Water = %d, want 4500", bill.Categories[core.Water].Amount.Cents)
	}
	if bill.Categories[core.Gas].Amount.Cents != 8025 {
		t.Errorf("Gas = %d, want 8025", bill.Categories[core.Gas].Amount.Cents)
	}
}

func TestBillForPeriodEmptyMonthIsZeroTotal(t *testing.T) {
	f := newFixture(t)
	f.seedProvider(t, "City Water Co", core.Water)

	bill, err := f.svc.BillForPeriod(context.Background(), f.user.ID, core.Period{Month: 7, Year: 2025})
	if err != nil {
		t.Fatalf("BillForPeriod() on empty month error = %v", err)
	}
	if !bill.TotalAmount.IsZero() {
		t.Errorf("TotalAmount = %d, want 0", bill.TotalAmount.Cents)
	}
}

func TestBillForPeriodExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.UpsertUser(ctx, storage.User{
		Email:       f.user.Email,
		AccessToken: "tok",
		TokenExpiry: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}

	_, err = f.svc.BillForPeriod(ctx, f.user.ID, core.Period{Month: 3, Year: 2025})
	if !errors.Is(err, auth.ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestSendBreakdownPersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	period := core.Period{Month: 3, Year: 2025}

	f.seedProvider(t, "City Water Co", core.Water)
	tenant := f.seedTenant(t, map[core.Category]float64{core.Water: 50})
	f.store.Add("billing@citywater.example", "City Water Co statement",
		"Amount due: $45.00", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	res := f.svc.SendBreakdown(ctx, f.user.ID, tenant.ID, period)
	if !res.Success {
		t.Fatalf("SendBreakdown() = %+v, want success", res)
	}

	saved, err := f.repo.ListConsolidatedBills(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("ListConsolidatedBills() error = %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("saved bills = %d, want 1", len(saved))
	}
	if saved[0].TenantID != tenant.ID {
		t.Errorf("TenantID = %q, want %q", saved[0].TenantID, tenant.ID)
	}
	if saved[0].DateSent != nil {
		t.Error("DateSent set before worker delivered the email")
	}

	if len(f.publisher.billIDs) != 1 || f.publisher.billIDs[0] != saved[0].ID {
		t.Errorf("published bill IDs = %v, want [%s]", f.publisher.billIDs, saved[0].ID)
	}
	if len(f.publisher.tenantIDs) != 1 || f.publisher.tenantIDs[0] != tenant.ID {
		t.Errorf("published tenant IDs = %v, want [%s]", f.publisher.tenantIDs, tenant.ID)
	}
}

func TestSendBreakdownSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedProvider(t, "City Water Co", core.Water)
	tenant := f.seedTenant(t, map[core.Category]float64{core.Water: 50})
	f.publisher.err = errors.New("broker down")

	// The bill must still be persisted so the worker sweep can pick it up.
	res := f.svc.SendBreakdown(ctx, f.user.ID, tenant.ID, core.Period{Month: 3, Year: 2025})
	if !res.Success {
		t.Fatalf("SendBreakdown() = %+v, want success despite publish failure", res)
	}

	saved, err := f.repo.ListConsolidatedBills(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("ListConsolidatedBills() error = %v", err)
	}
	if len(saved) != 1 {
		t.Errorf("saved bills = %d, want 1", len(saved))
	}
}

func TestSendBreakdownUnknownTenant(t *testing.T) {
	f := newFixture(t)

	res := f.svc.SendBreakdown(context.Background(), f.user.ID, "missing", core.Period{Month: 3, Year: 2025})
	if res.Success || res.Error == "" {
		t.Errorf("SendBreakdown() = %+v, want failure with message", res)
	}
}

func TestSendBreakdownExpiredTokenMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tenant := f.seedTenant(t, nil)
	_, err := f.repo.UpsertUser(ctx, storage.User{
		Email:       f.user.Email,
		AccessToken: "tok",
		TokenExpiry: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}

	res := f.svc.SendBreakdown(ctx, f.user.ID, tenant.ID, core.Period{Month: 3, Year: 2025})
	if res.Success {
		t.Fatal("SendBreakdown() succeeded with expired token")
	}
	if res.Error != "Your session has expired. Please sign in again." {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestMarkPaidSettlesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tenant := f.seedTenant(t, map[core.Category]float64{
		core.Water:       50,
		core.Gas:         25,
		core.Electricity: 25,
	})

	bill, err := f.repo.SaveConsolidatedBill(ctx, core.ConsolidatedBill{
		UserID:   f.user.ID,
		TenantID: tenant.ID,
		Period:   core.Period{Month: 3, Year: 2025},
		Categories: map[core.Category]core.CategoryCharge{
			core.Water:       {Amount: core.Money{Cents: 10000}},
			core.Gas:         {Amount: core.Money{Cents: 10000}},
			core.Electricity: {Amount: core.Money{Cents: 15000}},
		},
		TotalAmount: core.Money{Cents: 35000},
	})
	if err != nil {
		t.Fatalf("SaveConsolidatedBill() error = %v", err)
	}

	// Worker added the tenant's share when the email went out.
	share := core.TenantShare(bill, tenant)
	if share.Cents != 11250 {
		t.Fatalf("TenantShare = %d, want 11250", share.Cents)
	}
	if err := f.repo.AddToOutstandingBalance(ctx, tenant.ID, share.Cents); err != nil {
		t.Fatalf("AddToOutstandingBalance() error = %v", err)
	}

	res := f.svc.MarkPaid(ctx, f.user.ID, bill.ID)
	if !res.Success {
		t.Fatalf("MarkPaid() = %+v, want success", res)
	}

	got, err := f.repo.GetConsolidatedBill(ctx, f.user.ID, bill.ID)
	if err != nil {
		t.Fatalf("GetConsolidatedBill() error = %v", err)
	}
	if !got.Paid || got.DatePaid == nil {
		t.Errorf("bill state = paid:%v datePaid:%v", got.Paid, got.DatePaid)
	}

	settled, err := f.repo.GetTenant(ctx, f.user.ID, tenant.ID)
	if err != nil {
		t.Fatalf("GetTenant() error = %v", err)
	}
	if settled.OutstandingBalance.Cents != 0 {
		t.Errorf("OutstandingBalance = %d, want 0", settled.OutstandingBalance.Cents)
	}
}

func TestMarkPaidTwiceRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tenant := f.seedTenant(t, nil)
	bill, err := f.repo.SaveConsolidatedBill(ctx, core.ConsolidatedBill{
		UserID:      f.user.ID,
		TenantID:    tenant.ID,
		Period:      core.Period{Month: 3, Year: 2025},
		TotalAmount: core.Money{Cents: 100},
	})
	if err != nil {
		t.Fatalf("SaveConsolidatedBill() error = %v", err)
	}

	if res := f.svc.MarkPaid(ctx, f.user.ID, bill.ID); !res.Success {
		t.Fatalf("first MarkPaid() = %+v", res)
	}
	if res := f.svc.MarkPaid(ctx, f.user.ID, bill.ID); res.Success {
		t.Error("second MarkPaid() succeeded, want rejection")
	}
}
