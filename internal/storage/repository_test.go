package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nextbill/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *SQLiteRepository) User {
	t.Helper()
	u, err := repo.UpsertUser(context.Background(), User{
		Email:       "landlord@example.com",
		Name:        "Landlord",
		AccessToken: "tok",
		TokenExpiry: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	return u
}

func TestUpsertUserKeepsIDOnRelogin(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := seedUser(t, repo)

	second, err := repo.UpsertUser(ctx, User{
		Email:       "landlord@example.com",
		Name:        "Landlord",
		AccessToken: "newer-tok",
	})
	if err != nil {
		t.Fatalf("UpsertUser() second error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("re-login changed user ID: %s != %s", second.ID, first.ID)
	}
	if second.AccessToken != "newer-tok" {
		t.Errorf("AccessToken = %q, want %q", second.AccessToken, "newer-tok")
	}
}

func TestUpsertUserPreservesRefreshToken(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertUser(ctx, User{
		Email:        "landlord@example.com",
		AccessToken:  "tok",
		RefreshToken: "refresh-1",
	})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}

	// Google only returns a refresh token on first consent; an empty one
	// on re-login must not clobber the stored value.
	u, err := repo.UpsertUser(ctx, User{
		Email:       "landlord@example.com",
		AccessToken: "tok-2",
	})
	if err != nil {
		t.Fatalf("UpsertUser() second error = %v", err)
	}
	if u.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want preserved %q", u.RefreshToken, "refresh-1")
	}
}

func TestProviderCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo)

	p, err := repo.CreateProvider(ctx, core.UtilityProvider{
		UserID:   u.ID,
		Name:     "City Water Co",
		Category: core.Water,
	})
	if err != nil {
		t.Fatalf("CreateProvider() error = %v", err)
	}
	if p.ID == "" {
		t.Fatal("CreateProvider() assigned no ID")
	}

	got, err := repo.GetProvider(ctx, u.ID, p.ID)
	if err != nil {
		t.Fatalf("GetProvider() error = %v", err)
	}
	if got.Name != "City Water Co" || got.Category != core.Water {
		t.Errorf("GetProvider() = %+v", got)
	}

	p.Name = "County Water"
	p.Category = core.Water
	if err := repo.UpdateProvider(ctx, p); err != nil {
		t.Fatalf("UpdateProvider() error = %v", err)
	}

	list, err := repo.ListProviders(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListProviders() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "County Water" {
		t.Errorf("ListProviders() = %+v", list)
	}

	if err := repo.DeleteProvider(ctx, u.ID, p.ID); err != nil {
		t.Fatalf("DeleteProvider() error = %v", err)
	}
	if _, err := repo.GetProvider(ctx, u.ID, p.ID); err == nil {
		t.Error("GetProvider() after delete succeeded, want error")
	}
}

func TestCreateProviderRejectsInvalidCategory(t *testing.T) {
	repo := newTestRepo(t)
	u := seedUser(t, repo)

	_, err := repo.CreateProvider(context.Background(), core.UtilityProvider{
		UserID:   u.ID,
		Name:     "Internet Co",
		Category: core.Category("Internet"),
	})
	if err == nil {
		t.Fatal("CreateProvider() with bad category succeeded, want error")
	}
}

func TestProviderScopedByUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo)

	p, err := repo.CreateProvider(ctx, core.UtilityProvider{
		UserID:   u.ID,
		Name:     "Gas Works",
		Category: core.Gas,
	})
	if err != nil {
		t.Fatalf("CreateProvider() error = %v", err)
	}

	if _, err := repo.GetProvider(ctx, "other-user", p.ID); err == nil {
		t.Error("GetProvider() for wrong user succeeded, want error")
	}
	if err := repo.DeleteProvider(ctx, "other-user", p.ID); err == nil {
		t.Error("DeleteProvider() for wrong user succeeded, want error")
	}
}

func TestTenantCRUDWithShares(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo)

	tenant, err := repo.CreateTenant(ctx, core.Tenant{
		UserID:        u.ID,
		Name:          "Alice",
		Email:         "alice@example.com",
		SecondaryName: "Bob",
		Shares: map[core.Category]float64{
			core.Water: 50,
			core.Gas:   25,
		},
	})
	if err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	got, err := repo.GetTenant(ctx, u.ID, tenant.ID)
	if err != nil {
		t.Fatalf("GetTenant() error = %v", err)
	}
	if got.Share(core.Water) != 50 || got.Share(core.Gas) != 25 {
		t.Errorf("shares = %+v", got.Shares)
	}
	if got.Share(core.Electricity) != 0 {
		t.Errorf("missing category share = %v, want 0", got.Share(core.Electricity))
	}
	if got.SecondaryName != "Bob" {
		t.Errorf("SecondaryName = %q", got.SecondaryName)
	}

	// UpdateTenant replaces shares wholesale.
	got.Shares = map[core.Category]float64{core.Electricity: 100}
	if err := repo.UpdateTenant(ctx, got); err != nil {
		t.Fatalf("UpdateTenant() error = %v", err)
	}
	updated, err := repo.GetTenant(ctx, u.ID, tenant.ID)
	if err != nil {
		t.Fatalf("GetTenant() after update error = %v", err)
	}
	if len(updated.Shares) != 1 || updated.Share(core.Electricity) != 100 {
		t.Errorf("shares after update = %+v", updated.Shares)
	}

	if err := repo.DeleteTenant(ctx, u.ID, tenant.ID); err != nil {
		t.Fatalf("DeleteTenant() error = %v", err)
	}
	list, err := repo.ListTenants(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListTenants() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListTenants() after delete = %+v", list)
	}
}

func TestCreateTenantRejectsInvalidShare(t *testing.T) {
	repo := newTestRepo(t)
	u := seedUser(t, repo)

	_, err := repo.CreateTenant(context.Background(), core.Tenant{
		UserID: u.ID,
		Name:   "Alice",
		Email:  "alice@example.com",
		Shares: map[core.Category]float64{core.Water: 150},
	})
	if err == nil {
		t.Fatal("CreateTenant() with share over 100 succeeded, want error")
	}
}

func TestOutstandingBalance(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo)

	tenant, err := repo.CreateTenant(ctx, core.Tenant{
		UserID: u.ID,
		Name:   "Alice",
		Email:  "alice@example.com",
	})
	if err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	if err := repo.AddToOutstandingBalance(ctx, tenant.ID, 11250); err != nil {
		t.Fatalf("AddToOutstandingBalance() error = %v", err)
	}
	if err := repo.AddToOutstandingBalance(ctx, tenant.ID, -11250); err != nil {
		t.Fatalf("AddToOutstandingBalance() settle error = %v", err)
	}

	got, err := repo.GetTenant(ctx, u.ID, tenant.ID)
	if err != nil {
		t.Fatalf("GetTenant() error = %v", err)
	}
	if got.OutstandingBalance.Cents != 0 {
		t.Errorf("OutstandingBalance = %d, want 0", got.OutstandingBalance.Cents)
	}
}

func TestConsolidatedBillLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo)

	tenant, err := repo.CreateTenant(ctx, core.Tenant{
		UserID: u.ID,
		Name:   "Alice",
		Email:  "alice@example.com",
	})
	if err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	cb, err := repo.SaveConsolidatedBill(ctx, core.ConsolidatedBill{
		UserID:   u.ID,
		TenantID: tenant.ID,
		Period:   core.Period{Month: 3, Year: 2025},
		Categories: map[core.Category]core.CategoryCharge{
			core.Water: {ProviderName: "City Water Co", Amount: core.Money{Cents: 4500}},
			core.Gas:   {ProviderName: "Gas Works", Amount: core.Money{Cents: 8000}},
		},
		TotalAmount: core.Money{Cents: 12500},
	})
	if err != nil {
		t.Fatalf("SaveConsolidatedBill() error = %v", err)
	}

	got, err := repo.GetConsolidatedBill(ctx, u.ID, cb.ID)
	if err != nil {
		t.Fatalf("GetConsolidatedBill() error = %v", err)
	}
	if got.TotalAmount.Cents != 12500 {
		t.Errorf("TotalAmount = %d, want 12500", got.TotalAmount.Cents)
	}
	if got.DateSent != nil || got.Paid {
		t.Errorf("fresh bill sent/paid state = %v/%v", got.DateSent, got.Paid)
	}
	if got.Categories[core.Water].Amount.Cents != 4500 {
		t.Errorf("Water charge = %+v", got.Categories[core.Water])
	}
	if got.Categories[core.Gas].ProviderName != "Gas Works" {
		t.Errorf("Gas charge = %+v", got.Categories[core.Gas])
	}

	sentAt := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	if err := repo.MarkBillSent(ctx, cb.ID, sentAt); err != nil {
		t.Fatalf("MarkBillSent() error = %v", err)
	}
	if err := repo.MarkBillPaid(ctx, u.ID, cb.ID, sentAt.Add(48*time.Hour)); err != nil {
		t.Fatalf("MarkBillPaid() error = %v", err)
	}

	got, err = repo.GetConsolidatedBill(ctx, u.ID, cb.ID)
	if err != nil {
		t.Fatalf("GetConsolidatedBill() after updates error = %v", err)
	}
	if got.DateSent == nil || !got.Paid || got.DatePaid == nil {
		t.Errorf("bill state = sent:%v paid:%v datePaid:%v", got.DateSent, got.Paid, got.DatePaid)
	}

	// Marking an already-paid bill again is rejected.
	if err := repo.MarkBillPaid(ctx, u.ID, cb.ID, time.Now()); err == nil {
		t.Error("MarkBillPaid() twice succeeded, want error")
	}
}

func TestListUnsentBills(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo)

	tenant, err := repo.CreateTenant(ctx, core.Tenant{
		UserID: u.ID,
		Name:   "Alice",
		Email:  "alice@example.com",
	})
	if err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	unsent, err := repo.SaveConsolidatedBill(ctx, core.ConsolidatedBill{
		UserID:      u.ID,
		TenantID:    tenant.ID,
		Period:      core.Period{Month: 1, Year: 2025},
		TotalAmount: core.Money{Cents: 100},
	})
	if err != nil {
		t.Fatalf("SaveConsolidatedBill() error = %v", err)
	}
	sent, err := repo.SaveConsolidatedBill(ctx, core.ConsolidatedBill{
		UserID:      u.ID,
		TenantID:    tenant.ID,
		Period:      core.Period{Month: 2, Year: 2025},
		TotalAmount: core.Money{Cents: 200},
	})
	if err != nil {
		t.Fatalf("SaveConsolidatedBill() error = %v", err)
	}
	if err := repo.MarkBillSent(ctx, sent.ID, time.Now()); err != nil {
		t.Fatalf("MarkBillSent() error = %v", err)
	}

	pending, err := repo.ListUnsentBills(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnsentBills() error = %v", err)
	}
	if len(pending) != 1 || pending[0].BillID != unsent.ID || pending[0].TenantID != tenant.ID {
		t.Errorf("ListUnsentBills() = %+v, want only %s", pending, unsent.ID)
	}
}
