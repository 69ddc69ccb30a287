// Package storage persists users, providers, tenants, and consolidated
// bills in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"nextbill/internal/core"

	_ "modernc.org/sqlite"
)

// User is a landlord account with its Google OAuth token material.
type User struct {
	ID           string
	Email        string
	Name         string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
}

// PendingBill identifies a persisted bill whose breakdown email has not
// been delivered yet.
type PendingBill struct {
	BillID   string
	TenantID string
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ---- users ----

// UpsertUser inserts the user on first sign-in and refreshes the token
// material on every subsequent one. The returned user carries the stored
// ID, which survives re-login.
func (r *SQLiteRepository) UpsertUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, access_token, refresh_token, token_expiry)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE users.refresh_token END,
			token_expiry = excluded.token_expiry`,
		u.ID, u.Email, u.Name, u.AccessToken, u.RefreshToken, u.TokenExpiry)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}

	stored, err := r.GetUserByEmail(ctx, u.Email)
	if err != nil {
		return User{}, err
	}

	slog.InfoContext(ctx, "User upserted", "user_id", stored.ID, "email", stored.Email)
	return stored, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, email, name, access_token, refresh_token, token_expiry, created_at
		FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, email, name, access_token, refresh_token, token_expiry, created_at
		FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (User, error) {
	var u User
	var expiry, created sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AccessToken, &u.RefreshToken, &expiry, &created)
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	if expiry.Valid {
		u.TokenExpiry = expiry.Time
	}
	if created.Valid {
		u.CreatedAt = created.Time
	}
	return u, nil
}

// ---- utility providers ----

func (r *SQLiteRepository) CreateProvider(ctx context.Context, p core.UtilityProvider) (core.UtilityProvider, error) {
	if err := p.Validate(); err != nil {
		return core.UtilityProvider{}, fmt.Errorf("validate provider: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO utility_providers (id, user_id, name, category)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, string(p.Category))
	if err != nil {
		return core.UtilityProvider{}, fmt.Errorf("create provider: %w", err)
	}

	slog.InfoContext(ctx, "Provider created",
		"provider_id", p.ID, "provider_name", p.Name, "category", string(p.Category))
	return p, nil
}

func (r *SQLiteRepository) GetProvider(ctx context.Context, userID, id string) (core.UtilityProvider, error) {
	var p core.UtilityProvider
	var category string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, category FROM utility_providers
		WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&p.ID, &p.UserID, &p.Name, &category)
	if err != nil {
		return core.UtilityProvider{}, fmt.Errorf("get provider: %w", err)
	}
	p.Category = core.Category(category)
	return p, nil
}

func (r *SQLiteRepository) ListProviders(ctx context.Context, userID string) ([]core.UtilityProvider, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, category FROM utility_providers
		WHERE user_id = ? ORDER BY category, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var providers []core.UtilityProvider
	for rows.Next() {
		var p core.UtilityProvider
		var category string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &category); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		p.Category = core.Category(category)
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (r *SQLiteRepository) UpdateProvider(ctx context.Context, p core.UtilityProvider) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validate provider: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE utility_providers SET name = ?, category = ?
		WHERE id = ? AND user_id = ?`,
		p.Name, string(p.Category), p.ID, p.UserID)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	return requireRow(res, "provider", p.ID)
}

func (r *SQLiteRepository) DeleteProvider(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM utility_providers WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	return requireRow(res, "provider", id)
}

// ---- tenants ----

func (r *SQLiteRepository) CreateTenant(ctx context.Context, t core.Tenant) (core.Tenant, error) {
	if err := t.Validate(); err != nil {
		return core.Tenant{}, fmt.Errorf("validate tenant: %w", err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Tenant{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tenants (id, user_id, name, email, secondary_name, outstanding_balance_cents)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Name, t.Email, t.SecondaryName, t.OutstandingBalance.Cents)
	if err != nil {
		return core.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	if err := replaceShares(ctx, tx, t.ID, t.Shares); err != nil {
		return core.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Tenant{}, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Tenant created", "tenant_id", t.ID, "tenant_email", t.Email)
	return t, nil
}

func (r *SQLiteRepository) GetTenant(ctx context.Context, userID, id string) (core.Tenant, error) {
	var t core.Tenant
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, email, secondary_name, outstanding_balance_cents
		FROM tenants WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&t.ID, &t.UserID, &t.Name, &t.Email, &t.SecondaryName, &cents)
	if err != nil {
		return core.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	t.OutstandingBalance = core.Money{Cents: cents}

	t.Shares, err = r.loadShares(ctx, t.ID)
	if err != nil {
		return core.Tenant{}, err
	}
	return t, nil
}

func (r *SQLiteRepository) ListTenants(ctx context.Context, userID string) ([]core.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, email, secondary_name, outstanding_balance_cents
		FROM tenants WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []core.Tenant
	for rows.Next() {
		var t core.Tenant
		var cents int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Email, &t.SecondaryName, &cents); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		t.OutstandingBalance = core.Money{Cents: cents}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tenants {
		tenants[i].Shares, err = r.loadShares(ctx, tenants[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return tenants, nil
}

func (r *SQLiteRepository) UpdateTenant(ctx context.Context, t core.Tenant) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validate tenant: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tenants SET name = ?, email = ?, secondary_name = ?
		WHERE id = ? AND user_id = ?`,
		t.Name, t.Email, t.SecondaryName, t.ID, t.UserID)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if err := requireRow(res, "tenant", t.ID); err != nil {
		return err
	}
	if err := replaceShares(ctx, tx, t.ID, t.Shares); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) DeleteTenant(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM tenants WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	return requireRow(res, "tenant", id)
}

// AddToOutstandingBalance increases a tenant's balance when a bill
// breakdown is delivered; a negative delta settles it on payment.
func (r *SQLiteRepository) AddToOutstandingBalance(ctx context.Context, tenantID string, deltaCents int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET outstanding_balance_cents = outstanding_balance_cents + ?
		WHERE id = ?`, deltaCents, tenantID)
	if err != nil {
		return fmt.Errorf("adjust outstanding balance: %w", err)
	}
	return requireRow(res, "tenant", tenantID)
}

func (r *SQLiteRepository) loadShares(ctx context.Context, tenantID string) (map[core.Category]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, percentage FROM tenant_shares WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load shares: %w", err)
	}
	defer rows.Close()

	shares := make(map[core.Category]float64)
	for rows.Next() {
		var category string
		var pct float64
		if err := rows.Scan(&category, &pct); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares[core.Category(category)] = pct
	}
	return shares, rows.Err()
}

func replaceShares(ctx context.Context, tx *sql.Tx, tenantID string, shares map[core.Category]float64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tenant_shares WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("clear shares: %w", err)
	}
	for cat, pct := range shares {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tenant_shares (tenant_id, category, percentage)
			VALUES (?, ?, ?)`, tenantID, string(cat), pct); err != nil {
			return fmt.Errorf("insert share: %w", err)
		}
	}
	return nil
}

// ---- consolidated bills ----

// SaveConsolidatedBill persists a bill and its category charges in one
// transaction. A generated ID is assigned when the bill has none.
func (r *SQLiteRepository) SaveConsolidatedBill(ctx context.Context, cb core.ConsolidatedBill) (core.ConsolidatedBill, error) {
	if err := cb.Period.Validate(); err != nil {
		return core.ConsolidatedBill{}, fmt.Errorf("validate period: %w", err)
	}
	if cb.ID == "" {
		cb.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ConsolidatedBill{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO consolidated_bills (id, user_id, tenant_id, month, year, total_cents, paid, date_sent, date_paid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cb.ID, cb.UserID, cb.TenantID, cb.Period.Month, cb.Period.Year,
		cb.TotalAmount.Cents, cb.Paid, cb.DateSent, cb.DatePaid)
	if err != nil {
		return core.ConsolidatedBill{}, fmt.Errorf("save consolidated bill: %w", err)
	}

	for cat, charge := range cb.Categories {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bill_categories (bill_id, category, provider_id, provider_name, amount_cents)
			VALUES (?, ?, ?, ?, ?)`,
			cb.ID, string(cat), charge.ProviderID, charge.ProviderName, charge.Amount.Cents)
		if err != nil {
			return core.ConsolidatedBill{}, fmt.Errorf("save bill category: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.ConsolidatedBill{}, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Consolidated bill saved",
		"bill_id", cb.ID, "tenant_id", cb.TenantID,
		"year", cb.Period.Year, "month", cb.Period.Month,
		"amount_cents", cb.TotalAmount.Cents)
	return cb, nil
}

func (r *SQLiteRepository) GetConsolidatedBill(ctx context.Context, userID, id string) (core.ConsolidatedBill, error) {
	var cb core.ConsolidatedBill
	var totalCents int64
	var dateSent, datePaid sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, tenant_id, month, year, total_cents, paid, date_sent, date_paid
		FROM consolidated_bills WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&cb.ID, &cb.UserID, &cb.TenantID, &cb.Period.Month, &cb.Period.Year,
			&totalCents, &cb.Paid, &dateSent, &datePaid)
	if err != nil {
		return core.ConsolidatedBill{}, fmt.Errorf("get consolidated bill: %w", err)
	}
	cb.TotalAmount = core.Money{Cents: totalCents}
	if dateSent.Valid {
		cb.DateSent = &dateSent.Time
	}
	if datePaid.Valid {
		cb.DatePaid = &datePaid.Time
	}

	cb.Categories, err = r.loadBillCategories(ctx, cb.ID)
	if err != nil {
		return core.ConsolidatedBill{}, err
	}
	return cb, nil
}

// GetConsolidatedBillByID loads a bill without a user scope. The worker
// uses it when dequeuing; user-facing paths go through GetConsolidatedBill.
func (r *SQLiteRepository) GetConsolidatedBillByID(ctx context.Context, id string) (core.ConsolidatedBill, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id FROM consolidated_bills WHERE id = ?`, id).Scan(&userID)
	if err != nil {
		return core.ConsolidatedBill{}, fmt.Errorf("get consolidated bill: %w", err)
	}
	return r.GetConsolidatedBill(ctx, userID, id)
}

func (r *SQLiteRepository) ListConsolidatedBills(ctx context.Context, userID string) ([]core.ConsolidatedBill, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM consolidated_bills
		WHERE user_id = ? ORDER BY year DESC, month DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list consolidated bills: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bill id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bills := make([]core.ConsolidatedBill, 0, len(ids))
	for _, id := range ids {
		cb, err := r.GetConsolidatedBill(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		bills = append(bills, cb)
	}
	return bills, nil
}

func (r *SQLiteRepository) loadBillCategories(ctx context.Context, billID string) (map[core.Category]core.CategoryCharge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, provider_id, provider_name, amount_cents
		FROM bill_categories WHERE bill_id = ?`, billID)
	if err != nil {
		return nil, fmt.Errorf("load bill categories: %w", err)
	}
	defer rows.Close()

	categories := make(map[core.Category]core.CategoryCharge)
	for rows.Next() {
		var category string
		var charge core.CategoryCharge
		var cents int64
		if err := rows.Scan(&category, &charge.ProviderID, &charge.ProviderName, &cents); err != nil {
			return nil, fmt.Errorf("scan bill category: %w", err)
		}
		charge.Amount = core.Money{Cents: cents}
		categories[core.Category(category)] = charge
	}
	return categories, rows.Err()
}

// MarkBillSent stamps the delivery time of a bill breakdown email.
func (r *SQLiteRepository) MarkBillSent(ctx context.Context, billID string, when time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE consolidated_bills SET date_sent = ? WHERE id = ?`, when, billID)
	if err != nil {
		return fmt.Errorf("mark bill sent: %w", err)
	}
	return requireRow(res, "bill", billID)
}

// MarkBillPaid stamps the payment time and flips the paid flag.
func (r *SQLiteRepository) MarkBillPaid(ctx context.Context, userID, billID string, when time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE consolidated_bills SET paid = 1, date_paid = ?
		WHERE id = ? AND user_id = ? AND paid = 0`, when, billID, userID)
	if err != nil {
		return fmt.Errorf("mark bill paid: %w", err)
	}
	return requireRow(res, "bill", billID)
}

// ListUnsentBills returns bills whose breakdown email is still pending.
// This backs the worker's sweep for sends that were queued but lost.
func (r *SQLiteRepository) ListUnsentBills(ctx context.Context, limit int) ([]PendingBill, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id FROM consolidated_bills
		WHERE date_sent IS NULL ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsent bills: %w", err)
	}
	defer rows.Close()

	var pending []PendingBill
	for rows.Next() {
		var p PendingBill
		if err := rows.Scan(&p.BillID, &p.TenantID); err != nil {
			return nil, fmt.Errorf("scan pending bill: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
