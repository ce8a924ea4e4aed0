// Package dbtest provides a throwaway SQLite copy of the subscription store for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// Schema mirrors the columns the eligibility query reads from the subscription store.
const Schema = `
	CREATE TABLE company (
		id INTEGER PRIMARY KEY,
		company_name TEXT NOT NULL
	);

	CREATE TABLE subscription_pricing (
		id INTEGER PRIMARY KEY,
		billing_cycle TEXT NOT NULL,
		report_name TEXT,
		national_price NUMERIC
	);

	CREATE TABLE subscriptions_draft (
		id INTEGER PRIMARY KEY,
		company_id INTEGER NOT NULL REFERENCES company(id),
		pricing_id INTEGER NOT NULL REFERENCES subscription_pricing(id),
		renewal_date DATE NOT NULL
	);

	CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		company_id INTEGER REFERENCES company(id),
		super_user_id INTEGER,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		email TEXT,
		first_name TEXT,
		last_name TEXT
	);
`

// Store is a seeded SQLite database.
type Store struct {
	DB *sql.DB
	t  *testing.T
}

// New creates a file-backed SQLite database with Schema applied. It is closed on test cleanup.
// A file is used rather than :memory: so every pooled connection sees the same data.
func New(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "store.db")+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(context.Background(), Schema); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	return &Store{DB: db, t: t}
}

func (s *Store) exec(query string, args ...any) {
	s.t.Helper()
	if _, err := s.DB.Exec(query, args...); err != nil {
		s.t.Fatalf("Failed to seed (%s): %v", query, err)
	}
}

// Company inserts a company row.
func (s *Store) Company(id int64, name string) {
	s.t.Helper()
	s.exec(`INSERT INTO company (id, company_name) VALUES (?, ?)`, id, name)
}

// Pricing inserts a pricing row. A nil price is stored as NULL.
func (s *Store) Pricing(id int64, cycle, reportName string, price any) {
	s.t.Helper()
	s.exec(`INSERT INTO subscription_pricing (id, billing_cycle, report_name, national_price) VALUES (?, ?, ?, ?)`,
		id, cycle, reportName, price)
}

// Subscription inserts a subscription renewing on renewalDate (YYYY-MM-DD).
func (s *Store) Subscription(id, companyID, pricingID int64, renewalDate string) {
	s.t.Helper()
	s.exec(`INSERT INTO subscriptions_draft (id, company_id, pricing_id, renewal_date) VALUES (?, ?, ?, ?)`,
		id, companyID, pricingID, renewalDate)
}

// User inserts a user. superUserID of 0 is stored as NULL.
func (s *Store) User(id, companyID, superUserID int64, isAdmin bool, email, first, last string) {
	s.t.Helper()
	var super any
	if superUserID != 0 {
		super = superUserID
	}
	var mail any
	if email != "" {
		mail = email
	}
	s.exec(`INSERT INTO users (id, company_id, super_user_id, is_admin, email, first_name, last_name) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, companyID, super, isAdmin, mail, first, last)
}
