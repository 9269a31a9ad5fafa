// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"vps_billing/internal/db"
	"vps_billing/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a fresh migrated SQLite database that lives until the test ends.
//
// The pool holds a single connection, so concurrent transactions queue on it.
// Code under test must therefore never touch the pool while holding a
// transaction, which is the same rule production code follows.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := gdb.AutoMigrate(db.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return gdb
}

// Fixture seeds rows for tests
type Fixture struct {
	T  testing.TB
	DB *gorm.DB
}

// NewFixture wraps a database returned by Open
func NewFixture(t testing.TB, gdb *gorm.DB) *Fixture {
	return &Fixture{T: t, DB: gdb}
}

// User creates a user
func (f *Fixture) User(username string) domain.User {
	f.T.Helper()
	u := domain.User{Username: username, Email: username + "@example.com", Role: domain.RoleUser}
	f.must(f.DB.Create(&u).Error)
	return u
}

// Wallet creates a wallet holding balance
func (f *Fixture) Wallet(userID uint, balance string) domain.Wallet {
	f.T.Helper()
	w := domain.Wallet{UserID: userID, Balance: decimal.RequireFromString(balance), Currency: domain.DefaultCurrency}
	f.must(f.DB.Create(&w).Error)
	return w
}

// Plan creates an active plan priced per month
func (f *Fixture) Plan(name, pricePerMonth string) domain.Plan {
	f.T.Helper()
	p := domain.Plan{Name: name, CPUCores: 1, RAMGB: 1, DiskGB: 25, BandwidthGB: 1000,
		PricePerMonth: decimal.RequireFromString(pricePerMonth), IsActive: true}
	f.must(f.DB.Create(&p).Error)
	return p
}

// Resource creates a resource on plan with the given status and expiry
func (f *Fixture) Resource(userID uint, plan domain.Plan, status domain.ResourceStatus, expiresAt time.Time) domain.Resource {
	f.T.Helper()
	r := domain.Resource{
		UserID:     userID,
		PlanID:     plan.ID,
		InstanceID: "vm-" + uuid.NewString()[:8],
		Status:     status,
		ExpiresAt:  expiresAt.UTC(),
	}
	f.must(f.DB.Omit("Plan").Create(&r).Error)
	r.Plan = plan
	return r
}

// Balance reads the stored balance of the user's wallet
func (f *Fixture) Balance(userID uint) decimal.Decimal {
	f.T.Helper()
	w, err := db.NewWalletRepository(f.DB).FindByUserID(context.Background(), userID)
	f.must(err)
	return w.Balance
}

// Transactions reads every ledger entry of the user's wallet, newest first
func (f *Fixture) Transactions(userID uint) []domain.Transaction {
	f.T.Helper()
	w, err := db.NewWalletRepository(f.DB).FindByUserID(context.Background(), userID)
	f.must(err)
	txs, err := db.NewTransactionRepository(f.DB).ListByWallet(context.Background(), w.ID, 0, 0)
	f.must(err)
	return txs
}

// Reload reads a resource back from the database
func (f *Fixture) Reload(id uint) domain.Resource {
	f.T.Helper()
	r, err := db.NewResourceRepository(f.DB).GetByID(context.Background(), id)
	f.must(err)
	return *r
}

func (f *Fixture) must(err error) {
	f.T.Helper()
	if err != nil {
		f.T.Fatalf("fixture: %v", err)
	}
}
