package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used for lazily created wallets when none is configured
const DefaultCurrency = "USD"

// Wallet Model
//
// Balance is only ever changed by the ledger. Version is bumped on every
// balance change and checked by the update, so a stale read can never be
// written back.
type Wallet struct {
	ID        uint            `gorm:"primaryKey" json:"id"`                       // Primary key
	UserID    uint            `gorm:"uniqueIndex;not null" json:"user_id"`        // Foreign key to User
	Balance   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance"` // Wallet balance, never negative
	Currency  string          `gorm:"size:3;not null" json:"currency"`            // ISO 4217 code
	Version   uint64          `gorm:"not null;default:0" json:"-"`                // Optimistic lock counter
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
