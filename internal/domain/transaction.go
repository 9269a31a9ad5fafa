package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the direction of a ledger entry
type TransactionKind string

// Transaction kinds
const (
	KindDeposit  TransactionKind = "deposit"
	KindWithdraw TransactionKind = "withdraw"
	KindPayment  TransactionKind = "payment"
	KindRefund   TransactionKind = "refund"
)

// TransactionStatus is the processing state of a ledger entry
type TransactionStatus string

// Transaction statuses
const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Transaction Model
//
// Rows are append-only. Amount is always positive, Kind carries the direction.
type Transaction struct {
	ID          uint              `gorm:"primaryKey" json:"id"`                      // Primary key
	WalletID    uint              `gorm:"index;not null" json:"wallet_id"`           // Foreign key to Wallet
	Amount      decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"` // Positive amount
	Kind        TransactionKind   `gorm:"size:10;not null;index" json:"kind"`        // deposit, withdraw, payment, refund
	Status      TransactionStatus `gorm:"size:10;not null" json:"status"`            // pending, completed, failed, cancelled
	Description string            `gorm:"type:text" json:"description"`              // Free text shown to the customer
	ReferenceID *string           `gorm:"size:100" json:"reference_id,omitempty"`    // External reference, e.g. gateway id
	CreatedAt   time.Time         `gorm:"autoCreateTime;index" json:"created_at"`    // Timestamp of creation
}
