package db

import (
	"context"
	"fmt"
	"time"

	"vps_billing/internal/domain"

	"gorm.io/gorm"
)

// TransactionRepository persists the append-only ledger log
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a ledger entry
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	if err := conn(ctx, r.db).Create(t).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// ListByWallet returns entries newest first. A limit <= 0 returns everything
// from offset on.
func (r *TransactionRepository) ListByWallet(ctx context.Context, walletID uint, offset, limit int) ([]domain.Transaction, error) {
	query := conn(ctx, r.db).
		Where("wallet_id = ?", walletID).
		Order("created_at desc").
		Order("id desc")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var txs []domain.Transaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// CountByWallet returns the number of entries for a wallet
func (r *TransactionRepository) CountByWallet(ctx context.Context, walletID uint) (int64, error) {
	var total int64
	if err := conn(ctx, r.db).Model(&domain.Transaction{}).Where("wallet_id = ?", walletID).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return total, nil
}

// TransactionFilter narrows an operator search of the ledger log
type TransactionFilter struct {
	UserID uint                   // Owner of the wallet, 0 for all
	Kind   domain.TransactionKind // Entry kind, empty for all
	From   *time.Time             // Inclusive lower bound on created_at
	To     *time.Time             // Inclusive upper bound on created_at
	Offset int
	Limit  int
}

// Search returns matching entries newest first, and the number of matches
func (r *TransactionRepository) Search(ctx context.Context, f TransactionFilter) ([]domain.Transaction, int64, error) {
	query := conn(ctx, r.db).Model(&domain.Transaction{})
	if f.UserID != 0 {
		wallets := conn(ctx, r.db).Model(&domain.Wallet{}).Select("id").Where("user_id = ?", f.UserID)
		query = query.Where("wallet_id IN (?)", wallets)
	}
	if f.Kind != "" {
		query = query.Where("kind = ?", f.Kind)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		query = query.Where("created_at <= ?", f.To.UTC())
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}
	var txs []domain.Transaction
	if err := query.Order("created_at desc").Order("id desc").Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to search transactions: %w", err)
	}
	return txs, total, nil
}
