package db

import (
	"context"
	"errors"
	"fmt"

	"vps_billing/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository persists wallets
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new WalletRepository
func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// FindByUserID returns the user's wallet or domain.ErrWalletNotFound
func (r *WalletRepository) FindByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	if err := conn(ctx, r.db).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// Create inserts a new wallet. A concurrent insert for the same user loses
// on the unique index; the caller is expected to re-read.
func (r *WalletRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	if err := conn(ctx, r.db).Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// LockByUserID reads the wallet with SELECT ... FOR UPDATE. It must run
// inside a transaction; the row stays locked until that transaction ends.
func (r *WalletRepository) LockByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

// UpdateBalance writes a new balance if the stored version still matches
// wallet.Version, then advances wallet in place.
func (r *WalletRepository) UpdateBalance(ctx context.Context, wallet *domain.Wallet, balance decimal.Decimal) error {
	res := conn(ctx, r.db).
		Model(&domain.Wallet{}).
		Where("id = ? AND version = ?", wallet.ID, wallet.Version).
		Updates(map[string]any{
			"balance": balance,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update wallet balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	wallet.Balance = balance
	wallet.Version++
	return nil
}
