package db

import (
	"context"
	"errors"
	"fmt"

	"vps_billing/internal/domain"

	"gorm.io/gorm"
)

// UserRepository reads users
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user or domain.ErrUserNotFound
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	if err := conn(ctx, r.db).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Create inserts a user
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := conn(ctx, r.db).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// List returns a page of users with their wallets, ordered by id
func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	var total int64
	if err := conn(ctx, r.db).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}
	var users []domain.User
	if err := conn(ctx, r.db).Preload("Wallet").Order("id").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// PlanRepository persists plans. Plans are read-only for billing.
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new PlanRepository
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create inserts a plan
func (r *PlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	if err := conn(ctx, r.db).Create(plan).Error; err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// GetByID returns a plan or gorm.ErrRecordNotFound wrapped
func (r *PlanRepository) GetByID(ctx context.Context, id uint) (*domain.Plan, error) {
	var plan domain.Plan
	if err := conn(ctx, r.db).First(&plan, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}
