package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vps_billing/internal/domain"

	"gorm.io/gorm"
)

// ResourceRepository reads and updates leased VMs
type ResourceRepository struct {
	db *gorm.DB
}

// NewResourceRepository creates a new ResourceRepository
func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create inserts a resource
func (r *ResourceRepository) Create(ctx context.Context, res *domain.Resource) error {
	if err := conn(ctx, r.db).Create(res).Error; err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

// GetByID returns a resource with its plan
func (r *ResourceRepository) GetByID(ctx context.Context, id uint) (*domain.Resource, error) {
	var res domain.Resource
	err := conn(ctx, r.db).Preload("Plan").First(&res, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return &res, nil
}

// ListActiveByUser returns the user's active resources with their plans
func (r *ResourceRepository) ListActiveByUser(ctx context.Context, userID uint) ([]domain.Resource, error) {
	var out []domain.Resource
	err := conn(ctx, r.db).
		Preload("Plan").
		Where("user_id = ? AND status = ?", userID, domain.ResourceActive).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active resources: %w", err)
	}
	return out, nil
}

// ListExpiredActiveByUser returns the user's active resources whose term
// ended before now, oldest expiry first
func (r *ResourceRepository) ListExpiredActiveByUser(ctx context.Context, userID uint, now time.Time) ([]domain.Resource, error) {
	var out []domain.Resource
	err := conn(ctx, r.db).
		Preload("Plan").
		Where("user_id = ? AND status = ? AND expires_at < ?", userID, domain.ResourceActive, now).
		Order("expires_at").
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired resources: %w", err)
	}
	return out, nil
}

// ActiveUserIDs returns the distinct owners of active resources
func (r *ResourceRepository) ActiveUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := conn(ctx, r.db).
		Model(&domain.Resource{}).
		Where("status = ?", domain.ResourceActive).
		Distinct().
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list billable users: %w", err)
	}
	return ids, nil
}

// ExpiredActiveUserIDs returns the distinct owners of active resources that expired before now
func (r *ResourceRepository) ExpiredActiveUserIDs(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := conn(ctx, r.db).
		Model(&domain.Resource{}).
		Where("status = ? AND expires_at < ?", domain.ResourceActive, now).
		Distinct().
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list renewable users: %w", err)
	}
	return ids, nil
}

// SetStatus changes a resource's lifecycle state
func (r *ResourceRepository) SetStatus(ctx context.Context, id uint, status domain.ResourceStatus) error {
	return r.update(ctx, id, "status", status)
}

// SetExpiry moves a resource's paid term end
func (r *ResourceRepository) SetExpiry(ctx context.Context, id uint, expiresAt time.Time) error {
	return r.update(ctx, id, "expires_at", expiresAt)
}

func (r *ResourceRepository) update(ctx context.Context, id uint, column string, value any) error {
	res := conn(ctx, r.db).Model(&domain.Resource{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("failed to update resource %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrResourceNotFound
	}
	return nil
}
