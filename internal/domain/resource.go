package domain

import "time"

// ResourceStatus is the lifecycle state of a leased VM
type ResourceStatus string

// Resource statuses
const (
	ResourcePending    ResourceStatus = "pending"
	ResourceActive     ResourceStatus = "active"
	ResourceStopped    ResourceStatus = "stopped"
	ResourceSuspended  ResourceStatus = "suspended"
	ResourceTerminated ResourceStatus = "terminated"
)

// Resource Model (a leased VM instance)
type Resource struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UserID     uint           `gorm:"index;not null" json:"user_id"`
	PlanID     uint           `gorm:"not null" json:"plan_id"`
	Plan       Plan           `json:"plan"`
	InstanceID string         `gorm:"size:100;uniqueIndex;not null" json:"instance_id"`
	Status     ResourceStatus `gorm:"size:20;not null;index" json:"status"`
	ExpiresAt  time.Time      `gorm:"not null;index" json:"expires_at"`
	IPAddress  *string        `gorm:"size:45" json:"ip_address,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// IsExpired reports whether the paid term has lapsed at now
func (r Resource) IsExpired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// RenewedExpiry returns the expiry after renewing for period. A lapsed term
// restarts from now, a running one is extended from its current end.
func (r Resource) RenewedExpiry(now time.Time, period time.Duration) time.Time {
	if r.IsExpired(now) {
		return now.Add(period)
	}
	return r.ExpiresAt.Add(period)
}
