package domain

import "github.com/shopspring/decimal"

// Plan Model
type Plan struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	CPUCores      int             `json:"cpu_cores"`
	RAMGB         int             `gorm:"column:ram_gb" json:"ram_gb"`
	DiskGB        int             `json:"disk_gb"`
	BandwidthGB   int             `json:"bandwidth_gb"`
	PricePerMonth decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price_per_month"`
	IsActive      bool            `gorm:"not null" json:"is_active"`
}
