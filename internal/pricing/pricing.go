// Package pricing turns plan prices into hourly and renewal charges.
package pricing

import (
	"time"

	"vps_billing/internal/domain"

	"github.com/shopspring/decimal"
)

// Policy holds the pricing constants. Changing them changes future bills only.
type Policy struct {
	HoursPerMonth int64           // Billable hours in a month (30 days x 24 hours)
	Margin        decimal.Decimal // Multiplier applied to the hourly rate
	RenewalDays   int             // Length of one renewal term
	Places        int32           // Currency decimal places
}

// DefaultPolicy returns the production pricing policy
func DefaultPolicy() Policy {
	return Policy{
		HoursPerMonth: 720,
		Margin:        decimal.RequireFromString("1.10"),
		RenewalDays:   30,
		Places:        2,
	}
}

// Calculator prices resources. It holds no state besides its policy.
type Calculator struct {
	policy Policy
}

// NewCalculator creates a Calculator for policy
func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

// Policy returns the calculator's policy
func (c *Calculator) Policy() Policy {
	return c.policy
}

// HourlyCost is the monthly price spread over the month's hours with the
// margin applied, rounded half-up.
func (c *Calculator) HourlyCost(plan domain.Plan) decimal.Decimal {
	hours := decimal.NewFromInt(c.policy.HoursPerMonth)
	// Keep enough precision before the final rounding
	rate := plan.PricePerMonth.DivRound(hours, 20).Mul(c.policy.Margin)
	return rate.Round(c.policy.Places)
}

// TotalHourlyCost sums the cost of running resources for hours. Each
// resource is rounded on its own before the terms are added.
func (c *Calculator) TotalHourlyCost(resources []domain.Resource, hours int) decimal.Decimal {
	total := decimal.Zero
	h := decimal.NewFromInt(int64(hours))
	for _, r := range resources {
		total = total.Add(c.HourlyCost(r.Plan).Mul(h))
	}
	return total
}

// RenewalCost is the price of one renewal term. No margin applies.
func (c *Calculator) RenewalCost(plan domain.Plan) decimal.Decimal {
	return plan.PricePerMonth
}

// RenewalPeriod is the length of one renewal term
func (c *Calculator) RenewalPeriod() time.Duration {
	return time.Duration(c.policy.RenewalDays) * 24 * time.Hour
}
