package billing

import (
	"context"
	"errors"
	"fmt"

	"vps_billing/internal/domain"
	"vps_billing/internal/pricing"

	"github.com/shopspring/decimal"
)

// RunwayHours is how long a wallet is expected to keep active resources running
const RunwayHours = 24

// Runway tells whether a wallet covers the next hours of hourly billing
type Runway struct {
	Sufficient bool            `json:"sufficient"`
	Balance    decimal.Decimal `json:"current_balance"`
	Required   decimal.Decimal `json:"required_balance"`
	Hours      int             `json:"hours"`
	Message    string          `json:"message"`
}

// BalanceChecker computes wallet runways. It never mutates anything.
type BalanceChecker struct {
	wallets   Wallets
	resources Resources
	calc      *pricing.Calculator
	hours     int
}

// NewBalanceChecker creates a BalanceChecker over RunwayHours
func NewBalanceChecker(wallets Wallets, resources Resources, calc *pricing.Calculator) *BalanceChecker {
	return &BalanceChecker{wallets: wallets, resources: resources, calc: calc, hours: RunwayHours}
}

// Check reports whether the user's balance covers hourly billing of all
// active resources for the runway. A user without a wallet is reported as
// insufficient rather than as an error.
func (c *BalanceChecker) Check(ctx context.Context, userID uint) (Runway, error) {
	rw := Runway{Balance: decimal.Zero, Required: decimal.Zero, Hours: c.hours}

	active, err := c.resources.ListActiveByUser(ctx, userID)
	if err != nil {
		return rw, err
	}

	wallet, err := c.wallets.FindWallet(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrWalletNotFound):
		rw.Sufficient = len(active) == 0
		rw.Message = "Wallet not found"
		return rw, nil
	case err != nil:
		return rw, err
	}
	rw.Balance = wallet.Balance

	if len(active) == 0 {
		rw.Sufficient = true
		rw.Message = "No active resources"
		return rw, nil
	}

	rw.Required = c.calc.TotalHourlyCost(active, c.hours)
	rw.Sufficient = wallet.Balance.GreaterThanOrEqual(rw.Required)
	rw.Message = fmt.Sprintf("Balance: $%s, Required for %dh: $%s",
		wallet.Balance.StringFixed(2), c.hours, rw.Required.StringFixed(2))
	return rw, nil
}
