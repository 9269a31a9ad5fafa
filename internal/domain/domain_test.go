package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	insufficient := &InsufficientBalanceError{
		Required:  decimal.RequireFromString("20.00"),
		Available: decimal.RequireFromString("10.00"),
	}

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"invalid amount", ErrInvalidAmount, KindInvalidAmount},
		{"typed insufficient balance", insufficient, KindInsufficientBalance},
		{"wrapped wallet not found", fmt.Errorf("bill user 1: %w", ErrWalletNotFound), KindWalletNotFound},
		{"user not found", ErrUserNotFound, KindUserNotFound},
		{"anything else", errors.New("connection reset"), KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestInsufficientBalanceError(t *testing.T) {
	err := error(&InsufficientBalanceError{
		Required:  decimal.RequireFromString("0.06"),
		Available: decimal.RequireFromString("0.05"),
	})

	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Equal(t, "insufficient balance: required 0.06, available 0.05", err.Error())

	var typed *InsufficientBalanceError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &typed))
	assert.Equal(t, "0.06", typed.Required.StringFixed(2))
}

func TestResourceRenewedExpiry(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	period := 30 * 24 * time.Hour

	lapsed := Resource{ExpiresAt: now.Add(-72 * time.Hour)}
	assert.True(t, lapsed.IsExpired(now))
	assert.Equal(t, now.Add(period), lapsed.RenewedExpiry(now, period))

	running := Resource{ExpiresAt: now.Add(48 * time.Hour)}
	assert.False(t, running.IsExpired(now))
	assert.Equal(t, now.Add(48*time.Hour).Add(period), running.RenewedExpiry(now, period))
}

func TestUserIsAdmin(t *testing.T) {
	assert.True(t, User{Role: RoleAdmin}.IsAdmin())
	assert.False(t, User{Role: RoleUser}.IsAdmin())
}
