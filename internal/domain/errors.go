package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned when a non-positive amount reaches the ledger
	ErrInvalidAmount = errors.New("invalid amount: must be positive")

	// ErrInsufficientBalance is returned when a wallet cannot cover a debit
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrWalletNotFound is returned when the user has no wallet
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrUserNotFound is returned when a user id does not resolve
	ErrUserNotFound = errors.New("user not found")

	// ErrResourceNotFound is returned when a resource id does not resolve
	ErrResourceNotFound = errors.New("resource not found")

	// ErrConcurrentUpdate is returned when a wallet changed between read and write
	ErrConcurrentUpdate = errors.New("wallet was modified concurrently")

	// ErrInvalidHours is returned when hourly billing is asked for less than one hour
	ErrInvalidHours = errors.New("invalid hours: must be at least 1")
)

// InsufficientBalanceError carries the amounts involved in a refused debit
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// Unwrap lets errors.Is match ErrInsufficientBalance
func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// ErrorKind names the failure classes reported to operators
type ErrorKind string

// Error kinds
const (
	KindNone                ErrorKind = ""
	KindInvalidAmount       ErrorKind = "invalid_amount"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindWalletNotFound      ErrorKind = "wallet_not_found"
	KindUserNotFound        ErrorKind = "user_not_found"
	KindUnexpected          ErrorKind = "unexpected"
)

// Kind classifies err. A nil error has no kind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrWalletNotFound):
		return KindWalletNotFound
	case errors.Is(err, ErrUserNotFound):
		return KindUserNotFound
	default:
		return KindUnexpected
	}
}
