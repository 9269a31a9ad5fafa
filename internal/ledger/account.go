package ledger

import (
	"context"

	"vps_billing/internal/domain"

	"github.com/shopspring/decimal"
)

// Account is a wallet locked inside a unit of work. It is only valid until
// the WithWallet callback that produced it returns.
type Account struct {
	ledger    *Ledger
	wallet    *domain.Wallet
	dryRun    bool
	mutated   bool
	committed []*domain.Transaction
}

// Wallet returns a copy of the wallet as seen by this unit of work
func (a *Account) Wallet() domain.Wallet {
	return *a.wallet
}

// Balance returns the balance including changes made earlier in this unit of work
func (a *Account) Balance() decimal.Decimal {
	return a.wallet.Balance
}

// CanAfford reports whether a debit of amount would succeed
func (a *Account) CanAfford(amount decimal.Decimal) bool {
	return a.wallet.Balance.GreaterThanOrEqual(amount)
}

// DryRun reports whether this unit of work only simulates
func (a *Account) DryRun() bool {
	return a.dryRun
}

// Debit decreases the balance by amount and appends a completed withdraw
// entry. On failure neither the balance nor the log changes.
func (a *Account) Debit(ctx context.Context, amount decimal.Decimal, description string, opts ...EntryOption) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if !a.CanAfford(amount) {
		return nil, &domain.InsufficientBalanceError{Required: amount, Available: a.wallet.Balance}
	}
	return a.apply(ctx, domain.KindWithdraw, amount, a.wallet.Balance.Sub(amount), description, opts)
}

// Credit increases the balance by amount and appends a completed deposit entry
func (a *Account) Credit(ctx context.Context, amount decimal.Decimal, description string, opts ...EntryOption) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	return a.apply(ctx, domain.KindDeposit, amount, a.wallet.Balance.Add(amount), description, opts)
}

// Atomic runs fn in a nested scope. If fn fails, both the stored changes
// and this account's in-memory state return to where they were before fn.
func (a *Account) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := *a.wallet
	mutated := a.mutated
	committed := len(a.committed)

	err := a.ledger.tx.WithTransaction(ctx, fn)
	if err != nil {
		*a.wallet = saved
		a.mutated = mutated
		a.committed = a.committed[:committed]
	}
	return err
}

func (a *Account) apply(ctx context.Context, kind domain.TransactionKind, amount, balance decimal.Decimal, description string, opts []EntryOption) (*domain.Transaction, error) {
	entry := newEntry(a.wallet, kind, amount, description, opts)
	if a.dryRun {
		a.wallet.Balance = balance
		return entry, nil
	}

	next := *a.wallet
	err := a.ledger.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := a.ledger.wallets.UpdateBalance(ctx, &next, balance); err != nil {
			return err
		}
		return a.ledger.entries.Create(ctx, entry)
	})
	if err != nil {
		return nil, describe(a.wallet.UserID, err)
	}

	*a.wallet = next
	a.mutated = true
	a.committed = append(a.committed, entry)
	return entry, nil
}
