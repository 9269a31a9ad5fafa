// Package ledger owns wallet balances and their append-only transaction log.
//
// Every balance change is made through an Account obtained from
// Ledger.WithWallet, which holds the wallet row locked for the duration of
// the unit of work. The change and its completed Transaction row commit
// together or not at all.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"vps_billing/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TxManager opens units of work. A call made with a context that already
// carries a unit of work must open a nested scope (savepoint).
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// WalletRepository is the wallet storage the ledger needs
type WalletRepository interface {
	FindByUserID(ctx context.Context, userID uint) (*domain.Wallet, error)
	Create(ctx context.Context, wallet *domain.Wallet) error
	LockByUserID(ctx context.Context, userID uint) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, wallet *domain.Wallet, balance decimal.Decimal) error
}

// TransactionRepository is the audit log storage the ledger needs
type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	ListByWallet(ctx context.Context, walletID uint, offset, limit int) ([]domain.Transaction, error)
	CountByWallet(ctx context.Context, walletID uint) (int64, error)
}

// CacheInvalidator drops cached reads of a user's wallet after it changed
type CacheInvalidator interface {
	InvalidateWallet(ctx context.Context, userID uint)
}

// Ledger is the only component that mutates balances
type Ledger struct {
	tx       TxManager
	wallets  WalletRepository
	entries  TransactionRepository
	cache    CacheInvalidator
	currency string
	log      *logrus.Entry
}

// Option configures a Ledger
type Option func(*Ledger)

// WithCache invalidates cached wallet reads after every committed change
func WithCache(c CacheInvalidator) Option {
	return func(l *Ledger) { l.cache = c }
}

// WithCurrency sets the currency of lazily created wallets
func WithCurrency(code string) Option {
	return func(l *Ledger) {
		if code != "" {
			l.currency = code
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(l *Ledger) { l.log = log }
}

// New creates a Ledger
func New(tx TxManager, wallets WalletRepository, entries TransactionRepository, opts ...Option) *Ledger {
	l := &Ledger{
		tx:       tx,
		wallets:  wallets,
		entries:  entries,
		currency: domain.DefaultCurrency,
		log:      logrus.WithField("component", "ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FindWallet returns the user's wallet without creating one
func (l *Ledger) FindWallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	return l.wallets.FindByUserID(ctx, userID)
}

// Wallet returns the user's wallet, creating an empty one on first access
func (l *Ledger) Wallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	wallet, err := l.wallets.FindByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}

	wallet = &domain.Wallet{UserID: userID, Balance: decimal.Zero, Currency: l.currency}
	if err := l.wallets.Create(ctx, wallet); err != nil {
		// Another caller may have created it first
		if existing, findErr := l.wallets.FindByUserID(ctx, userID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	l.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"wallet_id": wallet.ID,
		"currency":  wallet.Currency,
	}).Info("Wallet created")
	return wallet, nil
}

// Credit adds amount to the user's wallet, creating the wallet if needed
func (l *Ledger) Credit(ctx context.Context, userID uint, amount decimal.Decimal, description string, opts ...EntryOption) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if _, err := l.Wallet(ctx, userID); err != nil {
		return nil, err
	}
	var entry *domain.Transaction
	err := l.WithWallet(ctx, userID, func(ctx context.Context, acct *Account) error {
		var err error
		entry, err = acct.Credit(ctx, amount, description, opts...)
		return err
	})
	return entry, err
}

// Debit removes amount from the user's wallet. It fails without any effect
// when the balance does not cover amount.
func (l *Ledger) Debit(ctx context.Context, userID uint, amount decimal.Decimal, description string, opts ...EntryOption) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	var entry *domain.Transaction
	err := l.WithWallet(ctx, userID, func(ctx context.Context, acct *Account) error {
		var err error
		entry, err = acct.Debit(ctx, amount, description, opts...)
		return err
	})
	return entry, err
}

// History returns every entry of the wallet, most recent first
func (l *Ledger) History(ctx context.Context, walletID uint) ([]domain.Transaction, error) {
	return l.entries.ListByWallet(ctx, walletID, 0, 0)
}

// Page is one page of wallet history
type Page struct {
	Transactions []domain.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
	Total        int64                `json:"total"`
	TotalPages   int                  `json:"total_pages"`
}

// HistoryPage returns one page of wallet history, most recent first
func (l *Ledger) HistoryPage(ctx context.Context, walletID uint, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	total, err := l.entries.CountByWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	txs, err := l.entries.ListByWallet(ctx, walletID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	return &Page{
		Transactions: txs,
		Page:         page,
		PageSize:     pageSize,
		Total:        total,
		TotalPages:   (int(total) + pageSize - 1) / pageSize,
	}, nil
}

// scope collects the settings of one WithWallet call
type scope struct {
	dryRun bool
}

// ScopeOption configures WithWallet
type ScopeOption func(*scope)

// DryRun makes the unit of work simulate: account debits and credits adjust
// the in-memory balance only, so decisions match a real run, and nothing is
// written.
func DryRun(enabled bool) ScopeOption {
	return func(s *scope) { s.dryRun = enabled }
}

// errDryRun aborts the unit of work of a dry run
var errDryRun = errors.New("ledger: dry run")

// WithWallet locks the user's wallet and runs fn as one unit of work. No
// other mutator of the same wallet can interleave until fn returns. An error
// from fn rolls every change back. The wallet must exist.
func (l *Ledger) WithWallet(ctx context.Context, userID uint, fn func(ctx context.Context, acct *Account) error, opts ...ScopeOption) error {
	var sc scope
	for _, opt := range opts {
		opt(&sc)
	}

	var acct *Account
	err := l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		wallet, err := l.wallets.LockByUserID(ctx, userID)
		if err != nil {
			return err
		}
		acct = &Account{ledger: l, wallet: wallet, dryRun: sc.dryRun}
		if err := fn(ctx, acct); err != nil {
			return err
		}
		if sc.dryRun {
			return errDryRun
		}
		return nil
	})
	if sc.dryRun && errors.Is(err, errDryRun) {
		return nil
	}
	if err != nil {
		return err
	}

	if acct.mutated && l.cache != nil {
		l.cache.InvalidateWallet(ctx, userID)
	}
	for _, entry := range acct.committed {
		l.log.WithFields(logrus.Fields{
			"user_id":        userID,
			"wallet_id":      entry.WalletID,
			"transaction_id": entry.ID,
			"kind":           entry.Kind,
			"amount":         entry.Amount.StringFixed(2),
		}).Info("Ledger entry committed")
	}
	return nil
}

// EntryOption configures the Transaction row written for a balance change
type EntryOption func(*domain.Transaction)

// WithReference records an external reference id, e.g. a gateway payment id
func WithReference(ref string) EntryOption {
	return func(t *domain.Transaction) {
		if ref != "" {
			t.ReferenceID = &ref
		}
	}
}

// WithKind overrides the default kind (deposit for credits, withdraw for debits)
func WithKind(kind domain.TransactionKind) EntryOption {
	return func(t *domain.Transaction) { t.Kind = kind }
}

func newEntry(wallet *domain.Wallet, kind domain.TransactionKind, amount decimal.Decimal, description string, opts []EntryOption) *domain.Transaction {
	entry := &domain.Transaction{
		WalletID:    wallet.ID,
		Amount:      amount,
		Kind:        kind,
		Status:      domain.StatusCompleted,
		Description: description,
	}
	for _, opt := range opts {
		opt(entry)
	}
	return entry
}

func describe(userID uint, err error) error {
	return fmt.Errorf("wallet of user %d: %w", userID, err)
}
