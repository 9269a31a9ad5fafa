package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"vps_billing/internal/db"
	"vps_billing/internal/db/dbtest"
	"vps_billing/internal/domain"
	"vps_billing/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingCache struct {
	mu    sync.Mutex
	users []uint
}

func (c *recordingCache) InvalidateWallet(_ context.Context, userID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
}

func newLedger(t *testing.T, opts ...ledger.Option) (*ledger.Ledger, *dbtest.Fixture, *gorm.DB) {
	t.Helper()
	gdb := dbtest.Open(t)
	l := ledger.New(db.NewTxManager(gdb), db.NewWalletRepository(gdb), db.NewTransactionRepository(gdb), opts...)
	return l, dbtest.NewFixture(t, gdb), gdb
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWalletCreatedLazily(t *testing.T) {
	l, fx, _ := newLedger(t, ledger.WithCurrency("EUR"))
	ctx := context.Background()
	user := fx.User("alice")

	_, err := l.FindWallet(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)

	w, err := l.Wallet(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	assert.Equal(t, "EUR", w.Currency)

	again, err := l.Wallet(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
}

func TestCreditAndDebit(t *testing.T) {
	cache := &recordingCache{}
	l, fx, _ := newLedger(t, ledger.WithCache(cache))
	ctx := context.Background()
	user := fx.User("bob")

	entry, err := l.Credit(ctx, user.ID, dec("10.00"), "Top-up", ledger.WithReference("pay_123"))
	require.NoError(t, err)
	assert.Equal(t, domain.KindDeposit, entry.Kind)
	assert.Equal(t, domain.StatusCompleted, entry.Status)
	require.NotNil(t, entry.ReferenceID)
	assert.Equal(t, "pay_123", *entry.ReferenceID)

	entry, err = l.Debit(ctx, user.ID, dec("3.25"), "Hourly billing")
	require.NoError(t, err)
	assert.Equal(t, domain.KindWithdraw, entry.Kind)

	assert.True(t, dec("6.75").Equal(fx.Balance(user.ID)))
	assert.Len(t, fx.Transactions(user.ID), 2)
	assert.Equal(t, []uint{user.ID, user.ID}, cache.users)
}

func TestDebitInsufficientBalanceHasNoEffect(t *testing.T) {
	l, fx, _ := newLedger(t)
	ctx := context.Background()
	user := fx.User("carol")
	fx.Wallet(user.ID, "1.00")

	_, err := l.Debit(ctx, user.ID, dec("1.01"), "Too much")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	var ibe *domain.InsufficientBalanceError
	require.True(t, errors.As(err, &ibe))
	assert.True(t, dec("1.01").Equal(ibe.Required))
	assert.True(t, dec("1.00").Equal(ibe.Available))

	assert.True(t, dec("1.00").Equal(fx.Balance(user.ID)))
	assert.Empty(t, fx.Transactions(user.ID))
}

func TestDebitExactBalance(t *testing.T) {
	l, fx, _ := newLedger(t)
	user := fx.User("dave")
	fx.Wallet(user.ID, "0.03")

	_, err := l.Debit(context.Background(), user.ID, dec("0.03"), "Hourly billing")
	require.NoError(t, err)
	assert.True(t, fx.Balance(user.ID).IsZero())
}

func TestInvalidAmount(t *testing.T) {
	l, fx, _ := newLedger(t)
	ctx := context.Background()
	user := fx.User("erin")
	fx.Wallet(user.ID, "5.00")

	tests := []struct {
		name   string
		amount string
	}{
		{"zero", "0"},
		{"negative", "-1.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Credit(ctx, user.ID, dec(tt.amount), "x")
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
			_, err = l.Debit(ctx, user.ID, dec(tt.amount), "x")
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}
	assert.Empty(t, fx.Transactions(user.ID))
}

func TestDebitWithoutWallet(t *testing.T) {
	l, fx, _ := newLedger(t)
	user := fx.User("frank")

	_, err := l.Debit(context.Background(), user.ID, dec("1.00"), "x")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.Equal(t, domain.KindWalletNotFound, domain.Kind(err))
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	l, fx, _ := newLedger(t)
	ctx := context.Background()
	user := fx.User("grace")
	fx.Wallet(user.ID, "1.00")

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Debit(ctx, user.ID, dec("0.30"), "Concurrent")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.True(t, dec("0.10").Equal(fx.Balance(user.ID)))
	assert.Len(t, fx.Transactions(user.ID), 3)
}

func TestWithWalletRollsBackOnError(t *testing.T) {
	l, fx, _ := newLedger(t)
	ctx := context.Background()
	user := fx.User("heidi")
	fx.Wallet(user.ID, "10.00")

	boom := errors.New("boom")
	err := l.WithWallet(ctx, user.ID, func(ctx context.Context, acct *ledger.Account) error {
		if _, err := acct.Debit(ctx, dec("4.00"), "first"); err != nil {
			return err
		}
		assert.True(t, dec("6.00").Equal(acct.Balance()))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, dec("10.00").Equal(fx.Balance(user.ID)))
	assert.Empty(t, fx.Transactions(user.ID))
}

func TestAtomicRestoresAccountOnFailure(t *testing.T) {
	l, fx, _ := newLedger(t)
	ctx := context.Background()
	user := fx.User("ivan")
	fx.Wallet(user.ID, "10.00")

	boom := errors.New("boom")
	err := l.WithWallet(ctx, user.ID, func(ctx context.Context, acct *ledger.Account) error {
		require.NoError(t, acct.Atomic(ctx, func(ctx context.Context) error {
			_, err := acct.Debit(ctx, dec("2.00"), "kept")
			return err
		}))
		err := acct.Atomic(ctx, func(ctx context.Context) error {
			if _, err := acct.Debit(ctx, dec("3.00"), "discarded"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.True(t, dec("8.00").Equal(acct.Balance()))
		return nil
	})
	require.NoError(t, err)

	assert.True(t, dec("8.00").Equal(fx.Balance(user.ID)))
	txs := fx.Transactions(user.ID)
	require.Len(t, txs, 1)
	assert.Equal(t, "kept", txs[0].Description)
}

func TestDryRunWritesNothing(t *testing.T) {
	cache := &recordingCache{}
	l, fx, _ := newLedger(t, ledger.WithCache(cache))
	ctx := context.Background()
	user := fx.User("judy")
	fx.Wallet(user.ID, "1.00")

	err := l.WithWallet(ctx, user.ID, func(ctx context.Context, acct *ledger.Account) error {
		assert.True(t, acct.DryRun())
		_, err := acct.Debit(ctx, dec("0.60"), "simulated")
		require.NoError(t, err)
		_, err = acct.Debit(ctx, dec("0.60"), "simulated")
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		return nil
	}, ledger.DryRun(true))
	require.NoError(t, err)

	assert.True(t, dec("1.00").Equal(fx.Balance(user.ID)))
	assert.Empty(t, fx.Transactions(user.ID))
	assert.Empty(t, cache.users)
}

func TestHistoryMostRecentFirst(t *testing.T) {
	l, fx, _ := newLedger(t)
	ctx := context.Background()
	user := fx.User("kim")

	for _, amount := range []string{"1.00", "2.00", "3.00"} {
		_, err := l.Credit(ctx, user.ID, dec(amount), "Top-up "+amount)
		require.NoError(t, err)
	}
	w, err := l.FindWallet(ctx, user.ID)
	require.NoError(t, err)

	txs, err := l.History(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "Top-up 3.00", txs[0].Description)
	assert.Equal(t, "Top-up 1.00", txs[2].Description)

	page, err := l.HistoryPage(ctx, w.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "Top-up 1.00", page.Transactions[0].Description)
}
