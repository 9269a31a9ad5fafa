package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vps_billing/internal/domain"
	"vps_billing/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const renewalPeriod = 30 * 24 * time.Hour

func TestRenewalSuspendsUnaffordable(t *testing.T) {
	e := newEnv(t)
	user := e.fx.User("alice")
	e.fx.Wallet(user.ID, "10.00")
	res := e.fx.Resource(user.ID, e.fx.Plan("small", "20.00"), domain.ResourceActive, testNow.Add(-time.Hour))

	out, err := e.renewer.RenewUser(context.Background(), user, false)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Renewed)
	assert.Equal(t, 1, out.Suspended)
	assert.True(t, out.Charged.IsZero())

	assertDec(t, "10.00", e.fx.Balance(user.ID))
	assert.Empty(t, e.fx.Transactions(user.ID))
	assert.Equal(t, domain.ResourceSuspended, e.fx.Reload(res.ID).Status)
	assert.Equal(t, []notify.Kind{notify.KindRenewalFailed}, e.notes.kinds())
}

func TestRenewalEarlierDebitIsVisibleToLaterCheck(t *testing.T) {
	e := newEnv(t)
	user := e.fx.User("bob")
	e.fx.Wallet(user.ID, "30.00")
	plan := e.fx.Plan("small", "20.00")
	// Oldest expiry goes first
	second := e.fx.Resource(user.ID, plan, domain.ResourceActive, testNow.Add(-time.Hour))
	first := e.fx.Resource(user.ID, plan, domain.ResourceActive, testNow.Add(-2*time.Hour))

	out, err := e.renewer.RenewUser(context.Background(), user, false)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Renewed)
	assert.Equal(t, 1, out.Suspended)
	assertDec(t, "20.00", out.Charged)
	assert.Equal(t, "Renewed 1 resources, suspended 1 due to insufficient funds", out.Message)

	assertDec(t, "10.00", e.fx.Balance(user.ID))
	txs := e.fx.Transactions(user.ID)
	require.Len(t, txs, 1)
	assertDec(t, "20.00", txs[0].Amount)
	assert.Contains(t, txs[0].Description, first.InstanceID)

	renewed := e.fx.Reload(first.ID)
	assert.Equal(t, domain.ResourceActive, renewed.Status)
	assert.True(t, testNow.Add(renewalPeriod).Equal(renewed.ExpiresAt), "expires_at %s", renewed.ExpiresAt)
	assert.Equal(t, domain.ResourceSuspended, e.fx.Reload(second.ID).Status)
	assert.Equal(t, []notify.Kind{notify.KindRenewalSucceeded, notify.KindRenewalFailed}, e.notes.kinds())
}

func TestRenewalSkipsRunningTerms(t *testing.T) {
	e := newEnv(t)
	user := e.fx.User("carol")
	e.fx.Wallet(user.ID, "100.00")
	running := e.fx.Resource(user.ID, e.fx.Plan("small", "20.00"), domain.ResourceActive, testNow.Add(time.Hour))

	out, err := e.renewer.RenewUser(context.Background(), user, false)
	require.NoError(t, err)
	assert.Equal(t, "No expired resources to renew", out.Message)
	assertDec(t, "100.00", e.fx.Balance(user.ID))
	assert.True(t, testNow.Add(time.Hour).Equal(e.fx.Reload(running.ID).ExpiresAt))
}

func TestRenewalWalletNotFound(t *testing.T) {
	e := newEnv(t)
	user := e.fx.User("dave")
	res := e.fx.Resource(user.ID, e.fx.Plan("small", "20.00"), domain.ResourceActive, testNow.Add(-time.Hour))

	out, err := e.renewer.RenewUser(context.Background(), user, false)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.Zero(t, out.Renewed)
	assert.Zero(t, out.Suspended)
	assert.Equal(t, domain.ResourceActive, e.fx.Reload(res.ID).Status)
	assert.Empty(t, e.notes.kinds())
}

func TestRenewalDryRunMatchesRealDecisions(t *testing.T) {
	e := newEnv(t)
	user := e.fx.User("erin")
	e.fx.Wallet(user.ID, "30.00")
	plan := e.fx.Plan("small", "20.00")
	first := e.fx.Resource(user.ID, plan, domain.ResourceActive, testNow.Add(-time.Hour))
	second := e.fx.Resource(user.ID, plan, domain.ResourceActive, testNow.Add(-time.Hour))

	out, err := e.renewer.RenewUser(context.Background(), user, true)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Renewed)
	assert.Equal(t, 1, out.Suspended)
	assertDec(t, "20.00", out.Charged)
	assert.Contains(t, out.Message, "Would renew 1")

	assertDec(t, "30.00", e.fx.Balance(user.ID))
	assert.Empty(t, e.fx.Transactions(user.ID))
	assert.Equal(t, domain.ResourceActive, e.fx.Reload(first.ID).Status)
	assert.Equal(t, domain.ResourceActive, e.fx.Reload(second.ID).Status)
	assert.True(t, testNow.Add(-time.Hour).Equal(e.fx.Reload(first.ID).ExpiresAt))
	assert.Empty(t, e.notes.kinds())
}

func TestRenewalFailureKeepsEarlierResources(t *testing.T) {
	e := newEnv(t)
	user := e.fx.User("frank")
	e.fx.Wallet(user.ID, "100.00")
	plan := e.fx.Plan("small", "20.00")
	first := e.fx.Resource(user.ID, plan, domain.ResourceActive, testNow.Add(-time.Hour))
	second := e.fx.Resource(user.ID, plan, domain.ResourceActive, testNow.Add(-time.Hour))
	third := e.fx.Resource(user.ID, plan, domain.ResourceActive, testNow.Add(-time.Hour))

	boom := errors.New("storage unavailable")
	resources := failingExpiry{Resources: e.resources, id: second.ID, err: boom}
	renewer := NewRenewer(e.ledger, resources, e.calc, e.notes, e.renewer.clock, e.log)

	out, err := renewer.RenewUser(context.Background(), user, false)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.KindUnexpected, domain.Kind(err))
	assert.Equal(t, 1, out.Renewed)
	assertDec(t, "20.00", out.Charged)

	// second's debit rolled back with its failed expiry update, third never ran
	assertDec(t, "80.00", e.fx.Balance(user.ID))
	assert.Len(t, e.fx.Transactions(user.ID), 1)
	assert.True(t, testNow.Add(renewalPeriod).Equal(e.fx.Reload(first.ID).ExpiresAt))
	assert.True(t, testNow.Add(-time.Hour).Equal(e.fx.Reload(second.ID).ExpiresAt))
	assert.Equal(t, domain.ResourceActive, e.fx.Reload(third.ID).Status)
	assert.Equal(t, []notify.Kind{notify.KindRenewalSucceeded}, e.notes.kinds())
}

func TestRenewalFreePlan(t *testing.T) {
	e := newEnv(t)
	user := e.fx.User("gina")
	e.fx.Wallet(user.ID, "0.00")
	res := e.fx.Resource(user.ID, e.fx.Plan("free", "0.00"), domain.ResourceActive, testNow.Add(-time.Hour))

	out, err := e.renewer.RenewUser(context.Background(), user, false)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Renewed)
	assert.Empty(t, e.fx.Transactions(user.ID))
	assert.True(t, testNow.Add(renewalPeriod).Equal(e.fx.Reload(res.ID).ExpiresAt))
}

func TestRenewalOverlappingPassesChargeOnce(t *testing.T) {
	e := newEnv(t)
	user := e.fx.User("olga")
	e.fx.Wallet(user.ID, "100.00")
	res := e.fx.Resource(user.ID, e.fx.Plan("small", "20.00"), domain.ResourceActive, testNow.Add(-time.Hour))

	var other RenewalOutcome
	resources := &overlapping{Resources: e.resources}
	resources.other = func() {
		var err error
		other, err = e.renewer.RenewUser(context.Background(), user, false)
		require.NoError(t, err)
	}
	renewer := NewRenewer(e.ledger, resources, e.calc, e.notes, e.renewer.clock, e.log)

	out, err := renewer.RenewUser(context.Background(), user, false)
	require.NoError(t, err)
	assert.Equal(t, 1, other.Renewed)
	assert.Equal(t, 0, out.Renewed)
	assert.True(t, out.Charged.IsZero())
	assert.Equal(t, "No expired resources to renew", out.Message)

	assertDec(t, "80.00", e.fx.Balance(user.ID))
	assert.Len(t, e.fx.Transactions(user.ID), 1)
	assert.True(t, testNow.Add(renewalPeriod).Equal(e.fx.Reload(res.ID).ExpiresAt))
	assert.Equal(t, []notify.Kind{notify.KindRenewalSucceeded}, e.notes.kinds())
}

func TestRenewalConcurrentPassesChargeOnce(t *testing.T) {
	e := newEnv(t)
	user := e.fx.User("pavel")
	e.fx.Wallet(user.ID, "100.00")
	e.fx.Resource(user.ID, e.fx.Plan("small", "20.00"), domain.ResourceActive, testNow.Add(-time.Hour))

	const passes = 5
	renewed := make(chan int, passes)
	var wg sync.WaitGroup
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.renewer.RenewUser(context.Background(), user, false)
			assert.NoError(t, err)
			renewed <- out.Renewed
		}()
	}
	wg.Wait()
	close(renewed)

	total := 0
	for n := range renewed {
		total += n
	}
	assert.Equal(t, 1, total)
	assertDec(t, "80.00", e.fx.Balance(user.ID))
	assert.Len(t, e.fx.Transactions(user.ID), 1)
}
