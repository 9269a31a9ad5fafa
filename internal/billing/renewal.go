package billing

import (
	"context"
	"fmt"

	"vps_billing/internal/domain"
	"vps_billing/internal/ledger"
	"vps_billing/internal/notify"
	"vps_billing/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RenewalOutcome describes one user's renewal pass
type RenewalOutcome struct {
	Renewed   int
	Suspended int
	Charged   decimal.Decimal // Sum of renewal debits
	Message   string
}

// Renewer renews or suspends resources whose paid term has lapsed
type Renewer struct {
	wallets   Wallets
	resources Resources
	calc      *pricing.Calculator
	notifier  notify.Notifier
	clock     Clock
	log       *logrus.Entry
}

// NewRenewer creates a Renewer. A nil clock means UTC wall time.
func NewRenewer(wallets Wallets, resources Resources, calc *pricing.Calculator, notifier notify.Notifier, clock Clock, log *logrus.Entry) *Renewer {
	if notifier == nil {
		notifier = notify.Nop
	}
	if clock == nil {
		clock = UTC
	}
	return &Renewer{
		wallets:   wallets,
		resources: resources,
		calc:      calc,
		notifier:  notifier,
		clock:     clock,
		log:       log,
	}
}

// RenewUser processes the user's lapsed active resources oldest expiry first, all
// under one lock of the user's wallet. The resources are listed while the
// lock is held, so overlapping passes never renew the same term twice. Each resource is renewed when the
// balance left by the earlier ones covers its price, and suspended
// otherwise. Suspension is an outcome, not an error.
//
// An unexpected failure on a resource undoes that resource only and stops
// the pass. The resources handled before it stay committed and the returned
// outcome counts them alongside the error.
func (r *Renewer) RenewUser(ctx context.Context, user domain.User, dryRun bool) (RenewalOutcome, error) {
	now := r.clock()
	out := RenewalOutcome{Charged: decimal.Zero}

	// Unlocked read, only to skip users with nothing to renew
	expired, err := r.resources.ListExpiredActiveByUser(ctx, user.ID, now)
	if err != nil {
		return out, err
	}
	if len(expired) == 0 {
		out.Message = "No expired resources to renew"
		return out, nil
	}

	var (
		pass    RenewalOutcome
		events  []notify.Event
		failure error
	)
	period := r.calc.RenewalPeriod()
	days := int(period.Hours() / 24)
	err = r.wallets.WithWallet(ctx, user.ID, func(ctx context.Context, acct *ledger.Account) error {
		pass = RenewalOutcome{Charged: decimal.Zero}
		events, failure = nil, nil

		// Read again under the wallet lock so an overlapping pass that
		// already renewed or suspended a resource is seen
		expired, err := r.resources.ListExpiredActiveByUser(ctx, user.ID, now)
		if err != nil {
			return err
		}

		for _, res := range expired {
			cost := r.calc.RenewalCost(res.Plan)

			if !acct.CanAfford(cost) {
				err := acct.Atomic(ctx, func(ctx context.Context) error {
					if acct.DryRun() {
						return nil
					}
					return r.resources.SetStatus(ctx, res.ID, domain.ResourceSuspended)
				})
				if err != nil {
					failure = fmt.Errorf("suspend resource %s: %w", res.InstanceID, err)
					return nil
				}
				pass.Suspended++
				events = append(events, newEvent(user, notify.KindRenewalFailed, now, map[string]any{
					"instance_id": res.InstanceID,
					"plan":        res.Plan.Name,
					"cost":        cost.StringFixed(2),
				}))
				continue
			}

			expiry := res.RenewedExpiry(now, period)
			err := acct.Atomic(ctx, func(ctx context.Context) error {
				if cost.IsPositive() {
					description := fmt.Sprintf("Auto-renewal for resource %s (%d days)", res.InstanceID, days)
					if _, err := acct.Debit(ctx, cost, description); err != nil {
						return err
					}
				}
				if acct.DryRun() {
					return nil
				}
				return r.resources.SetExpiry(ctx, res.ID, expiry)
			})
			if err != nil {
				failure = fmt.Errorf("renew resource %s: %w", res.InstanceID, err)
				return nil
			}
			pass.Renewed++
			pass.Charged = pass.Charged.Add(cost)
			events = append(events, newEvent(user, notify.KindRenewalSucceeded, now, map[string]any{
				"instance_id": res.InstanceID,
				"plan":        res.Plan.Name,
				"cost":        cost.StringFixed(2),
				"expires_at":  expiry.Format("2006-01-02"),
			}))
		}
		return nil
	}, ledger.DryRun(dryRun))
	if err != nil {
		return out, err
	}

	out = pass
	if out.Renewed+out.Suspended == 0 && failure == nil {
		out.Message = "No expired resources to renew"
		return out, nil
	}
	if dryRun {
		out.Message = fmt.Sprintf("Would renew %d resources, would suspend %d due to insufficient funds", out.Renewed, out.Suspended)
	} else {
		out.Message = fmt.Sprintf("Renewed %d resources, suspended %d due to insufficient funds", out.Renewed, out.Suspended)
		deliver(ctx, r.notifier, r.log, events...)
	}

	if failure != nil {
		out.Message = fmt.Sprintf("%s before failing", out.Message)
		return out, failure
	}
	return out, nil
}
