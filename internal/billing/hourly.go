package billing

import (
	"context"
	"errors"
	"fmt"

	"vps_billing/internal/domain"
	"vps_billing/internal/ledger"
	"vps_billing/internal/notify"
	"vps_billing/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// HourlyOutcome describes one user's hourly billing
type HourlyOutcome struct {
	Charged   decimal.Decimal // Amount debited, or that would be debited in a dry run
	Resources int             // Number of active resources billed
	Message   string
}

// HourlyBiller charges users for the hours their active resources ran
type HourlyBiller struct {
	wallets   Wallets
	resources Resources
	calc      *pricing.Calculator
	notifier  notify.Notifier
	clock     Clock
	log       *logrus.Entry
}

// NewHourlyBiller creates an HourlyBiller
func NewHourlyBiller(wallets Wallets, resources Resources, calc *pricing.Calculator, notifier notify.Notifier, log *logrus.Entry) *HourlyBiller {
	if notifier == nil {
		notifier = notify.Nop
	}
	return &HourlyBiller{
		wallets:   wallets,
		resources: resources,
		calc:      calc,
		notifier:  notifier,
		clock:     UTC,
		log:       log,
	}
}

// BillUser debits the cost of hours for all of the user's active resources
// in one debit. When the wallet cannot cover the whole amount nothing is
// charged and the returned error wraps domain.ErrInsufficientBalance.
func (b *HourlyBiller) BillUser(ctx context.Context, user domain.User, hours int, dryRun bool) (HourlyOutcome, error) {
	if hours < 1 {
		return HourlyOutcome{}, domain.ErrInvalidHours
	}

	// Unlocked read, only to skip users with nothing to bill
	active, err := b.resources.ListActiveByUser(ctx, user.ID)
	if err != nil {
		return HourlyOutcome{}, err
	}
	if len(active) == 0 {
		return HourlyOutcome{Charged: decimal.Zero, Message: "No active resources to bill"}, nil
	}
	if b.calc.TotalHourlyCost(active, hours).IsZero() {
		return HourlyOutcome{Charged: decimal.Zero, Resources: len(active),
			Message: fmt.Sprintf("Nothing to bill for %d resources", len(active))}, nil
	}

	var total, available decimal.Decimal
	err = b.wallets.WithWallet(ctx, user.ID, func(ctx context.Context, acct *ledger.Account) error {
		// Read again under the wallet lock so a resource suspended by an
		// overlapping renewal is not billed
		locked, err := b.resources.ListActiveByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		active = locked
		total = b.calc.TotalHourlyCost(active, hours)
		available = acct.Balance()
		if total.IsZero() {
			return nil
		}
		description := fmt.Sprintf("Hourly billing for %d resources (%d hours)", len(active), hours)
		_, err = acct.Debit(ctx, total, description)
		return err
	}, ledger.DryRun(dryRun))

	out := HourlyOutcome{Charged: decimal.Zero, Resources: len(active)}
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) && !dryRun {
			b.notify(ctx, user, notify.KindLowBalance, map[string]any{
				"current_balance":  available.StringFixed(2),
				"required_balance": total.StringFixed(2),
			})
		}
		return out, err
	}
	if len(active) == 0 {
		out.Message = "No active resources to bill"
		return out, nil
	}
	if total.IsZero() {
		out.Message = fmt.Sprintf("Nothing to bill for %d resources", len(active))
		return out, nil
	}

	out.Charged = total
	if dryRun {
		out.Message = fmt.Sprintf("Would bill $%s for %d resources", total.StringFixed(2), len(active))
		return out, nil
	}
	out.Message = fmt.Sprintf("Successfully billed $%s for %d resources", total.StringFixed(2), len(active))
	b.notify(ctx, user, notify.KindHourlyBilled, map[string]any{
		"total_cost":      total.StringFixed(2),
		"resources_count": len(active),
		"hours":           hours,
	})
	return out, nil
}

func (b *HourlyBiller) notify(ctx context.Context, user domain.User, kind notify.Kind, payload map[string]any) {
	deliver(ctx, b.notifier, b.log, newEvent(user, kind, b.clock(), payload))
}
