// Package billing turns resource usage into ledger debits.
//
// HourlyBiller charges a user for N hours of every active resource in one
// all-or-nothing debit. Renewer walks a user's lapsed resources one by one,
// renewing what the wallet covers and suspending the rest. Runner drives
// either of them over every user with qualifying resources.
package billing

import (
	"context"
	"time"

	"vps_billing/internal/domain"
	"vps_billing/internal/ledger"
	"vps_billing/internal/notify"

	"github.com/sirupsen/logrus"
)

// Wallets is the part of the ledger the orchestrators use
type Wallets interface {
	FindWallet(ctx context.Context, userID uint) (*domain.Wallet, error)
	WithWallet(ctx context.Context, userID uint, fn func(ctx context.Context, acct *ledger.Account) error, opts ...ledger.ScopeOption) error
}

// Resources lists and mutates billable resources
type Resources interface {
	ListActiveByUser(ctx context.Context, userID uint) ([]domain.Resource, error)
	ListExpiredActiveByUser(ctx context.Context, userID uint, now time.Time) ([]domain.Resource, error)
	ActiveUserIDs(ctx context.Context) ([]uint, error)
	ExpiredActiveUserIDs(ctx context.Context, now time.Time) ([]uint, error)
	SetStatus(ctx context.Context, id uint, status domain.ResourceStatus) error
	SetExpiry(ctx context.Context, id uint, expiresAt time.Time) error
}

// Users resolves user ids
type Users interface {
	GetByID(ctx context.Context, id uint) (*domain.User, error)
}

// Clock returns the current time
type Clock func() time.Time

// UTC is the default clock
func UTC() time.Time {
	return time.Now().UTC()
}

func newEvent(user domain.User, kind notify.Kind, at time.Time, payload map[string]any) notify.Event {
	return notify.Event{
		Kind:     kind,
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Payload:  payload,
		At:       at,
	}
}

// deliver hands events to n. Failures are logged and otherwise ignored.
func deliver(ctx context.Context, n notify.Notifier, log *logrus.Entry, events ...notify.Event) {
	for _, event := range events {
		if err := n.Notify(ctx, event); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"user_id": event.UserID,
				"kind":    event.Kind,
			}).Warn("Notification failed")
		}
	}
}
