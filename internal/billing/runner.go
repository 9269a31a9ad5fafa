package billing

import (
	"context"
	"errors"
	"fmt"

	"vps_billing/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "vps_billing/internal/billing"

const (
	jobHourly  = "hourly"
	jobRenewal = "renewal"
)

// HourlyResult is the outcome of hourly billing for one user
type HourlyResult struct {
	RunID     string           `json:"run_id"`
	UserID    uint             `json:"user_id"`
	Username  string           `json:"user"`
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	Resources int              `json:"resources"`
	Charged   decimal.Decimal  `json:"total_deducted"`
}

// RenewalResult is the outcome of auto-renewal for one user
type RenewalResult struct {
	RunID     string           `json:"run_id"`
	UserID    uint             `json:"user_id"`
	Username  string           `json:"user"`
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	Renewed   int              `json:"renewed_count"`
	Suspended int              `json:"suspended_count"`
	Charged   decimal.Decimal  `json:"total_cost"`
}

// Runner runs a billing job over every user with qualifying resources.
// A failure for one user, including a panic, becomes that user's failed
// result and never stops the run.
type Runner struct {
	users     Users
	resources Resources
	hourly    *HourlyBiller
	renewer   *Renewer
	log       *logrus.Entry

	tracer  trace.Tracer
	handled metric.Int64Counter
	charged metric.Int64Counter
}

// NewRunner creates a Runner reporting to the global otel providers
func NewRunner(users Users, resources Resources, hourly *HourlyBiller, renewer *Renewer, log *logrus.Entry) *Runner {
	meter := otel.Meter(instrumentationName)
	r := &Runner{
		users:     users,
		resources: resources,
		hourly:    hourly,
		renewer:   renewer,
		log:       log,
		tracer:    otel.Tracer(instrumentationName),
	}

	var err error
	if r.handled, err = meter.Int64Counter("billing.users",
		metric.WithDescription("Users processed by billing jobs")); err != nil {
		log.WithError(err).Warn("Failed to create billing.users counter")
		r.handled = noop.Int64Counter{}
	}
	if r.charged, err = meter.Int64Counter("billing.charged_cents",
		metric.WithDescription("Amount debited by billing jobs"), metric.WithUnit("{cent}")); err != nil {
		log.WithError(err).Warn("Failed to create billing.charged_cents counter")
		r.charged = noop.Int64Counter{}
	}
	return r
}

// RunHourlyBilling bills every user owning an active resource for hours.
// It fails as a whole only when hours is invalid or the users cannot be listed.
func (r *Runner) RunHourlyBilling(ctx context.Context, hours int, dryRun bool) ([]HourlyResult, error) {
	if hours < 1 {
		return nil, domain.ErrInvalidHours
	}

	runID := uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "billing.hourly", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("hours", hours),
		attribute.Bool("dry_run", dryRun),
	))
	defer span.End()
	log := r.log.WithFields(logrus.Fields{"run_id": runID, "job": jobHourly, "hours": hours, "dry_run": dryRun})

	ids, err := r.resources.ActiveUserIDs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list users")
		return nil, fmt.Errorf("failed to list users with active resources: %w", err)
	}
	log.WithField("users", len(ids)).Info("Hourly billing started")

	results := make([]HourlyResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, r.hourlyForUser(ctx, log, runID, id, hours, dryRun))
	}
	log.WithField("results", len(results)).Info("Hourly billing finished")
	return results, nil
}

// RunAutoRenewal renews or suspends the lapsed resources of every user
func (r *Runner) RunAutoRenewal(ctx context.Context, dryRun bool) ([]RenewalResult, error) {
	runID := uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "billing.renewal", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Bool("dry_run", dryRun),
	))
	defer span.End()
	log := r.log.WithFields(logrus.Fields{"run_id": runID, "job": jobRenewal, "dry_run": dryRun})

	ids, err := r.resources.ExpiredActiveUserIDs(ctx, r.renewer.clock())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list users")
		return nil, fmt.Errorf("failed to list users with expired resources: %w", err)
	}
	log.WithField("users", len(ids)).Info("Auto-renewal started")

	results := make([]RenewalResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, r.renewalForUser(ctx, log, runID, id, dryRun))
	}
	log.WithField("results", len(results)).Info("Auto-renewal finished")
	return results, nil
}

func (r *Runner) hourlyForUser(ctx context.Context, log *logrus.Entry, runID string, userID uint, hours int, dryRun bool) (res HourlyResult) {
	res = HourlyResult{RunID: runID, UserID: userID, Username: fmt.Sprintf("User %d", userID), Charged: decimal.Zero}
	ctx, span := r.tracer.Start(ctx, "billing.hourly.user", trace.WithAttributes(attribute.Int64("user_id", int64(userID))))
	log = log.WithField("user_id", userID)

	defer func() {
		if p := recover(); p != nil {
			res = HourlyResult{RunID: runID, UserID: userID, Username: res.Username, Charged: decimal.Zero}
			res.ErrorKind, res.Message = r.failed(log, span, fmt.Errorf("panic: %v", p))
		}
		r.record(ctx, jobHourly, res.Success, dryRun, res.Charged)
		span.End()
	}()

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		res.ErrorKind, res.Message = r.failed(log, span, err)
		return res
	}
	res.Username = user.Username

	out, err := r.hourly.BillUser(ctx, *user, hours, dryRun)
	res.Resources = out.Resources
	if err != nil {
		res.ErrorKind, res.Message = r.failed(log, span, err)
		return res
	}
	res.Success = true
	res.Message = out.Message
	res.Charged = out.Charged
	log.WithFields(logrus.Fields{"amount": out.Charged.StringFixed(2), "resources": out.Resources}).Info(out.Message)
	return res
}

func (r *Runner) renewalForUser(ctx context.Context, log *logrus.Entry, runID string, userID uint, dryRun bool) (res RenewalResult) {
	res = RenewalResult{RunID: runID, UserID: userID, Username: fmt.Sprintf("User %d", userID), Charged: decimal.Zero}
	ctx, span := r.tracer.Start(ctx, "billing.renewal.user", trace.WithAttributes(attribute.Int64("user_id", int64(userID))))
	log = log.WithField("user_id", userID)

	defer func() {
		if p := recover(); p != nil {
			res = RenewalResult{RunID: runID, UserID: userID, Username: res.Username, Charged: decimal.Zero}
			res.ErrorKind, res.Message = r.failed(log, span, fmt.Errorf("panic: %v", p))
		}
		r.record(ctx, jobRenewal, res.Success, dryRun, res.Charged)
		span.End()
	}()

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		res.ErrorKind, res.Message = r.failed(log, span, err)
		return res
	}
	res.Username = user.Username

	out, err := r.renewer.RenewUser(ctx, *user, dryRun)
	res.Renewed = out.Renewed
	res.Suspended = out.Suspended
	res.Charged = out.Charged
	if err != nil {
		res.ErrorKind, res.Message = r.failed(log, span, err)
		if out.Renewed+out.Suspended > 0 {
			res.Message = fmt.Sprintf("%s (%s)", res.Message, out.Message)
		}
		return res
	}
	res.Success = true
	res.Message = out.Message
	log.WithFields(logrus.Fields{
		"renewed":   out.Renewed,
		"suspended": out.Suspended,
		"amount":    out.Charged.StringFixed(2),
	}).Info(out.Message)
	return res
}

// failed logs err, marks the span and returns the result fields for it
func (r *Runner) failed(log *logrus.Entry, span trace.Span, err error) (domain.ErrorKind, string) {
	kind := domain.Kind(err)
	msg := failureMessage(err)
	span.SetAttributes(attribute.String("error_kind", string(kind)))
	if kind == domain.KindUnexpected {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		log.WithError(err).Error("Billing failed")
	} else {
		log.WithField("error_kind", kind).Warn(msg)
	}
	return kind, msg
}

func (r *Runner) record(ctx context.Context, job string, success, dryRun bool, charged decimal.Decimal) {
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	r.handled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("outcome", outcome),
		attribute.Bool("dry_run", dryRun),
	))
	if !dryRun && charged.IsPositive() {
		r.charged.Add(ctx, charged.Shift(2).IntPart(), metric.WithAttributes(attribute.String("job", job)))
	}
}

// failureMessage renders err for operators
func failureMessage(err error) string {
	var ibe *domain.InsufficientBalanceError
	switch {
	case errors.As(err, &ibe):
		return fmt.Sprintf("Insufficient balance. Required: $%s, Available: $%s",
			ibe.Required.StringFixed(2), ibe.Available.StringFixed(2))
	case errors.Is(err, domain.ErrWalletNotFound):
		return "User wallet not found"
	case errors.Is(err, domain.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidHours):
		return err.Error()
	default:
		return fmt.Sprintf("Billing error: %s", err)
	}
}
