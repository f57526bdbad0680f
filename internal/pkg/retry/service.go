package retry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/app/repository"
	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
	"github.com/cleanconnect/cleanconnect/internal/pkg/audit"
	"github.com/cleanconnect/cleanconnect/internal/pkg/fulfillment"
	"github.com/cleanconnect/cleanconnect/internal/pkg/mail"
	"github.com/cleanconnect/cleanconnect/internal/pkg/webhook"
)

// ReasonNotRecurring is reported for failed payments that do not belong to
// an existing subscription, such as a declined one-off job or a first
// checkout that never created its subscription.
const ReasonNotRecurring = "not_recurring"

// ErrNotRecurring is returned by RecordFailure for such payments. No state
// is written.
var ErrNotRecurring = errors.New("payment does not renew a subscription")

// Outcome is returned to the webhook caller for a failed payment.
type Outcome struct {
	Handled        bool    `json:"handled"`
	SubscriptionID uint    `json:"subscriptionId"`
	RetryCount     int     `json:"retryCount"`
	NextRetryDate  *string `json:"nextRetryDate"`
	Status         string  `json:"status"`
	Changed        bool    `json:"changed"`
	Notice         Notice  `json:"notice,omitempty"`
}

type Service struct {
	accounts      repository.AccountRepository
	subscriptions repository.SubscriptionRepository
	adminEmail    string
	location      *time.Location
	mailer        fulfillment.BatchMailer
	audit         fulfillment.Auditor
	locker        fulfillment.Locker
	now           func() time.Time
}

type Option func(*Service)

func WithMailer(m fulfillment.BatchMailer) Option { return func(s *Service) { s.mailer = m } }
func WithAuditor(a fulfillment.Auditor) Option { return func(s *Service) { s.audit = a } }
func WithLocker(l fulfillment.Locker) Option { return func(s *Service) { s.locker = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repos *repository.Repositories, adminEmail string, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		accounts:      repos.Account,
		subscriptions: repos.Subscription,
		adminEmail:    adminEmail,
		location:      loc,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandlePaymentFailed implements webhook.FailedHandler.
func (s *Service) HandlePaymentFailed(ctx context.Context, evt *webhook.Event) (any, error) {
	out, err := s.RecordFailure(ctx, evt)
	if errors.Is(err, ErrNotRecurring) {
		return webhook.Unhandled{Handled: false, Type: evt.Type, Reason: ReasonNotRecurring}, nil
	}
	if out == nil {
		return nil, err
	}
	return out, err
}

// renewsSubscription reports whether evt is a failed charge of an existing
// subscription. An explicit subscriptionId wins unless the metadata describes
// a one-off job. Without one, only invoices and objects carrying a provider
// subscription qualify.
func renewsSubscription(evt *webhook.Event) bool {
	md := evt.Object.Metadata
	if fulfillment.DetectFlow(md) == fulfillment.FlowOneOff {
		return false
	}
	if md.Get(fulfillment.KeySubscriptionID) != "" {
		return true
	}
	return evt.Object.Subscription != "" || evt.Object.Object == "invoice" || evt.Type == "invoice.payment_failed"
}

// RecordFailure advances the retry state of the subscription evt belongs to.
func (s *Service) RecordFailure(ctx context.Context, evt *webhook.Event) (*Outcome, error) {
	externalID := evt.ExternalPaymentID()
	if !renewsSubscription(evt) {
		log.Infow("[Retry] Failed payment is not a subscription renewal, retry state untouched",
			"event_id", evt.ID, "external_payment_id", externalID, "flow", fulfillment.DetectFlow(evt.Object.Metadata))
		return nil, ErrNotRecurring
	}

	if s.locker != nil && externalID != "" {
		lk, err := s.locker.Acquire(ctx, "retry:"+externalID)
		if err != nil {
			log.Warnw("[Retry] Could not lock payment", "event_id", evt.ID, "external_payment_id", externalID, "error", err)
			return nil, err
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := lk.Release(releaseCtx); err != nil {
				log.Warnw("[Retry] Lock release failed", "external_payment_id", externalID, "error", err)
			}
		}()
	}

	sub, account, err := s.resolve(ctx, evt)
	if err != nil {
		log.Errorw("[Retry] Subscription lookup failed", "event_id", evt.ID, "external_payment_id", externalID, "error", err)
		return nil, err
	}

	if sub.Status == models.SubscriptionStatusStopped {
		log.Infow("[Retry] Subscription stopped, failure ignored", "event_id", evt.ID, "subscription_id", sub.ID)
		return outcomeFor(sub, false, NoticeNone), nil
	}

	reason := evt.FailureReason()
	today := models.CalendarDay(s.now(), s.location)
	tr, err := RecordFailure(State{Retry: sub.Retry, Status: sub.Status}, today, reason)
	if err != nil {
		log.Errorw("[Retry] Stored retry state is invalid", "event_id", evt.ID, "subscription_id", sub.ID, "error", err)
		return nil, err
	}

	if tr.Changed {
		sub.Retry = tr.To.Retry
		sub.Status = tr.To.Status
		if err := s.subscriptions.SaveRetryState(ctx, sub); err != nil {
			log.Errorw("[Retry] Persisting retry state failed", "event_id", evt.ID, "subscription_id", sub.ID, "error", err)
			return nil, &apperr.CollaboratorError{Step: "retry_state", Fatal: true, Err: err}
		}
		s.emit(ctx, audit.Entry{
			EntityType: audit.EntitySubscription,
			EntityID:   sub.ID,
			Action:     "payment_failed",
			Detail:     fmt.Sprintf("retry_count=%d status=%s reason=%s", sub.Retry.Count, sub.Status, reason),
		})
		log.Infow("[Retry] Failure recorded", "event_id", evt.ID, "subscription_id", sub.ID,
			"retry_count", sub.Retry.Count, "status", sub.Status)
	} else {
		log.Infow("[Retry] Retries exhausted, state unchanged", "event_id", evt.ID, "subscription_id", sub.ID)
	}

	s.notify(ctx, sub, account, tr, reason)
	return outcomeFor(sub, tr.Changed, tr.Notice), nil
}

// resolve finds the subscription by explicit id, then by the provider
// customer, then by email.
func (s *Service) resolve(ctx context.Context, evt *webhook.Event) (*models.Subscription, *models.Account, error) {
	md := evt.Object.Metadata

	if raw := md.Get(fulfillment.KeySubscriptionID); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, nil, &apperr.ValidationError{Invalid: []string{fulfillment.KeySubscriptionID}}
		}
		sub, err := s.subscriptions.GetByID(ctx, uint(id))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, &apperr.NotFoundError{Entity: "subscription", Ref: raw}
		}
		if err != nil {
			return nil, nil, err
		}
		account, err := s.accounts.GetByID(ctx, sub.AccountID)
		if err != nil {
			log.Warnw("[Retry] Subscription owner not found", "subscription_id", sub.ID, "error", err)
			account = nil
		}
		return sub, account, nil
	}

	account, err := s.findAccount(ctx, evt)
	if err != nil {
		return nil, nil, err
	}
	sub, err := s.subscriptions.LatestOpenByAccount(ctx, account.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, &apperr.NotFoundError{Entity: "subscription", Ref: fmt.Sprintf("account %d", account.ID)}
	}
	if err != nil {
		return nil, nil, err
	}
	return sub, account, nil
}

func (s *Service) findAccount(ctx context.Context, evt *webhook.Event) (*models.Account, error) {
	if customer := evt.Object.Customer; customer != "" {
		account, err := s.accounts.GetByProviderCustomerID(ctx, customer)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	email := evt.Object.Metadata.Get(fulfillment.KeyEmail)
	if email == "" {
		email = evt.Object.CustomerEmail
	}
	if email == "" {
		return nil, &apperr.NotFoundError{Entity: "account", Ref: evt.ExternalPaymentID()}
	}
	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "account", Ref: models.NormalizeEmail(email)}
	}
	return account, err
}

// notify sends one customer notice per changed state and the admin notice
// for every failure. Failures are logged only.
func (s *Service) notify(ctx context.Context, sub *models.Subscription, account *models.Account, tr Transition, reason string) {
	if s.mailer == nil {
		return
	}
	var batch []mail.Labeled
	if tr.Changed && account != nil && account.Email != "" {
		batch = append(batch, mail.Labeled{Label: "customer", Message: customerNotice(account, sub, tr.Notice)})
	}
	if s.adminEmail != "" {
		batch = append(batch, mail.Labeled{Label: "admin", Message: adminNotice(s.adminEmail, sub, account, reason)})
	}
	for _, r := range s.mailer.SendAll(ctx, batch) {
		if r.Error != "" {
			log.Warnw("[Retry] Notice email failed", "subscription_id", sub.ID, "label", r.Label, "error", r.Error)
		}
	}
}

func (s *Service) emit(ctx context.Context, e audit.Entry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, e)
}

func outcomeFor(sub *models.Subscription, changed bool, notice Notice) *Outcome {
	out := &Outcome{
		Handled:        true,
		SubscriptionID: sub.ID,
		RetryCount:     sub.Retry.Count,
		Status:         sub.Status,
		Changed:        changed,
		Notice:         notice,
	}
	if sub.Retry.NextRetryDate != nil {
		d := sub.Retry.NextRetryDate.Format("2006-01-02")
		out.NextRetryDate = &d
	}
	return out
}
