// Package fulfillment turns a successful payment into an account, address,
// order, linked payment record, invoice and cleaner match, exactly once per
// provider payment.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/app/repository"
	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
	"github.com/cleanconnect/cleanconnect/internal/pkg/audit"
	"github.com/cleanconnect/cleanconnect/internal/pkg/geocode"
	"github.com/cleanconnect/cleanconnect/internal/pkg/invoice"
	"github.com/cleanconnect/cleanconnect/internal/pkg/mail"
	"github.com/cleanconnect/cleanconnect/internal/pkg/notify"
	"github.com/cleanconnect/cleanconnect/internal/pkg/provider"
	"github.com/cleanconnect/cleanconnect/internal/pkg/webhook"
)

// Step names, in execution order.
const (
	StepIdempotencyCheck = "idempotency_check"
	StepAccount          = "account"
	StepProviderCustomer = "provider_customer"
	StepAddress          = "address"
	StepOrder            = "order"
	StepPaymentRecord    = "payment_record"
	StepInvoice          = "invoice"
	StepMatch            = "match"
	StepNotifications    = "notifications"
	StepEmails           = "emails"
)

type InvoiceGenerator interface {
	Generate(ctx context.Context, in invoice.Input) (*models.Invoice, error)
}

type Notifier interface {
	NotifyAll(ctx context.Context, recipients []notify.Recipient) (int, error)
}

type BatchMailer interface {
	SendAll(ctx context.Context, batch []mail.Labeled) []mail.SendResult
}

type Auditor interface {
	Emit(ctx context.Context, e audit.Entry) error
}

type Config struct {
	AdminEmail string
	// CandidateLimit caps how many cleaners are handed to the selector.
	CandidateLimit int
	Location       *time.Location
}

// Outcome is returned to the webhook caller.
type Outcome struct {
	Handled           bool         `json:"handled"`
	Duplicate         bool         `json:"duplicate"`
	ExternalPaymentID string       `json:"externalPaymentId"`
	AccountID         uint         `json:"accountId,omitempty"`
	SubscriptionID    *uint        `json:"subscriptionId,omitempty"`
	JobID             *uint        `json:"jobId,omitempty"`
	PaymentRecordID   uint         `json:"paymentRecordId,omitempty"`
	MatchID           *uint        `json:"matchId,omitempty"`
	CleanerID         *uint        `json:"cleanerId,omitempty"`
	InvoiceNumber     string       `json:"invoiceNumber,omitempty"`
	Steps             []StepResult `json:"steps,omitempty"`
}

type runState struct {
	event      *webhook.Event
	meta       *Metadata
	externalID string

	duplicate bool
	existing  *models.PaymentRecord
	// resumed is set when an earlier delivery linked the payment but stopped
	// before the match was stored. Steps up to payment_record are skipped.
	resumed bool

	account         *models.Account
	accountCreated  bool
	initialPassword string
	intent          *provider.PaymentIntent

	address *models.Address
	order   models.OrderRef
	payment *models.PaymentRecord
	invoice *models.Invoice
	match   *models.Match
	cleaner *models.Account
}

type Saga struct {
	repos    *repository.Repositories
	guard    *Guard
	cfg      Config
	provider provider.Client
	geocoder geocode.Geocoder
	invoices InvoiceGenerator
	notifier Notifier
	mailer   BatchMailer
	audit    Auditor
	locker   Locker
	selector CleanerSelector
	now      func() time.Time
}

type Option func(*Saga)

func WithProvider(c provider.Client) Option { return func(s *Saga) { s.provider = c } }
func WithGeocoder(g geocode.Geocoder) Option { return func(s *Saga) { s.geocoder = g } }
func WithInvoices(g InvoiceGenerator) Option { return func(s *Saga) { s.invoices = g } }
func WithNotifier(n Notifier) Option { return func(s *Saga) { s.notifier = n } }
func WithMailer(m BatchMailer) Option { return func(s *Saga) { s.mailer = m } }
func WithAuditor(a Auditor) Option { return func(s *Saga) { s.audit = a } }
func WithLocker(l Locker) Option { return func(s *Saga) { s.locker = l } }
func WithSelector(sel CleanerSelector) Option { return func(s *Saga) { s.selector = sel } }
func WithClock(now func() time.Time) Option { return func(s *Saga) { s.now = now } }

func New(repos *repository.Repositories, cfg Config, opts ...Option) *Saga {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 50
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Saga{
		repos:    repos,
		guard:    NewGuard(repos.PaymentRecord),
		cfg:      cfg,
		selector: FirstAvailable{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandlePaymentSucceeded implements webhook.SucceededHandler.
func (s *Saga) HandlePaymentSucceeded(ctx context.Context, evt *webhook.Event) (any, error) {
	out, err := s.Fulfill(ctx, evt)
	if out == nil {
		return nil, err
	}
	return out, err
}

// Fulfill runs the saga for evt. It is safe to call repeatedly for the same
// payment: once the payment record is linked and matched every later call
// returns the existing linkage with Duplicate set. A linked payment without
// a match continues at the match step.
func (s *Saga) Fulfill(ctx context.Context, evt *webhook.Event) (*Outcome, error) {
	externalID := evt.ExternalPaymentID()
	if externalID == "" {
		return nil, fmt.Errorf("%w: payment object has no id", apperr.ErrMalformedEvent)
	}

	meta, err := ParseMetadata(metadataWithFallbacks(evt))
	if err != nil {
		log.Warnw("[Fulfillment] Event metadata rejected, saga not entered",
			"event_id", evt.ID, "external_payment_id", externalID, "error", err)
		return nil, err
	}

	var lk Lock
	if s.locker != nil {
		lk, err = s.locker.Acquire(ctx, externalID)
		switch {
		case errors.Is(err, apperr.ErrSagaInProgress):
			log.Warnw("[Fulfillment] Payment is being fulfilled by another delivery", "event_id", evt.ID, "external_payment_id", externalID)
			return nil, err
		case err != nil:
			// The unique payment record still admits one linkage.
			lk = nil
			log.Warnw("[Fulfillment] Lock unavailable, continuing unlocked", "event_id", evt.ID, "external_payment_id", externalID, "error", err)
		}
	}
	if lk != nil {
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := lk.Release(releaseCtx); err != nil {
				log.Warnw("[Fulfillment] Lock release failed", "external_payment_id", externalID, "error", err)
			}
		}()
	}

	st := &runState{event: evt, meta: meta, externalID: externalID}
	report, runErr := RunSteps(ctx, s.steps(), st, "event_id", evt.ID, "external_payment_id", externalID)
	out := s.outcome(ctx, st, report)
	if runErr != nil {
		return out, runErr
	}

	switch {
	case st.resumed:
		log.Infow("[Fulfillment] Interrupted run completed", "event_id", evt.ID, "external_payment_id", externalID,
			"order", orderDetail(st.order), "failed_steps", strings.Join(report.Failed(), ","))
	case out.Duplicate:
		log.Infow("[Fulfillment] Payment already fulfilled", "event_id", evt.ID, "external_payment_id", externalID)
	default:
		log.Infow("[Fulfillment] Payment fulfilled", "event_id", evt.ID, "external_payment_id", externalID,
			"order", fmt.Sprintf("%s:%d", st.order.Kind, st.order.ID), "failed_steps", strings.Join(report.Failed(), ","))
	}
	return out, nil
}

func (s *Saga) steps() []Step[runState] {
	return []Step[runState]{
		{Name: StepIdempotencyCheck, Fatal: true, Run: s.checkIdempotency},
		{Name: StepAccount, Fatal: true, Run: unlessResumed(s.ensureAccount)},
		{Name: StepProviderCustomer, Fatal: false, Run: unlessResumed(s.ensureProviderCustomer)},
		{Name: StepAddress, Fatal: true, Run: unlessResumed(s.createAddress)},
		{Name: StepOrder, Fatal: true, Run: unlessResumed(s.createOrder)},
		{Name: StepPaymentRecord, Fatal: true, Run: unlessResumed(s.linkPaymentRecord)},
		{Name: StepInvoice, Fatal: false, Run: s.generateInvoice},
		{Name: StepMatch, Fatal: true, Run: s.createMatch},
		{Name: StepNotifications, Fatal: false, Run: s.sendNotifications},
		{Name: StepEmails, Fatal: false, Run: s.sendEmails},
	}
}

func (s *Saga) checkIdempotency(ctx context.Context, st *runState) error {
	decision, err := s.guard.Check(ctx, st.externalID)
	if err != nil {
		return err
	}
	if !decision.Duplicate {
		st.existing = decision.Existing
		return nil
	}

	st.payment = decision.Existing
	ref, _ := decision.Existing.LinkedOrder()
	_, err = s.repos.Match.GetByOrder(ctx, ref)
	switch {
	case err == nil:
		st.duplicate = true
		return errStop
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("lookup match for %s: %w", orderDetail(ref), err)
	}
	return s.resume(ctx, st, ref)
}

func unlessResumed(run func(context.Context, *runState) error) func(context.Context, *runState) error {
	return func(ctx context.Context, st *runState) error {
		if st.resumed {
			return Skip("completed by an earlier delivery")
		}
		return run(ctx, st)
	}
}

// resume reloads what an interrupted run stored so the saga can continue at
// the invoice and match steps.
func (s *Saga) resume(ctx context.Context, st *runState, ref models.OrderRef) error {
	account, err := s.repos.Account.GetByID(ctx, st.payment.OwnerID)
	if err != nil {
		return fmt.Errorf("load account %d: %w", st.payment.OwnerID, err)
	}
	st.account = account
	st.order = ref
	st.resumed = true

	if addressID, err := s.orderAddressID(ctx, ref); err != nil {
		log.Warnw("[Fulfillment] Order lookup failed while resuming", "external_payment_id", st.externalID, "order", orderDetail(ref), "error", err)
	} else if addr, err := s.repos.Address.GetByID(ctx, addressID); err == nil {
		st.address = addr
	}

	// The interrupted run never reached the emails. An account whose only
	// payment is this one was created by that run and still needs credentials.
	if n, err := s.repos.PaymentRecord.CountByOwner(ctx, account.ID); err == nil && n == 1 {
		s.reissueCredentials(ctx, st)
	}

	log.Infow("[Fulfillment] Resuming interrupted run", "external_payment_id", st.externalID, "order", orderDetail(ref))
	return nil
}

func (s *Saga) orderAddressID(ctx context.Context, ref models.OrderRef) (uint, error) {
	if ref.Kind == models.OrderKindJob {
		job, err := s.repos.Job.GetByID(ctx, ref.ID)
		if err != nil {
			return 0, err
		}
		return job.AddressID, nil
	}
	sub, err := s.repos.Subscription.GetByID(ctx, ref.ID)
	if err != nil {
		return 0, err
	}
	return sub.AddressID, nil
}

func (s *Saga) reissueCredentials(ctx context.Context, st *runState) {
	password, err := models.GeneratePassword()
	if err == nil {
		var hash string
		if hash, err = models.HashPassword(password); err == nil {
			err = s.repos.Account.UpdatePasswordHash(ctx, st.account.ID, hash)
		}
	}
	if err != nil {
		log.Warnw("[Fulfillment] Could not issue credentials while resuming", "external_payment_id", st.externalID, "account_id", st.account.ID, "error", err)
		return
	}
	st.accountCreated = true
	st.initialPassword = password
}

func (s *Saga) ensureAccount(ctx context.Context, st *runState) error {
	accounts := s.repos.Account
	existing, err := accounts.GetByEmail(ctx, st.meta.Email)
	if err == nil {
		st.account = existing
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("find account: %w", err)
	}

	account, password, err := models.NewCustomerAccount(st.meta.Email, st.meta.Name, st.meta.Phone)
	if err != nil {
		return fmt.Errorf("build account: %w", err)
	}
	if err := accounts.Create(ctx, account); err != nil {
		// Another delivery may have created the same email in the meantime.
		if raced, gerr := accounts.GetByEmail(ctx, st.meta.Email); gerr == nil {
			st.account = raced
			return nil
		}
		return fmt.Errorf("create account: %w", err)
	}

	st.account = account
	st.accountCreated = true
	st.initialPassword = password
	s.emit(ctx, audit.Entry{EntityType: audit.EntityAccount, EntityID: account.ID, Action: "created", Detail: account.Email})
	return nil
}

func (s *Saga) ensureProviderCustomer(ctx context.Context, st *runState) error {
	if s.provider == nil {
		return Skip("payment provider not configured")
	}
	obj := st.event.Object
	customerID := st.account.ProviderCustomerID
	if customerID == "" {
		customerID = obj.Customer
	}
	paymentMethod := obj.PaymentMethod

	if obj.Object != "payment_intent" && strings.HasPrefix(st.externalID, "pi_") {
		pi, err := s.provider.RetrievePaymentIntent(ctx, st.externalID)
		if err != nil {
			log.Warnw("[Fulfillment] Payment intent lookup failed", "external_payment_id", st.externalID, "error", err)
		} else {
			st.intent = pi
			if customerID == "" {
				customerID = pi.CustomerID
			}
			if paymentMethod == "" {
				paymentMethod = pi.PaymentMethod
			}
		}
	}

	attach := false
	if customerID == "" {
		created, err := s.provider.FindOrCreateCustomer(ctx, st.account.Email, st.account.Name)
		if err != nil {
			return fmt.Errorf("find or create customer: %w", err)
		}
		customerID = created
		attach = paymentMethod != ""
	}

	if customerID != st.account.ProviderCustomerID {
		if err := s.repos.Account.UpdateProviderCustomerID(ctx, st.account.ID, customerID); err != nil {
			return fmt.Errorf("store provider customer: %w", err)
		}
		st.account.ProviderCustomerID = customerID
		s.emit(ctx, audit.Entry{EntityType: audit.EntityAccount, EntityID: st.account.ID, Action: "provider_customer_linked", Detail: customerID})
	}

	if attach {
		if err := s.provider.AttachPaymentMethod(ctx, customerID, paymentMethod); err != nil {
			return fmt.Errorf("attach payment method: %w", err)
		}
	}
	return nil
}

func (s *Saga) createAddress(ctx context.Context, st *runState) error {
	m := st.meta
	addr := &models.Address{
		AccountID:   st.account.ID,
		Street:      m.Street,
		HouseNumber: m.HouseNumber,
		Addition:    m.Addition,
		PostalCode:  m.PostalCode,
		City:        m.City,
	}

	if s.geocoder != nil && addr.PostalCode != "" && addr.HouseNumber != "" {
		res, err := s.geocoder.Lookup(ctx, geocode.Query{PostalCode: addr.PostalCode, HouseNumber: addr.HouseNumber, Addition: addr.Addition})
		if err != nil {
			log.Warnw("[Fulfillment] Geocoding failed, coordinates left empty",
				"external_payment_id", st.externalID, "postal_code", addr.PostalCode, "error", err)
		} else {
			lat, lon := res.Lat, res.Lon
			addr.Lat, addr.Lon = &lat, &lon
			if addr.Street == "" {
				addr.Street = res.Street
			}
			if addr.City == "" {
				addr.City = res.City
			}
		}
	}

	if err := s.repos.Address.Create(ctx, addr); err != nil {
		return fmt.Errorf("create address: %w", err)
	}
	st.address = addr
	s.emit(ctx, audit.Entry{EntityType: audit.EntityAddress, EntityID: addr.ID, Action: "created", Detail: fmt.Sprintf("account=%d", st.account.ID)})
	return nil
}

func (s *Saga) createOrder(ctx context.Context, st *runState) error {
	m := st.meta
	today := models.CalendarDay(s.now(), s.cfg.Location)

	if m.Flow == FlowOneOff {
		job := &models.Job{
			AccountID:   st.account.ID,
			AddressID:   st.address.ID,
			JobType:     m.JobType,
			DesiredDate: m.DesiredDate,
			Hours:       m.Hours,
			AmountCents: m.AmountCents,
			Status:      models.JobStatusRequested,
		}
		if err := s.repos.Job.Create(ctx, job); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		st.order = models.OrderRef{Kind: models.OrderKindJob, ID: job.ID}
		s.emit(ctx, audit.Entry{EntityType: audit.EntityJob, EntityID: job.ID, Action: "created", Detail: job.JobType})
		return nil
	}

	next := models.NextBillingAfter(today, m.Frequency)
	if m.DesiredDate != nil {
		next = *m.DesiredDate
	}
	sub := &models.Subscription{
		AccountID:         st.account.ID,
		AddressID:         st.address.ID,
		Frequency:         m.Frequency,
		Hours:             m.Hours,
		UnitPriceCents:    m.UnitPriceCents,
		BundleAmountCents: m.BundleAmountCents,
		NextBillingDate:   &next,
		Status:            models.SubscriptionStatusQueued,
	}
	if err := s.repos.Subscription.Create(ctx, sub); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	st.order = models.OrderRef{Kind: models.OrderKindSubscription, ID: sub.ID}
	s.emit(ctx, audit.Entry{EntityType: audit.EntitySubscription, EntityID: sub.ID, Action: "created", Detail: sub.Frequency})
	return nil
}

func (s *Saga) linkPaymentRecord(ctx context.Context, st *runState) error {
	payments := s.repos.PaymentRecord
	record := &models.PaymentRecord{ExternalPaymentID: st.externalID}

	if st.existing != nil {
		record = st.existing
	} else {
		s.fillPayment(record, st)
		created, stored, err := payments.Claim(ctx, record)
		if err != nil {
			return fmt.Errorf("claim payment record: %w", err)
		}
		if created {
			st.payment = stored
			s.emit(ctx, audit.Entry{EntityType: audit.EntityPaymentRecord, EntityID: stored.ID, Action: "created", Detail: orderDetail(st.order)})
			return nil
		}
		if ref, linked := stored.LinkedOrder(); linked && ref != st.order {
			return &apperr.ConflictError{ExternalPaymentID: st.externalID}
		}
		record = stored
	}

	s.fillPayment(record, st)
	if err := payments.Save(ctx, record); err != nil {
		return fmt.Errorf("update payment record: %w", err)
	}
	st.payment = record
	s.emit(ctx, audit.Entry{EntityType: audit.EntityPaymentRecord, EntityID: record.ID, Action: "linked", Detail: orderDetail(st.order)})
	return nil
}

func (s *Saga) fillPayment(record *models.PaymentRecord, st *runState) {
	amount := st.event.AmountCents()
	currency := st.event.Currency()
	providerStatus := st.event.Object.Status
	if st.intent != nil {
		if amount == 0 {
			amount = st.intent.AmountReceived
		}
		if st.intent.Currency != "" {
			currency = st.intent.Currency
		}
		if providerStatus == "" {
			providerStatus = st.intent.Status
		}
	}
	if amount == 0 {
		if st.meta.Flow == FlowOneOff {
			amount = st.meta.AmountCents
		} else {
			amount = st.meta.BundleAmountCents
		}
	}
	if providerStatus == "" {
		providerStatus = "succeeded"
	}

	record.OwnerID = st.account.ID
	record.AmountCents = amount
	record.Currency = currency
	record.Status = models.PaymentStatusPaid
	record.ProviderStatus = providerStatus
	record.Link(st.order)
}

func (s *Saga) generateInvoice(ctx context.Context, st *runState) error {
	if s.invoices == nil {
		return Skip("invoicing disabled")
	}
	if st.resumed {
		if inv, err := s.repos.Invoice.GetByPaymentRecordID(ctx, st.payment.ID); err == nil {
			st.invoice = inv
			return Skip("invoice " + inv.Number + " already issued")
		}
	}
	desc := "Cleaning subscription (" + st.meta.Frequency + ")"
	if st.meta.Flow == FlowOneOff {
		desc = "Cleaning job: " + st.meta.JobType
	}
	inv, err := s.invoices.Generate(ctx, invoice.Input{
		AccountID:       st.account.ID,
		PaymentRecordID: st.payment.ID,
		CustomerName:    st.account.Name,
		CustomerEmail:   st.account.Email,
		Description:     desc,
		AmountCents:     st.payment.AmountCents,
		Currency:        st.payment.Currency,
	})
	if inv != nil {
		st.invoice = inv
		s.emit(ctx, audit.Entry{EntityType: audit.EntityInvoice, EntityID: inv.ID, Action: "created", Detail: inv.Number})
	}
	if err != nil {
		return fmt.Errorf("generate invoice: %w", err)
	}
	return nil
}

func (s *Saga) createMatch(ctx context.Context, st *runState) error {
	cleaner := s.preferredCleaner(ctx, st)
	auto := false
	if cleaner == nil {
		candidates, err := s.repos.Account.ListByRole(ctx, models.ROLE_CLEANER, s.cfg.CandidateLimit)
		if err != nil {
			log.Warnw("[Fulfillment] Cleaner candidate lookup failed, match left unassigned",
				"external_payment_id", st.externalID, "error", err)
		} else {
			cleaner = s.selector.SelectCleaner(ctx, st.order, candidates)
		}
		auto = cleaner != nil
	}

	match := &models.Match{
		OrderKind:    st.order.Kind,
		OrderID:      st.order.ID,
		Status:       models.MatchStatusOpen,
		AutoAssigned: auto,
	}
	if cleaner != nil {
		id := cleaner.ID
		match.CleanerID = &id
	}
	if err := s.repos.Match.Create(ctx, match); err != nil {
		return fmt.Errorf("create match: %w", err)
	}

	st.match = match
	st.cleaner = cleaner
	detail := fmt.Sprintf("%s cleaner=none auto=%t", orderDetail(st.order), auto)
	if cleaner != nil {
		detail = fmt.Sprintf("%s cleaner=%d auto=%t", orderDetail(st.order), cleaner.ID, auto)
	}
	s.emit(ctx, audit.Entry{EntityType: audit.EntityMatch, EntityID: match.ID, Action: "created", Detail: detail})
	return nil
}

// preferredCleaner resolves the cleaner chosen by the customer. Lookup
// problems are logged and fall back to automatic selection.
func (s *Saga) preferredCleaner(ctx context.Context, st *runState) *models.Account {
	if st.meta.CleanerID == 0 {
		return nil
	}
	c, err := s.repos.Account.GetByID(ctx, st.meta.CleanerID)
	if err != nil {
		log.Warnw("[Fulfillment] Preferred cleaner lookup failed, auto-assigning",
			"external_payment_id", st.externalID, "cleaner_id", st.meta.CleanerID, "error", err)
		return nil
	}
	if !c.IsCleaner() {
		log.Warnw("[Fulfillment] Preferred account is not a cleaner, auto-assigning",
			"external_payment_id", st.externalID, "cleaner_id", st.meta.CleanerID)
		return nil
	}
	return c
}

func (s *Saga) sendNotifications(ctx context.Context, st *runState) error {
	if s.notifier == nil {
		return Skip("notifications disabled")
	}
	recipients := []notify.Recipient{{
		AccountID:   st.account.ID,
		Type:        models.NotificationTypeOrder,
		Content:     "We received your payment and your cleaning order is being scheduled.",
		ReferenceID: st.order.ID,
	}}
	if st.cleaner != nil {
		recipients = append(recipients, notify.Recipient{
			AccountID:   st.cleaner.ID,
			Type:        models.NotificationTypeMatch,
			Content:     "You have a new cleaning request waiting for your answer.",
			ReferenceID: st.match.ID,
		})
	}
	_, err := s.notifier.NotifyAll(ctx, recipients)
	return err
}

func (s *Saga) sendEmails(ctx context.Context, st *runState) error {
	if s.mailer == nil {
		return Skip("mail disabled")
	}
	batch := fulfillmentEmails(s.cfg.AdminEmail, st)
	results := s.mailer.SendAll(ctx, batch)

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d emails failed", failed, len(results))
	}
	return nil
}

func (s *Saga) emit(ctx context.Context, e audit.Entry) {
	if s.audit == nil {
		return
	}
	// Emit logs its own failures; the audit trail never blocks a step.
	_ = s.audit.Emit(ctx, e)
}

func (s *Saga) outcome(ctx context.Context, st *runState, report Report) *Outcome {
	out := &Outcome{
		Handled:           true,
		Duplicate:         st.duplicate,
		ExternalPaymentID: st.externalID,
		Steps:             report.Steps,
	}
	if st.account != nil {
		out.AccountID = st.account.ID
	}

	order := st.order
	if st.payment != nil {
		out.PaymentRecordID = st.payment.ID
		if out.AccountID == 0 {
			out.AccountID = st.payment.OwnerID
		}
		if ref, ok := st.payment.LinkedOrder(); ok {
			order = ref
		}
	}
	switch order.Kind {
	case models.OrderKindSubscription:
		id := order.ID
		out.SubscriptionID = &id
	case models.OrderKindJob:
		id := order.ID
		out.JobID = &id
	}

	match := st.match
	if match == nil && st.duplicate && order.ID != 0 {
		if m, err := s.repos.Match.GetByOrder(ctx, order); err == nil {
			match = m
		}
	}
	if match != nil {
		id := match.ID
		out.MatchID = &id
		out.CleanerID = match.CleanerID
	}
	if st.invoice != nil {
		out.InvoiceNumber = st.invoice.Number
	}
	return out
}

func orderDetail(ref models.OrderRef) string {
	return fmt.Sprintf("%s=%d", ref.Kind, ref.ID)
}

// metadataWithFallbacks fills the email from the payment object when the
// metadata does not carry one, as checkout sessions and invoices do.
func metadataWithFallbacks(evt *webhook.Event) webhook.Metadata {
	md := evt.Object.Metadata
	if md.Get(KeyEmail) != "" || evt.Object.CustomerEmail == "" {
		return md
	}
	out := make(webhook.Metadata, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	out[KeyEmail] = evt.Object.CustomerEmail
	return out
}
