package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/app/repository"
	"github.com/cleanconnect/cleanconnect/internal/pkg/fulfillment"
	"github.com/cleanconnect/cleanconnect/internal/pkg/retry"
	"github.com/cleanconnect/cleanconnect/internal/pkg/testutil"
	"github.com/cleanconnect/cleanconnect/internal/pkg/webhook"
)

const testSecret = "whsec_test_secret"

type countingCounter struct {
	counts map[string]int
}

func (c *countingCounter) Add(_ context.Context, kind, outcome string) error {
	c.counts[kind+":"+outcome]++
	return nil
}

type webhookFixture struct {
	app     *fiber.App
	db      *gorm.DB
	repos   *repository.Repositories
	counter *countingCounter
}

// newWebhookFixture wires the controller over an in-memory database. setup
// runs before the services are built so tests can wrap repositories.
func newWebhookFixture(t *testing.T, setup ...func(*repository.Repositories)) *webhookFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	repos := repository.NewRepositories(db)
	for _, fn := range setup {
		fn(repos)
	}
	counter := &countingCounter{counts: map[string]int{}}

	saga := fulfillment.New(repos, fulfillment.Config{})
	retries := retry.NewService(repos, "", nil)
	wc := NewWebhookController(
		webhook.NewVerifier(testSecret, 5*time.Minute),
		webhook.NewDispatcher(saga, retries),
		repos.WebhookDelivery,
		counter,
		5*time.Second,
	)

	app := fiber.New()
	app.Post("/webhooks/payments", wc.HandlePaymentWebhook)
	return &webhookFixture{app: app, db: db, repos: repos, counter: counter}
}

func (f *webhookFixture) post(t *testing.T, body, header, signature string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(header, signature)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func (f *webhookFixture) postSigned(t *testing.T, body string) (int, map[string]any) {
	t.Helper()
	return f.post(t, body, webhook.SignatureHeader, webhook.SignatureHeaderValue([]byte(body), time.Now(), testSecret))
}

func succeededBody(eventID, paymentIntent string, metadata map[string]string) string {
	md, _ := json.Marshal(metadata)
	return fmt.Sprintf(`{"id":%q,"type":"payment_intent.succeeded","created":1760000000,"data":{"object":{"id":%q,"object":"payment_intent","amount_received":10000,"currency":"eur","status":"succeeded","metadata":%s}}}`,
		eventID, paymentIntent, md)
}

func validMetadata() map[string]string {
	return map[string]string{
		"email":             "jan@example.nl",
		"name":              "Jan",
		"frequency":         "weekly",
		"unitPriceCents":    "2500",
		"bundleAmountCents": "10000",
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	f := newWebhookFixture(t)
	body := succeededBody("evt_1", "pi_1", validMetadata())

	status, out := f.post(t, body, webhook.SignatureHeader, "t=1,v1=deadbeef")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", out["error"])

	status, _ = f.post(t, body, webhook.SignatureHeader, "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	var n int64
	require.NoError(t, f.db.Model(&models.WebhookDelivery{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Equal(t, 2, f.counter.counts["unknown:invalid_signature"])
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	f := newWebhookFixture(t)

	status, out := f.postSigned(t, `{"id":`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_payload", out["error"])
}

func TestWebhookAcceptsFallbackHeader(t *testing.T) {
	f := newWebhookFixture(t)
	body := `{"id":"evt_x","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`

	status, out := f.post(t, body, webhook.FallbackSignatureHeader, webhook.SignatureHeaderValue([]byte(body), time.Now(), testSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["received"])
	assert.Equal(t, false, out["handled"])
	assert.Equal(t, "charge.refunded", out["type"])
}

func TestWebhookFulfillsAndDeduplicates(t *testing.T) {
	f := newWebhookFixture(t)
	body := succeededBody("evt_2", "pi_2", validMetadata())

	status, out := f.postSigned(t, body)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, true, out["received"])
	assert.Equal(t, true, out["handled"])
	assert.Equal(t, false, out["duplicate"])
	subID := out["subscriptionId"]
	require.NotNil(t, subID)

	// Same event again: answered from the delivery log.
	status, out = f.postSigned(t, body)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["duplicate"])

	// New event for the same payment: answered by the idempotency guard.
	status, out = f.postSigned(t, succeededBody("evt_3", "pi_2", validMetadata()))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["duplicate"])
	assert.Equal(t, subID, out["subscriptionId"])

	var records, subs int64
	require.NoError(t, f.db.Model(&models.PaymentRecord{}).Count(&records).Error)
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&subs).Error)
	assert.Equal(t, int64(1), records)
	assert.Equal(t, int64(1), subs)

	assert.Equal(t, 1, f.counter.counts["payment_succeeded:ok"])
	assert.Equal(t, 2, f.counter.counts["payment_succeeded:duplicate"])
}

func TestWebhookReportsMissingMetadata(t *testing.T) {
	f := newWebhookFixture(t)
	md := validMetadata()
	delete(md, "unitPriceCents")
	delete(md, "email")

	status, out := f.postSigned(t, succeededBody("evt_4", "pi_4", md))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["received"])
	assert.Equal(t, false, out["handled"])
	assert.Equal(t, "missing_metadata", out["error"])
	assert.Equal(t, []any{"email", "unitPriceCents"}, out["missing"])

	var accounts int64
	require.NoError(t, f.db.Model(&models.Account{}).Count(&accounts).Error)
	assert.Zero(t, accounts)
}

func TestWebhookFatalFailureRequestsRedelivery(t *testing.T) {
	f := newWebhookFixture(t)
	body := `{"id":"evt_5","type":"invoice.payment_failed","data":{"object":{"id":"in_5","object":"invoice","payment_intent":"pi_5","customer":"cus_nobody","metadata":{}}}}`

	status, out := f.postSigned(t, body)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "not_found", out["error"])

	var delivery models.WebhookDelivery
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_5").First(&delivery).Error)
	assert.NotEmpty(t, delivery.ProcessingError)
	assert.False(t, delivery.Succeeded())

	// A redelivery is processed again rather than short-circuited.
	status, _ = f.postSigned(t, body)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_5").First(&delivery).Error)
	assert.Equal(t, 2, delivery.Attempts)
}

func TestWebhookRecordsPaymentFailure(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	account := &models.Account{Email: "jan@example.nl", Role: models.ROLE_CUSTOMER, ProviderCustomerID: "cus_jan"}
	require.NoError(t, f.repos.Account.Create(ctx, account))
	require.NoError(t, f.repos.Subscription.Create(ctx, &models.Subscription{
		AccountID: account.ID, AddressID: 1, Frequency: "weekly", UnitPriceCents: 2500, BundleAmountCents: 10000,
		Status: models.SubscriptionStatusActive,
	}))

	body := `{"id":"evt_6","type":"invoice.payment_failed","data":{"object":{"id":"in_6","object":"invoice","payment_intent":"pi_6","customer":"cus_jan"}}}`
	status, out := f.postSigned(t, body)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, float64(1), out["retryCount"])
	assert.NotNil(t, out["nextRetryDate"])
	assert.Equal(t, models.SubscriptionStatusActive, out["status"])
}

func TestWebhookIgnoresDeclinedOneOffPayment(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	account := &models.Account{Email: "jan@example.nl", Role: models.ROLE_CUSTOMER, ProviderCustomerID: "cus_jan"}
	require.NoError(t, f.repos.Account.Create(ctx, account))
	sub := &models.Subscription{
		AccountID: account.ID, AddressID: 1, Frequency: "weekly", UnitPriceCents: 2500, BundleAmountCents: 10000,
		Status: models.SubscriptionStatusActive,
	}
	require.NoError(t, f.repos.Subscription.Create(ctx, sub))

	body := `{"id":"evt_7","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_7","object":"payment_intent","customer":"cus_jan","metadata":{"email":"jan@example.nl","jobType":"deep_clean","amountCents":"8900"}}}}`
	status, out := f.postSigned(t, body)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, true, out["received"])
	assert.Equal(t, false, out["handled"])
	assert.Equal(t, retry.ReasonNotRecurring, out["reason"])

	stored, err := f.repos.Subscription.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Retry.Count)
	assert.Equal(t, 1, f.counter.counts["payment_failed:unhandled"])
}

// competingClaims links the payment to another order right before the saga
// claims it.
type competingClaims struct {
	repository.PaymentRecordRepository
	competitor *models.PaymentRecord
}

func (r *competingClaims) Claim(ctx context.Context, record *models.PaymentRecord) (bool, *models.PaymentRecord, error) {
	if c := r.competitor; c != nil {
		r.competitor = nil
		if _, _, err := r.PaymentRecordRepository.Claim(ctx, c); err != nil {
			return false, nil, err
		}
	}
	return r.PaymentRecordRepository.Claim(ctx, record)
}

func TestWebhookPaymentClaimedByOtherOrder(t *testing.T) {
	otherOrder := uint(999)
	f := newWebhookFixture(t, func(repos *repository.Repositories) {
		repos.PaymentRecord = &competingClaims{
			PaymentRecordRepository: repos.PaymentRecord,
			competitor:              &models.PaymentRecord{ExternalPaymentID: "pi_8", LinkedJobID: &otherOrder, Status: models.PaymentStatusPaid},
		}
	})

	status, out := f.postSigned(t, succeededBody("evt_8", "pi_8", validMetadata()))
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, true, out["received"])
	assert.Equal(t, true, out["handled"])
	assert.Equal(t, true, out["duplicate"])

	var records []models.PaymentRecord
	require.NoError(t, f.db.Find(&records).Error)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].LinkedJobID)
	assert.Equal(t, otherOrder, *records[0].LinkedJobID)
	assert.Nil(t, records[0].LinkedSubscriptionID)
}

func TestMergeResultKeepsReceived(t *testing.T) {
	body := mergeResult(webhook.Unhandled{Handled: false, Type: "x"})
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "x", body["type"])
	assert.Equal(t, "unhandled", outcomeOf(body))

	assert.Equal(t, fiber.Map{"received": true}, mergeResult(nil))
}

type failingCheck struct{}

func (failingCheck) check(context.Context) error { return errors.New("connection refused") }

func TestHealthReportsDegraded(t *testing.T) {
	hc := NewHealthController(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"cache":    failingCheck{}.check,
	})
	app := fiber.New()
	app.Get("/healthz", hc.HandleHealth)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, "ok", out["database"])
	assert.Equal(t, "down", out["cache"])
}
