package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
)

type recordingHandler struct {
	succeeded []string
	failed    []string
	err       error
}

func (h *recordingHandler) HandlePaymentSucceeded(_ context.Context, evt *Event) (any, error) {
	h.succeeded = append(h.succeeded, evt.ID)
	return map[string]any{"handled": true}, h.err
}

func (h *recordingHandler) HandlePaymentFailed(_ context.Context, evt *Event) (any, error) {
	h.failed = append(h.failed, evt.ID)
	return map[string]any{"handled": true}, h.err
}

func TestClassifyType(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{in: "payment.succeeded", want: KindPaymentSucceeded},
		{in: "payment_intent.succeeded", want: KindPaymentSucceeded},
		{in: "checkout.session.completed", want: KindPaymentSucceeded},
		{in: "payment.failed", want: KindPaymentFailed},
		{in: "payment_intent.payment_failed", want: KindPaymentFailed},
		{in: "invoice.payment_failed", want: KindPaymentFailed},
		{in: "charge.refunded", want: KindUnhandled},
		{in: "", want: KindUnhandled},
	}

	for _, tt := range tests {
		if got := ClassifyType(tt.in); got != tt.want {
			t.Fatalf("ClassifyType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDispatchRoutesByKind(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(h, h)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, &Event{ID: "evt_ok", Type: "payment.succeeded"})
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, &Event{ID: "evt_fail", Type: "invoice.payment_failed"})
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, &Event{ID: "evt_other", Type: "customer.created"})
	require.NoError(t, err)
	assert.Equal(t, Unhandled{Handled: false, Type: "customer.created"}, res)

	assert.Equal(t, []string{"evt_ok"}, h.succeeded)
	assert.Equal(t, []string{"evt_fail"}, h.failed)
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	h := &recordingHandler{err: boom}
	d := NewDispatcher(h, h)

	_, err := d.Dispatch(context.Background(), &Event{ID: "evt", Type: "payment.succeeded"})
	assert.ErrorIs(t, err, boom)
}

func TestParseEvent(t *testing.T) {
	body := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"amount_total": 10000,
			"currency": "EUR",
			"payment_intent": "pi_1",
			"metadata": {"email": "a@b.com", "unitPriceCents": 2500, "optional": null}
		}}
	}`)

	evt, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, KindPaymentSucceeded, evt.Kind())
	assert.Equal(t, "pi_1", evt.ExternalPaymentID())
	assert.Equal(t, int64(10000), evt.AmountCents())
	assert.Equal(t, "eur", evt.Currency())
	assert.Equal(t, "2500", evt.Object.Metadata.Get("unitPriceCents"))
	_, present := evt.Object.Metadata["optional"]
	assert.False(t, present)
	assert.Equal(t, int64(1700000000), evt.OccurredAt.Unix())
}

func TestParseEventRejectsMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"id":"evt_1"}`, `{"id":"evt","type":"payment.succeeded","data":{"object":{"amount":"x"}}}`} {
		_, err := ParseEvent([]byte(body))
		assert.ErrorIs(t, err, apperr.ErrMalformedEvent, body)
	}
}

func TestFailureReason(t *testing.T) {
	evt := &Event{Object: PaymentObject{LastError: &PaymentError{Code: "card_declined", DeclineCode: "insufficient_funds"}}}
	assert.Equal(t, "insufficient_funds", evt.FailureReason())

	evt = &Event{Object: PaymentObject{FailureMessage: "expired"}}
	assert.Equal(t, "expired", evt.FailureReason())

	assert.Equal(t, "payment_failed", (&Event{}).FailureReason())
}
