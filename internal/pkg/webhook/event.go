package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"

	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
)

// Event is a verified provider event with its payment object decoded.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time
	Object     PaymentObject
	Raw        []byte
}

// PaymentObject covers the fields of payment intents, checkout sessions and
// invoices that the pipeline reads.
type PaymentObject struct {
	ID             string        `json:"id"`
	Object         string        `json:"object"`
	Amount         int64         `json:"amount"`
	AmountReceived int64         `json:"amount_received"`
	AmountTotal    int64         `json:"amount_total"`
	AmountDue      int64         `json:"amount_due"`
	Currency       string        `json:"currency"`
	Status         string        `json:"status"`
	Customer       string        `json:"customer"`
	CustomerEmail  string        `json:"customer_email"`
	PaymentIntent  string        `json:"payment_intent"`
	PaymentMethod  string        `json:"payment_method"`
	Subscription   string        `json:"subscription"`
	FailureMessage string        `json:"failure_message"`
	LastError      *PaymentError `json:"last_payment_error"`
	Metadata       Metadata      `json:"metadata"`
}

type PaymentError struct {
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

// Metadata is the flat key/value map attached to a payment. Scalar JSON
// values of any type are kept as strings.
type Metadata map[string]string

func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Metadata, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&n); err == nil {
			out[k] = n.String()
			continue
		}
		trimmed := strings.TrimSpace(string(v))
		if trimmed == "null" {
			continue
		}
		out[k] = trimmed
	}
	*m = out
	return nil
}

// Get returns the trimmed value for key.
func (m Metadata) Get(key string) string {
	return strings.TrimSpace(m[key])
}

// Int64 parses key as an integer. Absent or blank keys return ok=false.
func (m Metadata) Int64(key string) (int64, bool, error) {
	v := m.Get(key)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("metadata %s: %w", key, err)
	}
	return n, true, nil
}

// ParseEvent decodes a verified request body. Callers must verify the
// signature first.
func ParseEvent(payload []byte) (*Event, error) {
	var envelope stripe.Event
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformedEvent, err)
	}
	if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(string(envelope.Type)) == "" {
		return nil, fmt.Errorf("%w: id and type are required", apperr.ErrMalformedEvent)
	}

	evt := &Event{
		ID:   envelope.ID,
		Type: string(envelope.Type),
		Raw:  payload,
	}
	if envelope.Created > 0 {
		evt.OccurredAt = time.Unix(envelope.Created, 0).UTC()
	}

	if envelope.Data != nil && len(envelope.Data.Raw) > 0 {
		if err := json.Unmarshal(envelope.Data.Raw, &evt.Object); err != nil {
			return nil, fmt.Errorf("%w: data.object: %v", apperr.ErrMalformedEvent, err)
		}
	}
	return evt, nil
}

// Kind returns the closed class of the event type.
func (e *Event) Kind() Kind {
	return ClassifyType(e.Type)
}

// ExternalPaymentID is the provider id that identifies the payment across
// event types. Checkout sessions and invoices point at their payment intent.
func (e *Event) ExternalPaymentID() string {
	if e.Object.PaymentIntent != "" {
		return e.Object.PaymentIntent
	}
	return e.Object.ID
}

// AmountCents returns the most specific amount the object carries.
func (e *Event) AmountCents() int64 {
	o := e.Object
	for _, v := range []int64{o.AmountReceived, o.AmountTotal, o.Amount, o.AmountDue} {
		if v > 0 {
			return v
		}
	}
	return 0
}

func (e *Event) Currency() string {
	if e.Object.Currency == "" {
		return "eur"
	}
	return strings.ToLower(e.Object.Currency)
}

// FailureReason extracts a human readable reason from a failed payment.
func (e *Event) FailureReason() string {
	o := e.Object
	if o.LastError != nil {
		switch {
		case o.LastError.Message != "":
			return o.LastError.Message
		case o.LastError.DeclineCode != "":
			return o.LastError.DeclineCode
		case o.LastError.Code != "":
			return o.LastError.Code
		}
	}
	if o.FailureMessage != "" {
		return o.FailureMessage
	}
	return "payment_failed"
}
