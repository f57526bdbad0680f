package webhook

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
)

// Kind is the closed set of event classes the pipeline reacts to.
type Kind int

const (
	KindUnhandled Kind = iota
	KindPaymentSucceeded
	KindPaymentFailed
)

func (k Kind) String() string {
	switch k {
	case KindPaymentSucceeded:
		return "payment_succeeded"
	case KindPaymentFailed:
		return "payment_failed"
	default:
		return "unhandled"
	}
}

// ClassifyType maps a provider event type onto a Kind.
func ClassifyType(eventType string) Kind {
	switch eventType {
	case "payment.succeeded", "payment_intent.succeeded", "checkout.session.completed":
		return KindPaymentSucceeded
	case "payment.failed", "payment_intent.payment_failed", "invoice.payment_failed":
		return KindPaymentFailed
	default:
		return KindUnhandled
	}
}

// SucceededHandler runs fulfillment for a successful payment.
type SucceededHandler interface {
	HandlePaymentSucceeded(ctx context.Context, evt *Event) (any, error)
}

// FailedHandler records a failed recurring payment.
type FailedHandler interface {
	HandlePaymentFailed(ctx context.Context, evt *Event) (any, error)
}

// Unhandled is the result for event types outside the closed set and for
// events a handler declined. Reason names why the handler declined.
type Unhandled struct {
	Handled bool   `json:"handled"`
	Type    string `json:"type"`
	Reason  string `json:"reason,omitempty"`
}

// Dispatcher routes verified events. It holds no business logic.
type Dispatcher struct {
	succeeded SucceededHandler
	failed    FailedHandler
}

func NewDispatcher(succeeded SucceededHandler, failed FailedHandler) *Dispatcher {
	return &Dispatcher{succeeded: succeeded, failed: failed}
}

// Dispatch invokes the handler for the event's kind and returns its result
// unchanged. Unknown types return Unhandled without side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *Event) (any, error) {
	switch evt.Kind() {
	case KindPaymentSucceeded:
		return d.succeeded.HandlePaymentSucceeded(ctx, evt)
	case KindPaymentFailed:
		return d.failed.HandlePaymentFailed(ctx, evt)
	case KindUnhandled:
		log.Infof("[Webhook] Ignoring event %s of unhandled type %s", evt.ID, evt.Type)
		return Unhandled{Handled: false, Type: evt.Type}, nil
	}
	return Unhandled{Handled: false, Type: evt.Type}, nil
}
