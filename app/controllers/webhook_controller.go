package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/app/repository"
	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
	"github.com/cleanconnect/cleanconnect/internal/pkg/webhook"
)

// OutcomeCounter records webhook outcomes per event kind.
type OutcomeCounter interface {
	Add(ctx context.Context, kind, outcome string) error
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, evt *webhook.Event) (any, error)
}

type WebhookController struct {
	verifier   *webhook.Verifier
	dispatcher EventDispatcher
	deliveries repository.WebhookDeliveryRepository
	counter    OutcomeCounter
	timeout    time.Duration
}

func NewWebhookController(verifier *webhook.Verifier, dispatcher EventDispatcher, deliveries repository.WebhookDeliveryRepository, counter OutcomeCounter, timeout time.Duration) *WebhookController {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &WebhookController{
		verifier:   verifier,
		dispatcher: dispatcher,
		deliveries: deliveries,
		counter:    counter,
		timeout:    timeout,
	}
}

// HandlePaymentWebhook verifies, records and dispatches one provider
// delivery. Non-2xx answers make the provider redeliver.
func (wc *WebhookController) HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, webhook.SignatureHeader, webhook.FallbackSignatureHeader)

	ctx, cancel := context.WithTimeout(c.UserContext(), wc.timeout)
	defer cancel()

	if !wc.verifier.Verify(rawBody, signature) {
		log.Warnw("[Webhook] Rejected delivery with invalid signature", "ip", c.IP(), "has_header", signature != "")
		wc.count(ctx, "unknown", "invalid_signature")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	evt, err := webhook.ParseEvent(rawBody)
	if err != nil {
		log.Warnw("[Webhook] Rejected malformed payload", "error", err)
		wc.count(ctx, "unknown", "invalid_payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	kind := evt.Kind().String()

	created, stored, err := wc.deliveries.CreateIfNotExists(ctx, &models.WebhookDelivery{
		Provider:        models.WebhookProviderStripe,
		ProviderEventID: evt.ID,
		EventType:       evt.Type,
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		log.Errorw("[Webhook] Persisting delivery failed", "event_id", evt.ID, "error", err)
		wc.count(ctx, kind, "persist_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.Succeeded() {
		log.Infow("[Webhook] Delivery already processed", "event_id", evt.ID, "attempts", stored.Attempts)
		wc.count(ctx, kind, "duplicate")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	result, dispatchErr := wc.dispatcher.Dispatch(ctx, evt)

	processingError := ""
	if dispatchErr != nil {
		processingError = dispatchErr.Error()
	}
	if err := wc.deliveries.MarkProcessed(context.WithoutCancel(ctx), stored.ID, processingError); err != nil {
		log.Warnw("[Webhook] Marking delivery processed failed", "event_id", evt.ID, "error", err)
	}

	if dispatchErr != nil {
		return wc.respondError(c, ctx, evt, kind, dispatchErr)
	}

	body := mergeResult(result)
	wc.count(ctx, kind, outcomeOf(body))
	return c.Status(fiber.StatusOK).JSON(body)
}

func (wc *WebhookController) respondError(c *fiber.Ctx, ctx context.Context, evt *webhook.Event, kind string, err error) error {
	errKind := apperr.Kind(err)
	wc.count(ctx, kind, errKind)

	var valErr *apperr.ValidationError
	if errors.As(err, &valErr) {
		body := fiber.Map{"received": true, "handled": false, "error": valErr.Code()}
		if len(valErr.Missing) > 0 {
			body["missing"] = valErr.Missing
		}
		if len(valErr.Invalid) > 0 {
			body["invalid"] = valErr.Invalid
		}
		return c.Status(fiber.StatusOK).JSON(body)
	}

	var conflict *apperr.ConflictError
	if errors.As(err, &conflict) {
		log.Infow("[Webhook] Payment already linked to another order", "event_id", evt.ID, "external_payment_id", conflict.ExternalPaymentID)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "handled": true, "duplicate": true})
	}

	status := apperr.HTTPStatus(err)
	fields := []any{"event_id", evt.ID, "event_type", evt.Type, "external_payment_id", evt.ExternalPaymentID(), "kind", errKind, "error", err}
	var collab *apperr.CollaboratorError
	if errors.As(err, &collab) {
		fields = append(fields, "step", collab.Step)
	}
	if status >= fiber.StatusInternalServerError {
		log.Errorw("[Webhook] Dispatch failed, provider will redeliver", fields...)
	} else {
		log.Warnw("[Webhook] Dispatch deferred", fields...)
	}
	return c.Status(status).JSON(fiber.Map{"received": false, "error": errKind})
}

func (wc *WebhookController) count(ctx context.Context, kind, outcome string) {
	if wc.counter == nil {
		return
	}
	if err := wc.counter.Add(context.WithoutCancel(ctx), kind, outcome); err != nil {
		log.Warnw("[Webhook] Counter update failed", "error", err)
	}
}

// mergeResult flattens a handler result into the response body next to
// received:true.
func mergeResult(result any) fiber.Map {
	body := fiber.Map{}
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			_ = json.Unmarshal(raw, &body)
		} else {
			log.Warnw("[Webhook] Result not serializable", "error", err)
		}
	}
	body["received"] = true
	return body
}

func outcomeOf(body fiber.Map) string {
	if dup, _ := body["duplicate"].(bool); dup {
		return "duplicate"
	}
	if handled, _ := body["handled"].(bool); !handled {
		return "unhandled"
	}
	return "ok"
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
