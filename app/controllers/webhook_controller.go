package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/courseloop/courseloop/app/models"
	"github.com/courseloop/courseloop/internal/pkg/audit"
	"github.com/courseloop/courseloop/internal/pkg/billing"
	"github.com/courseloop/courseloop/internal/pkg/env"
	"github.com/courseloop/courseloop/internal/pkg/metrics/counter"
	"github.com/courseloop/courseloop/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// maxWebhookBodyBytes caps inbound webhook payloads before any verification
// or parsing happens. Stripe subscription events are a few KB.
const maxWebhookBodyBytes = 64 * 1024

var (
	billingService *billing.Service
	securityAudit  *audit.Recorder
	webhookMetrics func(string)
)

// InitializeBillingController wires the billing service and audit recorder
// used by the webhook and session endpoints.
func InitializeBillingController(svc *billing.Service, recorder *audit.Recorder, metrics func(string)) {
	billingService = svc
	securityAudit = recorder
	if metrics == nil {
		metrics = func(string) {}
	}
	webhookMetrics = metrics
}

// DefaultWebhookMetrics forwards outcomes to the Redis-backed counters.
func DefaultWebhookMetrics(metric string) {
	counter.AddWebhookOutcome(metric)
}

// HandleStripeWebhook receives Stripe billing events on the standard path.
func HandleStripeWebhook(c *fiber.Ctx) error {
	return processStripeWebhook(c, false)
}

// HandleStripeWebhookSecure is the hardened variant: it sits behind the
// webhook rate limiter, accepts POST only, and records audit events for
// every decision. Mounted with all methods so the 405 is ours.
func HandleStripeWebhookSecure(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		securityAudit.Record(c.UserContext(), models.SecurityEventInvalidMethod,
			fmt.Sprintf("method=%s", c.Method()), requestID(c), middleware.ClientIP(c), string(c.Request().Header.UserAgent()))
		return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{"error": "method_not_allowed"})
	}
	return processStripeWebhook(c, true)
}

func processStripeWebhook(c *fiber.Ctx, hardened bool) error {
	ctx := c.UserContext()
	ip := middleware.ClientIP(c)
	userAgent := string(c.Request().Header.UserAgent())
	reqID := requestID(c)

	rawBody := append([]byte(nil), c.BodyRaw()...)
	if len(rawBody) > maxWebhookBodyBytes {
		webhookMetrics(counter.MetricWebhookRejected)
		securityAudit.Record(ctx, models.SecurityEventPayloadTooLarge,
			fmt.Sprintf("size=%d", len(rawBody)), reqID, ip, userAgent)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	// The raw bytes are the signed message; verification must happen before
	// any JSON parsing and on exactly what was received.
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")
	event, err := webhook.ConstructEventWithOptions(rawBody, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		webhookMetrics(counter.MetricWebhookRejected)
		// The exact failure (missing vs. malformed vs. mismatched) stays in
		// the audit trail; the response is deliberately vague.
		securityAudit.Record(ctx, models.SecurityEventInvalidSignature, err.Error(), reqID, ip, userAgent)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	webhookMetrics(counter.MetricWebhookReceived)
	if hardened {
		securityAudit.Record(ctx, models.SecurityEventWebhookReceived,
			fmt.Sprintf("event=%s type=%s", event.ID, event.Type), reqID, ip, userAgent)
	}

	created, stored, err := billingService.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		log.Printf("webhook persist failed for event %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
	// Short-circuit only deliveries that already processed cleanly. A retry
	// of a failed delivery carries the same event id and must run again,
	// otherwise the 500 that asked the provider to retry could never be
	// repaired.
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		webhookMetrics(counter.MetricWebhookDuplicate)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	processErr := dispatchStripeEvent(ctx, &event, hardened, reqID, ip, userAgent)
	if err := billingService.MarkWebhookProcessed(ctx, stored.ID, processErr); err != nil {
		log.Printf("failed to mark webhook %d processed: %v", stored.ID, err)
	}

	if processErr != nil {
		webhookMetrics(counter.MetricWebhookFailed)
		// Internal detail goes to the audit trail only; the provider sees a
		// generic failure and retries delivery.
		securityAudit.Record(ctx, models.SecurityEventWebhookError,
			fmt.Sprintf("event=%s type=%s err=%v", event.ID, event.Type, processErr), reqID, ip, userAgent)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	webhookMetrics(counter.MetricWebhookProcessed)
	if hardened {
		securityAudit.Record(ctx, models.SecurityEventWebhookProcessed,
			fmt.Sprintf("event=%s type=%s", event.ID, event.Type), reqID, ip, userAgent)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// dispatchStripeEvent routes one verified event to its handler. Unknown
// types are acknowledged without side effects; Stripe adds types over time
// and retries anything we fail.
func dispatchStripeEvent(ctx context.Context, event *stripe.Event, hardened bool, reqID, ip, userAgent string) error {
	if event == nil {
		return errors.New("event is nil")
	}
	eventAt := time.Unix(event.Created, 0).UTC()

	switch billing.ClassifyEventType(string(event.Type)) {
	case billing.EventSubscriptionUpsert:
		ev, err := billing.ParseSubscriptionEvent(event.Data.Raw)
		if err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		_, err = billingService.UpsertFromEvent(ctx, ev, eventAt, event.Data.Raw)
		return err

	case billing.EventSubscriptionCancel:
		ev, err := billing.ParseSubscriptionEvent(event.Data.Raw)
		if err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		found, err := billingService.CancelFromEvent(ctx, ev, eventAt)
		if err != nil {
			return err
		}
		if !found && hardened {
			// The row should exist from a prior created event. Not fatal,
			// but worth an operator's attention.
			securityAudit.Record(ctx, models.SecurityEventWebhookError,
				fmt.Sprintf("cancel for unknown subscription %s", ev.SubscriptionID), reqID, ip, userAgent)
		}
		return nil

	case billing.EventCheckoutCompleted:
		cs, err := billing.ParseCheckoutSessionEvent(event.Data.Raw)
		if err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return billingService.LinkCustomerFromCheckout(ctx, cs)

	default:
		log.Printf("stripe webhook ignored (unhandled type %s, event %s)", event.Type, event.ID)
		return nil
	}
}
