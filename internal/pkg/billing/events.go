package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// EventKind is the closed set of webhook event classes this service reacts
// to. Everything else is EventUnknown and gets acknowledged without side
// effects, since providers add new event types over time.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventSubscriptionUpsert
	EventSubscriptionCancel
	EventCheckoutCompleted
)

// ClassifyEventType maps a provider event type tag to an EventKind.
// Created and updated share one kind because both resolve to an upsert.
func ClassifyEventType(eventType string) EventKind {
	switch strings.TrimSpace(eventType) {
	case "customer.subscription.created", "customer.subscription.updated":
		return EventSubscriptionUpsert
	case "customer.subscription.deleted":
		return EventSubscriptionCancel
	case "checkout.session.completed":
		return EventCheckoutCompleted
	default:
		return EventUnknown
	}
}

// SubscriptionEvent is the subset of a provider subscription payload the
// reconciler needs.
type SubscriptionEvent struct {
	SubscriptionID    string
	CustomerID        string
	Status            string
	PriceID           string
	BillingInterval   string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
}

// wireSubscription decodes only the fields we consume. Newer Stripe API
// versions move current_period_end onto the subscription items, so both
// locations are read.
type wireSubscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID        string `json:"id"`
				Recurring struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// ParseSubscriptionEvent decodes a subscription object payload into the
// reconciler's shape. The raw bytes must already be signature-verified.
func ParseSubscriptionEvent(raw []byte) (*SubscriptionEvent, error) {
	var w wireSubscription
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if strings.TrimSpace(w.ID) == "" {
		return nil, errors.New("subscription payload has no id")
	}
	if strings.TrimSpace(w.Customer) == "" {
		return nil, errors.New("subscription payload has no customer")
	}

	ev := &SubscriptionEvent{
		SubscriptionID:    strings.TrimSpace(w.ID),
		CustomerID:        strings.TrimSpace(w.Customer),
		Status:            strings.ToLower(strings.TrimSpace(w.Status)),
		CancelAtPeriodEnd: w.CancelAtPeriodEnd,
	}

	periodEnd := w.CurrentPeriodEnd
	for _, item := range w.Items.Data {
		if ev.PriceID == "" && strings.TrimSpace(item.Price.ID) != "" {
			ev.PriceID = strings.TrimSpace(item.Price.ID)
			ev.BillingInterval = strings.TrimSpace(item.Price.Recurring.Interval)
		}
		if periodEnd == 0 && item.CurrentPeriodEnd > 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0).UTC()
		ev.CurrentPeriodEnd = &t
	}

	return ev, nil
}

// CheckoutSessionEvent is the subset of a checkout.session.completed payload
// needed to link a local user to a provider customer.
type CheckoutSessionEvent struct {
	SessionID         string
	CustomerID        string
	SubscriptionID    string
	ClientReferenceID string
	Mode              string
}

type wireCheckoutSession struct {
	ID                string `json:"id"`
	Mode              string `json:"mode"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
}

// ParseCheckoutSessionEvent decodes a checkout session object payload.
func ParseCheckoutSessionEvent(raw []byte) (*CheckoutSessionEvent, error) {
	var w wireCheckoutSession
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if strings.TrimSpace(w.Customer) == "" {
		return nil, errors.New("checkout session payload has no customer")
	}
	return &CheckoutSessionEvent{
		SessionID:         strings.TrimSpace(w.ID),
		CustomerID:        strings.TrimSpace(w.Customer),
		SubscriptionID:    strings.TrimSpace(w.Subscription),
		ClientReferenceID: strings.TrimSpace(w.ClientReferenceID),
		Mode:              strings.TrimSpace(w.Mode),
	}, nil
}
