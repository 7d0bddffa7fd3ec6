package billing

import (
	"testing"
	"time"
)

func TestClassifyEventType(t *testing.T) {
	tests := []struct {
		in   string
		want EventKind
	}{
		{"customer.subscription.created", EventSubscriptionUpsert},
		{"customer.subscription.updated", EventSubscriptionUpsert},
		{"customer.subscription.deleted", EventSubscriptionCancel},
		{"checkout.session.completed", EventCheckoutCompleted},
		{"invoice.payment_succeeded", EventUnknown},
		{"customer.created", EventUnknown},
		{"", EventUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyEventType(tt.in); got != tt.want {
			t.Fatalf("ClassifyEventType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSubscriptionEventTopLevelPeriodEnd(t *testing.T) {
	raw := []byte(`{
		"id": "sub_100",
		"customer": "cus_100",
		"status": "active",
		"cancel_at_period_end": true,
		"current_period_end": 1767225600,
		"items": {"data": [{"price": {"id": "price_pro_month", "recurring": {"interval": "month"}}}]}
	}`)

	ev, err := ParseSubscriptionEvent(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.SubscriptionID != "sub_100" || ev.CustomerID != "cus_100" {
		t.Fatalf("wrong ids: %+v", ev)
	}
	if ev.Status != "active" || !ev.CancelAtPeriodEnd {
		t.Fatalf("wrong status fields: %+v", ev)
	}
	if ev.PriceID != "price_pro_month" || ev.BillingInterval != "month" {
		t.Fatalf("wrong price fields: %+v", ev)
	}
	want := time.Unix(1767225600, 0).UTC()
	if ev.CurrentPeriodEnd == nil || !ev.CurrentPeriodEnd.Equal(want) {
		t.Fatalf("wrong period end: %v, want %v", ev.CurrentPeriodEnd, want)
	}
}

func TestParseSubscriptionEventItemLevelPeriodEnd(t *testing.T) {
	// Newer API versions carry current_period_end on the items only.
	raw := []byte(`{
		"id": "sub_101",
		"customer": "cus_101",
		"status": "trialing",
		"items": {"data": [{"current_period_end": 1769904000, "price": {"id": "price_plus_year", "recurring": {"interval": "year"}}}]}
	}`)

	ev, err := ParseSubscriptionEvent(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Unix(1769904000, 0).UTC()
	if ev.CurrentPeriodEnd == nil || !ev.CurrentPeriodEnd.Equal(want) {
		t.Fatalf("wrong period end: %v, want %v", ev.CurrentPeriodEnd, want)
	}
	if ev.BillingInterval != "year" {
		t.Fatalf("wrong interval: %q", ev.BillingInterval)
	}
}

func TestParseSubscriptionEventMissingFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no id", `{"customer": "cus_1"}`},
		{"no customer", `{"id": "sub_1"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		if _, err := ParseSubscriptionEvent([]byte(tt.raw)); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestParseSubscriptionEventNoPeriodEnd(t *testing.T) {
	ev, err := ParseSubscriptionEvent([]byte(`{"id": "sub_1", "customer": "cus_1", "status": "active"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.CurrentPeriodEnd != nil {
		t.Fatalf("expected nil period end, got %v", ev.CurrentPeriodEnd)
	}
}

func TestParseCheckoutSessionEvent(t *testing.T) {
	raw := []byte(`{
		"id": "cs_test_1",
		"mode": "subscription",
		"customer": "cus_200",
		"subscription": "sub_200",
		"client_reference_id": "42"
	}`)

	ev, err := ParseCheckoutSessionEvent(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.SessionID != "cs_test_1" || ev.CustomerID != "cus_200" ||
		ev.SubscriptionID != "sub_200" || ev.ClientReferenceID != "42" || ev.Mode != "subscription" {
		t.Fatalf("wrong fields: %+v", ev)
	}
}

func TestParseCheckoutSessionEventMissingCustomer(t *testing.T) {
	if _, err := ParseCheckoutSessionEvent([]byte(`{"id": "cs_1"}`)); err == nil {
		t.Fatal("expected error for missing customer")
	}
}
