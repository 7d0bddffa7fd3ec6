package constants

// API routes
const (
	APIRoot = "/api"
	APIv1   = "/v1"

	BillingWebhookStripePath       = "/billing/webhook/stripe"
	BillingWebhookStripeSecurePath = "/billing/webhook/stripe/secure"
	BillingCheckoutPath            = "/billing/checkout"
	BillingPortalPath              = "/billing/portal"
	BillingSubscriptionPath        = "/billing/subscription"
)

// Service routes
const (
	HealthPath  = "/health"
	StatusPath  = "/status"
	MetricsPath = "/metrics"
)
