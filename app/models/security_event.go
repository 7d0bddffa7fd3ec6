package models

import "time"

// Security event type tags written by the webhook and billing endpoints.
const (
	SecurityEventInvalidMethod    = "INVALID_METHOD"
	SecurityEventRateLimited      = "RATE_LIMITED"
	SecurityEventInvalidSignature = "INVALID_SIGNATURE"
	SecurityEventPayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	SecurityEventWebhookReceived  = "WEBHOOK_RECEIVED"
	SecurityEventWebhookProcessed = "WEBHOOK_PROCESSED"
	SecurityEventWebhookError     = "WEBHOOK_ERROR"
	SecurityEventPortalSession    = "PORTAL_SESSION"
	SecurityEventCheckoutSession  = "CHECKOUT_SESSION"
)

// SecurityEvent is an append-only audit record. It is written best-effort
// from request handlers and never read back by this service.
type SecurityEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventType string    `gorm:"type:varchar(50);not null;index" json:"event_type"`
	Detail    string    `gorm:"type:text" json:"detail"`
	RequestID string    `gorm:"type:varchar(36);default:''" json:"request_id"`
	IP        string    `gorm:"type:varchar(45);default:''" json:"ip"`
	UserAgent string    `gorm:"type:varchar(255);default:''" json:"user_agent"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
