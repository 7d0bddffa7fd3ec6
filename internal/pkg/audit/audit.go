package audit

import (
	"context"
	"log"

	"github.com/courseloop/courseloop/app/models"
	"gorm.io/gorm"
)

// Recorder appends security events to the database. Writes are best-effort:
// a failed insert is printed locally and swallowed so it can never fail the
// request being audited.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates a recorder. A nil db yields a recorder that only
// prints, which is what tests and degraded boots get.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record writes one security event.
func (r *Recorder) Record(ctx context.Context, eventType, detail, requestID, ip, userAgent string) {
	_ = ctx
	if r == nil || r.db == nil {
		log.Printf("security event (no store): %s %s ip=%s", eventType, detail, ip)
		return
	}

	event := models.SecurityEvent{
		EventType: eventType,
		Detail:    detail,
		RequestID: requestID,
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := r.db.Create(&event).Error; err != nil {
		log.Printf("failed to record security event %s: %v", eventType, err)
	}
}
