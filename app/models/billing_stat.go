package models

import "time"

// BillingStat holds aggregated webhook/billing counters flushed periodically
// from the cache.
type BillingStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Metric    string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"metric"`
	Count     uint64    `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
