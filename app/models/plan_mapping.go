package models

import "time"

// PlanMapping maps a provider price reference to an internal plan.
type PlanMapping struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Provider         string    `gorm:"type:varchar(20);not null;index:ux_plan_mappings_provider_ref,unique,priority:1" json:"provider"`
	ProviderPriceRef string    `gorm:"type:varchar(191);not null;index:ux_plan_mappings_provider_ref,unique,priority:2" json:"provider_price_ref"`
	BillingInterval  string    `gorm:"type:varchar(16);not null;default:'unknown';index:ux_plan_mappings_provider_ref,unique,priority:3" json:"billing_interval"`
	InternalPlan     string    `gorm:"type:varchar(50);not null;default:'free'" json:"internal_plan"`
	IsActive         bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
