package billing

import (
	"errors"
	"time"

	"github.com/courseloop/courseloop/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetUserByCustomerID(customerID string) (*models.User, error)
	SetUserCustomerID(userID uint, customerID string) error
	UpsertSubscription(sub *models.Subscription) (bool, error)
	MarkSubscriptionCanceled(provider, subscriptionID string, eventAt time.Time) (bool, error)
	FindActivePlanMapping(provider, providerPriceRef, interval string) (*models.PlanMapping, error)
	ListSubscriptionsByUser(userID uint) ([]models.Subscription, error)
	GetOrCreateUserSettings(userID uint) (*models.UserSettings, error)
	SaveUserSettings(us *models.UserSettings) error
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByCustomerID(customerID string) (*models.User, error) {
	var user models.User
	err := r.db.Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) SetUserCustomerID(userID uint, customerID string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("stripe_customer_id", customerID).Error
}

// UpsertSubscription inserts or updates the row keyed by (provider,
// provider_subscription_id). Writes carry the provider event timestamp;
// a write older than the stored one is skipped so late retries of stale
// events cannot roll the record back. Returns whether the write was applied.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
			First(&existing).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := tx.Create(sub).Error; err != nil {
				return err
			}
			applied = true
			return nil
		}

		if staleWrite(existing.LastEventAt, sub.LastEventAt) {
			*sub = existing
			return nil
		}

		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		if err := tx.Save(sub).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// MarkSubscriptionCanceled sets the status of an existing row to canceled.
// The row is retained. Returns false when no row matches the subscription id.
func (r *gormRepository) MarkSubscriptionCanceled(provider, subscriptionID string, eventAt time.Time) (bool, error) {
	found := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("provider = ? AND provider_subscription_id = ?", provider, subscriptionID).
			First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true

		eventTime := eventAt
		if staleWrite(existing.LastEventAt, &eventTime) {
			return nil
		}

		return tx.Model(&models.Subscription{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"status":        models.SubscriptionStatusCanceled,
			"last_event_at": &eventTime,
		}).Error
	})
	return found, err
}

func staleWrite(stored, incoming *time.Time) bool {
	return stored != nil && incoming != nil && incoming.Before(*stored)
}

func (r *gormRepository) FindActivePlanMapping(provider, providerPriceRef, interval string) (*models.PlanMapping, error) {
	var m models.PlanMapping
	err := r.db.
		Where("provider = ? AND provider_price_ref = ? AND billing_interval = ? AND is_active = ?", provider, providerPriceRef, interval, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	return models.GetOrCreateUserSettings(r.db, userID)
}

func (r *gormRepository) SaveUserSettings(us *models.UserSettings) error {
	return r.db.Save(us).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
