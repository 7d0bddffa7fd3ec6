package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/courseloop/courseloop/app/models"
	"github.com/courseloop/courseloop/internal/pkg/audit"
	"github.com/courseloop/courseloop/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_secret"

// memRepo is a minimal in-memory billing.Repository for handler tests.
type memRepo struct {
	usersByCustomer map[string]*models.User
	subs            map[string]*models.Subscription
	settings        map[uint]*models.UserSettings
	webhooks        map[string]*models.WebhookEvent
	nextID          uint
}

func newMemRepo() *memRepo {
	return &memRepo{
		usersByCustomer: make(map[string]*models.User),
		subs:            make(map[string]*models.Subscription),
		settings:        make(map[uint]*models.UserSettings),
		webhooks:        make(map[string]*models.WebhookEvent),
	}
}

func (r *memRepo) GetUserByCustomerID(customerID string) (*models.User, error) {
	if u, ok := r.usersByCustomer[customerID]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) SetUserCustomerID(userID uint, customerID string) error {
	r.usersByCustomer[customerID] = &models.User{ID: userID, StripeCustomerID: customerID}
	return nil
}

func (r *memRepo) UpsertSubscription(sub *models.Subscription) (bool, error) {
	r.nextID++
	sub.ID = r.nextID
	cp := *sub
	r.subs[sub.Provider+"/"+sub.ProviderSubscriptionID] = &cp
	return true, nil
}

func (r *memRepo) MarkSubscriptionCanceled(provider, subscriptionID string, eventAt time.Time) (bool, error) {
	s, ok := r.subs[provider+"/"+subscriptionID]
	if !ok {
		return false, nil
	}
	s.Status = models.SubscriptionStatusCanceled
	s.LastEventAt = &eventAt
	return true, nil
}

func (r *memRepo) FindActivePlanMapping(provider, providerPriceRef, interval string) (*models.PlanMapping, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memRepo) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	if us, ok := r.settings[userID]; ok {
		return us, nil
	}
	us := &models.UserSettings{UserID: userID, Plan: "free"}
	r.settings[userID] = us
	return us, nil
}

func (r *memRepo) SaveUserSettings(us *models.UserSettings) error {
	r.settings[us.UserID] = us
	return nil
}

func (r *memRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := r.webhooks[key]; ok {
		return false, stored, nil
	}
	r.nextID++
	event.ID = r.nextID
	r.webhooks[key] = event
	return true, event, nil
}

func (r *memRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, w := range r.webhooks {
		if w.ID == id {
			now := time.Now()
			w.ProcessedAt = &now
			w.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func newWebhookTestApp(t *testing.T, repo *memRepo) *fiber.App {
	t.Helper()
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)

	InitializeBillingController(billing.NewService(repo), audit.NewRecorder(nil), nil)

	app := fiber.New()
	app.Post("/webhook", HandleStripeWebhook)
	app.All("/webhook/secure", HandleStripeWebhookSecure)
	return app
}

func signStripePayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, app *fiber.App, path string, payload []byte, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func subscriptionEventPayload(eventID, eventType, subID, customerID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": %q,
		"created": %d,
		"data": {
			"object": {
				"id": %q,
				"customer": %q,
				"status": "active",
				"current_period_end": 1767225600,
				"items": {"data": [{"price": {"id": "price_pro_month", "recurring": {"interval": "month"}}}]}
			}
		}
	}`, eventID, eventType, time.Now().Unix(), subID, customerID))
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	repo := newMemRepo()
	app := newWebhookTestApp(t, repo)

	payload := subscriptionEventPayload("evt_1", "customer.subscription.created", "sub_1", "cus_1")
	resp := postWebhook(t, app, "/webhook", payload, "t=123,v1=deadbeef")

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "invalid_signature")
	assert.Empty(t, repo.webhooks)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	repo := newMemRepo()
	app := newWebhookTestApp(t, repo)

	payload := subscriptionEventPayload("evt_1", "customer.subscription.created", "sub_1", "cus_1")
	resp := postWebhook(t, app, "/webhook", payload, "")

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWebhookProcessesSubscriptionCreated(t *testing.T) {
	repo := newMemRepo()
	repo.usersByCustomer["cus_123"] = &models.User{ID: 7, StripeCustomerID: "cus_123"}
	app := newWebhookTestApp(t, repo)

	payload := subscriptionEventPayload("evt_1", "customer.subscription.created", "sub_1", "cus_123")
	resp := postWebhook(t, app, "/webhook", payload, signStripePayload(payload))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"received":true`)

	stored, ok := repo.subs["stripe/sub_1"]
	require.True(t, ok, "subscription should be stored")
	assert.Equal(t, uint(7), stored.UserID)
	assert.Equal(t, "active", stored.Status)

	event, ok := repo.webhooks["stripe/evt_1"]
	require.True(t, ok)
	assert.NotNil(t, event.ProcessedAt)
	assert.Empty(t, event.ProcessingError)
}

func TestWebhookDuplicateDeliveryIsAcknowledged(t *testing.T) {
	repo := newMemRepo()
	repo.usersByCustomer["cus_123"] = &models.User{ID: 7, StripeCustomerID: "cus_123"}
	app := newWebhookTestApp(t, repo)

	payload := subscriptionEventPayload("evt_1", "customer.subscription.created", "sub_1", "cus_123")
	resp := postWebhook(t, app, "/webhook", payload, signStripePayload(payload))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	subsAfterFirst := len(repo.subs)
	resp = postWebhook(t, app, "/webhook", payload, signStripePayload(payload))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"duplicate":true`)
	assert.Equal(t, subsAfterFirst, len(repo.subs), "duplicate must not reprocess")
}

func TestWebhookRetryAfterFailureReprocesses(t *testing.T) {
	repo := newMemRepo()
	app := newWebhookTestApp(t, repo)

	// First delivery fails: no local user for the customer yet.
	payload := subscriptionEventPayload("evt_r1", "customer.subscription.created", "sub_r1", "cus_late")
	resp := postWebhook(t, app, "/webhook", payload, signStripePayload(payload))
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	// The customer link lands before the provider retries.
	repo.usersByCustomer["cus_late"] = &models.User{ID: 11, StripeCustomerID: "cus_late"}

	resp = postWebhook(t, app, "/webhook", payload, signStripePayload(payload))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(body), "duplicate")

	stored, ok := repo.subs["stripe/sub_r1"]
	require.True(t, ok, "retried delivery should reconcile the subscription")
	assert.Equal(t, uint(11), stored.UserID)

	event := repo.webhooks["stripe/evt_r1"]
	require.NotNil(t, event)
	assert.NotNil(t, event.ProcessedAt)
	assert.Empty(t, event.ProcessingError)
}

func TestWebhookUnknownEventTypeIsAcknowledged(t *testing.T) {
	repo := newMemRepo()
	app := newWebhookTestApp(t, repo)

	payload := []byte(fmt.Sprintf(`{"id": "evt_9", "type": "invoice.payment_succeeded", "created": %d, "data": {"object": {}}}`, time.Now().Unix()))
	resp := postWebhook(t, app, "/webhook", payload, signStripePayload(payload))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, repo.subs)
	// The event is still recorded for the audit trail.
	assert.Len(t, repo.webhooks, 1)
}

func TestWebhookUnknownCustomerFailsForRetry(t *testing.T) {
	repo := newMemRepo()
	app := newWebhookTestApp(t, repo)

	payload := subscriptionEventPayload("evt_2", "customer.subscription.created", "sub_2", "cus_ghost")
	resp := postWebhook(t, app, "/webhook", payload, signStripePayload(payload))

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	event, ok := repo.webhooks["stripe/evt_2"]
	require.True(t, ok)
	assert.Contains(t, event.ProcessingError, "cus_ghost")
}

func TestWebhookSubscriptionDeleted(t *testing.T) {
	repo := newMemRepo()
	repo.usersByCustomer["cus_123"] = &models.User{ID: 7, StripeCustomerID: "cus_123"}
	app := newWebhookTestApp(t, repo)

	payload := subscriptionEventPayload("evt_1", "customer.subscription.created", "sub_1", "cus_123")
	resp := postWebhook(t, app, "/webhook", payload, signStripePayload(payload))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload = subscriptionEventPayload("evt_2", "customer.subscription.deleted", "sub_1", "cus_123")
	resp = postWebhook(t, app, "/webhook", payload, signStripePayload(payload))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.SubscriptionStatusCanceled, repo.subs["stripe/sub_1"].Status)
}

func TestWebhookCheckoutCompletedLinksCustomer(t *testing.T) {
	repo := newMemRepo()
	app := newWebhookTestApp(t, repo)

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_3",
		"type": "checkout.session.completed",
		"created": %d,
		"data": {"object": {"id": "cs_1", "mode": "subscription", "customer": "cus_500", "client_reference_id": "42"}}
	}`, time.Now().Unix()))
	resp := postWebhook(t, app, "/webhook", payload, signStripePayload(payload))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	u, err := repo.GetUserByCustomerID("cus_500")
	require.NoError(t, err)
	assert.Equal(t, uint(42), u.ID)
}

func TestWebhookOversizedPayloadRejected(t *testing.T) {
	repo := newMemRepo()
	app := newWebhookTestApp(t, repo)

	payload := bytes.Repeat([]byte("a"), maxWebhookBodyBytes+1)
	resp := postWebhook(t, app, "/webhook", payload, signStripePayload(payload))

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, repo.webhooks)
}

func TestSecureWebhookRejectsNonPost(t *testing.T) {
	repo := newMemRepo()
	app := newWebhookTestApp(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/webhook/secure", strings.NewReader(""))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSecureWebhookProcessesValidEvent(t *testing.T) {
	repo := newMemRepo()
	repo.usersByCustomer["cus_123"] = &models.User{ID: 7, StripeCustomerID: "cus_123"}
	app := newWebhookTestApp(t, repo)

	payload := subscriptionEventPayload("evt_1", "customer.subscription.updated", "sub_1", "cus_123")
	resp := postWebhook(t, app, "/webhook/secure", payload, signStripePayload(payload))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	_, ok := repo.subs["stripe/sub_1"]
	assert.True(t, ok)
}
